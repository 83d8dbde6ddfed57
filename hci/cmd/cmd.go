// Package cmd defines the HCI commands issued by the BR/EDR host.
// Parameter names follow [Vol 4, Part E, 7.1] and [Vol 4, Part E, 7.3].
package cmd

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
)

const (
	ogfLinkControl uint16 = 0x01
	ogfBaseband    uint16 = 0x03
)

func op(ogf, ocf uint16) hci.OpCode {
	return hci.OpCode(ogf<<10 | ocf)
}

// CreateConnection pages a peer to bring up an ACL link. [7.1.5]
type CreateConnection struct {
	Addr                   bredr.Addr
	PacketType             uint16
	PageScanRepetitionMode hci.PageScanRepetitionMode
	ClockOffset            uint16
	AllowRoleSwitch        bool
}

func (CreateConnection) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0005) }
func (CreateConnection) String() string     { return "Create Connection" }

// Disconnect tears down a link. [7.1.6]
type Disconnect struct {
	Handle uint16
	Reason byte
}

func (Disconnect) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0006) }
func (Disconnect) String() string     { return "Disconnect" }

// CreateConnectionCancel aborts an outstanding Create Connection. [7.1.7]
type CreateConnectionCancel struct {
	Addr bredr.Addr
}

func (CreateConnectionCancel) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0008) }
func (CreateConnectionCancel) String() string     { return "Create Connection Cancel" }

// AcceptConnectionRequest accepts an inbound connection. [7.1.8]
type AcceptConnectionRequest struct {
	Addr bredr.Addr
	Role hci.Role
}

func (AcceptConnectionRequest) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0009) }
func (AcceptConnectionRequest) String() string     { return "Accept Connection Request" }

// RejectConnectionRequest declines an inbound connection. [7.1.9]
type RejectConnectionRequest struct {
	Addr   bredr.Addr
	Reason hci.RejectReason
}

func (RejectConnectionRequest) OpCode() hci.OpCode { return op(ogfLinkControl, 0x000A) }
func (RejectConnectionRequest) String() string     { return "Reject Connection Request" }

// LinkKeyRequestReply answers a Link Key Request with a stored key. [7.1.10]
type LinkKeyRequestReply struct {
	Addr bredr.Addr
	Key  bredr.LinkKey
}

func (LinkKeyRequestReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x000B) }
func (LinkKeyRequestReply) String() string     { return "Link Key Request Reply" }

// LinkKeyRequestNegativeReply reports that no key is stored. [7.1.11]
type LinkKeyRequestNegativeReply struct {
	Addr bredr.Addr
}

func (LinkKeyRequestNegativeReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x000C) }
func (LinkKeyRequestNegativeReply) String() string     { return "Link Key Request Negative Reply" }

// AuthenticationRequested starts authentication on a live link. [7.1.15]
type AuthenticationRequested struct {
	Handle uint16
}

func (AuthenticationRequested) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0011) }
func (AuthenticationRequested) String() string     { return "Authentication Requested" }

// SetConnectionEncryption turns link-level encryption on or off. [7.1.16]
type SetConnectionEncryption struct {
	Handle uint16
	Enable bool
}

func (SetConnectionEncryption) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0013) }
func (SetConnectionEncryption) String() string     { return "Set Connection Encryption" }

// ReadRemoteSupportedFeatures requests LMP features page 0. [7.1.21]
type ReadRemoteSupportedFeatures struct {
	Handle uint16
}

func (ReadRemoteSupportedFeatures) OpCode() hci.OpCode { return op(ogfLinkControl, 0x001B) }
func (ReadRemoteSupportedFeatures) String() string     { return "Read Remote Supported Features" }

// ReadRemoteExtendedFeatures requests an extended LMP features page. [7.1.22]
type ReadRemoteExtendedFeatures struct {
	Handle uint16
	Page   byte
}

func (ReadRemoteExtendedFeatures) OpCode() hci.OpCode { return op(ogfLinkControl, 0x001C) }
func (ReadRemoteExtendedFeatures) String() string     { return "Read Remote Extended Features" }

// ReadRemoteVersionInformation requests the peer's LMP version. [7.1.23]
type ReadRemoteVersionInformation struct {
	Handle uint16
}

func (ReadRemoteVersionInformation) OpCode() hci.OpCode { return op(ogfLinkControl, 0x001D) }
func (ReadRemoteVersionInformation) String() string     { return "Read Remote Version Information" }

// AcceptSynchronousConnectionRequest accepts an inbound SCO/eSCO link
// with the given parameter set. [7.1.26]
type AcceptSynchronousConnectionRequest struct {
	Addr                 bredr.Addr
	TxBandwidth          uint32
	RxBandwidth          uint32
	MaxLatency           uint16
	VoiceSetting         uint16
	RetransmissionEffort byte
	PacketTypes          uint16
}

func (AcceptSynchronousConnectionRequest) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0029) }
func (AcceptSynchronousConnectionRequest) String() string {
	return "Accept Synchronous Connection Request"
}

// RejectSynchronousConnectionRequest declines an inbound SCO/eSCO link. [7.1.27]
type RejectSynchronousConnectionRequest struct {
	Addr   bredr.Addr
	Reason hci.RejectReason
}

func (RejectSynchronousConnectionRequest) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002A) }
func (RejectSynchronousConnectionRequest) String() string {
	return "Reject Synchronous Connection Request"
}

// IOCapabilityRequestReply answers an IO Capability Request. [7.1.29]
type IOCapabilityRequestReply struct {
	Addr             bredr.Addr
	IOCapability     bredr.IOCapability
	OOBDataPresent   byte
	AuthRequirements hci.AuthRequirements
}

func (IOCapabilityRequestReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002B) }
func (IOCapabilityRequestReply) String() string     { return "IO Capability Request Reply" }

// IOCapabilityRequestNegativeReply refuses to pair. [7.1.36]
type IOCapabilityRequestNegativeReply struct {
	Addr   bredr.Addr
	Reason byte
}

func (IOCapabilityRequestNegativeReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x0034) }
func (IOCapabilityRequestNegativeReply) String() string {
	return "IO Capability Request Negative Reply"
}

// UserConfirmationRequestReply confirms a numeric comparison or consent
// prompt. [7.1.30]
type UserConfirmationRequestReply struct {
	Addr bredr.Addr
}

func (UserConfirmationRequestReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002C) }
func (UserConfirmationRequestReply) String() string     { return "User Confirmation Request Reply" }

// UserConfirmationRequestNegativeReply rejects the prompt. [7.1.31]
type UserConfirmationRequestNegativeReply struct {
	Addr bredr.Addr
}

func (UserConfirmationRequestNegativeReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002D) }
func (UserConfirmationRequestNegativeReply) String() string {
	return "User Confirmation Request Negative Reply"
}

// UserPasskeyRequestReply supplies the passkey typed by the user. [7.1.32]
type UserPasskeyRequestReply struct {
	Addr    bredr.Addr
	Passkey uint32
}

func (UserPasskeyRequestReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002E) }
func (UserPasskeyRequestReply) String() string     { return "User Passkey Request Reply" }

// UserPasskeyRequestNegativeReply rejects the passkey prompt. [7.1.33]
type UserPasskeyRequestNegativeReply struct {
	Addr bredr.Addr
}

func (UserPasskeyRequestNegativeReply) OpCode() hci.OpCode { return op(ogfLinkControl, 0x002F) }
func (UserPasskeyRequestNegativeReply) String() string {
	return "User Passkey Request Negative Reply"
}

// WriteScanEnable controls page and inquiry scan. [7.3.18]
type WriteScanEnable struct {
	ScanEnable byte
}

func (WriteScanEnable) OpCode() hci.OpCode { return op(ogfBaseband, 0x001A) }
func (WriteScanEnable) String() string     { return "Write Scan Enable" }

// WritePageScanActivity sets the page scan interval and window. [7.3.20]
type WritePageScanActivity struct {
	Interval uint16
	Window   uint16
}

func (WritePageScanActivity) OpCode() hci.OpCode { return op(ogfBaseband, 0x001C) }
func (WritePageScanActivity) String() string     { return "Write Page Scan Activity" }

// WritePageScanType selects standard or interlaced page scan. [7.3.52]
type WritePageScanType struct {
	Type byte
}

func (WritePageScanType) OpCode() hci.OpCode { return op(ogfBaseband, 0x0047) }
func (WritePageScanType) String() string     { return "Write Page Scan Type" }
