// Package evt defines the HCI events consumed by the BR/EDR host.
// Field names follow [Vol 4, Part E, 7.7].
package evt

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
)

// ConnectionComplete reports the outcome of a connection attempt, local
// or remote. [7.7.3]
type ConnectionComplete struct {
	Status            byte
	Handle            uint16
	Addr              bredr.Addr
	LinkType          hci.LinkType
	EncryptionEnabled bool
}

func (ConnectionComplete) Code() hci.EventCode { return hci.EvtConnectionComplete }
func (ConnectionComplete) String() string      { return "Connection Complete" }

// ConnectionRequest announces an inbound connection attempt. [7.7.4]
type ConnectionRequest struct {
	Addr          bredr.Addr
	ClassOfDevice uint32
	LinkType      hci.LinkType
}

func (ConnectionRequest) Code() hci.EventCode { return hci.EvtConnectionRequest }
func (ConnectionRequest) String() string      { return "Connection Request" }

// DisconnectionComplete reports that a link went down. [7.7.5]
type DisconnectionComplete struct {
	Status byte
	Handle uint16
	Reason byte
}

func (DisconnectionComplete) Code() hci.EventCode { return hci.EvtDisconnectionComplete }
func (DisconnectionComplete) String() string      { return "Disconnection Complete" }

// AuthenticationComplete reports the outcome of Authentication
// Requested. [7.7.6]
type AuthenticationComplete struct {
	Status byte
	Handle uint16
}

func (AuthenticationComplete) Code() hci.EventCode { return hci.EvtAuthenticationComplete }
func (AuthenticationComplete) String() string      { return "Authentication Complete" }

// EncryptionChange reports a change of link-level encryption. [7.7.8]
type EncryptionChange struct {
	Status  byte
	Handle  uint16
	Enabled byte
}

func (EncryptionChange) Code() hci.EventCode { return hci.EvtEncryptionChange }
func (EncryptionChange) String() string      { return "Encryption Change" }

// On reports whether encryption is now active.
func (e EncryptionChange) On() bool { return e.Enabled != 0x00 }

// ReadRemoteSupportedFeaturesComplete carries LMP features page 0. [7.7.11]
type ReadRemoteSupportedFeaturesComplete struct {
	Status   byte
	Handle   uint16
	Features uint64
}

func (ReadRemoteSupportedFeaturesComplete) Code() hci.EventCode {
	return hci.EvtReadRemoteFeaturesComp
}
func (ReadRemoteSupportedFeaturesComplete) String() string {
	return "Read Remote Supported Features Complete"
}

// ReadRemoteVersionInformationComplete carries the peer's LMP
// version. [7.7.12]
type ReadRemoteVersionInformationComplete struct {
	Status       byte
	Handle       uint16
	Version      byte
	Manufacturer uint16
	Subversion   uint16
}

func (ReadRemoteVersionInformationComplete) Code() hci.EventCode {
	return hci.EvtReadRemoteVersionComp
}
func (ReadRemoteVersionInformationComplete) String() string {
	return "Read Remote Version Information Complete"
}

// RoleChange reports a completed role switch. [7.7.18]
type RoleChange struct {
	Status  byte
	Addr    bredr.Addr
	NewRole hci.Role
}

func (RoleChange) Code() hci.EventCode { return hci.EvtRoleChange }
func (RoleChange) String() string      { return "Role Change" }

// LinkKeyRequest asks the host for a stored link key. [7.7.23]
type LinkKeyRequest struct {
	Addr bredr.Addr
}

func (LinkKeyRequest) Code() hci.EventCode { return hci.EvtLinkKeyRequest }
func (LinkKeyRequest) String() string      { return "Link Key Request" }

// LinkKeyNotification delivers a new link key to store. [7.7.24]
type LinkKeyNotification struct {
	Addr    bredr.Addr
	Key     bredr.LinkKey
	KeyType bredr.LinkKeyType
}

func (LinkKeyNotification) Code() hci.EventCode { return hci.EvtLinkKeyNotification }
func (LinkKeyNotification) String() string      { return "Link Key Notification" }

// ReadRemoteExtendedFeaturesComplete carries an extended LMP features
// page. [7.7.34]
type ReadRemoteExtendedFeaturesComplete struct {
	Status        byte
	Handle        uint16
	PageNumber    byte
	MaxPageNumber byte
	Features      uint64
}

func (ReadRemoteExtendedFeaturesComplete) Code() hci.EventCode {
	return hci.EvtReadRemoteExtFeaturesComp
}
func (ReadRemoteExtendedFeaturesComplete) String() string {
	return "Read Remote Extended Features Complete"
}

// SynchronousConnectionComplete reports the outcome of a SCO/eSCO
// setup. [7.7.35]
type SynchronousConnectionComplete struct {
	Status   byte
	Handle   uint16
	Addr     bredr.Addr
	LinkType hci.LinkType
	AirMode  byte
}

func (SynchronousConnectionComplete) Code() hci.EventCode {
	return hci.EvtSynchronousConnComplete
}
func (SynchronousConnectionComplete) String() string { return "Synchronous Connection Complete" }

// IOCapabilityRequest asks the host for its pairing capabilities. [7.7.40]
type IOCapabilityRequest struct {
	Addr bredr.Addr
}

func (IOCapabilityRequest) Code() hci.EventCode { return hci.EvtIOCapabilityRequest }
func (IOCapabilityRequest) String() string      { return "IO Capability Request" }

// IOCapabilityResponse carries the peer's pairing capabilities. [7.7.41]
type IOCapabilityResponse struct {
	Addr             bredr.Addr
	IOCapability     bredr.IOCapability
	OOBDataPresent   byte
	AuthRequirements hci.AuthRequirements
}

func (IOCapabilityResponse) Code() hci.EventCode { return hci.EvtIOCapabilityResponse }
func (IOCapabilityResponse) String() string      { return "IO Capability Response" }

// UserConfirmationRequest asks the user to confirm a numeric value. [7.7.42]
type UserConfirmationRequest struct {
	Addr    bredr.Addr
	Numeric uint32
}

func (UserConfirmationRequest) Code() hci.EventCode { return hci.EvtUserConfirmationRequest }
func (UserConfirmationRequest) String() string      { return "User Confirmation Request" }

// UserPasskeyRequest asks the user to enter the peer's passkey. [7.7.43]
type UserPasskeyRequest struct {
	Addr bredr.Addr
}

func (UserPasskeyRequest) Code() hci.EventCode { return hci.EvtUserPasskeyRequest }
func (UserPasskeyRequest) String() string      { return "User Passkey Request" }

// SimplePairingComplete reports the end of the pairing exchange. [7.7.45]
type SimplePairingComplete struct {
	Status byte
	Addr   bredr.Addr
}

func (SimplePairingComplete) Code() hci.EventCode { return hci.EvtSimplePairingComplete }
func (SimplePairingComplete) String() string      { return "Simple Pairing Complete" }

// UserPasskeyNotification delivers the passkey to display for the peer
// to type. [7.7.48]
type UserPasskeyNotification struct {
	Addr    bredr.Addr
	Passkey uint32
}

func (UserPasskeyNotification) Code() hci.EventCode { return hci.EvtUserPasskeyNotification }
func (UserPasskeyNotification) String() string      { return "User Passkey Notification" }
