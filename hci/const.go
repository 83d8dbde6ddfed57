package hci

// Status codes returned in Command Status and completion events.
const (
	StatusSuccess             byte = 0x00
	StatusUnknownConnectionID byte = 0x02
	StatusPageTimeout         byte = 0x04
	StatusAuthFailure         byte = 0x05
	StatusPinOrKeyMissing     byte = 0x06
	StatusConnectionTimeout   byte = 0x08
	StatusConnectionLimit     byte = 0x09
	StatusSCOConnectionLimit  byte = 0x0A
	StatusConnectionExists    byte = 0x0B
	StatusCommandDisallowed   byte = 0x0C
	StatusConnAcceptTimeout   byte = 0x10
	StatusRemoteTerminated    byte = 0x13
	StatusLocalHostTerminated byte = 0x16
	StatusRepeatedAttempts    byte = 0x17
	StatusPairingNotAllowed   byte = 0x18
	StatusUnspecifiedError    byte = 0x1F
	StatusInsufficientSecure  byte = 0x2F
	StatusControllerBusy      byte = 0x3A
	StatusConnFailedToEstab   byte = 0x3D
)

// Event codes. [Vol 4, Part E, 7.7]
const (
	EvtConnectionComplete        EventCode = 0x03
	EvtConnectionRequest         EventCode = 0x04
	EvtDisconnectionComplete     EventCode = 0x05
	EvtAuthenticationComplete    EventCode = 0x06
	EvtEncryptionChange          EventCode = 0x08
	EvtReadRemoteFeaturesComp    EventCode = 0x0B
	EvtReadRemoteVersionComp     EventCode = 0x0C
	EvtRoleChange                EventCode = 0x12
	EvtLinkKeyRequest            EventCode = 0x17
	EvtLinkKeyNotification       EventCode = 0x18
	EvtReadRemoteExtFeaturesComp EventCode = 0x23
	EvtSynchronousConnComplete   EventCode = 0x2C
	EvtIOCapabilityRequest       EventCode = 0x31
	EvtIOCapabilityResponse      EventCode = 0x32
	EvtUserConfirmationRequest   EventCode = 0x33
	EvtUserPasskeyRequest        EventCode = 0x34
	EvtSimplePairingComplete     EventCode = 0x36
	EvtUserPasskeyNotification   EventCode = 0x3B
)

// Role is the ACL connection role.
type Role byte

const (
	RoleMaster Role = 0x00
	RoleSlave  Role = 0x01
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// LinkType distinguishes ACL from synchronous links in connection events.
type LinkType byte

const (
	LinkSCO  LinkType = 0x00
	LinkACL  LinkType = 0x01
	LinkESCO LinkType = 0x02
)

func (l LinkType) String() string {
	switch l {
	case LinkSCO:
		return "sco"
	case LinkACL:
		return "acl"
	case LinkESCO:
		return "esco"
	}
	return "unknown"
}

// Synchronous reports whether the link carries SCO or eSCO traffic.
func (l LinkType) Synchronous() bool {
	return l == LinkSCO || l == LinkESCO
}

// RejectReason is the allowed reason set for rejecting an inbound
// connection request. [Vol 4, Part E, 7.1.9]
type RejectReason byte

const (
	RejectLimitedResources RejectReason = 0x0D
	RejectSecurityReasons  RejectReason = 0x0E
	RejectUnacceptableAddr RejectReason = 0x0F
)

// AuthRequirements is the authentication requirements byte exchanged in
// the IO capability reply. [Vol 2, Part E, 7.1.29]
type AuthRequirements byte

const (
	AuthNoBonding            AuthRequirements = 0x00
	AuthMITMNoBonding        AuthRequirements = 0x01
	AuthDedicatedBonding     AuthRequirements = 0x02
	AuthMITMDedicatedBonding AuthRequirements = 0x03
	AuthGeneralBonding       AuthRequirements = 0x04
	AuthMITMGeneralBonding   AuthRequirements = 0x05
)

// MITM reports whether the requirements demand man in the middle
// protection.
func (a AuthRequirements) MITM() bool {
	return byte(a)&0x01 != 0
}

// Page scan repetition modes.
type PageScanRepetitionMode byte

const (
	PageScanR0 PageScanRepetitionMode = 0x00
	PageScanR1 PageScanRepetitionMode = 0x01
	PageScanR2 PageScanRepetitionMode = 0x02
)

// Page scan types for Write Page Scan Type.
const (
	PageScanStandard   byte = 0x00
	PageScanInterlaced byte = 0x01
)

// Scan enable bits for Write Scan Enable.
const (
	ScanDisabled    byte = 0x00
	ScanInquiryOnly byte = 0x01
	ScanPageOnly    byte = 0x02
	ScanInquiryPage byte = 0x03
)

// ClockOffsetValidFlag marks a clock offset as valid when set in the
// Create Connection clock offset parameter.
const ClockOffsetValidFlag uint16 = 0x8000

// Disconnect reasons accepted by the Disconnect command.
const (
	ReasonRemoteUserTerminated byte = 0x13
	ReasonLowResources         byte = 0x14
	ReasonPowerOff             byte = 0x15
	ReasonUnacceptableParams   byte = 0x3B
	ReasonAuthFailure          byte = 0x05
)
