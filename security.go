package bredr

import (
	"encoding/hex"
	"fmt"
)

// LinkKey is a 16 byte BR/EDR link key value.
type LinkKey [16]byte

func (k LinkKey) String() string {
	return hex.EncodeToString(k[:])
}

// LinkKeyType is the HCI link key type delivered with a
// Link Key Notification event. [Vol 4, Part E, 7.7.24]
type LinkKeyType byte

const (
	KeyCombination          LinkKeyType = 0x00
	KeyLocalUnit            LinkKeyType = 0x01
	KeyRemoteUnit           LinkKeyType = 0x02
	KeyDebugCombination     LinkKeyType = 0x03
	KeyUnauthCombination192 LinkKeyType = 0x04
	KeyAuthCombination192   LinkKeyType = 0x05
	KeyChangedCombination   LinkKeyType = 0x06
	KeyUnauthCombination256 LinkKeyType = 0x07
	KeyAuthCombination256   LinkKeyType = 0x08
)

func (t LinkKeyType) String() string {
	switch t {
	case KeyCombination:
		return "Combination"
	case KeyLocalUnit:
		return "Local Unit"
	case KeyRemoteUnit:
		return "Remote Unit"
	case KeyDebugCombination:
		return "Debug Combination"
	case KeyUnauthCombination192:
		return "Unauthenticated Combination P-192"
	case KeyAuthCombination192:
		return "Authenticated Combination P-192"
	case KeyChangedCombination:
		return "Changed Combination"
	case KeyUnauthCombination256:
		return "Unauthenticated Combination P-256"
	case KeyAuthCombination256:
		return "Authenticated Combination P-256"
	}
	return fmt.Sprintf("Reserved (0x%02X)", byte(t))
}

// Legacy reports whether the key was generated by legacy (pre-SSP)
// pairing. Legacy keys carry no meaningful security properties.
func (t LinkKeyType) Legacy() bool {
	return t == KeyCombination || t == KeyLocalUnit || t == KeyRemoteUnit
}

// Changed reports whether the type only signals a refresh of an
// existing key rather than a newly classified one.
func (t LinkKeyType) Changed() bool {
	return t == KeyChangedCombination
}

// Security returns the properties conferred by a key of this type.
// Legacy and changed types have no classification of their own.
func (t LinkKeyType) Security() SecurityProperties {
	switch t {
	case KeyAuthCombination192:
		return SecurityProperties{Authenticated: true}
	case KeyUnauthCombination256:
		return SecurityProperties{SecureConnections: true}
	case KeyAuthCombination256:
		return SecurityProperties{Authenticated: true, SecureConnections: true}
	case KeyDebugCombination, KeyUnauthCombination192:
		return SecurityProperties{}
	}
	return SecurityProperties{}
}

// SecurityProperties describes what a link key actually provides.
type SecurityProperties struct {
	Authenticated     bool
	SecureConnections bool
}

func (p SecurityProperties) String() string {
	auth := "unauthenticated"
	if p.Authenticated {
		auth = "authenticated"
	}
	if p.SecureConnections {
		return auth + " (secure connections)"
	}
	return auth
}

// Satisfies reports whether the properties meet the given requirements.
func (p SecurityProperties) Satisfies(r SecurityRequirements) bool {
	if r.MITM && !p.Authenticated {
		return false
	}
	if r.SecureConnections && !p.SecureConnections {
		return false
	}
	return true
}

// SecurityRequirements is what a caller demands from a link before it
// is willing to use it.
type SecurityRequirements struct {
	MITM              bool
	SecureConnections bool
}

// Stricter merges two requirement sets, keeping the stronger demand on
// each axis.
func (r SecurityRequirements) Stricter(o SecurityRequirements) SecurityRequirements {
	return SecurityRequirements{
		MITM:              r.MITM || o.MITM,
		SecureConnections: r.SecureConnections || o.SecureConnections,
	}
}

// BondData is the persisted security association with a peer.
type BondData struct {
	Key     LinkKey     `json:"key"`
	KeyType LinkKeyType `json:"keyType"`
}

// Security returns the properties of the bonded key.
func (b BondData) Security() SecurityProperties {
	return b.KeyType.Security()
}

// IOCapability is the input/output capability advertised during secure
// simple pairing. Values match the HCI encoding. [Vol 2, Part E, 7.1.29]
type IOCapability byte

const (
	IOCapDisplayOnly     IOCapability = 0x00
	IOCapDisplayYesNo    IOCapability = 0x01
	IOCapKeyboardOnly    IOCapability = 0x02
	IOCapNoInputNoOutput IOCapability = 0x03
)

func (c IOCapability) String() string {
	switch c {
	case IOCapDisplayOnly:
		return "DisplayOnly"
	case IOCapDisplayYesNo:
		return "DisplayYesNo"
	case IOCapKeyboardOnly:
		return "KeyboardOnly"
	case IOCapNoInputNoOutput:
		return "NoInputNoOutput"
	}
	return fmt.Sprintf("Reserved (0x%02X)", byte(c))
}

// Valid reports whether c is one of the four assigned values.
func (c IOCapability) Valid() bool {
	return c <= IOCapNoInputNoOutput
}
