package bredr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AddrKind distinguishes the transport/type a device address belongs to.
type AddrKind byte

const (
	// AddrBREDR is a BR/EDR BD_ADDR.
	AddrBREDR AddrKind = iota
	// AddrLEPublic is an LE public device address.
	AddrLEPublic
	// AddrLERandom is an LE random device address.
	AddrLERandom
)

func (k AddrKind) String() string {
	switch k {
	case AddrBREDR:
		return "bredr"
	case AddrLEPublic:
		return "le public"
	case AddrLERandom:
		return "le random"
	}
	return fmt.Sprintf("unknown (%d)", byte(k))
}

// Addr is a device address. It is comparable and usable as a map key.
// MAC is stored in printable order (most significant byte first).
type Addr struct {
	MAC  [6]byte
	Kind AddrKind
}

// NewAddr builds a BR/EDR Addr from a printable-order MAC.
func NewAddr(mac [6]byte) Addr {
	return Addr{MAC: mac, Kind: AddrBREDR}
}

// ParseAddr parses a colon separated address string, e.g. "00:11:22:33:44:55".
func ParseAddr(s string) (Addr, error) {
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)
	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return Addr{}, errors.Wrap(err, "parse address")
	}
	if len(out) != 6 {
		return Addr{}, errors.Errorf("parse address: want 6 bytes, got %d", len(out))
	}

	var a Addr
	copy(a.MAC[:], out)
	return a, nil
}

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a.MAC[0], a.MAC[1], a.MAC[2], a.MAC[3], a.MAC[4], a.MAC[5])
}

// Bytes returns the address in wire order (little-endian), as carried in
// HCI command and event parameters.
func (a Addr) Bytes() []byte {
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		b[i] = a.MAC[5-i]
	}
	return b
}

// IsLE reports whether the address belongs to the LE transport.
func (a Addr) IsLE() bool {
	return a.Kind == AddrLEPublic || a.Kind == AddrLERandom
}
