package gap

import (
	"crypto/aes"

	"github.com/aead/cmac"
	"github.com/pkg/errors"

	"github.com/rigado/bredr"
)

// Cross-transport key derivation, [Vol 3, Part C, 14.2]: a BR/EDR link
// key turns into an LE long term key so a dual-mode peer bonded on one
// transport is bonded on both. All values here are most significant
// byte first, matching the sample data in [Vol 3, Part H, Appendix D].

// saltCT2 is the h7 SALT for BR/EDR to LE derivation ("tmp2" in the
// least significant bytes).
var saltCT2 = bredr.LinkKey{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x74, 0x6D, 0x70, 0x32,
}

func aesCMAC(key bredr.LinkKey, msg []byte) (bredr.LinkKey, error) {
	var out bredr.LinkKey

	c, err := aes.NewCipher(key[:])
	if err != nil {
		return out, err
	}
	mac, err := cmac.New(c)
	if err != nil {
		return out, err
	}
	if _, err := mac.Write(msg); err != nil {
		return out, err
	}
	copy(out[:], mac.Sum(nil))
	return out, nil
}

// h6 is the link key conversion function with a 4 character key id.
func h6(w bredr.LinkKey, keyID string) (bredr.LinkKey, error) {
	if len(keyID) != 4 {
		return bredr.LinkKey{}, errors.Errorf("h6: key id %q is not 4 bytes", keyID)
	}
	return aesCMAC(w, []byte(keyID))
}

// h7 is the salted variant used when both sides support CT2.
func h7(salt, w bredr.LinkKey) (bredr.LinkKey, error) {
	return aesCMAC(salt, w[:])
}

// DeriveLEKey derives the LE long term key from a BR/EDR bond. Legacy
// keys carry no derivable security and are refused. ct2 selects the h7
// path, only valid when both controllers advertise CT2 support.
func DeriveLEKey(bond bredr.BondData, ct2 bool) (bredr.LinkKey, error) {
	if bond.KeyType.Legacy() {
		return bredr.LinkKey{}, errors.Wrap(bredr.ErrInsufficientSecurity, "legacy link key")
	}

	var (
		ilk bredr.LinkKey
		err error
	)
	if ct2 {
		ilk, err = h7(saltCT2, bond.Key)
	} else {
		ilk, err = h6(bond.Key, "tmp2")
	}
	if err != nil {
		return bredr.LinkKey{}, err
	}
	return h6(ilk, "brle")
}
