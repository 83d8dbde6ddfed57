package gap

import (
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"

	"github.com/rigado/bredr"
)

func keyFromHex(t *testing.T, s string) bredr.LinkKey {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		t.Fatalf("bad key literal %q", s)
	}
	var k bredr.LinkKey
	copy(k[:], b)
	return k
}

// Sample data from the Core Specification, [Vol 3, Part H, Appendix D].
func TestH6SampleData(t *testing.T) {
	w := keyFromHex(t, "ec0234a357c8ad05341010a60a397d9b")
	want := keyFromHex(t, "2d9ae102e76dc91ce8d3a9e280b16399")

	got, err := h6(w, "lebr")
	if err != nil {
		t.Fatalf("h6: %v", err)
	}
	if got != want {
		t.Fatalf("h6 = %v, want %v", got, want)
	}
}

func TestH7SampleData(t *testing.T) {
	salt := keyFromHex(t, "000000000000000000000000746d7031")
	w := keyFromHex(t, "ec0234a357c8ad05341010a60a397d9b")
	want := keyFromHex(t, "fb173597c6a3c0ecd2998c2a75a57011")

	got, err := h7(salt, w)
	if err != nil {
		t.Fatalf("h7: %v", err)
	}
	if got != want {
		t.Fatalf("h7 = %v, want %v", got, want)
	}
}

func TestH6RejectsBadKeyID(t *testing.T) {
	if _, err := h6(bredr.LinkKey{}, "toolong"); err == nil {
		t.Fatal("expected error for key id length")
	}
}

func TestDeriveLEKey(t *testing.T) {
	bond := bredr.BondData{
		Key:     keyFromHex(t, "ec0234a357c8ad05341010a60a397d9b"),
		KeyType: bredr.KeyAuthCombination256,
	}

	ltk, err := DeriveLEKey(bond, false)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if ltk == (bredr.LinkKey{}) {
		t.Fatal("derived zero key")
	}

	again, err := DeriveLEKey(bond, false)
	if err != nil || again != ltk {
		t.Fatalf("derivation not deterministic: %v %v", again, err)
	}

	ct2, err := DeriveLEKey(bond, true)
	if err != nil {
		t.Fatalf("derive ct2: %v", err)
	}
	if ct2 == ltk {
		t.Fatal("ct2 derivation should differ from h6 path")
	}
}

func TestDeriveLEKeyRejectsLegacy(t *testing.T) {
	bond := bredr.BondData{Key: bredr.LinkKey{1}, KeyType: bredr.KeyCombination}
	if _, err := DeriveLEKey(bond, false); errors.Cause(err) != bredr.ErrInsufficientSecurity {
		t.Fatalf("expected insufficient security, got %v", err)
	}
}
