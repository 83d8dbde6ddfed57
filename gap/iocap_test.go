package gap

import (
	"testing"

	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
)

// The full association model matrix from the Core Specification
// Authentication Stage 1 tables, every (local, peer) capability pair in
// both roles.
func TestAssociationMatrix(t *testing.T) {
	const (
		do = bredr.IOCapDisplayOnly
		dy = bredr.IOCapDisplayYesNo
		ko = bredr.IOCapKeyboardOnly
		no = bredr.IOCapNoInputNoOutput
	)

	cases := []struct {
		local, peer   bredr.IOCapability
		initiator     pairingAction
		responder     pairingAction
		event         hci.EventCode
		authenticated bool
	}{
		{do, do, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
		{do, dy, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
		{do, ko, actionDisplayPasskey, actionDisplayPasskey, hci.EvtUserPasskeyNotification, true},
		{do, no, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},

		{dy, do, actionGetConsent, actionGetConsent, hci.EvtUserConfirmationRequest, false},
		{dy, dy, actionComparePasskey, actionComparePasskey, hci.EvtUserConfirmationRequest, true},
		{dy, ko, actionDisplayPasskey, actionDisplayPasskey, hci.EvtUserPasskeyNotification, true},
		{dy, no, actionGetConsent, actionGetConsent, hci.EvtUserConfirmationRequest, false},

		{ko, do, actionRequestPasskey, actionRequestPasskey, hci.EvtUserPasskeyRequest, true},
		{ko, dy, actionRequestPasskey, actionRequestPasskey, hci.EvtUserPasskeyRequest, true},
		{ko, ko, actionRequestPasskey, actionRequestPasskey, hci.EvtUserPasskeyRequest, true},
		{ko, no, actionAutomatic, actionGetConsent, hci.EvtUserConfirmationRequest, false},

		{no, do, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
		{no, dy, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
		{no, ko, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
		{no, no, actionAutomatic, actionAutomatic, hci.EvtUserConfirmationRequest, false},
	}

	for _, c := range cases {
		if got := initiatorAction(c.local, c.peer); got != c.initiator {
			t.Errorf("initiatorAction(%v, %v) = %v, want %v", c.local, c.peer, got, c.initiator)
		}
		if got := responderAction(c.local, c.peer); got != c.responder {
			t.Errorf("responderAction(%v, %v) = %v, want %v", c.local, c.peer, got, c.responder)
		}
		if got := expectedEvent(c.local, c.peer); got != c.event {
			t.Errorf("expectedEvent(%v, %v) = %#02x, want %#02x", c.local, c.peer, got, c.event)
		}
		if got := pairingAuthenticated(c.local, c.peer); got != c.authenticated {
			t.Errorf("pairingAuthenticated(%v, %v) = %v, want %v", c.local, c.peer, got, c.authenticated)
		}
	}
}

func TestAuthRequirements(t *testing.T) {
	if got := initiatorAuthRequirements(bredr.IOCapNoInputNoOutput); got != hci.AuthGeneralBonding {
		t.Fatalf("expected general bonding for no io, got %v", got)
	}
	if got := initiatorAuthRequirements(bredr.IOCapDisplayYesNo); got != hci.AuthMITMGeneralBonding {
		t.Fatalf("expected mitm general bonding, got %v", got)
	}
	if got := responderAuthRequirements(bredr.IOCapDisplayYesNo, bredr.IOCapNoInputNoOutput); got != hci.AuthGeneralBonding {
		t.Fatalf("expected general bonding for unauthenticated model, got %v", got)
	}
	if got := responderAuthRequirements(bredr.IOCapKeyboardOnly, bredr.IOCapDisplayOnly); got != hci.AuthMITMGeneralBonding {
		t.Fatalf("expected mitm general bonding for passkey entry, got %v", got)
	}
}
