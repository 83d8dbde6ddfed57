package gap

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
)

// pairingAction is what the local side must do during Authentication
// Stage 1, derived from the two IO capabilities per the association
// model tables in [Vol 3, Part C, 5.2.2.6].
type pairingAction int

const (
	// actionAutomatic: just works, confirm without involving the user.
	actionAutomatic pairingAction = iota
	// actionGetConsent: ask the user yes/no, no number shown.
	actionGetConsent
	// actionComparePasskey: show a number, the user confirms it matches
	// the peer's display.
	actionComparePasskey
	// actionDisplayPasskey: show a number for the user to type on the
	// peer.
	actionDisplayPasskey
	// actionRequestPasskey: ask the user to type the number shown on
	// the peer.
	actionRequestPasskey
)

func (a pairingAction) String() string {
	switch a {
	case actionAutomatic:
		return "automatic"
	case actionGetConsent:
		return "get consent"
	case actionComparePasskey:
		return "compare passkey"
	case actionDisplayPasskey:
		return "display passkey"
	case actionRequestPasskey:
		return "request passkey"
	}
	return "unknown"
}

// initiatorAction returns the local action when the local host started
// the pairing.
func initiatorAction(local, peerCap bredr.IOCapability) pairingAction {
	if local == bredr.IOCapNoInputNoOutput {
		return actionAutomatic
	}
	if peerCap == bredr.IOCapNoInputNoOutput {
		if local == bredr.IOCapDisplayYesNo {
			return actionGetConsent
		}
		return actionAutomatic
	}
	if local == bredr.IOCapKeyboardOnly {
		return actionRequestPasskey
	}
	if peerCap == bredr.IOCapKeyboardOnly {
		return actionDisplayPasskey
	}
	if local == bredr.IOCapDisplayOnly {
		// Peer is a display; nothing for the user to enter or confirm
		// on a bare display.
		return actionAutomatic
	}
	// Local is DisplayYesNo.
	if peerCap == bredr.IOCapDisplayOnly {
		// The peer auto-confirms; the user here just consents.
		return actionGetConsent
	}
	return actionComparePasskey
}

// responderAction returns the local action when the peer started the
// pairing. Mostly the initiator table with the roles flipped, except a
// keyboard-only host paired from a no-IO peer still asks for consent.
func responderAction(local, peerCap bredr.IOCapability) pairingAction {
	if peerCap == bredr.IOCapNoInputNoOutput && local == bredr.IOCapKeyboardOnly {
		return actionGetConsent
	}
	return initiatorAction(local, peerCap)
}

// expectedEvent returns the user interaction event the controller will
// deliver for this capability pairing, regardless of role.
func expectedEvent(local, peerCap bredr.IOCapability) hci.EventCode {
	if local == bredr.IOCapNoInputNoOutput || peerCap == bredr.IOCapNoInputNoOutput {
		return hci.EvtUserConfirmationRequest
	}
	if local == bredr.IOCapKeyboardOnly {
		return hci.EvtUserPasskeyRequest
	}
	if peerCap == bredr.IOCapKeyboardOnly {
		return hci.EvtUserPasskeyNotification
	}
	return hci.EvtUserConfirmationRequest
}

// pairingAuthenticated reports whether the association model for the
// capability pairing protects against man in the middle. Numeric
// comparison needs yes/no on both sides; passkey entry needs a keyboard
// on one side and a display on the other.
func pairingAuthenticated(local, peerCap bredr.IOCapability) bool {
	if local == bredr.IOCapNoInputNoOutput || peerCap == bredr.IOCapNoInputNoOutput {
		return false
	}
	if local == bredr.IOCapKeyboardOnly || peerCap == bredr.IOCapKeyboardOnly {
		return true
	}
	return local == bredr.IOCapDisplayYesNo && peerCap == bredr.IOCapDisplayYesNo
}

// initiatorAuthRequirements is the authentication requirements byte sent
// in our IO Capability Request Reply when initiating. MITM is always
// requested when the local side has any IO for it.
func initiatorAuthRequirements(local bredr.IOCapability) hci.AuthRequirements {
	if local == bredr.IOCapNoInputNoOutput {
		return hci.AuthGeneralBonding
	}
	return hci.AuthMITMGeneralBonding
}

// responderAuthRequirements mirrors what the negotiated model can
// actually deliver.
func responderAuthRequirements(local, peerCap bredr.IOCapability) hci.AuthRequirements {
	if pairingAuthenticated(local, peerCap) {
		return hci.AuthMITMGeneralBonding
	}
	return hci.AuthGeneralBonding
}
