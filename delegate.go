package bredr

// DisplayMethod tells a PairingDelegate what the user is expected to do
// with a displayed passkey.
type DisplayMethod int

const (
	// DisplayComparison: the same passkey is shown on both devices and
	// the user confirms they match.
	DisplayComparison DisplayMethod = iota
	// DisplayPeerEntry: the passkey is shown here and typed on the peer.
	DisplayPeerEntry
)

func (m DisplayMethod) String() string {
	if m == DisplayPeerEntry {
		return "peer entry"
	}
	return "comparison"
}

// PairingDelegate supplies user interaction for pairing. All methods may
// be called from the manager's dispatch context and must not block; the
// response callbacks may be invoked from any goroutine, at most once.
//
// When no delegate is set the host has no way to involve a user, so
// pairing requests that need one are rejected.
type PairingDelegate interface {
	// IOCapability reports what the delegate can show and read. It is
	// sent to the peer and drives the association method selection.
	IOCapability() IOCapability

	// ConfirmPairing asks for simple consent ("pair with X?").
	ConfirmPairing(peer PeerID, confirm func(bool))

	// DisplayPasskey shows a 6 digit passkey. For DisplayComparison the
	// confirm callback reports the user's match decision; for
	// DisplayPeerEntry it reports mere acknowledgement.
	DisplayPasskey(peer PeerID, passkey uint32, method DisplayMethod, confirm func(bool))

	// RequestPasskey asks the user to type the passkey shown on the
	// peer. Respond with a negative value to reject.
	RequestPasskey(peer PeerID, respond func(int64))

	// PairingComplete reports the outcome of a pairing the delegate was
	// involved in. err is nil on success.
	PairingComplete(peer PeerID, err error)
}
