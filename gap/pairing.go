package gap

import (
	"github.com/pkg/errors"

	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/hci/cmd"
	"github.com/rigado/bredr/hci/evt"
	"github.com/rigado/bredr/peer"
)

// pairState is the per-connection authentication protocol state.
type pairState int

const (
	stateIdle pairState = iota
	stateInitiatorWaitLinkKeyRequest
	stateInitiatorWaitIOCapRequest
	stateInitiatorWaitIOCapResponse
	stateResponderWaitIOCapRequest
	stateWaitUserConfirmation
	stateWaitUserPasskey
	stateWaitUserPasskeyNotification
	stateWaitPairingComplete
	stateWaitLinkKey
	stateInitiatorWaitAuthComplete
	stateWaitEncryption
	stateFailed
)

func (s pairState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateInitiatorWaitLinkKeyRequest:
		return "InitiatorWaitLinkKeyRequest"
	case stateInitiatorWaitIOCapRequest:
		return "InitiatorWaitIOCapRequest"
	case stateInitiatorWaitIOCapResponse:
		return "InitiatorWaitIOCapResponse"
	case stateResponderWaitIOCapRequest:
		return "ResponderWaitIOCapRequest"
	case stateWaitUserConfirmation:
		return "WaitUserConfirmation"
	case stateWaitUserPasskey:
		return "WaitUserPasskey"
	case stateWaitUserPasskeyNotification:
		return "WaitUserPasskeyNotification"
	case stateWaitPairingComplete:
		return "WaitPairingComplete"
	case stateWaitLinkKey:
		return "WaitLinkKey"
	case stateInitiatorWaitAuthComplete:
		return "InitiatorWaitAuthComplete"
	case stateWaitEncryption:
		return "WaitEncryption"
	case stateFailed:
		return "Failed"
	}
	return "unknown"
}

type pairingCallback struct {
	reqs bredr.SecurityRequirements
	fn   func(error)
}

// pairingState runs secure simple pairing and link encryption for one
// connection. All methods run on the manager's dispatch context; user
// delegate responses are posted back onto it and checked against an
// attempt counter so a stale response cannot corrupt a later attempt.
type pairingState struct {
	m    *ConnectionManager
	conn *Connection
	log  bredr.Logger

	state     pairState
	initiator bool

	// attempt generations invalidate delegate/controller callbacks
	// belonging to an attempt that already ended.
	attempt uint64

	// reqs is what the initiating caller demanded; coalesced callers
	// carry their own requirements and are checked individually.
	reqs      bredr.SecurityRequirements
	callbacks []pairingCallback

	localCap bredr.IOCapability
	peerCap  bredr.IOCapability
	action   pairingAction

	// authenticated is what the negotiated association model provides.
	authenticated bool

	// keyType is the accepted link key type of the current attempt, set
	// once a Link Key Notification passed validation.
	keyType *bredr.LinkKeyType

	// delegateInvolved gates the PairingComplete courtesy notification.
	delegateInvolved bool
}

func newPairingState(m *ConnectionManager, c *Connection) *pairingState {
	return &pairingState{
		m:    m,
		conn: c,
		log:  m.log.ChildLogger(map[string]interface{}{"component": "pairing", "peer": c.peerID.String()}),
	}
}

// initiate starts, joins or short-circuits a pairing attempt. cb fires
// exactly once.
func (p *pairingState) initiate(reqs bredr.SecurityRequirements, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}

	if p.state == stateFailed {
		p.m.post(func() { cb(bredr.ErrFailed) })
		return
	}

	// Security already established this session.
	if p.conn.security != nil && p.conn.security.Satisfies(reqs) {
		p.m.post(func() { cb(nil) })
		return
	}

	// A stored bond that meets the requirements short-circuits pairing
	// with no HCI traffic at all.
	if p.state == stateIdle {
		if bond, ok := p.bond(); ok && bond.Security().Satisfies(reqs) {
			p.log.Debugf("bonded key satisfies %v, skipping pairing", reqs)
			p.m.post(func() { cb(nil) })
			return
		}
	}

	if p.state != stateIdle {
		p.join(reqs, cb)
		return
	}

	p.reqs = reqs
	p.callbacks = append(p.callbacks, pairingCallback{reqs: reqs, fn: cb})
	p.initiator = true
	p.state = stateInitiatorWaitLinkKeyRequest
	p.log.Debugf("initiating pairing, requirements %v", reqs)

	att := p.attempt
	p.m.send(cmd.AuthenticationRequested{Handle: p.conn.handle}, func(err error) {
		if err != nil && att == p.attempt && p.state != stateIdle && p.state != stateFailed {
			p.fail(errors.Wrap(err, "authentication requested"))
		}
	})
}

// join coalesces a caller into the in-flight attempt. A strictly
// stronger requirement can only be folded in while the attempt can
// still deliver it.
func (p *pairingState) join(reqs bredr.SecurityRequirements, cb func(error)) {
	stronger := reqs.MITM && !p.reqs.MITM || reqs.SecureConnections && !p.reqs.SecureConnections

	if !stronger {
		p.callbacks = append(p.callbacks, pairingCallback{reqs: reqs, fn: cb})
		return
	}

	// Past the point where a link key was accepted the attempt's
	// security is settled; a weaker key cannot be upgraded mid-flight.
	if p.keyType != nil || p.state == stateInitiatorWaitAuthComplete || p.state == stateWaitEncryption {
		if !p.attemptSatisfies(reqs) {
			p.m.post(func() { cb(bredr.ErrInsufficientSecurity) })
			return
		}
		p.callbacks = append(p.callbacks, pairingCallback{reqs: reqs, fn: cb})
		return
	}

	if p.initiator && p.state == stateInitiatorWaitLinkKeyRequest {
		// Capabilities not exchanged yet; strengthen the attempt.
		p.reqs = p.reqs.Stricter(reqs)
		p.callbacks = append(p.callbacks, pairingCallback{reqs: reqs, fn: cb})
		return
	}

	// Mid-exchange: the association model is chosen. Join only if it
	// already covers the stronger demand.
	if reqs.MITM && !p.authenticated {
		p.m.post(func() { cb(bredr.ErrInsufficientSecurity) })
		return
	}
	p.callbacks = append(p.callbacks, pairingCallback{reqs: reqs, fn: cb})
}

// attemptSatisfies reports whether the key accepted by the current
// attempt will satisfy reqs once encryption completes.
func (p *pairingState) attemptSatisfies(reqs bredr.SecurityRequirements) bool {
	if p.keyType == nil {
		return false
	}
	return p.keyType.Security().Satisfies(reqs)
}

func (p *pairingState) bond() (bredr.BondData, bool) {
	pr := p.m.peers.Get(p.conn.peerID)
	if pr == nil {
		return bredr.BondData{}, false
	}
	return pr.Bond()
}

// ---- HCI event entry points, called by the manager on its loop ----

func (p *pairingState) onLinkKeyRequest(e evt.LinkKeyRequest) {
	switch p.state {
	case stateIdle:
		// Peer-driven authentication. Answer from the bond; there is
		// nothing else to track, re-encryption is the peer's business.
		if bond, ok := p.bond(); ok {
			p.m.send(cmd.LinkKeyRequestReply{Addr: e.Addr, Key: bond.Key}, nil)
			return
		}
		p.m.send(cmd.LinkKeyRequestNegativeReply{Addr: e.Addr}, nil)

	case stateInitiatorWaitLinkKeyRequest:
		if bond, ok := p.bond(); ok && bond.Security().Satisfies(p.reqs) {
			// Bond appeared after initiation; authenticate with it and
			// skip the pairing exchange.
			p.m.send(cmd.LinkKeyRequestReply{Addr: e.Addr, Key: bond.Key}, nil)
			p.state = stateInitiatorWaitAuthComplete
			return
		}
		// Discard any stored key that cannot satisfy the caller and run
		// a fresh exchange.
		p.m.send(cmd.LinkKeyRequestNegativeReply{Addr: e.Addr}, nil)
		p.state = stateInitiatorWaitIOCapRequest

	default:
		p.failUnexpected(e)
	}
}

func (p *pairingState) onIOCapabilityRequest(e evt.IOCapabilityRequest) {
	switch p.state {
	case stateInitiatorWaitIOCapRequest:
		if !p.replyIOCap(e.Addr, initiatorAuthRequirements(p.delegateCap())) {
			return
		}
		p.state = stateInitiatorWaitIOCapResponse

	case stateResponderWaitIOCapRequest:
		local := p.delegateCap()
		if !p.replyIOCap(e.Addr, responderAuthRequirements(local, p.peerCap)) {
			return
		}
		p.action = responderAction(p.localCap, p.peerCap)
		p.authenticated = pairingAuthenticated(p.localCap, p.peerCap)
		p.enterUserActionState()

	default:
		p.m.send(cmd.IOCapabilityRequestNegativeReply{Addr: e.Addr, Reason: hci.StatusPairingNotAllowed}, nil)
		p.failUnexpected(e)
	}
}

// replyIOCap answers an IO Capability Request from the delegate. With
// no delegate the host cannot involve a user, so pairing is refused.
func (p *pairingState) replyIOCap(addr bredr.Addr, auth hci.AuthRequirements) bool {
	if p.m.delegate == nil {
		p.log.Warn("no pairing delegate, rejecting pairing")
		p.m.send(cmd.IOCapabilityRequestNegativeReply{Addr: addr, Reason: hci.StatusPairingNotAllowed}, nil)
		p.fail(bredr.ErrNotReady)
		return false
	}
	p.localCap = p.m.delegate.IOCapability()
	p.delegateInvolved = true
	p.m.send(cmd.IOCapabilityRequestReply{
		Addr:             addr,
		IOCapability:     p.localCap,
		AuthRequirements: auth,
	}, nil)
	return true
}

func (p *pairingState) delegateCap() bredr.IOCapability {
	if p.m.delegate == nil {
		return bredr.IOCapNoInputNoOutput
	}
	return p.m.delegate.IOCapability()
}

func (p *pairingState) onIOCapabilityResponse(e evt.IOCapabilityResponse) {
	if !e.IOCapability.Valid() {
		p.failUnexpected(e)
		return
	}

	switch p.state {
	case stateIdle:
		// The peer started pairing; its capabilities arrive before the
		// controller asks for ours.
		p.initiator = false
		p.peerCap = e.IOCapability
		p.state = stateResponderWaitIOCapRequest
		p.log.Debugf("peer initiated pairing, capability %v", e.IOCapability)

	case stateInitiatorWaitIOCapResponse:
		p.peerCap = e.IOCapability
		p.action = initiatorAction(p.localCap, p.peerCap)
		p.authenticated = pairingAuthenticated(p.localCap, p.peerCap)
		p.enterUserActionState()

	default:
		p.failUnexpected(e)
	}
}

func (p *pairingState) enterUserActionState() {
	switch expectedEvent(p.localCap, p.peerCap) {
	case hci.EvtUserPasskeyRequest:
		p.state = stateWaitUserPasskey
	case hci.EvtUserPasskeyNotification:
		p.state = stateWaitUserPasskeyNotification
	default:
		p.state = stateWaitUserConfirmation
	}
	p.log.Debugf("association action %v (local %v, peer %v), %v", p.action, p.localCap, p.peerCap, p.state)
}

func (p *pairingState) onUserConfirmationRequest(e evt.UserConfirmationRequest) {
	if p.state != stateWaitUserConfirmation {
		p.m.send(cmd.UserConfirmationRequestNegativeReply{Addr: e.Addr}, nil)
		p.failUnexpected(e)
		return
	}

	confirm := p.userDecision(func(ok bool) {
		if ok {
			p.m.send(cmd.UserConfirmationRequestReply{Addr: e.Addr}, nil)
			p.state = stateWaitPairingComplete
			return
		}
		p.m.send(cmd.UserConfirmationRequestNegativeReply{Addr: e.Addr}, nil)
		p.fail(bredr.ErrCanceled)
	})

	switch p.action {
	case actionAutomatic:
		confirm(true)
	case actionGetConsent:
		if p.m.delegate == nil {
			confirm(false)
			return
		}
		p.delegateInvolved = true
		p.m.delegate.ConfirmPairing(p.conn.peerID, confirm)
	case actionComparePasskey:
		if p.m.delegate == nil {
			confirm(false)
			return
		}
		p.delegateInvolved = true
		p.m.delegate.DisplayPasskey(p.conn.peerID, e.Numeric, bredr.DisplayComparison, confirm)
	default:
		// The matrix never pairs this action with a confirmation event.
		p.failUnexpected(e)
	}
}

func (p *pairingState) onUserPasskeyRequest(e evt.UserPasskeyRequest) {
	if p.state != stateWaitUserPasskey {
		p.m.send(cmd.UserPasskeyRequestNegativeReply{Addr: e.Addr}, nil)
		p.failUnexpected(e)
		return
	}
	if p.m.delegate == nil {
		p.m.send(cmd.UserPasskeyRequestNegativeReply{Addr: e.Addr}, nil)
		p.fail(bredr.ErrNotReady)
		return
	}

	att := p.attempt
	p.delegateInvolved = true
	p.m.delegate.RequestPasskey(p.conn.peerID, func(passkey int64) {
		p.m.post(func() {
			if att != p.attempt || p.state != stateWaitUserPasskey {
				return
			}
			if passkey < 0 {
				p.m.send(cmd.UserPasskeyRequestNegativeReply{Addr: e.Addr}, nil)
				p.fail(bredr.ErrCanceled)
				return
			}
			p.m.send(cmd.UserPasskeyRequestReply{Addr: e.Addr, Passkey: uint32(passkey)}, nil)
			p.state = stateWaitPairingComplete
		})
	})
}

func (p *pairingState) onUserPasskeyNotification(e evt.UserPasskeyNotification) {
	if p.state != stateWaitUserPasskeyNotification {
		p.failUnexpected(e)
		return
	}
	if p.m.delegate == nil {
		p.fail(bredr.ErrNotReady)
		return
	}

	ack := p.userDecision(func(ok bool) {
		if !ok {
			// No negative reply exists for a displayed passkey; the
			// peer side aborts when the user gives up there.
			p.fail(bredr.ErrCanceled)
			return
		}
		p.state = stateWaitPairingComplete
	})
	p.delegateInvolved = true
	p.m.delegate.DisplayPasskey(p.conn.peerID, e.Passkey, bredr.DisplayPeerEntry, ack)
}

// userDecision wraps a delegate response so it lands back on the
// dispatch context and is dropped if the attempt it belongs to already
// ended.
func (p *pairingState) userDecision(apply func(bool)) func(bool) {
	att := p.attempt
	state := p.state
	return func(ok bool) {
		p.m.post(func() {
			if att != p.attempt || p.state != state {
				return
			}
			apply(ok)
		})
	}
}

func (p *pairingState) onSimplePairingComplete(e evt.SimplePairingComplete) {
	if err := hci.StatusToError(e.Status); err != nil {
		// The peer can abort at any point of the exchange.
		if p.state != stateIdle && p.state != stateFailed {
			p.fail(errors.Wrap(err, "simple pairing"))
		}
		return
	}
	if p.state != stateWaitPairingComplete {
		p.failUnexpected(e)
		return
	}
	p.state = stateWaitLinkKey
}

func (p *pairingState) onLinkKeyNotification(e evt.LinkKeyNotification) {
	switch p.state {
	case stateWaitLinkKey:
		effective, err := p.validateKeyType(e.KeyType)
		if err != nil {
			p.fail(err)
			return
		}
		if !p.storeBond(bredr.BondData{Key: e.Key, KeyType: effective}) {
			return
		}
		p.keyType = &effective
		if p.initiator {
			p.state = stateInitiatorWaitAuthComplete
		} else {
			p.state = stateWaitEncryption
		}

	case stateIdle:
		// Key refresh outside an attempt. Still subject to the same
		// acceptance rules.
		effective, err := p.validateKeyType(e.KeyType)
		if err != nil {
			p.log.Warnf("rejected key refresh: %v", err)
			return
		}
		p.storeBond(bredr.BondData{Key: e.Key, KeyType: effective})

	default:
		p.failUnexpected(e)
	}
}

// validateKeyType checks the reported key type against the exchange
// that was just performed and resolves the effective type.
func (p *pairingState) validateKeyType(t bredr.LinkKeyType) (bredr.LinkKeyType, error) {
	if t.Legacy() {
		return 0, errors.Wrap(bredr.ErrInsufficientSecurity, "legacy pairing key")
	}
	if t.Changed() {
		// Only a refresh of an existing key; it inherits the stored
		// classification and is meaningless without one.
		bond, ok := p.bond()
		if !ok {
			return 0, errors.Wrap(bredr.ErrInsufficientSecurity, "changed key without bond")
		}
		return bond.KeyType, nil
	}
	if p.state == stateWaitLinkKey && t.Security().Authenticated != p.authenticated {
		return 0, errors.Wrapf(bredr.ErrInsufficientSecurity,
			"key type %v does not match negotiated association", t)
	}
	return t, nil
}

// storeBond persists the key through the directory, the only writer of
// bonding data. A dual-mode peer also gets the derived LE key.
func (p *pairingState) storeBond(bond bredr.BondData) bool {
	if err := p.m.peers.StoreBond(p.conn.peerID, bond); err != nil {
		p.fail(errors.Wrap(err, "store bond"))
		return false
	}
	if pr := p.m.peers.Get(p.conn.peerID); pr != nil && pr.Technology() == peer.TechDualMode {
		if ltk, err := DeriveLEKey(bond, false); err == nil {
			if err := p.m.peers.StoreDerivedLEKey(p.conn.peerID, ltk); err != nil {
				p.log.Warnf("store derived le key: %v", err)
			}
		} else {
			p.log.Debugf("le key derivation: %v", err)
		}
	}
	return true
}

func (p *pairingState) onAuthenticationComplete(e evt.AuthenticationComplete) {
	if err := hci.StatusToError(e.Status); err != nil {
		if p.state != stateIdle && p.state != stateFailed {
			p.fail(errors.Wrap(err, "authentication"))
		}
		return
	}
	if p.state != stateInitiatorWaitAuthComplete {
		p.failUnexpected(e)
		return
	}

	att := p.attempt
	p.m.send(cmd.SetConnectionEncryption{Handle: p.conn.handle, Enable: true}, func(err error) {
		if err != nil && att == p.attempt && p.state == stateWaitEncryption {
			p.fail(errors.Wrap(err, "set connection encryption"))
		}
	})
	p.state = stateWaitEncryption
}

func (p *pairingState) onEncryptionChange(e evt.EncryptionChange) {
	if p.state != stateWaitEncryption {
		// Controllers refresh encryption on their own schedule; only a
		// change we asked for moves the machine.
		p.log.Debugf("ignoring encryption change in state %v", p.state)
		return
	}

	if err := hci.StatusToError(e.Status); err != nil {
		p.fail(errors.Wrap(err, "encryption change"))
		return
	}
	if !e.On() {
		p.fail(errors.New("encryption not enabled"))
		return
	}

	props := p.effectiveSecurity()
	if !props.Satisfies(p.reqs) {
		p.fail(bredr.ErrInsufficientSecurity)
		return
	}

	p.conn.security = &props
	p.log.Infof("pairing complete, link security %v", props)
	p.complete(props)
}

// effectiveSecurity resolves what the now-encrypted link provides: the
// key accepted this attempt, or the stored bond when authentication ran
// off an existing key.
func (p *pairingState) effectiveSecurity() bredr.SecurityProperties {
	if p.keyType != nil {
		return p.keyType.Security()
	}
	if bond, ok := p.bond(); ok {
		return bond.Security()
	}
	return bredr.SecurityProperties{}
}

// complete resolves every queued caller. A coalesced caller whose own
// requirements exceed what the link delivers fails individually.
func (p *pairingState) complete(props bredr.SecurityProperties) {
	cbs := p.callbacks
	p.reset()

	if p.delegateInvolved && p.m.delegate != nil {
		p.m.delegate.PairingComplete(p.conn.peerID, nil)
	}
	p.delegateInvolved = false

	for _, cb := range cbs {
		if props.Satisfies(cb.reqs) {
			cb.fn(nil)
		} else {
			cb.fn(bredr.ErrInsufficientSecurity)
		}
	}
}

// fail ends the attempt, notifies every queued caller and tears the
// link down. A failed machine stays failed; the connection is on its
// way out.
func (p *pairingState) fail(err error) {
	if p.state == stateFailed {
		return
	}
	p.log.Warnf("pairing failed in state %v: %v", p.state, err)

	cbs := p.callbacks
	p.callbacks = nil
	p.attempt++
	p.state = stateFailed
	p.initiator = false
	p.keyType = nil

	if p.delegateInvolved && p.m.delegate != nil {
		p.m.delegate.PairingComplete(p.conn.peerID, err)
	}
	p.delegateInvolved = false

	for _, cb := range cbs {
		cb.fn(err)
	}

	p.m.disconnectLink(p.conn, DisconnectPairingFailed)
}

func (p *pairingState) failUnexpected(e hci.Event) {
	p.fail(errors.Wrapf(bredr.ErrNotSupported, "%v event in state %v", e, p.state))
}

// abort fails any outstanding attempt without issuing further HCI
// traffic. Pairing never leaves a caller's callback uninvoked.
func (p *pairingState) abort(err error) {
	cbs := p.callbacks
	p.callbacks = nil
	p.attempt++
	p.state = stateFailed
	p.initiator = false
	p.keyType = nil

	if p.delegateInvolved && p.m.delegate != nil {
		p.m.delegate.PairingComplete(p.conn.peerID, err)
	}
	p.delegateInvolved = false

	for _, cb := range cbs {
		cb.fn(err)
	}
}

// onLinkDisconnected runs when the underlying link went away.
func (p *pairingState) onLinkDisconnected() {
	p.abort(bredr.ErrLinkDisconnected)
}

// reset returns the machine to Idle after a successful attempt.
func (p *pairingState) reset() {
	p.callbacks = nil
	p.attempt++
	p.state = stateIdle
	p.initiator = false
	p.keyType = nil
	p.reqs = bredr.SecurityRequirements{}
}
