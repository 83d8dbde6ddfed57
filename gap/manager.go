// Package gap orchestrates the BR/EDR connection lifecycle: outbound
// request queuing with a single in-flight Create Connection, inbound
// accept/reject with race resolution against outbound attempts, post
// connect interrogation, and per-link pairing and encryption.
//
// All internal state is owned by one dispatch loop; HCI events, command
// completions and timer expiry are posted onto it, so the core needs no
// locking and callbacks observe a consistent order.
package gap

import (
	"time"

	"github.com/rigado/bredr"
	"github.com/rigado/bredr/dispatch"
	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/hci/cmd"
	"github.com/rigado/bredr/hci/evt"
	"github.com/rigado/bredr/peer"
)

// DisconnectReason classifies why the host tore a link down; it drives
// the deny list and the HCI reason byte.
type DisconnectReason int

const (
	// DisconnectAPIRequest: a local caller asked for the disconnect.
	DisconnectAPIRequest DisconnectReason = iota
	// DisconnectPairingFailed: the pairing machine gave up on the link.
	DisconnectPairingFailed
	// DisconnectInterrogationFailed: the link never became usable.
	DisconnectInterrogationFailed
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectAPIRequest:
		return "api request"
	case DisconnectPairingFailed:
		return "pairing failed"
	case DisconnectInterrogationFailed:
		return "interrogation failed"
	}
	return "unknown"
}

// hciReason maps the host reason to the byte sent in the Disconnect
// command.
func (r DisconnectReason) hciReason() byte {
	if r == DisconnectPairingFailed {
		return hci.ReasonAuthFailure
	}
	return hci.ReasonRemoteUserTerminated
}

// ACL packet types enabled on outbound connections: DM1/DH1/DM3/DH3/DM5/DH5.
const aclPacketTypes uint16 = 0xCC18

// transient Create Connection failures are retried this many times
// before the request fails.
const maxConnectionAttempts = 3

// ConnectionManager is the host side connection lifecycle orchestrator.
// One instance owns the request table, the single outbound attempt slot
// and every established Connection.
type ConnectionManager struct {
	cfg    config
	sender hci.Sender
	peers  *peer.Directory
	l2     L2CAP
	loop   *dispatch.Loop
	log    bredr.Logger

	delegate bredr.PairingDelegate

	// requests in insertion order; at most one entry per address
	requests []*connRequest
	// pending is the single in-flight Create Connection, nil when the
	// slot is open
	pending *pendingRequest

	conns    map[uint16]*Connection // by ACL handle
	scoConns map[uint16]*Connection // synchronous handle -> owning ACL

	// deny lists addresses we recently disconnected on request; inbound
	// attempts are rejected until the entry expires
	deny map[bredr.Addr]time.Time

	connectable bool
	closed      bool

	evth map[hci.EventCode]func(hci.Event)
}

// New builds a manager on top of an HCI sender and a peer directory.
// l2 may be nil when no data domain is attached.
func New(sender hci.Sender, peers *peer.Directory, l2 L2CAP, opts ...Option) (*ConnectionManager, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			return nil, err
		}
	}
	if l2 == nil {
		l2 = noopL2CAP{}
	}

	m := &ConnectionManager{
		cfg:      cfg,
		sender:   sender,
		peers:    peers,
		l2:       l2,
		loop:     dispatch.NewLoop(),
		log:      bredr.ComponentLogger("gap"),
		conns:    make(map[uint16]*Connection),
		scoConns: make(map[uint16]*Connection),
		deny:     make(map[bredr.Addr]time.Time),
	}
	m.buildEventTable()
	return m, nil
}

func (m *ConnectionManager) buildEventTable() {
	m.evth = map[hci.EventCode]func(hci.Event){
		hci.EvtConnectionComplete:        func(e hci.Event) { m.onConnectionComplete(e.(evt.ConnectionComplete)) },
		hci.EvtConnectionRequest:         func(e hci.Event) { m.onConnectionRequest(e.(evt.ConnectionRequest)) },
		hci.EvtDisconnectionComplete:     func(e hci.Event) { m.onDisconnectionComplete(e.(evt.DisconnectionComplete)) },
		hci.EvtRoleChange:                func(e hci.Event) { m.onRoleChange(e.(evt.RoleChange)) },
		hci.EvtSynchronousConnComplete:   func(e hci.Event) { m.onSynchronousConnectionComplete(e.(evt.SynchronousConnectionComplete)) },
		hci.EvtReadRemoteVersionComp:     func(e hci.Event) { m.onInterrogation(e.(evt.ReadRemoteVersionInformationComplete).Handle, e) },
		hci.EvtReadRemoteFeaturesComp:    func(e hci.Event) { m.onInterrogation(e.(evt.ReadRemoteSupportedFeaturesComplete).Handle, e) },
		hci.EvtReadRemoteExtFeaturesComp: func(e hci.Event) { m.onInterrogation(e.(evt.ReadRemoteExtendedFeaturesComplete).Handle, e) },

		hci.EvtLinkKeyRequest:          func(e hci.Event) { m.onLinkKeyRequest(e.(evt.LinkKeyRequest)) },
		hci.EvtLinkKeyNotification:     m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.LinkKeyNotification).Addr }, func(p *pairingState, e hci.Event) { p.onLinkKeyNotification(e.(evt.LinkKeyNotification)) }),
		hci.EvtIOCapabilityRequest:     func(e hci.Event) { m.onIOCapabilityRequest(e.(evt.IOCapabilityRequest)) },
		hci.EvtIOCapabilityResponse:    m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.IOCapabilityResponse).Addr }, func(p *pairingState, e hci.Event) { p.onIOCapabilityResponse(e.(evt.IOCapabilityResponse)) }),
		hci.EvtUserConfirmationRequest: m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.UserConfirmationRequest).Addr }, func(p *pairingState, e hci.Event) { p.onUserConfirmationRequest(e.(evt.UserConfirmationRequest)) }),
		hci.EvtUserPasskeyRequest:      m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.UserPasskeyRequest).Addr }, func(p *pairingState, e hci.Event) { p.onUserPasskeyRequest(e.(evt.UserPasskeyRequest)) }),
		hci.EvtUserPasskeyNotification: m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.UserPasskeyNotification).Addr }, func(p *pairingState, e hci.Event) { p.onUserPasskeyNotification(e.(evt.UserPasskeyNotification)) }),
		hci.EvtSimplePairingComplete:   m.pairingByAddr(func(e hci.Event) bredr.Addr { return e.(evt.SimplePairingComplete).Addr }, func(p *pairingState, e hci.Event) { p.onSimplePairingComplete(e.(evt.SimplePairingComplete)) }),

		hci.EvtAuthenticationComplete: func(e hci.Event) { m.pairingByHandle(e.(evt.AuthenticationComplete).Handle, e, func(p *pairingState) { p.onAuthenticationComplete(e.(evt.AuthenticationComplete)) }) },
		hci.EvtEncryptionChange:       func(e hci.Event) { m.pairingByHandle(e.(evt.EncryptionChange).Handle, e, func(p *pairingState) { p.onEncryptionChange(e.(evt.EncryptionChange)) }) },
	}
}

// HandleEvent feeds one controller event into the manager. Safe from
// any goroutine; events are processed in arrival order on the dispatch
// loop. Events after Close are dropped.
func (m *ConnectionManager) HandleEvent(e hci.Event) {
	if e == nil {
		return
	}
	m.loop.Post(func() {
		h, ok := m.evth[e.Code()]
		if !ok {
			m.log.Debugf("unhandled event %v", e)
			return
		}
		h(e)
	})
}

// post schedules f on the dispatch loop.
func (m *ConnectionManager) post(f func()) {
	m.loop.Post(f)
}

// send hands a command to the controller and marshals its completion
// back onto the dispatch loop. A nil complete just logs failures.
func (m *ConnectionManager) send(c hci.Command, complete func(error)) {
	if complete == nil {
		complete = func(err error) {
			if err != nil {
				m.log.Warnf("%v: %v", c, err)
			}
		}
	}
	if err := m.sender.Send(c, func(err error) {
		m.loop.Post(func() { complete(err) })
	}); err != nil {
		m.loop.Post(func() { complete(err) })
	}
}

// ---- public surface ----

// Connect asks for a connection to a known BR/EDR peer. The callback
// fires exactly once, after the link is up and interrogated, or with
// the failure that ended the attempt. Multiple calls for the same peer
// coalesce into one attempt and resolve together, in registration
// order. Returns an error immediately when the peer is unknown or LE
// only; the callback is not invoked in that case.
func (m *ConnectionManager) Connect(id bredr.PeerID, cb func(*Connection, error)) error {
	pr := m.peers.Get(id)
	if pr == nil {
		return bredr.ErrNotFound
	}
	if !pr.Technology().SupportsBREDR() {
		return bredr.ErrNotSupported
	}
	if cb == nil {
		cb = func(*Connection, error) {}
	}
	if !m.loop.Post(func() { m.connect(pr, cb) }) {
		return bredr.ErrClosed
	}
	return nil
}

func (m *ConnectionManager) connect(pr *peer.Peer, cb func(*Connection, error)) {
	if m.closed {
		cb(nil, bredr.ErrClosed)
		return
	}

	if conn := m.connByPeer(pr.ID()); conn != nil {
		if conn.interrogated() {
			cb(conn, nil)
			return
		}
		// Still interrogating: ride along with the original request.
		conn.request.addCallback(cb)
		return
	}

	if req := m.requestByAddr(pr.Addr()); req != nil {
		req.addCallback(cb)
		return
	}

	req := newConnRequest(pr.Addr(), pr.ID())
	req.addCallback(cb)
	m.requests = append(m.requests, req)
	m.log.Debugf("queued connection request for %v (%v)", pr.ID(), pr.Addr())
	m.connectNext()
}

// Disconnect tears down the connection to a peer. cb fires exactly
// once: nil when nothing is connected or the HCI Disconnect was issued,
// ErrInProgress while a connection request is still unresolved; a
// half-open attempt cannot be torn down safely. A disconnect on request
// puts the address on the deny list for the configured cooldown. Safe
// to call from any goroutine, including manager callbacks.
func (m *ConnectionManager) Disconnect(id bredr.PeerID, reason DisconnectReason, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !m.loop.Post(func() { cb(m.disconnect(id, reason)) }) {
		cb(bredr.ErrClosed)
	}
}

func (m *ConnectionManager) disconnect(id bredr.PeerID, reason DisconnectReason) error {
	if m.requestByPeer(id) != nil {
		return bredr.ErrInProgress
	}
	conn := m.connByPeer(id)
	if conn == nil {
		return nil
	}
	m.disconnectLink(conn, reason)
	return nil
}

// disconnectLink issues the HCI Disconnect; cleanup and notification
// run when Disconnection Complete arrives.
func (m *ConnectionManager) disconnectLink(conn *Connection, reason DisconnectReason) {
	if conn.closed || conn.disconnecting {
		return
	}
	conn.disconnecting = true

	if reason == DisconnectAPIRequest && m.cfg.denyCooldown > 0 {
		m.deny[conn.addr] = time.Now().Add(m.cfg.denyCooldown)
	}
	m.log.Infof("disconnecting %v (%v): %v", conn.peerID, conn.addr, reason)
	m.send(cmd.Disconnect{Handle: conn.handle, Reason: reason.hciReason()}, nil)
}

// Pair negotiates security on an established connection. cb fires
// exactly once, with ErrNotFound when the peer has no live connection
// and ErrNotReady before interrogation finishes. Safe to call from any
// goroutine, including manager callbacks.
func (m *ConnectionManager) Pair(id bredr.PeerID, reqs bredr.SecurityRequirements, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !m.loop.Post(func() {
		conn := m.connByPeer(id)
		if conn == nil {
			cb(bredr.ErrNotFound)
			return
		}
		if !conn.interrogated() {
			cb(bredr.ErrNotReady)
			return
		}
		conn.pairing.initiate(reqs, cb)
	}) {
		cb(bredr.ErrClosed)
	}
}

// OpenL2CAPChannel opens a channel to the peer after the link meets the
// given security requirements. Pairing runs first when needed; a
// security failure is reported through cb without touching L2CAP. cb
// fires exactly once. Safe to call from any goroutine, including
// manager callbacks.
func (m *ConnectionManager) OpenL2CAPChannel(id bredr.PeerID, psm uint16, reqs bredr.SecurityRequirements, cb func(Channel, error)) {
	if cb == nil {
		cb = func(Channel, error) {}
	}
	if !m.loop.Post(func() {
		conn := m.connByPeer(id)
		if conn == nil {
			cb(nil, bredr.ErrNotFound)
			return
		}
		if !conn.interrogated() {
			cb(nil, bredr.ErrNotReady)
			return
		}
		conn.pairing.initiate(reqs, func(err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			m.l2.OpenChannel(conn.handle, psm, func(ch Channel, err error) {
				m.post(func() { cb(ch, err) })
			})
		})
	}) {
		cb(nil, bredr.ErrClosed)
	}
}

// SetPairingDelegate installs the user interaction delegate. nil
// reverts to rejecting pairing that needs a user.
func (m *ConnectionManager) SetPairingDelegate(d bredr.PairingDelegate) {
	m.loop.Post(func() { m.delegate = d })
}

// SetConnectable turns page scan on or off. Enabling writes the page
// scan activity and type first, so a peer pages us with the configured
// parameters. cb fires once the chain completes.
func (m *ConnectionManager) SetConnectable(enable bool, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !m.loop.Post(func() { m.setConnectable(enable, cb) }) {
		cb(bredr.ErrClosed)
	}
}

func (m *ConnectionManager) setConnectable(enable bool, cb func(error)) {
	if !enable {
		m.connectable = false
		m.send(cmd.WriteScanEnable{ScanEnable: hci.ScanDisabled}, cb)
		return
	}
	m.send(cmd.WritePageScanActivity{Interval: m.cfg.pageScanInterval, Window: m.cfg.pageScanWindow}, func(err error) {
		if err != nil {
			cb(err)
			return
		}
		m.send(cmd.WritePageScanType{Type: m.cfg.pageScanType}, func(err error) {
			if err != nil {
				cb(err)
				return
			}
			m.send(cmd.WriteScanEnable{ScanEnable: hci.ScanPageOnly}, func(err error) {
				if err == nil {
					m.connectable = true
				}
				cb(err)
			})
		})
	})
}

// Connected reports whether the peer has a usable connection, as
// tracked in the peer directory. Safe from any goroutine, including
// manager callbacks.
func (m *ConnectionManager) Connected(id bredr.PeerID) bool {
	pr := m.peers.Get(id)
	return pr != nil && pr.State() == peer.StateConnected
}

// Close shuts the manager down. Every pending connection and pairing
// callback fails with ErrClosed, exactly once. Connections are dropped
// without HCI traffic; the controller is assumed to be going away too.
func (m *ConnectionManager) Close() {
	m.loop.Call(func() {
		if m.closed {
			return
		}
		m.closed = true

		if m.pending != nil {
			m.pending.timer.Stop()
			m.pending = nil
		}
		reqs := m.requests
		m.requests = nil
		for _, r := range reqs {
			r.notify(nil, bredr.ErrClosed)
		}
		for h, c := range m.conns {
			delete(m.conns, h)
			m.peers.SetState(c.peerID, peer.StateDisconnected)
			c.closed = true
			if c.interrogation != nil {
				c.interrogation.cancel()
				c.interrogation = nil
			}
			c.pairing.abort(bredr.ErrClosed)
			if c.request != nil {
				c.request.notify(nil, bredr.ErrClosed)
				c.request = nil
			}
		}
	})
	m.loop.Close()
}

// ---- scheduling: the single outbound slot ----

// connectNext fills the outbound slot. Preference goes to the first
// request, in insertion order, whose peer is still in the directory and
// that is not an inbound attempt; a directory hit means recent contact
// and paging hints. When nothing qualifies the oldest request connects
// blind rather than starving.
func (m *ConnectionManager) connectNext() {
	if m.closed || m.pending != nil || len(m.requests) == 0 {
		return
	}

	var req *connRequest
	blind := false
	for _, r := range m.requests {
		if !r.incoming && m.peers.Get(r.peer) != nil {
			req = r
			break
		}
	}
	if req == nil {
		// Requests whose inbound attempt is in flight must not be paged
		// concurrently.
		for _, r := range m.requests {
			if !r.incoming {
				req = r
				blind = true
				break
			}
		}
	}
	if req == nil {
		return
	}

	cc := cmd.CreateConnection{
		Addr:            req.addr,
		PacketType:      aclPacketTypes,
		AllowRoleSwitch: m.cfg.allowRoleSwitch,
	}
	if !blind {
		if pr := m.peers.Get(req.peer); pr != nil {
			if mode, offset, ok := pr.PageScanParams(); ok {
				cc.PageScanRepetitionMode = mode
				cc.ClockOffset = offset
			}
		}
	}

	req.outgoing = true
	pend := &pendingRequest{addr: req.addr, peer: req.peer}
	m.pending = pend
	pend.timer = m.loop.After(m.cfg.requestTimeout, func() { m.onRequestTimeout(pend) })

	m.log.Debugf("creating connection to %v (blind=%v)", req.addr, blind)
	m.send(cc, func(err error) { m.onCreateConnectionStatus(pend, err) })
}

// onCreateConnectionStatus handles the command status of Create
// Connection. Success means the page is running and the outcome arrives
// as a Connection Complete event.
func (m *ConnectionManager) onCreateConnectionStatus(pend *pendingRequest, err error) {
	if m.pending != pend || err == nil {
		return
	}

	pend.timer.Stop()
	m.pending = nil

	req := m.requestByAddr(pend.addr)
	if req == nil {
		m.connectNext()
		return
	}
	req.outgoing = false

	if status, ok := err.(hci.StatusError); ok {
		switch status.Status() {
		case hci.StatusControllerBusy, hci.StatusConnectionLimit:
			req.attempts++
			if req.attempts < maxConnectionAttempts {
				m.log.Debugf("create connection to %v deferred (%v), retrying", pend.addr, err)
				m.connectNext()
				return
			}
		case hci.StatusConnectionExists:
			if conn := m.connByAddr(pend.addr); conn != nil {
				m.foldRequestIntoConnection(req, conn)
				m.connectNext()
				return
			}
		}
	}

	if req.incoming {
		// The inbound attempt may still deliver the link; hold the
		// callbacks for its completion.
		m.log.Debugf("outbound attempt to %v failed (%v), inbound still pending", pend.addr, err)
		m.connectNext()
		return
	}

	m.removeRequest(req)
	req.notify(nil, err)
	m.connectNext()
}

// foldRequestIntoConnection resolves a request against a link that
// already exists.
func (m *ConnectionManager) foldRequestIntoConnection(req *connRequest, conn *Connection) {
	m.removeRequest(req)
	if conn.interrogated() {
		req.notify(conn, nil)
		return
	}
	conn.request.callbacks = append(conn.request.callbacks, req.callbacks...)
	req.callbacks = nil
}

// onRequestTimeout expires the in-flight attempt. The slot stays
// occupied until the controller answers the cancel with a Connection
// Complete, which resolves the request through the normal path.
func (m *ConnectionManager) onRequestTimeout(pend *pendingRequest) {
	if m.pending != pend || pend.canceled {
		return
	}
	pend.canceled = true
	m.log.Infof("connection attempt to %v timed out, canceling", pend.addr)
	m.send(cmd.CreateConnectionCancel{Addr: pend.addr}, func(err error) {
		if err != nil {
			// Raced a completion; the Connection Complete decides.
			m.log.Debugf("create connection cancel for %v: %v", pend.addr, err)
		}
	})
}

// ---- inbound connections ----

func (m *ConnectionManager) onConnectionRequest(e evt.ConnectionRequest) {
	if e.LinkType.Synchronous() {
		m.handleSCORequest(e)
		return
	}

	if until, ok := m.deny[e.Addr]; ok {
		if time.Now().Before(until) {
			m.log.Infof("rejecting connection from %v: disconnect cooldown", e.Addr)
			m.send(cmd.RejectConnectionRequest{Addr: e.Addr, Reason: hci.RejectUnacceptableAddr}, nil)
			return
		}
		delete(m.deny, e.Addr)
	}

	if m.connByAddr(e.Addr) != nil {
		m.log.Infof("rejecting connection from %v: already connected", e.Addr)
		m.send(cmd.RejectConnectionRequest{Addr: e.Addr, Reason: hci.RejectLimitedResources}, nil)
		return
	}

	req := m.requestByAddr(e.Addr)
	if req != nil && req.incoming {
		m.log.Infof("rejecting connection from %v: duplicate inbound attempt", e.Addr)
		m.send(cmd.RejectConnectionRequest{Addr: e.Addr, Reason: hci.RejectLimitedResources}, nil)
		return
	}

	pr := m.peers.Upsert(e.Addr)
	if req == nil {
		req = newConnRequest(e.Addr, pr.ID())
		m.requests = append(m.requests, req)
	}
	req.incoming = true

	m.log.Infof("accepting connection from %v as %v", e.Addr, m.cfg.acceptRole)
	m.send(cmd.AcceptConnectionRequest{Addr: e.Addr, Role: m.cfg.acceptRole}, func(err error) {
		if err == nil {
			return
		}
		m.log.Warnf("accept connection from %v: %v", e.Addr, err)
		r := m.requestByAddr(e.Addr)
		if r == nil {
			return
		}
		r.incoming = false
		if !r.outgoing && len(r.callbacks) == 0 {
			// Inbound-only entry with nothing left to do.
			m.removeRequest(r)
		}
		m.connectNext()
	})
}

// ---- connection completion ----

func (m *ConnectionManager) onConnectionComplete(e evt.ConnectionComplete) {
	if e.LinkType.Synchronous() {
		// Pre-1.2 controllers report SCO setup through Connection
		// Complete.
		m.scoConnected(e.Addr, e.Handle, e.Status)
		return
	}

	outbound := m.pending != nil && m.pending.addr == e.Addr
	if outbound {
		m.pending.timer.Stop()
		m.pending = nil
	}
	req := m.requestByAddr(e.Addr)

	if err := hci.StatusToError(e.Status); err != nil {
		m.resolveFailedConnection(req, e.Addr, outbound, err)
		m.connectNext()
		return
	}

	if existing := m.connByAddr(e.Addr); existing != nil {
		m.log.Warnf("duplicate connection complete for %v (handle %#04x)", e.Addr, e.Handle)
		m.connectNext()
		return
	}

	var id bredr.PeerID
	role := m.cfg.acceptRole
	if outbound {
		role = hci.RoleMaster
	}
	if req != nil {
		id = req.peer
		if req.role != nil {
			// A role switch observed before completion is not dropped.
			role = *req.role
		}
		m.removeRequest(req)
	} else {
		id = m.peers.Upsert(e.Addr).ID()
	}

	conn := newConnection(m, e.Handle, id, e.Addr, role)
	conn.request = req
	m.conns[e.Handle] = conn
	m.peers.SetState(id, peer.StateInitializing)
	m.log.Infof("connection to %v established (handle %#04x), interrogating", e.Addr, e.Handle)

	m.startInterrogation(conn, func(err error) {
		if err != nil {
			m.log.Warnf("interrogation of %v failed: %v", conn.addr, err)
			m.disconnectLink(conn, DisconnectInterrogationFailed)
			return
		}
		m.l2.AddConnection(conn.handle)
		m.peers.SetState(conn.peerID, peer.StateConnected)
		r := conn.request
		conn.request = nil
		m.log.Infof("connection to %v usable", conn.addr)
		if r != nil {
			r.notify(conn, nil)
		}
	})

	m.connectNext()
}

// resolveFailedConnection settles one avenue of a failed attempt. When
// the other avenue (inbound vs outbound) is still pending nobody is
// notified yet; the survivor decides the outcome.
func (m *ConnectionManager) resolveFailedConnection(req *connRequest, addr bredr.Addr, outbound bool, err error) {
	if req == nil {
		m.log.Debugf("stray connection complete for %v: %v", addr, err)
		return
	}
	if outbound {
		req.outgoing = false
	} else {
		req.incoming = false
	}
	if req.incoming || req.outgoing {
		m.log.Debugf("connection attempt to %v failed (%v), other avenue pending", addr, err)
		return
	}

	m.log.Infof("connection to %v failed: %v", addr, err)
	m.removeRequest(req)
	req.notify(nil, err)
}

func (m *ConnectionManager) onDisconnectionComplete(e evt.DisconnectionComplete) {
	if m.scoDisconnected(e.Handle) {
		return
	}
	conn, ok := m.conns[e.Handle]
	if !ok {
		m.log.Debugf("disconnection complete for unknown handle %#04x", e.Handle)
		return
	}

	delete(m.conns, e.Handle)
	for h := range conn.sco {
		m.scoDisconnected(h)
	}
	m.l2.RemoveConnection(e.Handle)
	m.peers.SetState(conn.peerID, peer.StateDisconnected)
	m.log.Infof("connection to %v closed: %v", conn.addr, hci.StatusError(e.Reason))
	conn.handleDisconnect()
}

func (m *ConnectionManager) onRoleChange(e evt.RoleChange) {
	if err := hci.StatusToError(e.Status); err != nil {
		m.log.Debugf("role change for %v failed: %v", e.Addr, err)
		return
	}
	if conn := m.connByAddr(e.Addr); conn != nil {
		conn.role = e.NewRole
		return
	}
	if req := m.requestByAddr(e.Addr); req != nil {
		// Completion has not arrived yet; remember the role for the
		// Connection once it exists.
		role := e.NewRole
		req.role = &role
		return
	}
	m.log.Debugf("role change for unknown peer %v", e.Addr)
}

func (m *ConnectionManager) onSynchronousConnectionComplete(e evt.SynchronousConnectionComplete) {
	m.scoConnected(e.Addr, e.Handle, e.Status)
}

// ---- pairing event routing ----

func (m *ConnectionManager) onLinkKeyRequest(e evt.LinkKeyRequest) {
	if conn := m.connByAddr(e.Addr); conn != nil {
		conn.pairing.onLinkKeyRequest(e)
		return
	}
	// Authentication during link setup, before any Connection exists.
	if pr := m.peers.ByAddress(e.Addr); pr != nil {
		if bond, ok := pr.Bond(); ok {
			m.send(cmd.LinkKeyRequestReply{Addr: e.Addr, Key: bond.Key}, nil)
			return
		}
	}
	m.send(cmd.LinkKeyRequestNegativeReply{Addr: e.Addr}, nil)
}

func (m *ConnectionManager) onIOCapabilityRequest(e evt.IOCapabilityRequest) {
	if conn := m.connByAddr(e.Addr); conn != nil {
		conn.pairing.onIOCapabilityRequest(e)
		return
	}
	m.log.Debugf("io capability request without connection from %v", e.Addr)
	m.send(cmd.IOCapabilityRequestNegativeReply{Addr: e.Addr, Reason: hci.StatusPairingNotAllowed}, nil)
}

// pairingByAddr routes an event to the pairing machine of the matching
// connection.
func (m *ConnectionManager) pairingByAddr(addr func(hci.Event) bredr.Addr, h func(*pairingState, hci.Event)) func(hci.Event) {
	return func(e hci.Event) {
		conn := m.connByAddr(addr(e))
		if conn == nil {
			m.log.Debugf("%v for unknown peer %v", e, addr(e))
			return
		}
		h(conn.pairing, e)
	}
}

// onInterrogation routes a remote version/features completion to the
// interrogation in flight on that handle.
func (m *ConnectionManager) onInterrogation(handle uint16, e hci.Event) {
	conn, ok := m.conns[handle]
	if !ok || conn.interrogation == nil {
		m.log.Debugf("%v with no interrogation on handle %#04x", e, handle)
		return
	}
	switch ev := e.(type) {
	case evt.ReadRemoteVersionInformationComplete:
		conn.interrogation.onVersion(ev)
	case evt.ReadRemoteSupportedFeaturesComplete:
		conn.interrogation.onFeatures(ev)
	case evt.ReadRemoteExtendedFeaturesComplete:
		conn.interrogation.onExtendedFeatures(ev)
	}
}

func (m *ConnectionManager) pairingByHandle(handle uint16, e hci.Event, h func(*pairingState)) {
	conn, ok := m.conns[handle]
	if !ok {
		m.log.Debugf("%v for unknown handle %#04x", e, handle)
		return
	}
	h(conn.pairing)
}

// ---- lookups ----

func (m *ConnectionManager) requestByAddr(addr bredr.Addr) *connRequest {
	for _, r := range m.requests {
		if r.addr == addr {
			return r
		}
	}
	return nil
}

func (m *ConnectionManager) requestByPeer(id bredr.PeerID) *connRequest {
	for _, r := range m.requests {
		if r.peer == id {
			return r
		}
	}
	return nil
}

func (m *ConnectionManager) removeRequest(req *connRequest) {
	for i, r := range m.requests {
		if r == req {
			m.requests = append(m.requests[:i], m.requests[i+1:]...)
			return
		}
	}
}

func (m *ConnectionManager) connByAddr(addr bredr.Addr) *Connection {
	for _, c := range m.conns {
		if c.addr == addr {
			return c
		}
	}
	return nil
}

func (m *ConnectionManager) connByPeer(id bredr.PeerID) *Connection {
	for _, c := range m.conns {
		if c.peerID == id {
			return c
		}
	}
	return nil
}
