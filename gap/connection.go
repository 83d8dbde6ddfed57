package gap

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/peer"
)

// Connection is one established ACL link. It owns the pairing machine
// for the link and, until interrogation completes, the request entry
// that produced it so the original callers can still be notified on
// early failure.
//
// Connections are handed to Connect callbacks after interrogation.
// Accessors are safe from those callbacks; they read state owned by the
// manager's dispatch context.
type Connection struct {
	m *ConnectionManager

	handle uint16
	peerID bredr.PeerID
	addr   bredr.Addr
	role   hci.Role

	// request holds the originating entry until interrogation succeeds.
	request *connRequest

	pairing       *pairingState
	interrogation *interrogation

	// established link security, set by the pairing machine after a
	// successful encryption change
	security *bredr.SecurityProperties

	version  peer.VersionInfo
	features []uint64

	// synchronous (SCO/eSCO) handles riding on this ACL link
	sco map[uint16]struct{}

	disconnecting bool
	closed        bool
}

func newConnection(m *ConnectionManager, handle uint16, peerID bredr.PeerID, addr bredr.Addr, role hci.Role) *Connection {
	c := &Connection{
		m:      m,
		handle: handle,
		peerID: peerID,
		addr:   addr,
		role:   role,
		sco:    make(map[uint16]struct{}),
	}
	c.pairing = newPairingState(m, c)
	return c
}

// Handle returns the controller assigned connection handle.
func (c *Connection) Handle() uint16 { return c.handle }

// PeerID returns the identifier of the connected peer.
func (c *Connection) PeerID() bredr.PeerID { return c.peerID }

// Addr returns the peer's address.
func (c *Connection) Addr() bredr.Addr { return c.addr }

// Role returns the local role on the link, kept current across role
// switches.
func (c *Connection) Role() hci.Role { return c.role }

// Security returns the link security established by pairing this
// session, if any.
func (c *Connection) Security() (bredr.SecurityProperties, bool) {
	if c.security == nil {
		return bredr.SecurityProperties{}, false
	}
	return *c.security, true
}

// Version returns the peer's LMP version read during interrogation.
func (c *Connection) Version() peer.VersionInfo { return c.version }

// Features returns the interrogated LMP feature pages, page 0 first.
func (c *Connection) Features() []uint64 {
	out := make([]uint64, len(c.features))
	copy(out, c.features)
	return out
}

// interrogated reports whether the link finished interrogation and is
// usable for pairing and L2CAP.
func (c *Connection) interrogated() bool {
	return c.request == nil && c.interrogation == nil
}

// handleDisconnect runs teardown bookkeeping after the link is gone.
// Every callback still parked on the connection fires with a link
// disconnected failure, exactly once.
func (c *Connection) handleDisconnect() {
	if c.closed {
		return
	}
	c.closed = true

	if c.interrogation != nil {
		c.interrogation.cancel()
		c.interrogation = nil
	}
	c.pairing.onLinkDisconnected()
	if c.request != nil {
		c.request.notify(nil, bredr.ErrLinkDisconnected)
		c.request = nil
	}
}
