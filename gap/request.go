package gap

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/dispatch"
	"github.com/rigado/bredr/hci"
)

// connRequest tracks everyone waiting for a connection to one address.
// Multiple Connect calls for the same peer collapse into one entry, and
// an inbound attempt for the address merges into the same entry so the
// in/out race resolves to a single connection. At most one connRequest
// exists per address.
type connRequest struct {
	addr bredr.Addr
	peer bredr.PeerID

	callbacks []func(*Connection, error)

	// incoming is set while an accepted inbound attempt for this address
	// is waiting for its Connection Complete.
	incoming bool
	// outgoing is set while this entry owns the single outbound slot.
	outgoing bool

	// role observed from a Role Change that arrived before the
	// connection completed. Applied when the Connection is created.
	role *hci.Role

	// transient Create Connection failures retried so far
	attempts int
}

func newConnRequest(addr bredr.Addr, peer bredr.PeerID) *connRequest {
	return &connRequest{addr: addr, peer: peer}
}

func (r *connRequest) addCallback(cb func(*Connection, error)) {
	if cb != nil {
		r.callbacks = append(r.callbacks, cb)
	}
}

// notify invokes every queued callback in registration order and drops
// them, so a second notify is a no-op. This is what makes the
// exactly-once callback contract hold across failure paths.
func (r *connRequest) notify(c *Connection, err error) {
	cbs := r.callbacks
	r.callbacks = nil
	for _, cb := range cbs {
		cb(c, err)
	}
}

// pendingRequest is the single in-flight Create Connection attempt.
// There is never more than one, process wide.
type pendingRequest struct {
	addr bredr.Addr
	peer bredr.PeerID

	// canceled is set when the attempt timed out and a Create Connection
	// Cancel was issued. The eventual Connection Complete still resolves
	// the request through the normal path.
	canceled bool

	timer *dispatch.Timer
}
