package gap

import "github.com/rigado/bredr"

// Channel is an opened L2CAP channel. The data plane lives behind it.
type Channel interface {
	PSM() uint16
	Close() error
}

// L2CAP is the slice of the data domain the connection manager drives:
// link registration around connection setup/teardown and channel
// establishment after security gating. Implementations may invoke the
// OpenChannel callback from any goroutine.
type L2CAP interface {
	AddConnection(handle uint16)
	RemoveConnection(handle uint16)
	OpenChannel(handle uint16, psm uint16, cb func(Channel, error))
}

type noopL2CAP struct{}

func (noopL2CAP) AddConnection(uint16)    {}
func (noopL2CAP) RemoveConnection(uint16) {}
func (noopL2CAP) OpenChannel(_ uint16, _ uint16, cb func(Channel, error)) {
	cb(nil, bredr.ErrNotSupported)
}

// SCOHandler receives inbound SCO/eSCO admission outcomes. Set one with
// OptSCOHandler to accept inbound synchronous connections.
type SCOHandler interface {
	SCOConnected(peer bredr.PeerID, handle uint16)
	SCOClosed(peer bredr.PeerID, handle uint16)
}
