package gap

import (
	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/hci/cmd"
	"github.com/rigado/bredr/hci/evt"
)

// Default accept parameters for inbound SCO/eSCO: 64 kbit/s CVSD, any
// latency, retransmission at the controller's discretion.
const (
	scoBandwidth     uint32 = 8000
	scoMaxLatency    uint16 = 0xFFFF
	scoVoiceCVSD     uint16 = 0x0060
	scoRetransAny    byte   = 0xFF
	scoPacketTypeAll uint16 = 0x003F
)

// handleSCORequest admits an inbound synchronous connection. Only peers
// with a live ACL link qualify, and only when the application asked for
// SCO at all.
func (m *ConnectionManager) handleSCORequest(e evt.ConnectionRequest) {
	conn := m.connByAddr(e.Addr)
	if m.cfg.scoHandler == nil || conn == nil || !conn.interrogated() {
		m.log.Debugf("rejecting %v request from %v", e.LinkType, e.Addr)
		m.send(cmd.RejectSynchronousConnectionRequest{
			Addr:   e.Addr,
			Reason: hci.RejectLimitedResources,
		}, nil)
		return
	}

	m.log.Infof("accepting %v request from %v", e.LinkType, e.Addr)
	m.send(cmd.AcceptSynchronousConnectionRequest{
		Addr:                 e.Addr,
		TxBandwidth:          scoBandwidth,
		RxBandwidth:          scoBandwidth,
		MaxLatency:           scoMaxLatency,
		VoiceSetting:         scoVoiceCVSD,
		RetransmissionEffort: scoRetransAny,
		PacketTypes:          scoPacketTypeAll,
	}, func(err error) {
		if err != nil {
			m.log.Warnf("accept synchronous connection: %v", err)
		}
	})
}

// scoConnected records an established synchronous link against its ACL
// connection.
func (m *ConnectionManager) scoConnected(addr bredr.Addr, handle uint16, status byte) {
	conn := m.connByAddr(addr)
	if err := hci.StatusToError(status); err != nil {
		m.log.Warnf("synchronous connection to %v failed: %v", addr, err)
		return
	}
	if conn == nil {
		m.log.Warnf("synchronous connection %#04x without acl link", handle)
		return
	}

	conn.sco[handle] = struct{}{}
	m.scoConns[handle] = conn
	if m.cfg.scoHandler != nil {
		m.cfg.scoHandler.SCOConnected(conn.peerID, handle)
	}
}

// scoDisconnected drops a synchronous link. Returns false when the
// handle is not a known SCO handle, so the caller can treat the event
// as an ACL disconnect.
func (m *ConnectionManager) scoDisconnected(handle uint16) bool {
	conn, ok := m.scoConns[handle]
	if !ok {
		return false
	}
	delete(m.scoConns, handle)
	delete(conn.sco, handle)
	if m.cfg.scoHandler != nil {
		m.cfg.scoHandler.SCOClosed(conn.peerID, handle)
	}
	return true
}
