// Package peer keeps the host's view of remote devices: identity,
// transport technology, connection state and bonding data.
package peer

import (
	"sync"

	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
)

// Technology is the set of transports a peer is known to support.
type Technology int

const (
	TechBREDR Technology = iota
	TechLE
	TechDualMode
)

func (t Technology) String() string {
	switch t {
	case TechBREDR:
		return "bredr"
	case TechLE:
		return "le"
	case TechDualMode:
		return "dual"
	}
	return "unknown"
}

// SupportsBREDR reports whether classic connections make sense.
func (t Technology) SupportsBREDR() bool {
	return t == TechBREDR || t == TechDualMode
}

// ConnectionState is the coarse link state tracked per peer.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateInitializing
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// VersionInfo is the peer's LMP version as read during interrogation.
type VersionInfo struct {
	Version      byte
	Manufacturer uint16
	Subversion   uint16
}

// Peer is one remote device record. Safe for concurrent use.
type Peer struct {
	id   bredr.PeerID
	addr bredr.Addr

	mu       sync.RWMutex
	name     string
	tech     Technology
	state    ConnectionState
	bond     *bredr.BondData
	leKey    *bredr.LinkKey
	version  *VersionInfo
	features []uint64

	psrm      hci.PageScanRepetitionMode
	psrmSet   bool
	clkOffset uint16
	clkSet    bool
}

func newPeer(id bredr.PeerID, addr bredr.Addr, tech Technology) *Peer {
	return &Peer{id: id, addr: addr, tech: tech}
}

// ID returns the stable identifier.
func (p *Peer) ID() bredr.PeerID { return p.id }

// Addr returns the device address.
func (p *Peer) Addr() bredr.Addr { return p.addr }

// Technology returns the transports the peer is known on.
func (p *Peer) Technology() Technology {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tech
}

func (p *Peer) mergeTechnology(t Technology) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tech != t {
		p.tech = TechDualMode
	}
}

// Name returns the peer's friendly name, if known.
func (p *Peer) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Peer) setName(n string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = n
}

// State returns the tracked connection state.
func (p *Peer) State() ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(s ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Bonded reports whether a link key is stored for the peer.
func (p *Peer) Bonded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bond != nil
}

// Bond returns the stored bonding data.
func (p *Peer) Bond() (bredr.BondData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.bond == nil {
		return bredr.BondData{}, false
	}
	return *p.bond, true
}

func (p *Peer) setBond(b bredr.BondData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bond = &b
}

func (p *Peer) clearBond() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bond = nil
	p.leKey = nil
}

// LEKey returns the LE long term key derived from the BR/EDR bond, if
// one was derived.
func (p *Peer) LEKey() (bredr.LinkKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.leKey == nil {
		return bredr.LinkKey{}, false
	}
	return *p.leKey, true
}

func (p *Peer) setLEKey(k bredr.LinkKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leKey = &k
}

// Version returns the interrogated LMP version.
func (p *Peer) Version() (VersionInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.version == nil {
		return VersionInfo{}, false
	}
	return *p.version, true
}

// SetVersion records the interrogated LMP version.
func (p *Peer) SetVersion(v VersionInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = &v
}

// Features returns the interrogated LMP feature pages, page 0 first.
func (p *Peer) Features() []uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uint64, len(p.features))
	copy(out, p.features)
	return out
}

// SetFeaturesPage records one interrogated LMP feature page.
func (p *Peer) SetFeaturesPage(page byte, features uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for int(page) >= len(p.features) {
		p.features = append(p.features, 0)
	}
	p.features[page] = features
}

// PageScanParams returns stored paging hints, if the peer has been seen
// recently enough to have any.
func (p *Peer) PageScanParams() (mode hci.PageScanRepetitionMode, clockOffset uint16, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.psrmSet {
		return 0, 0, false
	}
	off := uint16(0)
	if p.clkSet {
		off = p.clkOffset | hci.ClockOffsetValidFlag
	}
	return p.psrm, off, true
}

// SetPageScanParams stores paging hints from inquiry or a previous
// connection.
func (p *Peer) SetPageScanParams(mode hci.PageScanRepetitionMode, clockOffset uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.psrm = mode
	p.psrmSet = true
	p.clkOffset = clockOffset &^ hci.ClockOffsetValidFlag
	p.clkSet = clockOffset&hci.ClockOffsetValidFlag != 0
}
