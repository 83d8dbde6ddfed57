package peer

import (
	"encoding/hex"

	"github.com/cskr/pubsub/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/rigado/bredr"
)

// EventKind classifies directory change notifications.
type EventKind int

const (
	EventAdded EventKind = iota
	EventUpdated
	EventBonded
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventBonded:
		return "bonded"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event is a directory change notification.
type Event struct {
	Kind EventKind
	ID   bredr.PeerID
	Addr bredr.Addr
}

const topicPeers = "peers"

// Stats are directory lifetime counters.
type Stats struct {
	PeersAdded  int64
	BondsStored int64
}

// Directory indexes peers by identifier and by address and owns bond
// persistence. All methods are safe for concurrent use.
type Directory struct {
	byID   *xsync.MapOf[bredr.PeerID, *Peer]
	byAddr *xsync.MapOf[bredr.Addr, *Peer]

	store *BondStore
	bus   *pubsub.PubSub[string, Event]

	added *xsync.Counter
	bonds *xsync.Counter

	log bredr.Logger
}

// NewDirectory builds a directory, restoring bonded peers from store.
// store may be nil for a purely in-memory directory.
func NewDirectory(store *BondStore) (*Directory, error) {
	d := &Directory{
		byID:   xsync.NewMapOf[bredr.PeerID, *Peer](),
		byAddr: xsync.NewMapOf[bredr.Addr, *Peer](),
		store:  store,
		bus:    pubsub.New[string, Event](16),
		added:  xsync.NewCounter(),
		bonds:  xsync.NewCounter(),
		log:    bredr.ComponentLogger("peer"),
	}

	if store == nil {
		return d, nil
	}

	records, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "restore bonds")
	}
	for addr, r := range records {
		r.Addr = addr
		p, err := d.restore(r)
		if err != nil {
			d.log.Warnf("skipping bad bond record for %q: %v", addr, err)
			continue
		}
		d.log.Debugf("restored bonded peer %v (%v)", p.ID(), p.Addr())
	}
	return d, nil
}

func (d *Directory) restore(r BondRecord) (*Peer, error) {
	addr, err := bredr.ParseAddr(r.Addr)
	if err != nil {
		return nil, err
	}
	key, err := decodeKey(r.Key)
	if err != nil {
		return nil, err
	}

	p := d.Upsert(addr)
	p.setName(r.Name)
	p.setBond(bredr.BondData{Key: key, KeyType: bredr.LinkKeyType(r.KeyType)})
	if r.LEKey != "" {
		lk, err := decodeKey(r.LEKey)
		if err != nil {
			return nil, err
		}
		p.setLEKey(lk)
		// A derived LE key means the peer was bonded across transports.
		p.mergeTechnology(TechLE)
	}
	return p, nil
}

// Get returns the peer with the given identifier, nil if unknown.
func (d *Directory) Get(id bredr.PeerID) *Peer {
	p, _ := d.byID.Load(id)
	return p
}

// ByAddress returns the peer with the given address, nil if unknown.
func (d *Directory) ByAddress(addr bredr.Addr) *Peer {
	p, _ := d.byAddr.Load(addr)
	return p
}

// Upsert returns the peer for addr, creating the record if needed. A
// BR/EDR address and an LE public address carrying the same MAC belong
// to one dual-mode device and resolve to one record. [Vol 6, Part B, 1.3]
func (d *Directory) Upsert(addr bredr.Addr) *Peer {
	tech := TechBREDR
	if addr.IsLE() {
		tech = TechLE
	}

	if p, ok := d.byAddr.Load(addr); ok {
		return p
	}
	if p := d.otherTransport(addr); p != nil {
		p.mergeTechnology(tech)
		d.byAddr.Store(addr, p)
		d.publish(EventUpdated, p)
		d.log.Debugf("peer %v also seen as %v, now %v", p.ID(), addr, p.Technology())
		return p
	}

	p, loaded := d.byAddr.LoadOrCompute(addr, func() *Peer {
		return newPeer(bredr.NewPeerID(), addr, tech)
	})
	if !loaded {
		d.byID.Store(p.ID(), p)
		d.added.Inc()
		d.publish(EventAdded, p)
		d.log.Debugf("new peer %v (%v)", p.ID(), addr)
	}
	return p
}

// otherTransport finds a record for the same MAC under the other
// transport's address kind. LE random addresses share no identity with
// the public space and never match.
func (d *Directory) otherTransport(addr bredr.Addr) *Peer {
	if addr.Kind == bredr.AddrLERandom {
		return nil
	}
	var found *Peer
	d.byAddr.Range(func(a bredr.Addr, p *Peer) bool {
		if a.MAC == addr.MAC && a.Kind != addr.Kind && a.Kind != bredr.AddrLERandom {
			found = p
			return false
		}
		return true
	})
	return found
}

// Remove drops a peer record and its persisted bond. A dual-mode record
// disappears from both transports' address indexes.
func (d *Directory) Remove(id bredr.PeerID) error {
	p := d.Get(id)
	if p == nil {
		return bredr.ErrNotFound
	}
	d.byID.Delete(id)
	d.byAddr.Range(func(a bredr.Addr, q *Peer) bool {
		if q == p {
			d.byAddr.Delete(a)
		}
		return true
	})
	p.clearBond()
	d.publish(EventRemoved, p)
	return d.persist()
}

// StoreBond records the link key produced by pairing. This is the only
// write path for bonding data.
func (d *Directory) StoreBond(id bredr.PeerID, bond bredr.BondData) error {
	p := d.Get(id)
	if p == nil {
		return bredr.ErrNotFound
	}

	p.setBond(bond)
	if err := d.persist(); err != nil {
		return errors.Wrap(err, "store bond")
	}
	d.bonds.Inc()
	d.publish(EventBonded, p)
	d.log.Infof("stored %v bond for peer %v", bond.KeyType, id)
	return nil
}

// StoreDerivedLEKey records an LE long term key derived from the BR/EDR
// bond via cross-transport key derivation.
func (d *Directory) StoreDerivedLEKey(id bredr.PeerID, key bredr.LinkKey) error {
	p := d.Get(id)
	if p == nil {
		return bredr.ErrNotFound
	}
	p.setLEKey(key)
	return d.persist()
}

// SetState updates the tracked connection state.
func (d *Directory) SetState(id bredr.PeerID, s ConnectionState) {
	p := d.Get(id)
	if p == nil {
		return
	}
	p.setState(s)
	d.publish(EventUpdated, p)
}

// SetName updates the friendly name.
func (d *Directory) SetName(id bredr.PeerID, name string) {
	p := d.Get(id)
	if p == nil {
		return
	}
	p.setName(name)
	d.publish(EventUpdated, p)
}

// Range calls f for every peer until f returns false.
func (d *Directory) Range(f func(*Peer) bool) {
	d.byID.Range(func(_ bredr.PeerID, p *Peer) bool {
		return f(p)
	})
}

// Subscribe returns a channel of directory change events. Slow consumers
// lose events rather than stalling the stack.
func (d *Directory) Subscribe() chan Event {
	return d.bus.Sub(topicPeers)
}

// Unsubscribe releases a subscription channel.
func (d *Directory) Unsubscribe(ch chan Event) {
	d.bus.Unsub(ch, topicPeers)
}

// Stats returns lifetime counters.
func (d *Directory) Stats() Stats {
	return Stats{
		PeersAdded:  d.added.Value(),
		BondsStored: d.bonds.Value(),
	}
}

// Close shuts down event delivery.
func (d *Directory) Close() {
	d.bus.Shutdown()
}

func (d *Directory) publish(kind EventKind, p *Peer) {
	d.bus.TryPub(Event{Kind: kind, ID: p.ID(), Addr: p.Addr()}, topicPeers)
}

func (d *Directory) persist() error {
	if d.store == nil {
		return nil
	}

	records := map[string]BondRecord{}
	d.byID.Range(func(_ bredr.PeerID, p *Peer) bool {
		bond, ok := p.Bond()
		if !ok {
			return true
		}
		r := BondRecord{
			Addr:    p.Addr().String(),
			Name:    p.Name(),
			Key:     hex.EncodeToString(bond.Key[:]),
			KeyType: byte(bond.KeyType),
		}
		if lk, ok := p.LEKey(); ok {
			r.LEKey = hex.EncodeToString(lk[:])
		}
		records[r.Addr] = r
		return true
	})
	return d.store.Save(records)
}

func decodeKey(s string) (bredr.LinkKey, error) {
	var k bredr.LinkKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, errors.Errorf("bad key length %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}
