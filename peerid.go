package bredr

import "github.com/google/uuid"

// PeerID identifies a peer in the directory. It is stable across address
// changes and survives for the life of the peer record.
type PeerID uuid.UUID

// NewPeerID returns a fresh random identifier.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

// ParsePeerID parses the canonical uuid form.
func ParsePeerID(s string) (PeerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID(u), nil
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero identifier.
func (id PeerID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}
