package node

import (
	"net/netip"
	"sync"
	"time"
)

type Peer struct {
	ID       string
	Address  netip.AddrPort
	LastSeen time.Time
}

// PeerRegistry is a bounded table of peers keyed by identifier.
// Entries are never expired on write: stale peers are filtered out by Snapshot
// and keep counting toward the cap until they are evicted.
// When the table is full the oldest inserted entry is evicted, regardless of when it was last seen.
// A non-positive maxPeers leaves the table unbounded.
type PeerRegistry struct {
	mu       sync.Mutex
	maxPeers int
	liveness time.Duration

	peers map[string]*Peer
	order []string // insertion order, oldest first
}

func NewPeerRegistry(maxPeers int, liveness time.Duration) *PeerRegistry {
	return &PeerRegistry{
		maxPeers: maxPeers,
		liveness: liveness,
		peers:    make(map[string]*Peer),
	}
}

// Upsert records that id was seen at address. It reports whether the peer
// was already known and live before this call.
func (r *PeerRegistry) Upsert(id string, address netip.AddrPort, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[id]; ok {
		wasLive := r.isLive(p, now)
		p.Address = address
		p.LastSeen = now
		return wasLive
	}

	if r.maxPeers > 0 && len(r.order) >= r.maxPeers {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.peers, oldest)
	}

	r.peers[id] = &Peer{ID: id, Address: address, LastSeen: now}
	r.order = append(r.order, id)

	return false
}

// Snapshot returns copies of the peers seen within the liveness window, oldest inserted first
func (r *PeerRegistry) Snapshot(now time.Time) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]Peer, 0, len(r.order))
	for _, id := range r.order {
		p := r.peers[id]
		if r.isLive(p, now) {
			peers = append(peers, *p)
		}
	}
	return peers
}

// Find looks up the last known address of id. Stale peers are still returned.
func (r *PeerRegistry) Find(id string) (netip.AddrPort, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return netip.AddrPort{}, false
	}
	return p.Address, true
}

func (r *PeerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers = make(map[string]*Peer)
	r.order = nil
}

// Len counts stored entries, stale ones included
func (r *PeerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// No lock here, lock is assumed to be acquired by caller
func (r *PeerRegistry) isLive(p *Peer, now time.Time) bool {
	return now.Sub(p.LastSeen) <= r.liveness
}
