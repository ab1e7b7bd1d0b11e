package gpsd

import (
	"log/slog"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Peer is a registry entry.
type Peer interface {
	Send(p []byte) error
	Close(reason error)
}

// Registry maps peer identities to live sessions. It is owned by the daemon
// runtime and lives as long as the server.
type Registry struct {
	peers *xsync.MapOf[string, Peer]
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{peers: xsync.NewMapOf[string, Peer](), log: log}
}

// Register stores p under id. An existing entry for id is replaced.
func (r *Registry) Register(id string, p Peer) {
	prev, loaded := r.peers.LoadAndStore(id, p)
	if loaded && prev != p {
		r.log.Info("client reconnected; replacing session", "peer", id)
	}
}

// Unregister removes id if present.
func (r *Registry) Unregister(id string) {
	r.peers.Delete(id)
}

// Release removes id only while it still maps to p, so a session never drops
// the entry of a newer session that took over its identity.
func (r *Registry) Release(id string, p Peer) bool {
	released := false
	r.peers.Compute(id, func(old Peer, loaded bool) (Peer, bool) {
		if !loaded {
			return old, true
		}
		if old == p {
			released = true
			return old, true
		}
		return old, false
	})
	return released
}

func (r *Registry) Lookup(id string) (Peer, bool) {
	return r.peers.Load(id)
}

func (r *Registry) Len() int {
	return r.peers.Size()
}

// IDs returns the registered identities in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, r.peers.Size())
	r.peers.Range(func(id string, _ Peer) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Broadcast sends p to every registered peer and returns how many accepted
// it. A failing peer does not stop delivery to the others.
func (r *Registry) Broadcast(p []byte) int {
	delivered := 0
	r.peers.Range(func(id string, peer Peer) bool {
		if err := peer.Send(p); err != nil {
			r.log.Warn("broadcast to peer failed", "peer", id, "error", err)
			return true
		}
		delivered++
		return true
	})
	return delivered
}

// Close closes every registered peer.
func (r *Registry) Close(reason error) {
	peers := make([]Peer, 0, r.peers.Size())
	r.peers.Range(func(_ string, peer Peer) bool {
		peers = append(peers, peer)
		return true
	})
	for _, p := range peers {
		p.Close(reason)
	}
}
