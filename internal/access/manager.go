package access

import (
	"sync"

	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// Manager holds one groups.Registry per scope. internal/groups keeps Group
// free of any notion of scope, so the scope keying lives here, one level
// up, the same way internal/store keeps a single backend but partitions it
// into per-scope buckets.
type Manager struct {
	relayPubkey string

	mu         sync.Mutex
	registries map[string]*groups.Registry
}

// NewManager returns a Manager for a relay identified by relayPubkey.
func NewManager(relayPubkey string) *Manager {
	return &Manager{relayPubkey: relayPubkey, registries: make(map[string]*groups.Registry)}
}

// Registry returns the groups.Registry for sc, creating it on first use.
func (m *Manager) Registry(sc scope.Scope) *groups.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sc.String()
	r, ok := m.registries[key]
	if !ok {
		r = groups.NewRegistry(m.relayPubkey)
		m.registries[key] = r
	}
	return r
}

// RelayPubkey returns the relay's own identity pubkey.
func (m *Manager) RelayPubkey() string {
	return m.relayPubkey
}
