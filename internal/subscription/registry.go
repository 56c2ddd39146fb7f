// Package subscription implements the per-connection subscription registry
// and the REQ historical-event replay strategies.
package subscription

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// CanSee gates whether authedPubkey may observe event in scope sc; it is the
// connection's bound-in group access-control check.
type CanSee func(event *nostr.Event, sc scope.Scope, authedPubkey string) bool

// Registry tracks one connection's live subscriptions (subscription_id ->
// filters). One Registry belongs to exactly one connection actor.
type Registry struct {
	mu   sync.Mutex
	subs map[string][]nostr.Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]nostr.Filter)}
}

// Add registers or replaces the filters for subscriptionID.
func (r *Registry) Add(subscriptionID string, filters []nostr.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[subscriptionID] = filters
}

// Remove drops subscriptionID; it is a no-op if it doesn't exist.
func (r *Registry) Remove(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, subscriptionID)
}

// Clear drops every subscription, for connection teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]nostr.Filter)
}

// Len reports the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Matching returns the ids of every subscription whose filters match event
// and that canSee permits authedPubkey to observe, in scope sc.
func (r *Registry) Matching(event *nostr.Event, sc scope.Scope, authedPubkey string, canSee CanSee) []string {
	r.mu.Lock()
	subs := make(map[string][]nostr.Filter, len(r.subs))
	for id, filters := range r.subs {
		subs[id] = filters
	}
	r.mu.Unlock()

	if canSee != nil && !canSee(event, sc, authedPubkey) {
		return nil
	}

	var matched []string
	for id, filters := range subs {
		for _, f := range filters {
			if nip1.MatchesFilter(event, f) {
				matched = append(matched, id)
				break
			}
		}
	}
	return matched
}
