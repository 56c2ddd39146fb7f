package store

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// Backend is the durable layer behind the facade. Saves of replaceable or
// addressable kinds overwrite any prior event sharing the same coordinate
// unless that prior event has a later created_at; everything else is
// append-only within a scope.
type Backend interface {
	Save(s scope.Scope, event *nostr.Event) error
	Delete(s scope.Scope, filter nostr.Filter) (deleted int, err error)
	Query(s scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error)
	ListScopes() ([]scope.Scope, error)
	Close() error
}
