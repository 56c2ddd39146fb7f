// Package store implements the relay's event store facade and the
// replaceable-event coalescing buffer in front of a go.etcd.io/bbolt
// backend.
package store

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// Command is the tagged variant accepted by the facade's writer task. Each
// variant carries the scope it applies to so the writer never has to infer
// one.
type Command struct {
	kind commandKind

	// SaveSignedEvent; the writer also sets it to the signed event once a
	// SaveUnsignedEvent commits.
	Event *nostr.Event

	// SaveUnsignedEvent: signed off-thread before being committed.
	Unsigned *nostr.Event

	// DeleteEvents.
	Filter nostr.Filter

	Scope scope.Scope

	// Done carries the outcome back to the caller: it receives exactly one
	// value (nil or the error) once the command has been applied (or
	// failed). It is never closed.
	Done chan error
}

type commandKind int

const (
	cmdSaveSigned commandKind = iota
	cmdSaveUnsigned
	cmdDeleteEvents
)

// SaveSignedEvent builds a command that persists an already-signed event.
func SaveSignedEvent(event *nostr.Event, s scope.Scope) Command {
	return Command{kind: cmdSaveSigned, Event: event, Scope: s, Done: make(chan error, 1)}
}

// SaveUnsignedEvent builds a command that signs unsigned with the relay key
// before persisting it; signing fills the event's ID and Sig in place.
func SaveUnsignedEvent(unsigned *nostr.Event, s scope.Scope) Command {
	return Command{kind: cmdSaveUnsigned, Unsigned: unsigned, Scope: s, Done: make(chan error, 1)}
}

// DeleteEvents builds a command that removes every event in scope s matching
// filter.
func DeleteEvents(filter nostr.Filter, s scope.Scope) Command {
	return Command{kind: cmdDeleteEvents, Filter: filter, Scope: s, Done: make(chan error, 1)}
}
