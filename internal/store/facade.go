package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// EventStore is the store facade: a single background writer task serializes
// every mutation against Backend, signs unsigned events off the caller's
// goroutine, and fans committed events out to subscribers.
type EventStore struct {
	backend Backend
	log     zerolog.Logger
	signer  func(*nostr.Event) error

	commands chan Command

	mu          sync.Mutex
	subscribers map[string]chan *Broadcast

	done chan struct{}
}

// Broadcast is delivered to every subscriber after a command commits.
type Broadcast struct {
	Scope  scope.Scope
	Event  *nostr.Event // nil for a DeleteEvents commit
	Delete *nostr.Filter
}

// NewEventStore starts the writer task and returns the facade. signer turns
// an unsigned event into a signed one for SaveUnsignedEvent commands; it
// runs on the writer task, off every connection's goroutine. Pass
// nostr.Event.Sign bound to the relay's private key.
func NewEventStore(backend Backend, signer func(*nostr.Event) error, log zerolog.Logger) *EventStore {
	es := &EventStore{
		backend:     backend,
		log:         log,
		signer:      signer,
		commands:    make(chan Command, 256),
		subscribers: make(map[string]chan *Broadcast),
		done:        make(chan struct{}),
	}
	go es.run()
	return es
}

func (es *EventStore) run() {
	defer close(es.done)
	for cmd := range es.commands {
		es.apply(cmd)
	}
}

func (es *EventStore) apply(cmd Command) {
	switch cmd.kind {
	case cmdSaveSigned:
		err := es.backend.Save(cmd.Scope, cmd.Event)
		if err == nil {
			es.broadcast(&Broadcast{Scope: cmd.Scope, Event: cmd.Event})
		}
		cmd.Done <- err

	case cmdSaveUnsigned:
		if err := es.signer(cmd.Unsigned); err != nil {
			cmd.Done <- fmt.Errorf("sign event: %w", err)
			return
		}
		err := es.backend.Save(cmd.Scope, cmd.Unsigned)
		if err == nil {
			cmd.Event = cmd.Unsigned
			es.broadcast(&Broadcast{Scope: cmd.Scope, Event: cmd.Unsigned})
		}
		cmd.Done <- err

	case cmdDeleteEvents:
		_, err := es.backend.Delete(cmd.Scope, cmd.Filter)
		if err == nil {
			f := cmd.Filter
			es.broadcast(&Broadcast{Scope: cmd.Scope, Delete: &f})
		}
		cmd.Done <- err
	}
}

func (es *EventStore) broadcast(b *Broadcast) {
	es.mu.Lock()
	defer es.mu.Unlock()
	for id, ch := range es.subscribers {
		select {
		case ch <- b:
		default:
			es.log.Warn().Str("subscriber", id).Msg("dropping broadcast, subscriber channel full")
		}
	}
}

// submit enqueues cmd and blocks for ctx until it commits or ctx is done.
func (es *EventStore) submit(ctx context.Context, cmd Command) error {
	select {
	case es.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveSignedEvent persists an already-signed event in sc.
func (es *EventStore) SaveSignedEvent(ctx context.Context, event *nostr.Event, sc scope.Scope) error {
	return es.submit(ctx, SaveSignedEvent(event, sc))
}

// SaveUnsignedEvent signs unsigned with the relay's key and persists it in sc.
func (es *EventStore) SaveUnsignedEvent(ctx context.Context, unsigned *nostr.Event, sc scope.Scope) error {
	return es.submit(ctx, SaveUnsignedEvent(unsigned, sc))
}

// DeleteEvents removes every event in sc matching filter.
func (es *EventStore) DeleteEvents(ctx context.Context, filter nostr.Filter, sc scope.Scope) error {
	return es.submit(ctx, DeleteEvents(filter, sc))
}

// Query answers a read-only lookup directly against the backend; reads don't
// need to go through the writer task since bbolt views don't block writers.
func (es *EventStore) Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error) {
	return es.backend.Query(sc, filters)
}

// ListScopes returns every scope that has ever had an event saved.
func (es *EventStore) ListScopes() ([]scope.Scope, error) {
	return es.backend.ListScopes()
}

// BroadcastEphemeral fans an ephemeral event out to subscribers without
// persisting it; ephemeral kinds never touch the backend.
func (es *EventStore) BroadcastEphemeral(event *nostr.Event, sc scope.Scope) {
	es.broadcast(&Broadcast{Scope: sc, Event: event})
}

// Subscribe registers a new broadcast listener, returning its id and
// channel. Callers must call Unsubscribe when done.
func (es *EventStore) Subscribe() (string, <-chan *Broadcast) {
	es.mu.Lock()
	defer es.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan *Broadcast, 64)
	es.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel for id.
func (es *EventStore) Unsubscribe(id string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if ch, ok := es.subscribers[id]; ok {
		delete(es.subscribers, id)
		close(ch)
	}
}

// Close stops accepting new commands and waits for the writer task to drain.
func (es *EventStore) Close() error {
	close(es.commands)
	<-es.done
	return es.backend.Close()
}
