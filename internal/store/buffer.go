package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// flushInterval is how often the buffer drains coalesced replaceable events
// to the store.
const flushInterval = time.Second

type bufferKey struct {
	pubkey string
	kind   int
	scope  string
}

// ReplaceableBuffer coalesces replaceable/addressable-event saves by
// (pubkey, kind, scope), plus the d-tag for addressable kinds, keeping only
// the most recently offered event per key and flushing
// to the backing store on a timer and on Close.
type ReplaceableBuffer struct {
	save func(ctx context.Context, event *nostr.Event, sc scope.Scope) error
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[bufferKey]bufferedEvent

	stop chan struct{}
	done chan struct{}
}

type bufferedEvent struct {
	event *nostr.Event
	scope scope.Scope
}

// NewReplaceableBuffer starts the flush loop. save is called for every
// coalesced event on each flush; pass the facade's SaveUnsignedEvent, since
// the buffered events are relay-authored and not yet signed.
func NewReplaceableBuffer(save func(ctx context.Context, event *nostr.Event, sc scope.Scope) error, log zerolog.Logger) *ReplaceableBuffer {
	b := &ReplaceableBuffer{
		save:    save,
		log:     log,
		pending: make(map[bufferKey]bufferedEvent),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Offer queues event for coalesced persistence. On a key collision the
// incoming event wins: callers stamp created_at monotonically, so arrival
// order is newest-last. It is a caller bug to offer an event whose kind is
// neither replaceable nor addressable; Offer returns an error in that case
// instead of silently accepting it.
func (b *ReplaceableBuffer) Offer(event *nostr.Event, sc scope.Scope) error {
	if !nip1.IsReplaceable(event.Kind) && !nip1.IsAddressable(event.Kind) {
		return fmt.Errorf("buffer: kind %d is neither replaceable nor addressable", event.Kind)
	}

	key := bufferKey{pubkey: event.PubKey, kind: event.Kind, scope: sc.String()}
	if nip1.IsAddressable(event.Kind) {
		key.scope = sc.String() + "|" + nip1.DTag(event.Tags)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[key] = bufferedEvent{event: event, scope: sc}
	return nil
}

func (b *ReplaceableBuffer) run() {
	defer close(b.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stop:
			b.flush()
			return
		}
	}
}

func (b *ReplaceableBuffer) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[bufferKey]bufferedEvent)
	b.mu.Unlock()

	ctx := context.Background()
	for _, buffered := range pending {
		if err := b.save(ctx, buffered.event, buffered.scope); err != nil {
			b.log.Warn().
				Str("event_id", buffered.event.ID).
				Str("pubkey", buffered.event.PubKey).
				Int("kind", buffered.event.Kind).
				Str("scope", buffered.scope.String()).
				Err(err).
				Msg("replaceable buffer flush failed")
		}
	}
}

// Close stops the flush loop after one final flush.
func (b *ReplaceableBuffer) Close() {
	close(b.stop)
	<-b.done
}
