package deletion

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// fakeStore is an in-memory stand-in for internal/store.EventStore that
// ignores scope, so deletion.Process can be exercised without bbolt.
type fakeStore struct {
	events map[string]*nostr.Event // by id, ignoring scope (tests use one scope)
	calls  []nostr.Filter
}

func newFakeStore(events ...*nostr.Event) *fakeStore {
	s := &fakeStore{events: make(map[string]*nostr.Event)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error) {
	var out []*nostr.Event
	for _, f := range filters {
		for _, id := range f.IDs {
			if e, ok := s.events[id]; ok {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteEvents(ctx context.Context, filter nostr.Filter, sc scope.Scope) error {
	s.calls = append(s.calls, filter)
	for _, id := range filter.IDs {
		delete(s.events, id)
	}
	if len(filter.IDs) == 0 {
		for id, e := range s.events {
			if matchesAddressFilter(e, filter) {
				delete(s.events, id)
			}
		}
	}
	return nil
}

func matchesAddressFilter(e *nostr.Event, f nostr.Filter) bool {
	if len(f.Kinds) > 0 && f.Kinds[0] != e.Kind {
		return false
	}
	if len(f.Authors) > 0 && f.Authors[0] != e.PubKey {
		return false
	}
	return true
}

func TestIsDeletionRequest(t *testing.T) {
	assert.True(t, IsDeletionRequest(&nostr.Event{Kind: 5}))
	assert.False(t, IsDeletionRequest(&nostr.Event{Kind: 1}))
}

// A deletion request only removes events whose pubkey matches the
// requester; cross-owner attempts are silently ignored.
func TestProcess_DeletesOwnEventByID(t *testing.T) {
	target := &nostr.Event{ID: "e1", PubKey: "alice", Kind: 1}
	store := newFakeStore(target)
	request := &nostr.Event{ID: "del1", PubKey: "alice", Kind: 5, Tags: nostr.Tags{{"e", "e1"}}}

	require.NoError(t, Process(context.Background(), store, request, scope.Default))
	_, stillThere := store.events["e1"]
	assert.False(t, stillThere)
}

func TestProcess_IgnoresCrossAuthorDeletion(t *testing.T) {
	target := &nostr.Event{ID: "e1", PubKey: "alice", Kind: 1}
	store := newFakeStore(target)
	request := &nostr.Event{ID: "del1", PubKey: "bob", Kind: 5, Tags: nostr.Tags{{"e", "e1"}}}

	require.NoError(t, Process(context.Background(), store, request, scope.Default))
	_, stillThere := store.events["e1"]
	assert.True(t, stillThere, "bob must not be able to delete alice's event")
}

func TestProcess_DeletesOwnAddressableByCoordinate(t *testing.T) {
	target := &nostr.Event{ID: "e1", PubKey: "alice", Kind: 30001, Tags: nostr.Tags{{"d", "mydoc"}}}
	store := newFakeStore(target)
	request := &nostr.Event{ID: "del1", PubKey: "alice", Kind: 5, Tags: nostr.Tags{{"a", "30001:alice:mydoc"}}}

	require.NoError(t, Process(context.Background(), store, request, scope.Default))
	_, stillThere := store.events["e1"]
	assert.False(t, stillThere)
}

func TestProcess_IgnoresCrossAuthorAddressableDeletion(t *testing.T) {
	target := &nostr.Event{ID: "e1", PubKey: "alice", Kind: 30001, Tags: nostr.Tags{{"d", "mydoc"}}}
	store := newFakeStore(target)
	request := &nostr.Event{ID: "del1", PubKey: "bob", Kind: 5, Tags: nostr.Tags{{"a", "30001:alice:mydoc"}}}

	require.NoError(t, Process(context.Background(), store, request, scope.Default))
	_, stillThere := store.events["e1"]
	assert.True(t, stillThere)
}

func TestProcess_MalformedAddressTagIgnored(t *testing.T) {
	store := newFakeStore()
	request := &nostr.Event{ID: "del1", PubKey: "alice", Kind: 5, Tags: nostr.Tags{{"a", "not-a-coordinate"}}}
	assert.NoError(t, Process(context.Background(), store, request, scope.Default))
	assert.Empty(t, store.calls)
}

func TestProcess_NonDeletionEventIsNoop(t *testing.T) {
	store := newFakeStore()
	assert.NoError(t, Process(context.Background(), store, &nostr.Event{Kind: 1}, scope.Default))
	assert.Empty(t, store.calls)
}

func TestProcess_UnknownReferencedEventIsNoop(t *testing.T) {
	store := newFakeStore()
	request := &nostr.Event{ID: "del1", PubKey: "alice", Kind: 5, Tags: nostr.Tags{{"e", "missing"}}}
	assert.NoError(t, Process(context.Background(), store, request, scope.Default))
}
