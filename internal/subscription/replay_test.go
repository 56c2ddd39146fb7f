package subscription

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// memStore is a tiny Store implementation matching the real backend's
// contract closely enough to exercise the replay strategies: newest-first
// ordering, id tiebreak, and per-filter Limit truncation.
type memStore struct {
	events []*nostr.Event
}

func (m *memStore) Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error) {
	sorted := append([]*nostr.Event(nil), m.events...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt > sorted[j].CreatedAt
		}
		return sorted[i].ID > sorted[j].ID
	})

	var out []*nostr.Event
	seen := make(map[string]bool)
	counts := make([]int, len(filters))
	for _, ev := range sorted {
		if seen[ev.ID] {
			continue
		}
		for i, f := range filters {
			if f.Limit > 0 && counts[i] >= f.Limit {
				continue
			}
			if nip1.MatchesFilter(ev, f) {
				out = append(out, ev)
				seen[ev.ID] = true
				counts[i]++
				break
			}
		}
	}
	return out, nil
}

type memSender struct {
	events []*nostr.Event
	eoseAt int
	eosed  bool
}

func (s *memSender) SendEvent(subscriptionID string, event *nostr.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *memSender) SendEOSE(subscriptionID string) error {
	s.eosed = true
	s.eoseAt = len(s.events)
	return nil
}

func tagGroup(name string) nostr.Tags { return nostr.Tags{{"h", name}} }

func canSeeDenyTag(tagValue string) CanSee {
	return func(event *nostr.Event, sc scope.Scope, authedPubkey string) bool {
		for _, t := range event.Tags {
			if len(t) >= 2 && t[0] == "h" && t[1] == tagValue {
				return false
			}
		}
		return true
	}
}

func TestHandleREQ_SimpleStrategyNoLimit(t *testing.T) {
	store := &memStore{events: []*nostr.Event{
		{ID: "e1", Kind: 9, CreatedAt: 1700000000},
		{ID: "e2", Kind: 9, CreatedAt: 1700000010},
	}}
	sender := &memSender{}
	registry := NewRegistry()

	err := HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}}}, "", scope.Default, nil, 500, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, sender.events, 2)
	assert.True(t, sender.eosed)
	assert.Equal(t, 1, registry.Len())
}

// Pagination with post-query filtering: one public event survives a
// limit=5 REQ whose access filter rejects everything tagged "private_group".
func TestHandleREQ_PaginationWithFiltering(t *testing.T) {
	store := &memStore{events: []*nostr.Event{
		{ID: "pub1", Kind: 9, CreatedAt: 1700000000, Tags: tagGroup("public_group")},
		{ID: "priv1", Kind: 9, CreatedAt: 1700000010, Tags: tagGroup("private_group")},
		{ID: "priv2", Kind: 9, CreatedAt: 1700000011, Tags: tagGroup("private_group")},
		{ID: "priv3", Kind: 9, CreatedAt: 1700000012, Tags: tagGroup("private_group")},
		{ID: "priv4", Kind: 9, CreatedAt: 1700000013, Tags: tagGroup("private_group")},
		{ID: "priv5", Kind: 9, CreatedAt: 1700000014, Tags: tagGroup("private_group")},
	}}
	sender := &memSender{}
	registry := NewRegistry()

	err := HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}, Limit: 5}}, "", scope.Default,
		canSeeDenyTag("private_group"), 500, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, sender.events, 1)
	assert.Equal(t, "pub1", sender.events[0].ID)
	assert.True(t, sender.eosed)
}

// Window sliding bounded by `until`, emitting reverse-chronological
// public events only.
func TestHandleREQ_WindowSlidingBounded(t *testing.T) {
	var events []*nostr.Event
	for i := 0; i < 10; i++ {
		group := "private"
		if i%2 == 0 {
			group = "public"
		}
		events = append(events, &nostr.Event{
			ID:        fmt.Sprintf("e%d", i),
			Kind:      9,
			CreatedAt: nostr.Timestamp(1700000000 + 10*i),
			Tags:      tagGroup(group),
		})
	}
	store := &memStore{events: events}
	sender := &memSender{}
	registry := NewRegistry()

	until := nostr.Timestamp(1700000080)
	err := HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}, Until: &until, Limit: 3}}, "", scope.Default,
		canSeeDenyTag("private"), 500, zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, sender.events, 3)
	var ids []string
	for _, e := range sender.events {
		ids = append(ids, e.ID)
	}
	// Reverse-chronological: e8, e6, e4 (e0 and e2 exist but e8/e6/e4 are the
	// newest public events at/below the `until` bound).
	assert.Equal(t, []string{"e8", "e6", "e4"}, ids)
	assert.True(t, sender.eosed)
}

func TestHandleREQ_ExponentialFillBounded(t *testing.T) {
	var events []*nostr.Event
	for i := 0; i < 20; i++ {
		events = append(events, &nostr.Event{
			ID:        fmt.Sprintf("e%d", i),
			Kind:      9,
			CreatedAt: nostr.Timestamp(1700000000 + i),
		})
	}
	store := &memStore{events: events}
	sender := &memSender{}
	registry := NewRegistry()

	since := nostr.Timestamp(1700000000)
	until := nostr.Timestamp(1700000019)
	err := HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}, Since: &since, Until: &until, Limit: 3}}, "", scope.Default,
		nil, 500, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, sender.events, 3)
	assert.True(t, sender.eosed)
}

func TestHandleREQ_GlobalLimitCapApplied(t *testing.T) {
	var events []*nostr.Event
	for i := 0; i < 10; i++ {
		events = append(events, &nostr.Event{ID: fmt.Sprintf("e%d", i), Kind: 9, CreatedAt: nostr.Timestamp(1700000000 + i)})
	}
	store := &memStore{events: events}
	sender := &memSender{}
	registry := NewRegistry()

	err := HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}, Limit: 1000}}, "", scope.Default, nil, 3, zerolog.Nop())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sender.events), 3)
}

func TestHandleREQ_EOSESentExactlyOnce(t *testing.T) {
	store := &memStore{}
	sender := &memSender{}
	registry := NewRegistry()

	require.NoError(t, HandleREQ(context.Background(), registry, store, sender, "sub1",
		[]nostr.Filter{{Kinds: []int{9}}}, "", scope.Default, nil, 500, zerolog.Nop()))
	assert.True(t, sender.eosed)
	assert.Empty(t, sender.events)
}
