package main

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/access"
	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/store"
)

// replayGroups is the startup fold: every control event ever saved, across
// every scope, must be reflected in the manager's registries before the
// relay accepts connections.
func TestReplayGroups_FoldsControlEventsAcrossScopes(t *testing.T) {
	backend, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	facade := store.NewEventStore(backend, func(*nostr.Event) error { return nil }, zerolog.Nop())
	defer facade.Close()

	ctx := context.Background()
	scA := scope.Named("a")
	scB := scope.Named("b")

	create := func(sc scope.Scope, groupID string, createdAt nostr.Timestamp) *nostr.Event {
		ev := &nostr.Event{
			ID: groupID + "-create", Kind: groups.KindCreate, PubKey: "admin",
			CreatedAt: createdAt, Tags: nostr.Tags{{"h", groupID}},
		}
		require.NoError(t, facade.SaveSignedEvent(ctx, ev, sc))
		return ev
	}
	addMember := func(sc scope.Scope, groupID, member string, createdAt nostr.Timestamp) {
		ev := &nostr.Event{
			ID: groupID + "-add-" + member, Kind: groups.KindAddUser, PubKey: "admin",
			CreatedAt: createdAt, Tags: nostr.Tags{{"h", groupID}, {"p", member}},
		}
		require.NoError(t, facade.SaveSignedEvent(ctx, ev, sc))
	}

	create(scA, "groupa", 100)
	addMember(scA, "groupa", "bob", 101)
	create(scB, "groupb", 200)

	manager := access.NewManager("relaypub")
	require.NoError(t, replayGroups(facade, manager))

	regA := manager.Registry(scA)
	groupA, ok := regA.Get("groupa")
	require.True(t, ok)
	assert.True(t, groupA.IsMember("admin"))
	assert.True(t, groupA.IsMember("bob"))

	regB := manager.Registry(scB)
	groupB, ok := regB.Get("groupb")
	require.True(t, ok)
	assert.True(t, groupB.IsAdmin("admin"))

	_, ok = regB.Get("groupa")
	assert.False(t, ok, "scope b's registry must not see scope a's group")
}

// replayGroups over a store with no scopes yet returns no error and leaves
// the registry without any group.
func TestReplayGroups_ContinuesPastEmptyScope(t *testing.T) {
	backend, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	facade := store.NewEventStore(backend, func(*nostr.Event) error { return nil }, zerolog.Nop())
	defer facade.Close()

	manager := access.NewManager("relaypub")
	assert.NoError(t, replayGroups(facade, manager))

	_, ok := manager.Registry(scope.Default).Get("nonexistent")
	assert.False(t, ok)
}
