package access

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

const relayPubkey = "relaypubkey000000000000000000000000000000000000000000000000000"

func newManager() *Manager {
	return NewManager(relayPubkey)
}

func createEvent(groupID, creator string) *nostr.Event {
	return &nostr.Event{ID: "create-" + groupID, PubKey: creator, Kind: groups.KindCreate, Tags: nostr.Tags{{"h", groupID}}}
}

func TestIsNonGroupAllowed(t *testing.T) {
	assert.True(t, IsNonGroupAllowed(10009))
	assert.False(t, IsNonGroupAllowed(9))
}

func TestIsGroupControl(t *testing.T) {
	assert.True(t, IsGroupControl(groups.KindCreate))
	assert.True(t, IsGroupControl(groups.KindJoinRequest))
	assert.False(t, IsGroupControl(9))
}

func TestIsDerived(t *testing.T) {
	assert.True(t, IsDerived(groups.KindMetadata))
	assert.False(t, IsDerived(groups.KindCreate))
}

func TestProcessInbound_NonGroupAllowedAlwaysSaves(t *testing.T) {
	m := newManager()
	ev := &nostr.Event{Kind: 10009, Tags: nostr.Tags{{"h", "anygroup"}}}
	d, rerr := m.ProcessInbound(ev, "alice", scope.Default, false)
	require.Nil(t, rerr)
	assert.True(t, d.Save)
}

func TestProcessInbound_DerivedKindRejected(t *testing.T) {
	m := newManager()
	ev := &nostr.Event{Kind: groups.KindMetadata, Tags: nostr.Tags{{"d", "g1"}}}
	_, rerr := m.ProcessInbound(ev, relayPubkey, scope.Default, false)
	require.NotNil(t, rerr)
	assert.Equal(t, relayerr.Restricted, rerr.Kind)
}

func TestProcessInbound_GroupControlCreatesGroup(t *testing.T) {
	m := newManager()
	d, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)
	assert.True(t, d.Save)
	assert.True(t, d.RegenerateDerived)
	assert.NotNil(t, d.Group)
}

func TestProcessInbound_OrdinaryEventNoGroupIDAlwaysSaves(t *testing.T) {
	m := newManager()
	ev := &nostr.Event{Kind: 1, Content: "hello"}
	d, rerr := m.ProcessInbound(ev, "alice", scope.Default, false)
	require.Nil(t, rerr)
	assert.True(t, d.Save)
	assert.Nil(t, d.Group)
}

func TestProcessInbound_ContentInNonexistentGroupRejected(t *testing.T) {
	m := newManager()
	ev := &nostr.Event{Kind: 9, Tags: nostr.Tags{{"h", "ghost"}}}
	_, rerr := m.ProcessInbound(ev, "alice", scope.Default, false)
	require.NotNil(t, rerr)
}

func TestProcessInbound_ContentInClosedGroupRequiresMembership(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)

	g, ok := m.Registry(scope.Default).Get("g1")
	require.True(t, ok)
	g.Metadata.Closed = true

	ev := &nostr.Event{Kind: 9, PubKey: "mallory", Tags: nostr.Tags{{"h", "g1"}}}
	_, rerr = m.ProcessInbound(ev, "mallory", scope.Default, false)
	require.NotNil(t, rerr)
	assert.Equal(t, relayerr.Restricted, rerr.Kind)

	ev2 := &nostr.Event{Kind: 9, PubKey: "alice", Tags: nostr.Tags{{"h", "g1"}}}
	d, rerr := m.ProcessInbound(ev2, "alice", scope.Default, false)
	require.Nil(t, rerr)
	assert.True(t, d.Save)
}

func TestCanSee_NoGroupIDAlwaysVisible(t *testing.T) {
	m := newManager()
	assert.True(t, m.CanSee(&nostr.Event{Kind: 1}, scope.Default, ""))
}

func TestCanSee_UnmanagedGroupAlwaysVisible(t *testing.T) {
	m := newManager()
	ev := &nostr.Event{Kind: 9, Tags: nostr.Tags{{"h", "ghost"}}}
	assert.True(t, m.CanSee(ev, scope.Default, ""))
}

func TestCanSee_PrivateGroupHidesFromUnauthed(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)
	g, _ := m.Registry(scope.Default).Get("g1")
	g.Metadata.Private = true

	ev := &nostr.Event{Kind: 9, Tags: nostr.Tags{{"h", "g1"}}}
	assert.False(t, m.CanSee(ev, scope.Default, ""))
}

func TestVerifyFilters_RejectsUnauthedPrivateGroupFilter(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)
	g, _ := m.Registry(scope.Default).Get("g1")
	g.Metadata.Private = true

	filters := []nostr.Filter{{Tags: nostr.TagMap{"h": {"g1"}}}}
	err := m.VerifyFilters(filters, "", scope.Default)
	require.NotNil(t, err)
	assert.Equal(t, relayerr.AuthRequired, err.Kind)
}

func TestVerifyFilters_MemberPassesPrivateGroupFilter(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)
	g, _ := m.Registry(scope.Default).Get("g1")
	g.Metadata.Private = true

	filters := []nostr.Filter{{Tags: nostr.TagMap{"h": {"g1"}}}}
	assert.Nil(t, m.VerifyFilters(filters, "alice", scope.Default))
	assert.Nil(t, m.VerifyFilters(filters, relayPubkey, scope.Default))
}

func TestVerifyFilters_AuthedNonMemberRestricted(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)
	g, _ := m.Registry(scope.Default).Get("g1")
	g.Metadata.Private = true

	filters := []nostr.Filter{{Tags: nostr.TagMap{"h": {"g1"}}}}
	err := m.VerifyFilters(filters, "mallory", scope.Default)
	require.NotNil(t, err)
	assert.Equal(t, relayerr.Restricted, err.Kind)
}

func TestVerifyFilters_UnmanagedGroupAlwaysPasses(t *testing.T) {
	m := newManager()
	filters := []nostr.Filter{{Tags: nostr.TagMap{"h": {"ghost"}}}}
	err := m.VerifyFilters(filters, "", scope.Default)
	assert.Nil(t, err)
}

func TestManager_RegistryIsScopeIsolated(t *testing.T) {
	m := newManager()
	_, rerr := m.ProcessInbound(createEvent("g1", "alice"), "alice", scope.Default, false)
	require.Nil(t, rerr)

	_, ok := m.Registry(scope.Named("oslo")).Get("g1")
	assert.False(t, ok, "group created in default scope must not leak into a named scope")
}
