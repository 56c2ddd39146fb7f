package groups

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
)

// Group is one NIP-29 group's live state. All mutation happens under mu so
// a group has exactly one writer at a time regardless of how many
// connections are touching it concurrently.
type Group struct {
	mu sync.Mutex

	ID        string
	Metadata  Metadata
	Members   map[string]Member
	Invites   map[string]Invite // code -> invite
	JoinReqs  map[string]bool   // pubkey -> pending
	Roles     map[Role]bool     // union of every member's roles
	CreatedAt nostr.Timestamp
	UpdatedAt nostr.Timestamp
}

// NewWithID returns an empty group, used both for brand-new groups and as
// the seed state during startup replay.
func NewWithID(id string) *Group {
	return &Group{
		ID:       id,
		Members:  make(map[string]Member),
		Invites:  make(map[string]Invite),
		JoinReqs: make(map[string]bool),
		Roles:    make(map[Role]bool),
	}
}

// New builds a group from its creation event (kind 9007), with the creator
// installed as the group's sole admin.
func New(event *nostr.Event) (*Group, error) {
	if event.Kind != KindCreate {
		return nil, fmt.Errorf("invalid event kind %d for group creation", event.Kind)
	}
	id, ok := nip1.HTag(event.Tags)
	if !ok || id == "" {
		return nil, fmt.Errorf("group id not found")
	}

	g := NewWithID(id)
	g.Members[event.PubKey] = Member{Pubkey: event.PubKey, Roles: map[Role]bool{RoleAdmin: true}}
	g.updateRoles()
	g.CreatedAt = event.CreatedAt
	g.UpdatedAt = event.CreatedAt
	return g, nil
}

func (g *Group) lock() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// IsAdmin reports whether pubkey holds the admin role.
func (g *Group) IsAdmin(pubkey string) bool {
	defer g.lock()()
	m, ok := g.Members[pubkey]
	return ok && m.Has(RoleAdmin)
}

// IsMember reports whether pubkey is a group member.
func (g *Group) IsMember(pubkey string) bool {
	defer g.lock()()
	_, ok := g.Members[pubkey]
	return ok
}

// AdminPubkeys returns every admin's pubkey.
func (g *Group) AdminPubkeys() []string {
	defer g.lock()()
	var out []string
	for pk, m := range g.Members {
		if m.Has(RoleAdmin) {
			out = append(out, pk)
		}
	}
	sort.Strings(out)
	return out
}

// DeleteGroupRequest validates a kind-9008 delete-group request and returns
// the two filters (by h-tag and by d-tag) needed to wipe every event the
// group ever published; the caller is responsible for turning these into
// store.DeleteEvents commands in the connection's scope, alongside saving
// the request event itself.
func (g *Group) DeleteGroupRequest(event *nostr.Event, relayPubkey string, authedPubkey string) ([]nostr.Filter, error) {
	if event.Kind != KindDelete {
		return nil, fmt.Errorf("invalid event kind %d for delete group", event.Kind)
	}
	ok, err := g.CanDeleteEvent(authedPubkey, relayPubkey, event)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user is not authorized to delete this group")
	}

	return []nostr.Filter{
		{Tags: nostr.TagMap{"h": {g.ID}}},
		{Tags: nostr.TagMap{"d": {g.ID}}},
	}, nil
}

// DeleteEventRequest validates a kind-9005 delete-event request, removes any
// invites whose originating event is being deleted, and returns the ids to
// delete; the caller turns these into a store.DeleteEvents(ids-filter) call.
func (g *Group) DeleteEventRequest(event *nostr.Event, relayPubkey string, authedPubkey string) ([]string, error) {
	if event.Kind != KindDeleteEvent {
		return nil, fmt.Errorf("invalid event kind %d for delete event", event.Kind)
	}

	var ids []string
	for _, t := range event.Tags {
		if len(t) >= 2 && t[0] == "e" {
			ids = append(ids, t[1])
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no event ids found in delete request")
	}

	ok, err := g.CanDeleteEvent(authedPubkey, relayPubkey, event)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user is not authorized to delete this event")
	}

	defer g.lock()()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for code, invite := range g.Invites {
		if idSet[invite.EventID] {
			delete(g.Invites, code)
		}
	}

	return ids, nil
}

// AddMembersFromEvent applies a kind-9000 add-user event.
func (g *Group) AddMembersFromEvent(event *nostr.Event, relayPubkey string) error {
	if !g.CanEditMembers(event.PubKey, relayPubkey) {
		return fmt.Errorf("user is not authorized to add users to this group")
	}

	members := memberTagsToMembers(event.Tags)
	defer g.lock()()
	g.addMembersLocked(members)
	return nil
}

func (g *Group) addMembersLocked(members []Member) {
	for _, m := range members {
		delete(g.JoinReqs, m.Pubkey)
		g.Members[m.Pubkey] = m
	}
	g.updateRolesLocked()
}

// AddPubkey adds pubkey as a plain member, bypassing authorization — used
// internally when a join request auto-approves.
func (g *Group) AddPubkey(pubkey string) {
	defer g.lock()()
	g.addMembersLocked([]Member{{Pubkey: pubkey, Roles: map[Role]bool{RoleMember: true}}})
}

// RemoveMembers applies a kind-9001 remove-user event, rejecting any
// attempt to remove the group's last admin.
func (g *Group) RemoveMembers(event *nostr.Event, relayPubkey string) (removedAdmin bool, err error) {
	if !g.CanEditMembers(event.PubKey, relayPubkey) {
		return false, fmt.Errorf("user is not authorized to remove users from this group")
	}

	admins := g.AdminPubkeys()
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[a] = true
	}

	removePubkeys := nip1.PTagValues(event.Tags)
	for _, pubkey := range removePubkeys {
		if len(admins) == 1 && adminSet[pubkey] {
			return false, fmt.Errorf("cannot remove last admin")
		}
	}

	defer g.lock()()
	for _, pubkey := range removePubkeys {
		if m, ok := g.Members[pubkey]; ok {
			delete(g.Members, pubkey)
			delete(g.JoinReqs, pubkey)
			if m.Has(RoleAdmin) {
				removedAdmin = true
			}
		}
	}
	g.updateRolesLocked()
	return removedAdmin, nil
}

// SetMetadata applies a kind-9002 edit-metadata event.
func (g *Group) SetMetadata(event *nostr.Event, relayPubkey string) error {
	if !g.CanEditMetadata(event.PubKey, relayPubkey) {
		return fmt.Errorf("user cannot edit metadata")
	}

	defer g.lock()()
	for _, t := range event.Tags {
		if len(t) < 1 {
			continue
		}
		switch t[0] {
		case "name":
			if len(t) >= 2 {
				g.Metadata.Name = t[1]
			}
		case "about":
			if len(t) >= 2 {
				g.Metadata.About = t[1]
			}
		case "picture":
			if len(t) >= 2 {
				g.Metadata.Picture = t[1]
			}
		case "public":
			g.Metadata.Private = false
		case "private":
			g.Metadata.Private = true
		case "open":
			g.Metadata.Closed = false
		case "closed":
			g.Metadata.Closed = true
		}
	}
	return nil
}

// SetRoles applies a kind-9006 set-roles event, rejecting any change that
// would leave the group's last admin without the admin role.
func (g *Group) SetRoles(event *nostr.Event, relayPubkey string) error {
	if !g.CanEditMembers(event.PubKey, relayPubkey) {
		return fmt.Errorf("user is not authorized to set roles")
	}

	members := memberTagsToMembers(event.Tags)
	admins := g.AdminPubkeys()
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[a] = true
	}

	for _, m := range members {
		if len(admins) == 1 && adminSet[m.Pubkey] && !m.Has(RoleAdmin) {
			return fmt.Errorf("cannot unset last admin role")
		}
	}

	defer g.lock()()
	for _, m := range members {
		if existing, ok := g.Members[m.Pubkey]; ok {
			existing.Roles = m.Roles
			g.Members[m.Pubkey] = existing
		}
	}
	g.updateRolesLocked()
	return nil
}

// JoinRequest applies a kind-9021 join request, returning whether the
// requester became a member immediately.
func (g *Group) JoinRequest(event *nostr.Event) (bool, error) {
	if event.Kind != KindJoinRequest {
		return false, fmt.Errorf("invalid event kind %d for join request", event.Kind)
	}

	defer g.lock()()
	if _, ok := g.Members[event.PubKey]; ok {
		return false, nil
	}

	if !g.Metadata.Closed {
		g.Members[event.PubKey] = Member{Pubkey: event.PubKey, Roles: map[Role]bool{RoleMember: true}}
		delete(g.JoinReqs, event.PubKey)
		g.updateRolesLocked()
		return true, nil
	}

	code, _ := nip1.FirstTagValue(event.Tags, "code")
	invite, ok := g.Invites[code]
	if !ok {
		g.JoinReqs[event.PubKey] = true
		return false, nil
	}

	g.Members[event.PubKey] = Member{Pubkey: event.PubKey, Roles: invite.Roles}
	delete(g.JoinReqs, event.PubKey)
	g.updateRolesLocked()
	return true, nil
}

// CreateInvite applies a kind-9009 create-invite event.
func (g *Group) CreateInvite(event *nostr.Event, relayPubkey string) error {
	if event.Kind != KindCreateInvite {
		return fmt.Errorf("invalid event kind %d for create invite", event.Kind)
	}
	if !g.CanCreateInvites(event.PubKey, relayPubkey) {
		return fmt.Errorf("user is not authorized to create invites")
	}

	code, ok := nip1.FirstTagValue(event.Tags, "code")
	if !ok || code == "" {
		return fmt.Errorf("invite code not found in tag")
	}

	defer g.lock()()
	if _, exists := g.Invites[code]; exists {
		return fmt.Errorf("invite code already exists")
	}
	g.Invites[code] = Invite{EventID: event.ID, Roles: map[Role]bool{RoleMember: true}}
	return nil
}

// LeaveRequest applies a kind-9022 leave request.
func (g *Group) LeaveRequest(event *nostr.Event) (bool, error) {
	if event.Kind != KindLeaveRequest {
		return false, fmt.Errorf("invalid event kind %d for leave request", event.Kind)
	}

	defer g.lock()()
	delete(g.JoinReqs, event.PubKey)
	_, removed := g.Members[event.PubKey]
	delete(g.Members, event.PubKey)
	return removed, nil
}

// VerifyMemberAccess rejects non-members from interacting with a closed
// group, except to submit a join request.
func (g *Group) VerifyMemberAccess(pubkey string, eventKind int) *relayerr.Error {
	defer g.lock()()
	if eventKind != KindJoinRequest && g.Metadata.Closed && !g.hasMemberLocked(pubkey) {
		return relayerr.RestrictedErr("user %s is not a member of this group", pubkey)
	}
	return nil
}

func (g *Group) hasMemberLocked(pubkey string) bool {
	_, ok := g.Members[pubkey]
	return ok
}

func (g *Group) updateRoles() {
	defer g.lock()()
	g.updateRolesLocked()
}

func (g *Group) updateRolesLocked() {
	roles := make(map[Role]bool)
	for _, m := range g.Members {
		for r := range m.Roles {
			roles[r] = true
		}
	}
	g.Roles = roles
}

func (g *Group) updateTimestamps(event *nostr.Event) {
	defer g.lock()()
	if event.Kind == KindCreate {
		g.CreatedAt = event.CreatedAt
	}
	if event.CreatedAt > g.UpdatedAt {
		g.UpdatedAt = event.CreatedAt
	}
}

func memberTagsToMembers(tags nostr.Tags) []Member {
	var out []Member
	for _, t := range tags {
		if len(t) < 2 || t[0] != "p" {
			continue
		}
		roles := make(map[Role]bool)
		for _, r := range t[2:] {
			roles[ParseRole(r)] = true
		}
		if len(roles) == 0 {
			roles[RoleMember] = true
		}
		out = append(out, Member{Pubkey: t[1], Roles: roles})
	}
	return out
}
