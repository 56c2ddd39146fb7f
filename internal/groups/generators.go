package groups

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"
)

// roleCatalog is the fixed set of roles this relay recognizes, in display
// order, used to build the 39003 roles event.
var roleCatalog = []struct {
	role        Role
	description string
}{
	{RoleAdmin, "Can perform administrative actions"},
	{RoleMember, "Can read and write to the group"},
}

// GeneratePutUserEvent builds the unsigned 9000 add-user event that records
// a join request's newly-admitted member.
func (g *Group) GeneratePutUserEvent(relayPubkey, memberPubkey string) *nostr.Event {
	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindAddUser,
		Tags: nostr.Tags{
			{"p", memberPubkey, string(RoleMember)},
			{"h", g.ID},
		},
		Content: "",
	}
}

// GenerateMetadataEvent builds the unsigned 39000 event describing the
// group's current metadata.
func (g *Group) GenerateMetadataEvent(relayPubkey string) *nostr.Event {
	defer g.lock()()

	access := "public"
	if g.Metadata.Private {
		access = "private"
	}
	visibility := "open"
	if g.Metadata.Closed {
		visibility = "closed"
	}

	tags := nostr.Tags{
		{"d", g.ID},
		{"name", g.Metadata.Name},
		{access},
		{visibility},
	}
	if g.Metadata.About != "" {
		tags = append(tags, nostr.Tag{"about", g.Metadata.About})
	}
	if g.Metadata.Picture != "" {
		tags = append(tags, nostr.Tag{"picture", g.Metadata.Picture})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindMetadata,
		Tags:      tags,
		Content:   "",
	}
}

// GenerateAdminsEvent builds the unsigned 39001 event listing every admin
// and their roles.
func (g *Group) GenerateAdminsEvent(relayPubkey string) *nostr.Event {
	defer g.lock()()

	tags := nostr.Tags{{"d", g.ID}}
	var admins []string
	for pk, m := range g.Members {
		if m.Has(RoleAdmin) {
			admins = append(admins, pk)
		}
	}
	sort.Strings(admins)
	for _, pk := range admins {
		tag := nostr.Tag{"p", pk}
		for r := range g.Members[pk].Roles {
			tag = append(tag, string(r))
		}
		tags = append(tags, tag)
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindAdmins,
		Tags:      tags,
		Content:   "",
	}
}

// GenerateMembersEvent builds the unsigned 39002 event listing every
// member's pubkey.
func (g *Group) GenerateMembersEvent(relayPubkey string) *nostr.Event {
	defer g.lock()()

	tags := nostr.Tags{{"d", g.ID}}
	var members []string
	for pk := range g.Members {
		members = append(members, pk)
	}
	sort.Strings(members)
	for _, pk := range members {
		tags = append(tags, nostr.Tag{"p", pk})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindMembers,
		Tags:      tags,
		Content:   "",
	}
}

// GenerateRolesEvent builds the unsigned 39003 event listing every role
// this relay supports.
func (g *Group) GenerateRolesEvent(relayPubkey string) *nostr.Event {
	tags := nostr.Tags{{"d", g.ID}}
	for _, r := range roleCatalog {
		tags = append(tags, nostr.Tag{"role", string(r.role), r.description})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindRoles,
		Tags:      tags,
		Content:   "List of roles supported by this group",
	}
}

// DerivedEvents returns the full set of 39000-39003 events for the group's
// current state, ready to be signed and saved.
func (g *Group) DerivedEvents(relayPubkey string) []*nostr.Event {
	return []*nostr.Event{
		g.GenerateMetadataEvent(relayPubkey),
		g.GenerateAdminsEvent(relayPubkey),
		g.GenerateMembersEvent(relayPubkey),
		g.GenerateRolesEvent(relayPubkey),
	}
}
