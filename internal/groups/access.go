package groups

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/relayerr"
)

// CanEditMembers reports whether pubkey may add/remove members or change
// roles: the relay itself, or any admin.
func (g *Group) CanEditMembers(pubkey, relayPubkey string) bool {
	if pubkey == relayPubkey {
		return true
	}
	return g.IsAdmin(pubkey)
}

// CanEditMetadata reports whether pubkey may edit group metadata.
func (g *Group) CanEditMetadata(pubkey, relayPubkey string) bool {
	if g.IsAdmin(pubkey) {
		return true
	}
	return pubkey == relayPubkey
}

// CanCreateInvites reports whether pubkey may create invite codes.
func (g *Group) CanCreateInvites(pubkey, relayPubkey string) bool {
	if g.IsAdmin(pubkey) {
		return true
	}
	return pubkey == relayPubkey
}

// CanDeleteGroup reports whether authedPubkey may delete the group,
// delegating to the same rule as deleting any single event.
func (g *Group) CanDeleteGroup(authedPubkey, relayPubkey string, event *nostr.Event) (bool, *relayerr.Error) {
	return g.CanDeleteEvent(authedPubkey, relayPubkey, event)
}

// CanDeleteEvent reports whether authedPubkey may delete event: the relay,
// or any admin. Requires authentication.
func (g *Group) CanDeleteEvent(authedPubkey, relayPubkey string, event *nostr.Event) (bool, *relayerr.Error) {
	if authedPubkey == "" {
		return false, relayerr.AuthRequiredErr("user is not authenticated")
	}
	if authedPubkey == relayPubkey {
		return true, nil
	}
	return g.IsAdmin(authedPubkey), nil
}

// CanSeeEvent reports whether authedPubkey may observe event: public groups
// are visible to everyone; private groups require authentication, and then
// allow the relay, the event's own author, any admin, or any member viewing
// anything but another member's invites.
func (g *Group) CanSeeEvent(authedPubkey, relayPubkey string, event *nostr.Event) (bool, *relayerr.Error) {
	if !g.Metadata.Private {
		return true, nil
	}
	if authedPubkey == "" {
		return false, relayerr.AuthRequiredErr("user is not authenticated")
	}
	if authedPubkey == relayPubkey {
		return true, nil
	}
	if authedPubkey == event.PubKey {
		return true, nil
	}
	if g.IsAdmin(authedPubkey) {
		return true, nil
	}
	if g.IsMember(authedPubkey) && event.Kind != KindCreateInvite {
		return true, nil
	}
	return false, nil
}
