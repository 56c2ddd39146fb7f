package access

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// Decision is the outcome of routing one inbound EVENT through group
// authorization. The caller (the store/middleware glue) is responsible for
// turning it into store commands: Save/Delete/sign-and-save the derived
// events.
type Decision struct {
	// Save is true when event itself should be persisted as submitted.
	Save bool

	// DeleteFilters, when non-nil, must be turned into store.DeleteEvents
	// calls in the connection's scope (used by group delete).
	DeleteFilters []nostr.Filter

	// DeletedEventIDs, when non-nil, names specific event ids to remove
	// (used by per-event delete inside a group).
	DeletedEventIDs []string

	// RelayEvents are unsigned events the relay must sign and save alongside
	// the submitted one (the 9000 add-user record for an admitted join
	// request).
	RelayEvents []*nostr.Event

	// RegenerateDerived is true when the group's 39000-39003 events must be
	// rebuilt and re-signed by the relay and saved/broadcast.
	RegenerateDerived bool

	// Group is the group the event was routed to, if any.
	Group *groups.Group
}

// ProcessInbound classifies and authorizes an inbound EVENT publish.
//
//   - Non-group-allowed kinds (NIP-51/43/60/61 events that merely carry an
//     "h" tag) always save, bypassing group authorization entirely.
//   - Derived kinds (39000-39003) can never be published directly by a
//     client; the relay is their only author.
//   - Group-control kinds are routed into the scope's groups.Registry.
//   - Any other event carrying an "h" tag is treated as ordinary content
//     published into a group: the group must exist, and closed groups
//     require membership.
//   - Everything else (no group id at all) is an ordinary top-level Nostr
//     event, unaffected by groups.
func (m *Manager) ProcessInbound(event *nostr.Event, authedPubkey string, sc scope.Scope, unmanagedConflict bool) (*Decision, *relayerr.Error) {
	if IsNonGroupAllowed(event.Kind) {
		return &Decision{Save: true}, nil
	}

	if IsDerived(event.Kind) {
		return nil, relayerr.RestrictedErr("kind %d is relay-authored and cannot be published directly", event.Kind)
	}

	id, hasGroupID := nip1.GroupID(event)

	if IsGroupControl(event.Kind) {
		registry := m.Registry(sc)
		result, err := registry.Apply(event, authedPubkey, unmanagedConflict)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Save:              true,
			DeleteFilters:     result.DeleteFilters,
			DeletedEventIDs:   result.DeletedEventIDs,
			RelayEvents:       result.PutUserEvents,
			RegenerateDerived: result.RegenerateDerived,
			Group:             result.Group,
		}, nil
	}

	if !hasGroupID || id == "" {
		return &Decision{Save: true}, nil
	}

	registry := m.Registry(sc)
	g, ok := registry.Get(id)
	if !ok {
		return nil, relayerr.NoticeErr("group %s does not exist", id)
	}
	if accessErr := g.VerifyMemberAccess(event.PubKey, event.Kind); accessErr != nil {
		return nil, accessErr
	}
	return &Decision{Save: true, Group: g}, nil
}

// CanSee adapts a Manager into a subscription.CanSee closure: it looks up
// the event's group (if any) in sc and asks the group whether authedPubkey
// may observe it. Events with no group id, or referring to a group this
// scope has never seen, are always visible — group privacy only restricts
// events this relay actually knows belong to a private group.
func (m *Manager) CanSee(event *nostr.Event, sc scope.Scope, authedPubkey string) bool {
	id, ok := nip1.GroupID(event)
	if !ok || id == "" {
		return true
	}
	g, ok := m.Registry(sc).Get(id)
	if !ok {
		return true
	}
	visible, err := g.CanSeeEvent(authedPubkey, m.RelayPubkey(), event)
	if err != nil {
		return false
	}
	return visible
}

// VerifyFilters rejects a REQ outright when any filter names a private
// group (by "h" or "d" tag) this scope knows about and the connection is
// not an authenticated member (or the relay itself), instead of silently
// returning zero matching events. Unmanaged group ids pass freely.
func (m *Manager) VerifyFilters(filters []nostr.Filter, authedPubkey string, sc scope.Scope) *relayerr.Error {
	if authedPubkey == m.relayPubkey && authedPubkey != "" {
		return nil
	}
	registry := m.Registry(sc)
	for _, f := range filters {
		for _, tagName := range []string{"h", "d"} {
			values, ok := f.Tags[tagName]
			if !ok {
				continue
			}
			for _, id := range values {
				g, ok := registry.Get(id)
				if !ok || !g.Metadata.Private {
					continue
				}
				if authedPubkey == "" {
					return relayerr.AuthRequiredErr("group %s is private", id)
				}
				if !g.IsMember(authedPubkey) {
					return relayerr.RestrictedErr("not a member of private group %s", id)
				}
			}
		}
	}
	return nil
}
