package groups

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
)

// Registry is the concurrent group_id -> Group map. Runtime mutation and
// startup replay both go through Apply/LoadEvent, so the two paths can
// never drift: there is exactly one function per control kind that knows
// how to fold an event into a Group.
type Registry struct {
	mu          sync.RWMutex
	groups      map[string]*Group
	relayPubkey string
}

// NewRegistry returns an empty registry for relayPubkey.
func NewRegistry(relayPubkey string) *Registry {
	return &Registry{groups: make(map[string]*Group), relayPubkey: relayPubkey}
}

// Get returns the group for id, if one exists.
func (r *Registry) Get(id string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// All returns every known group, for startup diagnostics and tests.
func (r *Registry) All() []*Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyResult carries the side effects of a runtime Apply call that the
// caller (the access-control glue) must turn into store commands and
// outbound derived events.
type ApplyResult struct {
	Group           *Group
	DeleteFilters   []nostr.Filter
	DeletedEventIDs []string

	// PutUserEvents are unsigned 9000 add-user events the relay must sign
	// and save to record a join request that admitted its sender.
	PutUserEvents []*nostr.Event

	RegenerateDerived bool
}

// Apply folds a group-control event into the registry under full
// authorization checks, creating the group on a 9007 event if needed.
// unmanagedConflict should be true when the caller has observed
// non-group-control events already published under this id by someone other
// than the relay itself — that makes a 9007 on the id require the relay's
// own identity, per the relay-authored group-id uniqueness guard.
func (r *Registry) Apply(event *nostr.Event, authedPubkey string, unmanagedConflict bool) (*ApplyResult, *relayerr.Error) {
	id, ok := nip1.GroupID(event)
	if !ok || id == "" {
		return nil, relayerr.NoticeErr("event has no group id")
	}

	if event.Kind == KindCreate {
		return r.applyCreate(event, authedPubkey, id, unmanagedConflict)
	}

	r.mu.RLock()
	g, exists := r.groups[id]
	r.mu.RUnlock()
	if !exists {
		return nil, relayerr.NoticeErr("group %s does not exist", id)
	}

	var res *ApplyResult
	switch event.Kind {
	case KindDelete:
		filters, err := g.DeleteGroupRequest(event, r.relayPubkey, authedPubkey)
		if err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		r.mu.Lock()
		delete(r.groups, id)
		r.mu.Unlock()
		return &ApplyResult{Group: g, DeleteFilters: filters}, nil

	case KindDeleteEvent:
		ids, err := g.DeleteEventRequest(event, r.relayPubkey, authedPubkey)
		if err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, DeletedEventIDs: ids, RegenerateDerived: true}

	case KindAddUser:
		if err := g.AddMembersFromEvent(event, r.relayPubkey); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: true}

	case KindRemoveUser:
		if _, err := g.RemoveMembers(event, r.relayPubkey); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: true}

	case KindEditMetadata:
		if err := g.SetMetadata(event, r.relayPubkey); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: true}

	case KindSetRoles:
		if err := g.SetRoles(event, r.relayPubkey); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: true}

	case KindCreateInvite:
		if err := g.CreateInvite(event, r.relayPubkey); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g}

	case KindJoinRequest:
		joined, err := g.JoinRequest(event)
		if err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: joined}
		if joined {
			res.PutUserEvents = []*nostr.Event{g.GeneratePutUserEvent(r.relayPubkey, event.PubKey)}
		}

	case KindLeaveRequest:
		if _, err := g.LeaveRequest(event); err != nil {
			return nil, relayerr.NoticeErr("%s", err.Error())
		}
		res = &ApplyResult{Group: g, RegenerateDerived: true}

	default:
		return nil, relayerr.NoticeErr("kind %d is not a group control event", event.Kind)
	}

	g.updateTimestamps(event)
	return res, nil
}

func (r *Registry) applyCreate(event *nostr.Event, authedPubkey, id string, unmanagedConflict bool) (*ApplyResult, *relayerr.Error) {
	if unmanagedConflict && authedPubkey != r.relayPubkey {
		return nil, relayerr.RestrictedErr("group id %s already has unmanaged events", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.groups[id]; exists {
		return nil, relayerr.NoticeErr("group %s already exists", id)
	}

	g, err := New(event)
	if err != nil {
		return nil, relayerr.NoticeErr("%s", err.Error())
	}
	r.groups[id] = g
	return &ApplyResult{Group: g, RegenerateDerived: true}, nil
}

// LoadEvent folds event into the registry during startup replay. It
// delegates to the exact same per-kind Apply path runtime mutation uses, so
// the two can never compute different state for the same event stream; the
// replayed events were already accepted once, so the fold runs under the
// relay's own identity and replay reproduces each event's original
// authorization context as it goes. Events must be replayed in ascending
// created_at order. Delete-group requests for groups the registry never saw
// (their history was wiped when the delete was first applied) are a no-op.
func (r *Registry) LoadEvent(event *nostr.Event) error {
	id, ok := nip1.GroupID(event)
	if !ok || id == "" {
		return nil
	}

	if event.Kind == KindDelete {
		if _, exists := r.Get(id); !exists {
			return nil
		}
	}

	if _, rerr := r.Apply(event, r.relayPubkey, false); rerr != nil {
		return rerr
	}
	return nil
}

// Checksum returns a stable digest of a group's members, admins, invites,
// and roles, for test-time divergence detection between the runtime and
// replay code paths — it is never sent over the wire.
func (g *Group) Checksum() string {
	defer g.lock()()

	type memberDump struct {
		Pubkey string   `json:"pubkey"`
		Roles  []string `json:"roles"`
	}
	var members []memberDump
	for pk, m := range g.Members {
		var roles []string
		for r := range m.Roles {
			roles = append(roles, string(r))
		}
		sort.Strings(roles)
		members = append(members, memberDump{Pubkey: pk, Roles: roles})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Pubkey < members[j].Pubkey })

	var joinReqs []string
	for pk := range g.JoinReqs {
		joinReqs = append(joinReqs, pk)
	}
	sort.Strings(joinReqs)

	type inviteDump struct {
		Code  string   `json:"code"`
		Roles []string `json:"roles"`
	}
	var invites []inviteDump
	for code, inv := range g.Invites {
		var roles []string
		for r := range inv.Roles {
			roles = append(roles, string(r))
		}
		sort.Strings(roles)
		invites = append(invites, inviteDump{Code: code, Roles: roles})
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].Code < invites[j].Code })

	blob, _ := json.Marshal(struct {
		ID       string       `json:"id"`
		Metadata Metadata     `json:"metadata"`
		Members  []memberDump `json:"members"`
		JoinReqs []string     `json:"join_requests"`
		Invites  []inviteDump `json:"invites"`
	}{g.ID, g.Metadata, members, joinReqs, invites})

	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
