package middleware

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/access"
	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// UnmanagedChecker is the narrow store surface Groups needs to detect a
// group id already carrying events without a 9007 on record; creating a
// group over such an id is reserved to the relay's own identity.
type UnmanagedChecker interface {
	Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error)
}

// Groups is the group access-control processor: it classifies and authorizes
// every inbound EVENT against internal/access, and rejects REQ filters that
// reach into a private group without authentication.
type Groups struct {
	Base
	Manager *access.Manager
	Store   UnmanagedChecker
}

func (Groups) Name() string { return "Groups" }

func (m Groups) ProcessInbound(ctx *Context) error {
	switch ctx.Inbound.Kind {
	case wire.EventMsg:
		return m.processEvent(ctx)
	case wire.ReqMsg:
		return m.processReq(ctx)
	default:
		return ctx.Next()
	}
}

func (m Groups) processEvent(ctx *Context) error {
	event := ctx.Inbound.Event

	unmanagedConflict := false
	if event.Kind == groups.KindCreate && m.Store != nil {
		if id, ok := nip1.HTag(event.Tags); ok && id != "" {
			existing, err := m.Store.Query(ctx.Scope, []nostr.Filter{{Tags: nostr.TagMap{"h": {id}}}})
			if err == nil && len(existing) > 0 {
				unmanagedConflict = true
			}
		}
	}

	decision, relayErr := m.Manager.ProcessInbound(event, ctx.State.AuthedPubkey(), ctx.Scope, unmanagedConflict)
	if relayErr != nil {
		return replyEventError(ctx, event.ID, relayErr)
	}

	ctx.GroupDecision = decision
	return ctx.Next()
}

func (m Groups) processReq(ctx *Context) error {
	if err := m.Manager.VerifyFilters(ctx.Inbound.Filters, ctx.State.AuthedPubkey(), ctx.Scope); err != nil {
		return replyClosedError(ctx, ctx.Inbound.SubscriptionID, err)
	}
	return ctx.Next()
}
