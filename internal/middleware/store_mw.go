package middleware

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/access"
	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/store"
	"github.com/keanuklestil/groups-relay/internal/subscription"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// EventStore is the innermost link in the standard chain: it turns an
// authorized EVENT into store commands and an OK reply, and a REQ into a
// subscription.HandleREQ replay. There is nothing beneath it, so it never
// calls ctx.Next() on the inbound path for EVENT/REQ/CLOSE.
type EventStore struct {
	Base
	Facade     *store.EventStore
	Buffer     *store.ReplaceableBuffer
	Manager    *access.Manager
	QueryLimit int
	Chain      *Chain // used to re-enter the outbound path for REQ replay
}

func (EventStore) Name() string { return "EventStore" }

func (m EventStore) ProcessInbound(ctx *Context) error {
	switch ctx.Inbound.Kind {
	case wire.EventMsg:
		return m.processEvent(ctx)
	case wire.ReqMsg:
		return m.processReq(ctx)
	case wire.CloseMsg:
		ctx.Subs.Remove(ctx.Inbound.SubscriptionID)
		return nil
	default:
		return ctx.Next()
	}
}

func (m EventStore) processEvent(ctx *Context) error {
	event := ctx.Inbound.Event

	decision := ctx.GroupDecision
	if decision == nil {
		decision = &access.Decision{Save: true}
	}

	for _, f := range decision.DeleteFilters {
		if err := m.Facade.DeleteEvents(ctx.Ctx, f, ctx.Scope); err != nil {
			ctx.Log.Warn().Str("event_id", event.ID).Err(err).Msg("group delete-filter failed")
		}
	}
	if len(decision.DeletedEventIDs) > 0 {
		filter := nostr.Filter{IDs: decision.DeletedEventIDs}
		if err := m.Facade.DeleteEvents(ctx.Ctx, filter, ctx.Scope); err != nil {
			ctx.Log.Warn().Str("event_id", event.ID).Err(err).Msg("group delete-by-id failed")
		}
	}

	if decision.Save {
		if nip1.IsEphemeral(event.Kind) {
			m.Facade.BroadcastEphemeral(event, ctx.Scope)
		} else if err := m.Facade.SaveSignedEvent(ctx.Ctx, event, ctx.Scope); err != nil {
			return replyEventError(ctx, event.ID, relayerr.NoticeErr("%s", err.Error()))
		}
	}

	for _, relayEvent := range decision.RelayEvents {
		if err := m.Facade.SaveUnsignedEvent(ctx.Ctx, relayEvent, ctx.Scope); err != nil {
			ctx.Log.Warn().Str("event_id", event.ID).Err(err).Msg("save relay-authored event failed")
		}
	}

	if decision.RegenerateDerived && decision.Group != nil && m.Buffer != nil {
		for _, derived := range decision.Group.DerivedEvents(m.Manager.RelayPubkey()) {
			if err := m.Buffer.Offer(derived, ctx.Scope); err != nil {
				ctx.Log.Warn().Str("group_id", decision.Group.ID).Err(err).Msg("offer derived event to buffer failed")
			}
		}
	}

	return ctx.SendMessage(&OutboundMsg{Kind: OutOK, OKID: event.ID, OKSuccess: true, OKMessage: ""})
}

func (m EventStore) processReq(ctx *Context) error {
	sender := &replaySender{ctx: ctx, chain: m.Chain}
	err := subscription.HandleREQ(
		ctx.Ctx, ctx.Subs, m.Facade, sender,
		ctx.Inbound.SubscriptionID, ctx.Inbound.Filters, ctx.State.AuthedPubkey(), ctx.Scope,
		m.Manager.CanSee, m.QueryLimit, ctx.Log,
	)
	if err != nil {
		return replyClosedError(ctx, ctx.Inbound.SubscriptionID, relayerr.InternalErr("%s", err.Error()))
	}
	return nil
}

// replaySender adapts the outbound middleware chain into a
// subscription.Sender, so REQ replay events pass through the same NIP-40
// expiration drop/lazy-delete and logging as broadcast-matched events.
type replaySender struct {
	ctx   *Context
	chain *Chain
}

func (s *replaySender) SendEvent(subscriptionID string, event *nostr.Event) error {
	return sendOutbound(s.ctx, s.chain, &OutboundMsg{Kind: OutEvent, SubscriptionID: subscriptionID, Event: event})
}

func (s *replaySender) SendEOSE(subscriptionID string) error {
	return sendOutbound(s.ctx, s.chain, &OutboundMsg{Kind: OutEOSE, SubscriptionID: subscriptionID})
}
