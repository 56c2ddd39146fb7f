package middleware

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/verifier"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// Deleter is the narrow store surface NIP40Expiration needs to lazily clean
// up an expired event discovered on the outbound path.
type Deleter interface {
	DeleteEvents(ctx context.Context, filter nostr.Filter, sc scope.Scope) error
}

// NIP40Expiration enforces NIP-40 in both directions: an already-expired
// EVENT is rejected inbound; an expired event about to be delivered is
// dropped outbound and scheduled for deletion, with no retry if that delete
// fails.
type NIP40Expiration struct {
	Base
	Store Deleter
}

func (NIP40Expiration) Name() string { return "NIP40Expiration" }

func (m NIP40Expiration) ProcessInbound(ctx *Context) error {
	if ctx.Inbound.Kind != wire.EventMsg {
		return ctx.Next()
	}

	event := ctx.Inbound.Event
	if err := verifier.CheckInboundExpiration(event, time.Now()); err != nil {
		return replyEventError(ctx, event.ID, err)
	}

	return ctx.Next()
}

func (m NIP40Expiration) ProcessOutbound(ctx *Context) error {
	if ctx.Outbound == nil || ctx.Outbound.Kind != OutEvent {
		return ctx.Next()
	}

	event := ctx.Outbound.Event
	if verifier.IsExpired(event, time.Now()) {
		ctx.Outbound = nil
		if m.Store != nil {
			go func() {
				deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := m.Store.DeleteEvents(deleteCtx, nostr.Filter{IDs: []string{event.ID}}, ctx.Scope); err != nil {
					ctx.Log.Warn().Str("event_id", event.ID).Err(err).Msg("lazy delete of expired event failed")
				}
			}()
		}
	}

	return ctx.Next()
}
