package middleware

import "github.com/keanuklestil/groups-relay/internal/wire"

// Logger is the outermost-but-one middleware (just inside ErrorHandling): it
// logs every inbound message kind and every outbound message that survives
// to delivery, keyed by connection, scope, event, and subscription.
type Logger struct {
	Base
}

func (Logger) Name() string { return "Logger" }

func (l Logger) ProcessInbound(ctx *Context) error {
	ev := ctx.Log.Info().Str("connection_id", ctx.ConnectionID).Str("scope", ctx.Scope.String())
	switch ctx.Inbound.Kind {
	case wire.EventMsg:
		ev.Str("event_id", ctx.Inbound.Event.ID).
			Str("pubkey", ctx.Inbound.Event.PubKey).
			Int("kind", ctx.Inbound.Event.Kind).
			Msg("inbound EVENT")
	case wire.ReqMsg:
		ev.Str("subscription_id", ctx.Inbound.SubscriptionID).Msg("inbound REQ")
	case wire.CloseMsg:
		ev.Str("subscription_id", ctx.Inbound.SubscriptionID).Msg("inbound CLOSE")
	case wire.AuthMsg:
		ev.Msg("inbound AUTH")
	default:
		ev.Msg("inbound message")
	}
	return ctx.Next()
}

func (l Logger) ProcessOutbound(ctx *Context) error {
	err := ctx.Next()
	if ctx.Outbound == nil {
		return err
	}
	ctx.Log.Debug().
		Str("connection_id", ctx.ConnectionID).
		Str("scope", ctx.Scope.String()).
		Int("outbound_kind", int(ctx.Outbound.Kind)).
		Msg("outbound message")
	return err
}
