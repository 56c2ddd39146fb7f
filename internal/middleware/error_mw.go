package middleware

import (
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// ErrorHandling is the outermost middleware: it wraps every other
// middleware's inbound processing and maps whatever error bubbles back up
// into the right client reply. In practice most
// middlewares already reply inline (so they can prefix a fresh AUTH
// challenge before the OK/CLOSED); ErrorHandling is the backstop for
// anything that propagates an error instead. No inbound error ever escapes
// past this point to kill the connection — only a failed outbound send
// does, and that's left to propagate.
type ErrorHandling struct {
	Base
}

func (ErrorHandling) Name() string { return "ErrorHandling" }

func (ErrorHandling) ProcessInbound(ctx *Context) error {
	err := ctx.Next()
	if err == nil {
		return nil
	}

	relayErr := relayerr.As(err)
	switch ctx.Inbound.Kind {
	case wire.EventMsg:
		_ = replyEventError(ctx, ctx.Inbound.Event.ID, relayErr)
	case wire.ReqMsg, wire.CloseMsg:
		_ = replyClosedError(ctx, ctx.Inbound.SubscriptionID, relayErr)
	default:
		ctx.Log.Error().Err(err).Msg("unhandled inbound error")
	}
	return nil
}

func (ErrorHandling) ProcessOutbound(ctx *Context) error {
	err := ctx.Next()
	if err != nil {
		ctx.Log.Error().Err(err).Msg("outbound processing failed")
	}
	return err
}
