package middleware

import (
	"github.com/keanuklestil/groups-relay/internal/verifier"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// EventVerifier runs every inbound EVENT's signature through the off-thread
// worker pool before anything else in the chain sees it. A bad signature
// never advances: it gets an immediate OK=false and the chain stops right
// here.
type EventVerifier struct {
	Base
	Verifier *verifier.Verifier
}

func (EventVerifier) Name() string { return "EventVerifier" }

func (m EventVerifier) ProcessInbound(ctx *Context) error {
	if ctx.Inbound.Kind != wire.EventMsg {
		return ctx.Next()
	}

	if err := m.Verifier.Verify(ctx.Ctx, ctx.Inbound.Event); err != nil {
		_ = ctx.SendMessage(&OutboundMsg{
			Kind:      OutOK,
			OKID:      ctx.Inbound.Event.ID,
			OKSuccess: false,
			OKMessage: "invalid: event signature verification failed",
		})
		return nil
	}

	return ctx.Next()
}
