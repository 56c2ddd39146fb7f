package middleware

import (
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/verifier"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// NIP70Protected gates inbound EVENTs carrying a "-" tag: only the
// authenticated author may publish their own protected events.
type NIP70Protected struct {
	Base
}

func (NIP70Protected) Name() string { return "NIP70Protected" }

func (m NIP70Protected) ProcessInbound(ctx *Context) error {
	if ctx.Inbound.Kind != wire.EventMsg {
		return ctx.Next()
	}

	event := ctx.Inbound.Event
	if err := verifier.CheckProtected(event, ctx.State.AuthedPubkey()); err != nil {
		return replyEventError(ctx, event.ID, err)
	}

	return ctx.Next()
}

// replyEventError sends the OK reply for an inbound EVENT rejected with
// err, prefixing a fresh AUTH challenge first when err demands one.
func replyEventError(ctx *Context, eventID string, err *relayerr.Error) error {
	if relayerr.NeedsFreshChallenge(err) {
		_ = ctx.SendMessage(&OutboundMsg{Kind: OutAuth, AuthChallenge: ctx.State.Challenge()})
	}
	ok, msg := relayerr.EventReply(err)
	return ctx.SendMessage(&OutboundMsg{Kind: OutOK, OKID: eventID, OKSuccess: ok, OKMessage: msg})
}
