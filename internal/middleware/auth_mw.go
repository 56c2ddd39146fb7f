package middleware

import (
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// NIP42Auth issues the connection's AUTH challenge on connect and handles
// the inbound AUTH message, delegating the validation rules to
// internal/session.State. AUTH is terminal for the chain — there's nothing
// downstream of it to authorize — so this middleware never calls ctx.Next()
// for an AUTH message.
type NIP42Auth struct {
	Base

	// Disabled suppresses the challenge on connect for relays that never
	// need authentication. Inbound AUTH messages are still validated, since
	// a client can't produce a matching challenge anyway.
	Disabled bool
}

func (NIP42Auth) Name() string { return "NIP42Auth" }

func (m NIP42Auth) OnConnect(ctx *Context) error {
	if m.Disabled {
		return nil
	}
	challenge := ctx.State.Challenge()
	return ctx.SendMessage(&OutboundMsg{Kind: OutAuth, AuthChallenge: challenge})
}

func (m NIP42Auth) ProcessInbound(ctx *Context) error {
	if ctx.Inbound.Kind != wire.AuthMsg {
		return ctx.Next()
	}

	event := ctx.Inbound.Event
	if err := ctx.State.ValidateAuth(event); err != nil {
		ok, msg := relayerr.EventReply(err)
		return ctx.SendMessage(&OutboundMsg{Kind: OutOK, OKID: event.ID, OKSuccess: ok, OKMessage: msg})
	}

	return ctx.SendMessage(&OutboundMsg{Kind: OutOK, OKID: event.ID, OKSuccess: true, OKMessage: ""})
}
