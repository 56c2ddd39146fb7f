package middleware

import "github.com/keanuklestil/groups-relay/internal/relayerr"

// sendOutbound runs msg through the outbound chain starting from the
// innermost link and, if it survives, encodes and sends it over the
// transport. Used by replaySender so REQ replay gets the same outbound
// filtering (NIP-40 expiration drop, logging) as broadcast-matched events.
func sendOutbound(ctx *Context, chain *Chain, msg *OutboundMsg) error {
	result, err := chain.DispatchOutbound(ctx.Ctx, ctx.ConnectionID, ctx.State, ctx.Scope, ctx.Subs, ctx.sender, ctx.Log, msg)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	payload, encErr := result.Encode()
	if encErr != nil {
		return encErr
	}
	return ctx.sender.Send(ctx.Ctx, payload)
}

// replyClosedError sends the CLOSED reply for a REQ/CLOSE rejected with
// err, prefixing a fresh AUTH challenge first when err demands one.
func replyClosedError(ctx *Context, subscriptionID string, err *relayerr.Error) error {
	if relayerr.NeedsFreshChallenge(err) {
		_ = ctx.SendMessage(&OutboundMsg{Kind: OutAuth, AuthChallenge: ctx.State.Challenge()})
	}
	return ctx.SendMessage(&OutboundMsg{
		Kind:           OutClosed,
		SubscriptionID: subscriptionID,
		ClosedReason:   relayerr.ClosedReason(err),
	})
}
