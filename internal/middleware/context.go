// Package middleware implements the relay's processing pipeline: an
// ordered, composable chain of inbound/outbound processors sharing one
// per-connection context, plus the standard relay chain built from it.
package middleware

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/access"
	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/session"
	"github.com/keanuklestil/groups-relay/internal/subscription"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// Direction is which way a Context is currently traveling through the chain.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// OutboundKind classifies a pre-wire outbound message produced by a
// middleware, before it is rendered to JSON by Sender.
type OutboundKind int

const (
	OutEvent OutboundKind = iota
	OutEOSE
	OutOK
	OutClosed
	OutNotice
	OutAuth
)

// OutboundMsg is an outbound relay message before wire encoding.
type OutboundMsg struct {
	Kind OutboundKind

	SubscriptionID string
	Event          *nostr.Event

	OKID      string
	OKSuccess bool
	OKMessage string

	ClosedReason string
	NoticeText   string

	AuthChallenge string
}

// Encode renders m as a NIP-01 JSON array frame.
func (m *OutboundMsg) Encode() ([]byte, error) {
	switch m.Kind {
	case OutEvent:
		return wire.EncodeEvent(m.SubscriptionID, m.Event)
	case OutEOSE:
		return wire.EncodeEOSE(m.SubscriptionID)
	case OutOK:
		return wire.EncodeOK(m.OKID, m.OKSuccess, m.OKMessage)
	case OutClosed:
		return wire.EncodeClosed(m.SubscriptionID, m.ClosedReason)
	case OutNotice:
		return wire.EncodeNotice(m.NoticeText)
	case OutAuth:
		return wire.EncodeAuthChallenge(m.AuthChallenge)
	default:
		return nil, fmt.Errorf("unknown outbound message kind %d", m.Kind)
	}
}

// Sender delivers an already-encoded frame to the connection's writer over
// its bounded outbound channel; a send failure means the connection is
// dying.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Context is threaded through one message's trip down (inbound) or up
// (outbound) the chain: the connection id, the message, the mutable
// connection state, the ordered middleware list, an index into it, and the
// bounded outbound sender.
type Context struct {
	Ctx          context.Context
	ConnectionID string

	// State is this connection's NIP-42 session (challenge/authed pubkey).
	State *session.State

	// Scope is this connection's resolved storage scope.
	Scope scope.Scope

	// Subs is this connection's own subscription registry; middlewares
	// close over the store/broadcast separately (see EventStore).
	Subs *subscription.Registry

	Log zerolog.Logger

	// Inbound is set while traveling the inbound direction.
	Inbound *wire.Inbound

	// Outbound is set while traveling the outbound direction. A middleware
	// may set it to nil to drop the message from delivery.
	Outbound *OutboundMsg

	// GroupDecision is set by Groups for an inbound EVENT and read by
	// EventStore to know what to persist/delete/regenerate.
	GroupDecision *access.Decision

	chain []Middleware
	index int
	dir   Direction

	sender Sender
}

// Next invokes the next middleware in the chain for the current direction.
// Reaching either end of the chain is a no-op success.
func (c *Context) Next() error {
	switch c.dir {
	case Inbound:
		c.index++
		if c.index >= len(c.chain) {
			return nil
		}
		return c.chain[c.index].ProcessInbound(c)
	default:
		c.index--
		if c.index < 0 {
			return nil
		}
		return c.chain[c.index].ProcessOutbound(c)
	}
}

// SendMessage encodes and enqueues m immediately, independent of how far
// the current dispatch has progressed through the chain.
func (c *Context) SendMessage(m *OutboundMsg) error {
	payload, err := m.Encode()
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}
	return c.sender.Send(c.Ctx, payload)
}

// Middleware is one link in the chain. Every hook receives the shared
// Context; ProcessInbound/ProcessOutbound call ctx.Next() to continue the
// chain, or return without calling it to stop (typically after replying to
// the client with an error).
type Middleware interface {
	Name() string
	ProcessInbound(ctx *Context) error
	ProcessOutbound(ctx *Context) error
	OnConnect(ctx *Context) error
	OnDisconnect(ctx *Context) error
}

// Base gives a concrete middleware no-op defaults for every hook; embed it
// and override only the hooks that matter, matching the pass-through default
// every middleware needs for the three hooks it doesn't care about.
type Base struct{}

func (Base) ProcessInbound(ctx *Context) error  { return ctx.Next() }
func (Base) ProcessOutbound(ctx *Context) error { return ctx.Next() }
func (Base) OnConnect(ctx *Context) error       { return nil }
func (Base) OnDisconnect(ctx *Context) error    { return nil }

// Chain is the ordered, shared middleware list for one connection. The same
// *Chain is reused across every connection; only the Context is per-message.
type Chain struct {
	middlewares []Middleware
}

// NewChain builds a Chain in outermost-to-innermost order. ErrorHandling
// must be first (outermost) so it sees every error any inner middleware
// produces.
func NewChain(mw ...Middleware) *Chain {
	return &Chain{middlewares: mw}
}

func (c *Chain) newContext(ctx context.Context, connID string, state *session.State, sc scope.Scope, subs *subscription.Registry, sender Sender, log zerolog.Logger) *Context {
	return &Context{
		Ctx:          ctx,
		ConnectionID: connID,
		State:        state,
		Scope:        sc,
		Subs:         subs,
		Log:          log,
		chain:        c.middlewares,
		sender:       sender,
	}
}

// DispatchInbound sends inbound through the chain starting at index 0.
func (c *Chain) DispatchInbound(ctx context.Context, connID string, state *session.State, sc scope.Scope, subs *subscription.Registry, sender Sender, log zerolog.Logger, inbound *wire.Inbound) error {
	if len(c.middlewares) == 0 {
		return nil
	}
	mctx := c.newContext(ctx, connID, state, sc, subs, sender, log)
	mctx.Inbound = inbound
	mctx.dir = Inbound
	mctx.index = 0
	return c.middlewares[0].ProcessInbound(mctx)
}

// DispatchOutbound sends an outbound message through the chain starting at
// the last index, decrementing via ctx.Next(); it returns the (possibly
// nil, if a middleware dropped it) message ready for wire encoding alongside
// any error.
func (c *Chain) DispatchOutbound(ctx context.Context, connID string, state *session.State, sc scope.Scope, subs *subscription.Registry, sender Sender, log zerolog.Logger, msg *OutboundMsg) (*OutboundMsg, error) {
	if len(c.middlewares) == 0 {
		return msg, nil
	}
	mctx := c.newContext(ctx, connID, state, sc, subs, sender, log)
	mctx.Outbound = msg
	mctx.dir = Outbound
	mctx.index = len(c.middlewares) - 1
	err := c.middlewares[mctx.index].ProcessOutbound(mctx)
	return mctx.Outbound, err
}

// DispatchConnect runs every middleware's OnConnect hook, outermost first,
// stopping at the first error (a connect failure aborts the connection
// before any message flows).
func (c *Chain) DispatchConnect(ctx context.Context, connID string, state *session.State, sc scope.Scope, subs *subscription.Registry, sender Sender, log zerolog.Logger) error {
	mctx := c.newContext(ctx, connID, state, sc, subs, sender, log)
	for _, mw := range c.middlewares {
		if err := mw.OnConnect(mctx); err != nil {
			return fmt.Errorf("%s.OnConnect: %w", mw.Name(), err)
		}
	}
	return nil
}

// DispatchDisconnect runs every middleware's OnDisconnect hook, outermost
// first, unconditionally — a disconnect hook failing never skips the rest,
// since teardown must run to completion even under cancellation.
func (c *Chain) DispatchDisconnect(ctx context.Context, connID string, state *session.State, sc scope.Scope, subs *subscription.Registry, sender Sender, log zerolog.Logger) {
	mctx := c.newContext(ctx, connID, state, sc, subs, sender, log)
	for _, mw := range c.middlewares {
		if err := mw.OnDisconnect(mctx); err != nil {
			log.Warn().Str("middleware", mw.Name()).Err(err).Msg("disconnect hook failed")
		}
	}
}
