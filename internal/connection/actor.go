// Package connection implements the per-connection actor: three goroutines
// (a Reader, a Writer, and a State task) cooperating over channels so a
// slow client can never block message processing for other connections,
// and the session state is touched by exactly one goroutine.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/middleware"
	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/session"
	"github.com/keanuklestil/groups-relay/internal/store"
	"github.com/keanuklestil/groups-relay/internal/subscription"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// CanSee is the group access-control predicate bound into every actor's
// subscription registry.
type CanSee = subscription.CanSee

// Conn is the subset of *websocket.Conn the actor needs; narrowing it to an
// interface keeps the actor's three tasks testable against a fake.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadLimit(int64)
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}

// Actor runs one WebSocket connection's lifetime. Reader decodes inbound
// frames and never touches the socket's write side; Writer owns the write
// side and the ping ticker and never parses inbound frames; State owns
// session.State and the subscription.Registry exclusively, dispatching
// every inbound message and every matched broadcast through the middleware
// chain.
type Actor struct {
	conn   Conn
	chain  *middleware.Chain
	store  *store.EventStore
	canSee CanSee

	state *session.State
	subs  *subscription.Registry
	scope scope.Scope

	log zerolog.Logger

	outbound chan []byte
}

// New builds an Actor for an already-upgraded connection. state must be
// fresh (not yet used by another actor).
func New(conn Conn, chain *middleware.Chain, es *store.EventStore, canSee CanSee, state *session.State, sc scope.Scope, channelSize int, log zerolog.Logger) *Actor {
	if channelSize <= 0 {
		channelSize = 100
	}
	return &Actor{
		conn:     conn,
		chain:    chain,
		store:    es,
		canSee:   canSee,
		state:    state,
		subs:     subscription.NewRegistry(),
		scope:    sc,
		log:      log,
		outbound: make(chan []byte, channelSize),
	}
}

// Run drives the connection until it closes, either because the client
// disconnects, a read/write fails, or parent is cancelled. It blocks until
// every task has unwound.
func (a *Actor) Run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer a.conn.Close()

	broadcastID, broadcasts := a.store.Subscribe()
	defer a.store.Unsubscribe(broadcastID)

	sender := &channelSender{out: a.outbound, cancel: cancel}

	if err := a.chain.DispatchConnect(ctx, a.state.ID, a.state, a.scope, a.subs, sender, a.log); err != nil {
		a.log.Warn().Err(err).Msg("connect hook failed, dropping connection")
		cancel()
	}

	inbound := make(chan *wire.Inbound, 32)

	var wg sync.WaitGroup
	wg.Add(3)
	go a.readTask(ctx, cancel, inbound, &wg)
	go a.writeTask(ctx, cancel, &wg)
	go a.stateTask(ctx, sender, inbound, broadcasts, &wg)
	wg.Wait()

	a.chain.DispatchDisconnect(context.Background(), a.state.ID, a.state, a.scope, a.subs, sender, a.log)
}

// channelSender implements middleware.Sender over the actor's bounded
// outbound channel. A full channel means the client isn't draining fast
// enough; that's treated as the connection dying, so it cancels rather
// than blocking the state task.
type channelSender struct {
	out    chan []byte
	cancel context.CancelFunc
}

func (s *channelSender) Send(_ context.Context, payload []byte) error {
	select {
	case s.out <- payload:
		return nil
	default:
		s.cancel()
		return fmt.Errorf("outbound channel full, closing connection")
	}
}

func (a *Actor) readTask(ctx context.Context, cancel context.CancelFunc, out chan<- *wire.Inbound, wg *sync.WaitGroup) {
	defer wg.Done()
	defer cancel()
	defer close(out)

	a.conn.SetReadLimit(maxMessageSize)
	_ = a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				a.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		in, err := wire.ParseInbound(data)
		if err != nil {
			a.log.Debug().Err(err).Msg("dropping malformed inbound message")
			continue
		}

		select {
		case out <- in:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Actor) writeTask(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = a.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-a.outbound:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Actor) stateTask(ctx context.Context, sender middleware.Sender, inbound <-chan *wire.Inbound, broadcasts <-chan *store.Broadcast, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case in, ok := <-inbound:
			if !ok {
				return
			}
			if err := a.chain.DispatchInbound(ctx, a.state.ID, a.state, a.scope, a.subs, sender, a.log, in); err != nil {
				a.log.Warn().Err(err).Msg("inbound dispatch failed")
			}

		case b, ok := <-broadcasts:
			if !ok {
				return
			}
			a.handleBroadcast(ctx, sender, b)
		}
	}
}

// handleBroadcast fans a committed store event out to every matching,
// authorized subscription on this connection. Deletion broadcasts have no
// NIP-01 push counterpart; clients discover them on their next REQ replay.
func (a *Actor) handleBroadcast(ctx context.Context, sender middleware.Sender, b *store.Broadcast) {
	if !b.Scope.Equal(a.scope) || b.Event == nil {
		return
	}

	authed := a.state.AuthedPubkey()
	ids := a.subs.Matching(b.Event, a.scope, authed, a.canSee)
	for _, id := range ids {
		result, err := a.chain.DispatchOutbound(ctx, a.state.ID, a.state, a.scope, a.subs, sender, a.log,
			&middleware.OutboundMsg{Kind: middleware.OutEvent, SubscriptionID: id, Event: b.Event})
		if err != nil {
			a.log.Warn().Err(err).Msg("broadcast dispatch failed")
			continue
		}
		if result == nil {
			continue
		}
		payload, encErr := result.Encode()
		if encErr != nil {
			a.log.Warn().Err(encErr).Msg("broadcast encode failed")
			continue
		}
		_ = sender.Send(ctx, payload)
	}
}
