package middleware

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/session"
	"github.com/keanuklestil/groups-relay/internal/subscription"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

func dispatchEvent(t *testing.T, chain *Chain, state *session.State, ev *nostr.Event, sender Sender) error {
	t.Helper()
	return chain.DispatchInbound(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop(),
		&wire.Inbound{Kind: wire.EventMsg, Event: ev})
}

// A protected event from an unauthenticated connection is rejected, after
// a fresh AUTH challenge.
func TestNIP70Protected_UnauthenticatedRejected(t *testing.T) {
	sender := &fakeSender{}
	var trace []string
	chain := NewChain(NIP70Protected{}, &recordingMiddleware{name: "downstream", trace: &trace})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	ev := &nostr.Event{ID: "e1", PubKey: "alice", Tags: nostr.Tags{{"-"}}}
	require.NoError(t, dispatchEvent(t, chain, state, ev, sender))

	require.Len(t, sender.out, 2)
	assert.Contains(t, string(sender.out[0]), `"AUTH"`)
	assert.Contains(t, string(sender.out[1]), "false")
	assert.Empty(t, trace)
}

func authenticate(t *testing.T, state *session.State, sk string) {
	t.Helper()
	challenge := state.Challenge()
	ev := signedAuthEvent(t, sk, state.RelayURL, challenge)
	require.Nil(t, state.ValidateAuth(ev))
}

// The authenticated author may publish their own protected event.
func TestNIP70Protected_AuthedAuthorAllowed(t *testing.T) {
	sender := &fakeSender{}
	var trace []string
	chain := NewChain(NIP70Protected{}, &recordingMiddleware{name: "downstream", trace: &trace})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	sk := nostr.GeneratePrivateKey()
	authenticate(t, state, sk)
	pub := state.AuthedPubkey()

	ev := &nostr.Event{ID: "e1", PubKey: pub, Tags: nostr.Tags{{"-"}}}
	require.NoError(t, dispatchEvent(t, chain, state, ev, sender))

	assert.Empty(t, sender.out)
	assert.Equal(t, []string{"in:downstream"}, trace)
}

// An authenticated connection may not publish another author's
// protected event.
func TestNIP70Protected_AuthedAsDifferentPubkeyRejected(t *testing.T) {
	sender := &fakeSender{}
	chain := NewChain(NIP70Protected{})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	sk := nostr.GeneratePrivateKey()
	authenticate(t, state, sk)

	ev := &nostr.Event{ID: "e1", PubKey: "alice", Tags: nostr.Tags{{"-"}}}
	require.NoError(t, dispatchEvent(t, chain, state, ev, sender))

	require.Len(t, sender.out, 1)
	assert.Contains(t, string(sender.out[0]), "false")
	assert.Contains(t, string(sender.out[0]), "rejected: this event may only be published by its author")
}

func TestNIP70Protected_UnprotectedEventPassesThrough(t *testing.T) {
	sender := &fakeSender{}
	var trace []string
	chain := NewChain(NIP70Protected{}, &recordingMiddleware{name: "downstream", trace: &trace})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	ev := &nostr.Event{ID: "e1", PubKey: "alice"}
	require.NoError(t, dispatchEvent(t, chain, state, ev, sender))

	assert.Empty(t, sender.out)
	assert.Equal(t, []string{"in:downstream"}, trace)
}
