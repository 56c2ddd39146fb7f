package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/session"
	"github.com/keanuklestil/groups-relay/internal/subscription"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

func signedAuthEvent(t *testing.T, sk, relayURL, challenge string) *nostr.Event {
	t.Helper()
	pub, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	ev := &nostr.Event{
		PubKey:    pub,
		Kind:      22242,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags: nostr.Tags{
			{"relay", relayURL},
			{"challenge", challenge},
		},
	}
	require.NoError(t, ev.Sign(sk))
	return ev
}

func TestNIP42Auth_OnConnect_SendsChallenge(t *testing.T) {
	sender := &fakeSender{}
	chain := NewChain(NIP42Auth{})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	require.NoError(t, chain.DispatchConnect(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop()))
	require.Len(t, sender.out, 1)
	assert.Contains(t, string(sender.out[0]), "AUTH")
}

func TestNIP42Auth_OnConnect_DisabledSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	chain := NewChain(NIP42Auth{Disabled: true})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	require.NoError(t, chain.DispatchConnect(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop()))
	assert.Empty(t, sender.out)
}

func TestNIP42Auth_ProcessInbound_ValidAuthRepliesOKAndStopsChain(t *testing.T) {
	sender := &fakeSender{}
	var trace []string
	chain := NewChain(NIP42Auth{}, &recordingMiddleware{name: "downstream", trace: &trace})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)
	challenge := state.Challenge()

	sk := nostr.GeneratePrivateKey()
	ev := signedAuthEvent(t, sk, "wss://relay.example.com", challenge)

	err := chain.DispatchInbound(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop(),
		&wire.Inbound{Kind: wire.AuthMsg, Event: ev})
	require.NoError(t, err)
	require.Len(t, sender.out, 1)
	assert.Contains(t, string(sender.out[0]), `"OK"`)
	assert.True(t, state.IsAuthed())
	assert.Empty(t, trace, "AUTH is terminal; nothing downstream should run")
}

func TestNIP42Auth_ProcessInbound_InvalidAuthRepliesOKFalse(t *testing.T) {
	sender := &fakeSender{}
	chain := NewChain(NIP42Auth{})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	sk := nostr.GeneratePrivateKey()
	ev := signedAuthEvent(t, sk, "wss://relay.example.com", "wrong-challenge")

	err := chain.DispatchInbound(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop(),
		&wire.Inbound{Kind: wire.AuthMsg, Event: ev})
	require.NoError(t, err)
	require.Len(t, sender.out, 1)
	assert.Contains(t, string(sender.out[0]), "false")
	assert.False(t, state.IsAuthed())
}

func TestNIP42Auth_ProcessInbound_NonAuthPassesThrough(t *testing.T) {
	sender := &fakeSender{}
	var trace []string
	chain := NewChain(NIP42Auth{}, &recordingMiddleware{name: "downstream", trace: &trace})
	state := session.New("conn1", "wss://relay.example.com", scope.Default)

	err := chain.DispatchInbound(context.Background(), "conn1", state, scope.Default, subscription.NewRegistry(), sender, zerolog.Nop(),
		&wire.Inbound{Kind: wire.EventMsg, Event: &nostr.Event{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"in:downstream"}, trace)
}
