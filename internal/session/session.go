// Package session implements per-connection state and NIP-42 challenge
// issuance/validation.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

// authKind is the NIP-42 AUTH event kind.
const authKind = 22242

// maxAuthAge is how old an AUTH event's created_at may be, in seconds.
const maxAuthAge = 600

// State holds everything the relay tracks for one WebSocket connection. It
// is owned exclusively by the connection's state task; the reader and
// writer tasks never touch it directly.
type State struct {
	mu sync.Mutex

	ID       string
	RelayURL string
	Scope    scope.Scope

	challenge    string
	authedPubkey string
	connectedAt  time.Time
}

// New returns a fresh State for a connection identified by id, resolved to
// sc, talking to relayURL (used to validate the AUTH event's "relay" tag).
func New(id, relayURL string, sc scope.Scope) *State {
	return &State{ID: id, RelayURL: relayURL, Scope: sc, connectedAt: time.Now()}
}

// Challenge returns the connection's current challenge, issuing one on
// first call and reusing it on every subsequent call for the life of the
// connection; it is not rotated when authentication succeeds.
func (s *State) Challenge() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == "" {
		s.challenge = generateChallenge()
	}
	return s.challenge
}

// AuthedPubkey returns the authenticated pubkey, or "" if unauthenticated.
func (s *State) AuthedPubkey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authedPubkey
}

// IsAuthed reports whether the connection has completed NIP-42 auth.
func (s *State) IsAuthed() bool {
	return s.AuthedPubkey() != ""
}

// ValidateAuth checks event against the six-point NIP-42 rule set and, on
// success, marks the connection authenticated as event.PubKey.
func (s *State) ValidateAuth(event *nostr.Event) *relayerr.Error {
	s.mu.Lock()
	challenge := s.challenge
	s.mu.Unlock()

	if challenge == "" {
		return relayerr.AuthRequiredErr("no challenge issued for this connection")
	}
	if event.Kind != authKind {
		return relayerr.AuthRequiredErr("auth event must be kind %d", authKind)
	}

	if ok, err := event.CheckSignature(); err != nil || !ok {
		return relayerr.AuthRequiredErr("invalid auth event signature")
	}

	eventChallenge, _ := firstTagValue(event.Tags, "challenge")
	if eventChallenge != challenge {
		return relayerr.AuthRequiredErr("challenge mismatch")
	}

	eventRelay, _ := firstTagValue(event.Tags, "relay")
	if !relayURLMatches(eventRelay, s.RelayURL) {
		return relayerr.AuthRequiredErr("relay mismatch")
	}

	age := time.Now().Unix() - int64(event.CreatedAt)
	if age > maxAuthAge {
		return relayerr.AuthRequiredErr("auth event too old")
	}

	s.mu.Lock()
	s.authedPubkey = event.PubKey
	s.mu.Unlock()
	return nil
}

func relayURLMatches(eventRelay, relayURL string) bool {
	return strings.TrimSuffix(eventRelay, "/") == strings.TrimSuffix(relayURL, "/")
}

func firstTagValue(tags nostr.Tags, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

func generateChallenge() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back
		// to a timestamp-derived value rather than issuing an empty challenge.
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
