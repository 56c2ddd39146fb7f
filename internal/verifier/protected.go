package verifier

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/relayerr"
)

// IsProtected reports whether event carries a NIP-70 "-" tag.
func IsProtected(event *nostr.Event) bool {
	for _, t := range event.Tags {
		if len(t) >= 1 && t[0] == "-" {
			return true
		}
	}
	return false
}

// CheckProtected enforces NIP-70: a protected event may only be published
// by its own author over an authenticated connection. The wrong-author
// reply is a Notice carrying the protocol's literal wording, not a
// Restricted error — clients expect the "rejected:" message verbatim,
// without the "restricted: " prefix.
func CheckProtected(event *nostr.Event, authedPubkey string) *relayerr.Error {
	if !IsProtected(event) {
		return nil
	}
	if authedPubkey == "" {
		return relayerr.AuthRequiredErr("protected event requires authentication")
	}
	if authedPubkey != event.PubKey {
		return relayerr.NoticeErr("rejected: this event may only be published by its author")
	}
	return nil
}
