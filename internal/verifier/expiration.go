package verifier

import (
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/relayerr"
)

// ExpirationOf returns event's NIP-40 "expiration" tag value and whether one
// was present.
func ExpirationOf(event *nostr.Event) (time.Time, bool) {
	for _, t := range event.Tags {
		if len(t) >= 2 && t[0] == "expiration" {
			seconds, err := strconv.ParseInt(t[1], 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(seconds, 0), true
		}
	}
	return time.Time{}, false
}

// IsExpired reports whether event carries an expiration tag that has
// already passed, as of now.
func IsExpired(event *nostr.Event, now time.Time) bool {
	exp, ok := ExpirationOf(event)
	return ok && !now.Before(exp)
}

// CheckInboundExpiration rejects an EVENT submission whose expiration tag
// is malformed or already in the past at arrival time.
func CheckInboundExpiration(event *nostr.Event, now time.Time) *relayerr.Error {
	for _, t := range event.Tags {
		if len(t) < 2 || t[0] != "expiration" {
			continue
		}
		seconds, err := strconv.ParseInt(t[1], 10, 64)
		if err != nil {
			return relayerr.NoticeErr("invalid expiration tag: %s", t[1])
		}
		if !now.Before(time.Unix(seconds, 0)) {
			return relayerr.NoticeErr("event is expired")
		}
		return nil
	}
	return nil
}

// FilterExpired drops expired events from events (for outbound delivery —
// query replay and broadcast alike), invoking onExpired once per dropped
// event so the caller can lazily delete it from the store. There is no
// retry if onExpired's delete fails: a missed delete leaves the event
// reachable by direct id query but never by subscription delivery.
func FilterExpired(events []*nostr.Event, now time.Time, onExpired func(*nostr.Event)) []*nostr.Event {
	out := make([]*nostr.Event, 0, len(events))
	for _, event := range events {
		if IsExpired(event, now) {
			if onExpired != nil {
				onExpired(event)
			}
			continue
		}
		out = append(out, event)
	}
	return out
}
