// Package deletion implements NIP-09: processing a kind-5 deletion request
// into ownership-scoped removal of the events it references.
package deletion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

const kindDeletion = 5

// Store is the subset of internal/store.EventStore that deletion needs.
type Store interface {
	Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error)
	DeleteEvents(ctx context.Context, filter nostr.Filter, sc scope.Scope) error
}

// IsDeletionRequest reports whether event is a kind-5 deletion request.
func IsDeletionRequest(event *nostr.Event) bool {
	return event.Kind == kindDeletion
}

// Process walks event's "e" and "a" tags, deleting every event they name
// whose own author matches event's author. References to other authors'
// events are silently ignored rather than rejected, matching NIP-09's
// ownership model: a deletion request can never reach past its own author's
// events no matter what it names.
func Process(ctx context.Context, s Store, event *nostr.Event, sc scope.Scope) error {
	if !IsDeletionRequest(event) {
		return nil
	}

	for _, t := range event.Tags {
		if len(t) < 2 {
			continue
		}
		switch t[0] {
		case "e":
			if err := deleteByID(ctx, s, event, t[1], sc); err != nil {
				return err
			}
		case "a":
			if err := deleteByAddress(ctx, s, event, t[1], sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func deleteByID(ctx context.Context, s Store, request *nostr.Event, eventID string, sc scope.Scope) error {
	filter := nostr.Filter{IDs: []string{eventID}}
	events, err := s.Query(sc, []nostr.Filter{filter})
	if err != nil {
		return fmt.Errorf("query event %s for deletion: %w", eventID, err)
	}
	if len(events) == 0 || events[0].PubKey != request.PubKey {
		return nil
	}
	return s.DeleteEvents(ctx, filter, sc)
}

func deleteByAddress(ctx context.Context, s Store, request *nostr.Event, addr string, sc scope.Scope) error {
	parts := strings.SplitN(addr, ":", 3)
	if len(parts) != 3 {
		return nil
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	pubkey, dTag := parts[1], parts[2]
	if pubkey != request.PubKey {
		return nil
	}

	filter := nostr.Filter{
		Kinds:   []int{kind},
		Authors: []string{pubkey},
		Tags:    nostr.TagMap{"d": {dTag}},
	}
	return s.DeleteEvents(ctx, filter, sc)
}
