package subscription

import (
	"context"
	"fmt"
	"sort"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// windowSlideMaxAttempts bounds the window-sliding strategy's per-filter
// retry loop.
const windowSlideMaxAttempts = 50

// exponentialFillMaxAttempts bounds the exponential-fill strategy's
// per-filter retry loop.
const exponentialFillMaxAttempts = 10

// Store is the read surface the replay strategies query against.
type Store interface {
	Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error)
}

// Sender delivers REQ replies to the client.
type Sender interface {
	SendEvent(subscriptionID string, event *nostr.Event) error
	SendEOSE(subscriptionID string) error
}

// HandleREQ replays stored events matching filters to sender, registers the
// subscription in registry for future broadcast matching, then sends EOSE.
// filters with an explicit Limit above queryLimit are capped to it;
// queryLimit <= 0 disables the cap.
func HandleREQ(
	ctx context.Context,
	registry *Registry,
	store Store,
	sender Sender,
	subscriptionID string,
	filters []nostr.Filter,
	authedPubkey string,
	sc scope.Scope,
	canSee CanSee,
	queryLimit int,
	log zerolog.Logger,
) error {
	filters = capFilterLimits(filters, queryLimit)
	registry.Add(subscriptionID, filters)

	if canOptimize(filters) {
		if hasOpenTimeWindow(filters) {
			return handleWindowSliding(ctx, store, sender, subscriptionID, filters, authedPubkey, sc, canSee, log)
		}
		return handleExponentialFill(ctx, store, sender, subscriptionID, filters, authedPubkey, sc, canSee, log)
	}
	return handleSimple(ctx, store, sender, subscriptionID, filters, authedPubkey, sc, canSee)
}

func capFilterLimits(filters []nostr.Filter, queryLimit int) []nostr.Filter {
	if queryLimit <= 0 {
		return filters
	}
	out := make([]nostr.Filter, len(filters))
	copy(out, filters)
	for i, f := range out {
		if f.Limit > 0 && f.Limit > queryLimit {
			out[i].Limit = queryLimit
		}
	}
	return out
}

// canOptimize reports whether any filter carries an explicit limit, in
// which case the naive full-scan simple strategy would paginate wrong.
func canOptimize(filters []nostr.Filter) bool {
	for _, f := range filters {
		if f.Limit > 0 {
			return true
		}
	}
	return false
}

// hasOpenTimeWindow reports whether any limited filter is missing Since or
// Until: the window-sliding strategy handles those, the exponential-fill
// strategy handles fully-bounded ones.
func hasOpenTimeWindow(filters []nostr.Filter) bool {
	for _, f := range filters {
		if f.Limit > 0 && (f.Until == nil || f.Since == nil) {
			return true
		}
	}
	return false
}

func handleSimple(ctx context.Context, store Store, sender Sender, subscriptionID string, filters []nostr.Filter, authedPubkey string, sc scope.Scope, canSee CanSee) error {
	events, err := store.Query(sc, filters)
	if err != nil {
		return fmt.Errorf("simple query: %w", err)
	}
	for _, event := range events {
		if canSee != nil && !canSee(event, sc, authedPubkey) {
			continue
		}
		if err := sender.SendEvent(subscriptionID, event); err != nil {
			return fmt.Errorf("send event: %w", err)
		}
	}
	return sender.SendEOSE(subscriptionID)
}

func handleWindowSliding(ctx context.Context, store Store, sender Sender, subscriptionID string, filters []nostr.Filter, authedPubkey string, sc scope.Scope, canSee CanSee, log zerolog.Logger) error {
	sent := make(map[string]bool)

	for _, filter := range filters {
		requestedLimit := filter.Limit
		if requestedLimit <= 0 {
			continue
		}

		hasSince := filter.Since != nil
		hasUntil := filter.Until != nil
		backward := (hasUntil && !hasSince) || (!hasSince && !hasUntil)

		window := filter
		filterSent := 0
		var lastTimestamp *nostr.Timestamp

		for attempts := 1; ; attempts++ {
			events, err := store.Query(sc, []nostr.Filter{window})
			if err != nil {
				return fmt.Errorf("window-sliding query: %w", err)
			}
			if len(events) == 0 {
				break
			}

			var candidates []*nostr.Event
			for _, event := range events {
				if sent[event.ID] {
					continue
				}
				ts := event.CreatedAt
				if canSee == nil || canSee(event, sc, authedPubkey) {
					candidates = append(candidates, event)
				}
				if backward {
					if lastTimestamp == nil || ts < *lastTimestamp {
						lastTimestamp = &ts
					}
				} else {
					if lastTimestamp == nil || ts > *lastTimestamp {
						lastTimestamp = &ts
					}
				}
			}

			if backward {
				sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt > candidates[j].CreatedAt })
			} else {
				sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt < candidates[j].CreatedAt })
			}

			for _, event := range candidates {
				if filterSent >= requestedLimit {
					break
				}
				sent[event.ID] = true
				if err := sender.SendEvent(subscriptionID, event); err != nil {
					return fmt.Errorf("send event: %w", err)
				}
				filterSent++
			}

			if filterSent >= requestedLimit {
				break
			}

			if lastTimestamp == nil {
				break
			}
			if backward {
				next := *lastTimestamp - 1
				window.Until = &next
			} else {
				next := *lastTimestamp + 1
				window.Since = &next
			}

			if attempts >= windowSlideMaxAttempts {
				log.Warn().Str("subscription_id", subscriptionID).Int("attempts", attempts).
					Msg("window sliding reached max attempts")
				break
			}
		}
	}

	return sender.SendEOSE(subscriptionID)
}

func handleExponentialFill(ctx context.Context, store Store, sender Sender, subscriptionID string, filters []nostr.Filter, authedPubkey string, sc scope.Scope, canSee CanSee, log zerolog.Logger) error {
	sent := make(map[string]bool)

	for _, filter := range filters {
		requestedLimit := filter.Limit
		if requestedLimit <= 0 {
			continue
		}

		buffer := filter
		filterSent := 0
		multiplier := 2

		for attempts := 0; filterSent < requestedLimit && attempts < exponentialFillMaxAttempts; attempts++ {
			buffer.Limit = requestedLimit * multiplier

			events, err := store.Query(sc, []nostr.Filter{buffer})
			if err != nil {
				return fmt.Errorf("exponential-fill query: %w", err)
			}
			if len(events) == 0 {
				break
			}

			var matching []*nostr.Event
			for _, event := range events {
				if sent[event.ID] {
					continue
				}
				if canSee == nil || canSee(event, sc, authedPubkey) {
					matching = append(matching, event)
				}
			}

			for _, event := range matching {
				if filterSent >= requestedLimit {
					break
				}
				sent[event.ID] = true
				if err := sender.SendEvent(subscriptionID, event); err != nil {
					return fmt.Errorf("send event: %w", err)
				}
				filterSent++
			}

			if filterSent >= requestedLimit {
				break
			}
			multiplier *= 2
		}
	}

	return sender.SendEOSE(subscriptionID)
}
