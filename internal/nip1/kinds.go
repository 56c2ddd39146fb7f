// Package nip1 holds the small pieces of NIP-01 data-model logic that are
// the relay's own domain code rather than delegated to go-nostr: kind-class
// predicates, tag lookups, and addressable-event coordinates.
package nip1

import "github.com/nbd-wtf/go-nostr"

// IsReplaceable reports whether kind is one of 0, 3, or 10000-19999.
func IsReplaceable(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000)
}

// IsAddressable reports whether kind is in 30000-39999.
func IsAddressable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// IsEphemeral reports whether kind is in 20000-29999.
func IsEphemeral(kind int) bool {
	return kind >= 20000 && kind < 30000
}

// Coordinate identifies an addressable event by (kind, pubkey, d-tag).
type Coordinate struct {
	Kind   int
	Pubkey string
	DTag   string
}

// FirstTagValue returns the first value (index 1) of the first tag named
// name, and whether one was found.
func FirstTagValue(tags nostr.Tags, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// HasTag reports whether any tag named name is present, regardless of value.
func HasTag(tags nostr.Tags, name string) bool {
	for _, t := range tags {
		if len(t) >= 1 && t[0] == name {
			return true
		}
	}
	return false
}

// DTag returns the event's "d" tag value, defaulting to "".
func DTag(tags nostr.Tags) string {
	v, _ := FirstTagValue(tags, "d")
	return v
}

// HTag returns the event's "h" tag value and whether it was present.
func HTag(tags nostr.Tags) (string, bool) {
	return FirstTagValue(tags, "h")
}

// GroupID returns the group identifier for event: the "d" tag for
// addressable kinds, otherwise the "h" tag.
func GroupID(event *nostr.Event) (string, bool) {
	if IsAddressable(event.Kind) {
		v, ok := FirstTagValue(event.Tags, "d")
		return v, ok
	}
	return FirstTagValue(event.Tags, "h")
}

// CoordinateOf returns the addressable coordinate of event, if it is one.
func CoordinateOf(event *nostr.Event) (Coordinate, bool) {
	if !IsAddressable(event.Kind) {
		return Coordinate{}, false
	}
	return Coordinate{Kind: event.Kind, Pubkey: event.PubKey, DTag: DTag(event.Tags)}, true
}

// PTagValues returns the value (index 1) of every "p" tag.
func PTagValues(tags nostr.Tags) []string {
	var out []string
	for _, t := range tags {
		if len(t) >= 2 && t[0] == "p" {
			out = append(out, t[1])
		}
	}
	return out
}

// MatchesFilter reports whether event satisfies every field filter sets
// (fields left empty/zero are not constraints). A query matches an event if
// ANY of its filters matches; this function evaluates a single filter.
func MatchesFilter(event *nostr.Event, filter nostr.Filter) bool {
	if len(filter.IDs) > 0 && !containsString(filter.IDs, event.ID) {
		return false
	}
	if len(filter.Kinds) > 0 && !containsInt(filter.Kinds, event.Kind) {
		return false
	}
	if len(filter.Authors) > 0 && !containsString(filter.Authors, event.PubKey) {
		return false
	}
	if filter.Since != nil && event.CreatedAt < *filter.Since {
		return false
	}
	if filter.Until != nil && event.CreatedAt > *filter.Until {
		return false
	}
	for name, values := range filter.Tags {
		if len(values) == 0 {
			continue
		}
		if !tagHasAnyValue(event.Tags, name, values) {
			return false
		}
	}
	return true
}

func tagHasAnyValue(tags nostr.Tags, name string, values []string) bool {
	for _, t := range tags {
		if len(t) < 2 || t[0] != name {
			continue
		}
		if containsString(values, t[1]) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}
