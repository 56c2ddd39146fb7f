// Package access is the publish-path and REQ-gating orchestration layer:
// it classifies inbound events, routes group-control kinds into
// internal/groups, and gates subscription filters against private-group
// membership. It owns no storage state of its own — every decision it
// returns is a plain value the caller (the middleware chain) turns into
// store commands and outbound messages.
package access

import "github.com/keanuklestil/groups-relay/internal/groups"

// NonGroupAllowedKinds lists event kinds that carry an "h" tag for
// unrelated reasons (NIP-51 lists, NIP-43 claims, NIP-60 wallet/cashu
// events) and must never be routed through group authorization even though
// they may appear to reference a group id.
var NonGroupAllowedKinds = []int{
	10009, // NIP-51 simple list: groups the user wants to remember being in
	28934, // NIP-43 claim/auth event
	17375, // NIP-60 wallet event (replaceable)
	7375,  // NIP-60 token event (unspent proofs)
	7376,  // NIP-60 spending history event
	7374,  // NIP-61 nutzap quote event
	10019, // NIP-61 nutzap informational event
	9321,  // NIP-61 nutzap event
}

func kindInSet(kind int, set []int) bool {
	for _, k := range set {
		if k == kind {
			return true
		}
	}
	return false
}

// IsGroupControl reports whether kind is one of the client-submitted group
// control or membership kinds that mutate a group's state.
func IsGroupControl(kind int) bool {
	return kindInSet(kind, groups.ControlKinds)
}

// IsDerived reports whether kind is one of the relay-generated addressable
// group kinds (39000-39003); clients may never publish these directly.
func IsDerived(kind int) bool {
	return kindInSet(kind, groups.DerivedKinds)
}

// IsNonGroupAllowed reports whether kind is exempt from group-scoped
// authorization despite carrying an "h" tag.
func IsNonGroupAllowed(kind int) bool {
	return kindInSet(kind, NonGroupAllowedKinds)
}
