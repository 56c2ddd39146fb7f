// Package groups implements the NIP-29 group model: control-event kinds,
// the concurrent group_id -> Group map, and the derived addressable events
// describing each group's metadata, admins, members, and roles.
package groups

import (
	"strings"
)

// Control-event kinds (admin/relay -> relay).
const (
	KindCreate       = 9007
	KindDelete       = 9008
	KindAddUser      = 9000
	KindRemoveUser   = 9001
	KindEditMetadata = 9002
	KindDeleteEvent  = 9005
	KindSetRoles     = 9006
	KindCreateInvite = 9009
)

// User-initiated kinds (user -> relay).
const (
	KindJoinRequest  = 9021
	KindLeaveRequest = 9022
)

// Derived addressable kinds (relay -> all), rebuilt on every mutation.
const (
	KindMetadata = 39000
	KindAdmins   = 39001
	KindMembers  = 39002
	KindRoles    = 39003
)

// ControlKinds lists every event kind a client submits to mutate group state.
var ControlKinds = []int{
	KindCreate, KindDelete, KindAddUser, KindRemoveUser, KindEditMetadata,
	KindDeleteEvent, KindSetRoles, KindCreateInvite,
	KindJoinRequest, KindLeaveRequest,
}

// DerivedKinds lists every addressable kind the relay generates.
var DerivedKinds = []int{KindMetadata, KindAdmins, KindMembers, KindRoles}

// Role is a member's role within a group. The zero value is the empty
// string, not RoleMember; ParseRole maps an empty tag value to RoleMember.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseRole maps a role tag value to a Role: an empty string or "member"
// becomes RoleMember and "admin" becomes RoleAdmin (both compared
// case-insensitively after trimming spaces); any other value becomes a
// custom role carrying the raw text.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "member":
		return RoleMember
	case "admin":
		return RoleAdmin
	default:
		return Role(s)
	}
}

// Metadata is a group's editable profile.
type Metadata struct {
	Name    string
	About   string
	Picture string
	Private bool
	Closed  bool
}

// Member is one group participant and their roles.
type Member struct {
	Pubkey string
	Roles  map[Role]bool
}

// Has reports whether the member carries role.
func (m Member) Has(role Role) bool {
	return m.Roles[role]
}

// Invite is a reusable join code granting the roles it was created with.
type Invite struct {
	EventID string
	Roles   map[Role]bool
}
