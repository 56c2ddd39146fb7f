// Package scope implements the relay's storage namespace selector.
//
// A Scope isolates events in the store: a query in scope S only ever
// returns events saved in S. Connections are assigned a scope either from
// the configured mode or by inspecting the WebSocket Host header.
package scope

import "strings"

// Mode selects how a connection's Scope is derived from its Host header.
type Mode int

const (
	// Disabled means every connection uses the Default scope.
	Disabled Mode = iota
	// Subdomain extracts a named scope from the leftmost Host label(s),
	// keeping BaseDomainParts labels as the base domain.
	Subdomain
	// Fixed pins every connection to one configured scope regardless of Host.
	Fixed
)

// Config drives scope resolution for incoming connections.
type Config struct {
	Mode Mode

	// BaseDomainParts is the number of labels making up the base domain,
	// e.g. 2 for "example.com" so "group1.example.com" yields Named("group1").
	BaseDomainParts int

	// FixedScope is used when Mode == Fixed.
	FixedScope Scope
}

// Scope is a namespace selector for the event store. The zero value is the
// Default (unnamed) scope.
type Scope struct {
	name    string
	isNamed bool
}

// Default is the unnamed scope.
var Default = Scope{}

// Named returns the scope identified by name.
func Named(name string) Scope {
	return Scope{name: name, isNamed: true}
}

// IsDefault reports whether s is the Default scope.
func (s Scope) IsDefault() bool {
	return !s.isNamed
}

// Name returns the scope's name, or "" for Default.
func (s Scope) Name() string {
	return s.name
}

// String renders the scope for logging and bucket keys.
func (s Scope) String() string {
	if s.IsDefault() {
		return "default"
	}
	return s.name
}

// Equal reports whether two scopes refer to the same namespace.
func (s Scope) Equal(other Scope) bool {
	return s.isNamed == other.isNamed && s.name == other.name
}

// Resolve derives a Scope for a connection from its Host header, per cfg.
func Resolve(cfg Config, host string) Scope {
	switch cfg.Mode {
	case Fixed:
		return cfg.FixedScope
	case Subdomain:
		if name, ok := subdomain(host, cfg.BaseDomainParts); ok {
			return Named(name)
		}
		return Default
	default:
		return Default
	}
}

// subdomain extracts the label(s) left of the base domain. host may carry a
// port, which is stripped first.
func subdomain(host string, baseDomainParts int) (string, bool) {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || baseDomainParts <= 0 {
		return "", false
	}

	labels := strings.Split(host, ".")
	if len(labels) <= baseDomainParts {
		return "", false
	}

	prefix := labels[:len(labels)-baseDomainParts]
	name := strings.Join(prefix, ".")
	if name == "" {
		return "", false
	}
	return name, true
}
