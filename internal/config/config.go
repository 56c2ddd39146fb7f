// Package config loads the relay's runtime configuration from the
// environment (and an optional .env file), plus an optional YAML file for
// scope presets.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keanuklestil/groups-relay/internal/scope"
)

// WebSocketConfig tunes the per-connection actor.
type WebSocketConfig struct {
	// ChannelSize is the outbound channel's capacity before a connection is
	// considered too slow to keep up and is closed.
	ChannelSize int `env:"WS_CHANNEL_SIZE" envDefault:"100"`
}

// RelayConfig is the relay's complete runtime configuration, loaded from
// the environment.
type RelayConfig struct {
	// RelayURL is this relay's own address, validated against the AUTH
	// event's "relay" tag.
	RelayURL string `env:"RELAY_URL" envDefault:"ws://localhost:3334"`

	// RelayPubkey identifies the relay's own identity for derived group
	// events and NIP-11. RelayPrivkey signs them; both are hex.
	RelayPubkey  string `env:"RELAY_PUBKEY"`
	RelayPrivkey string `env:"RELAY_PRIVKEY"`

	// DataDir is the directory holding the bbolt database file backing the
	// event store; internal/store.NewBoltStore creates events.db in it.
	DataDir string `env:"DATA_DIR" envDefault:"."`

	// ScopeConfigPath, if set, points at a YAML file describing the scope
	// mode; see ScopeFile.
	ScopeConfigPath string `env:"SCOPE_CONFIG_PATH"`

	// EnableAuth turns on the NIP-42 middleware's challenge issuance on
	// connect. Relays that never need auth (single shared public group) can
	// disable it.
	EnableAuth bool `env:"ENABLE_AUTH" envDefault:"true"`

	// QueryLimit bounds every REQ's historical replay.
	QueryLimit int `env:"QUERY_LIMIT" envDefault:"500"`

	// VerifierWorkers sizes the off-thread signature-verification pool.
	VerifierWorkers int `env:"VERIFIER_WORKERS" envDefault:"4"`

	// HTTPAddr is where cmd/groups-relay's HTTP/WebSocket listener binds.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3334"`

	WebSocket WebSocketConfig
}

// Load reads RelayConfig from the process environment, loading a .env file
// first if one is present in the working directory; a missing .env is not
// an error.
func Load() (*RelayConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg, err := env.ParseAs[RelayConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ScopeFile is the optional YAML-backed scope configuration named by
// RelayConfig.ScopeConfigPath.
type ScopeFile struct {
	Mode            string `yaml:"mode"` // "disabled" | "subdomain" | "fixed"
	BaseDomainParts int    `yaml:"base_domain_parts"`
	FixedScope      string `yaml:"fixed_scope"`
}

// LoadScopeConfig reads path (if non-empty) and translates it into a
// scope.Config; an empty path yields scope.Config{Mode: scope.Disabled}.
func LoadScopeConfig(path string) (scope.Config, error) {
	if path == "" {
		return scope.Config{Mode: scope.Disabled}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return scope.Config{}, fmt.Errorf("read scope config %s: %w", path, err)
	}

	var sf ScopeFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return scope.Config{}, fmt.Errorf("parse scope config %s: %w", path, err)
	}

	switch sf.Mode {
	case "subdomain":
		return scope.Config{Mode: scope.Subdomain, BaseDomainParts: sf.BaseDomainParts}, nil
	case "fixed":
		return scope.Config{Mode: scope.Fixed, FixedScope: scope.Named(sf.FixedScope)}, nil
	default:
		return scope.Config{Mode: scope.Disabled}, nil
	}
}
