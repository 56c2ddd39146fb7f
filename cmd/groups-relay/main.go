// Command groups-relay runs a standalone NIP-29 relay-based-groups relay.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/keanuklestil/groups-relay/internal/access"
	"github.com/keanuklestil/groups-relay/internal/config"
	"github.com/keanuklestil/groups-relay/internal/connection"
	"github.com/keanuklestil/groups-relay/internal/groups"
	"github.com/keanuklestil/groups-relay/internal/logging"
	"github.com/keanuklestil/groups-relay/internal/middleware"
	"github.com/keanuklestil/groups-relay/internal/relayinfo"
	"github.com/keanuklestil/groups-relay/internal/store"
	"github.com/keanuklestil/groups-relay/internal/verifier"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "groups-relay",
		Short:   "A NIP-29 relay-based-groups Nostr relay",
		Version: Version,
	}

	var logLevel string
	var jsonLogs bool
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "output logs as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay's HTTP/WebSocket listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(logging.Config{Level: logLevel, JSONOutput: jsonLogs})
			return serve()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the relay's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	log := logging.WithComponent("relay")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scopeCfg, err := config.LoadScopeConfig(cfg.ScopeConfigPath)
	if err != nil {
		return fmt.Errorf("load scope config: %w", err)
	}

	if cfg.RelayPrivkey == "" {
		cfg.RelayPrivkey = nostr.GeneratePrivateKey()
		log.Warn().Msg("no RELAY_PRIVKEY configured, generated an ephemeral one for this process")
	}
	relayPubkey, err := nostr.GetPublicKey(cfg.RelayPrivkey)
	if err != nil {
		return fmt.Errorf("derive relay pubkey from RELAY_PRIVKEY: %w", err)
	}
	cfg.RelayPubkey = relayPubkey

	backend, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}

	signer := func(e *nostr.Event) error { return e.Sign(cfg.RelayPrivkey) }
	facade := store.NewEventStore(backend, signer, logging.WithComponent("store"))
	defer facade.Close() // also closes backend

	buffer := store.NewReplaceableBuffer(facade.SaveUnsignedEvent, logging.WithComponent("buffer"))
	defer buffer.Close()

	verify := verifier.NewVerifier(cfg.VerifierWorkers)
	defer verify.Close()

	manager := access.NewManager(cfg.RelayPubkey)

	if err := replayGroups(facade, manager); err != nil {
		return fmt.Errorf("replay group state: %w", err)
	}

	// eventStoreLink is held by pointer so it can be given a back-reference
	// to the finished chain below, for REQ replay to re-enter the outbound
	// path (see internal/middleware/store_mw.go's replaySender).
	eventStoreLink := &middleware.EventStore{Facade: facade, Buffer: buffer, Manager: manager, QueryLimit: cfg.QueryLimit}

	chain := middleware.NewChain(
		middleware.ErrorHandling{},
		middleware.Logger{},
		middleware.EventVerifier{Verifier: verify},
		middleware.NIP42Auth{Disabled: !cfg.EnableAuth},
		middleware.NIP70Protected{},
		middleware.NIP40Expiration{Store: facade},
		middleware.NIP09Deletion{Store: facade},
		middleware.Groups{Manager: manager, Store: facade},
		eventStoreLink,
	)
	eventStoreLink.Chain = chain

	wsHandler := connection.Handler{
		Chain:       chain,
		Store:       facade,
		CanSee:      manager.CanSee,
		ScopeConfig: scopeCfg,
		RelayURL:    cfg.RelayURL,
		ChannelSize: cfg.WebSocket.ChannelSize,
		Log:         logging.WithComponent("connection"),
	}

	doc := relayinfo.Document("groups-relay", "A NIP-29 relay-based-groups relay", cfg.RelayPubkey, "groups-relay", Version, cfg.QueryLimit)
	mux := http.NewServeMux()
	mux.Handle("/", relayinfo.Handler(doc, wsHandler))

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return server.Shutdown(context.Background())
	}
	return nil
}

// replayGroups folds every group-control event, across every known scope,
// through groups.Registry.LoadEvent in timestamp order, so every group's
// in-memory state is rebuilt before the relay accepts connections.
func replayGroups(facade *store.EventStore, manager *access.Manager) error {
	scopes, err := facade.ListScopes()
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	for _, sc := range scopes {
		events, err := facade.Query(sc, []nostr.Filter{{Kinds: groups.ControlKinds}})
		if err != nil {
			return fmt.Errorf("query group events for scope %s: %w", sc.String(), err)
		}

		sort.Slice(events, func(i, j int) bool {
			return events[i].CreatedAt < events[j].CreatedAt
		})

		registry := manager.Registry(sc)
		startupLog := logging.WithComponent("startup")
		for _, event := range events {
			if err := registry.LoadEvent(event); err != nil {
				startupLog.Warn().
					Str("scope", sc.String()).Str("event_id", event.ID).Err(err).
					Msg("skipping group event during startup replay")
			}
		}
	}
	return nil
}
