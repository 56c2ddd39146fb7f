package connection

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/keanuklestil/groups-relay/internal/middleware"
	"github.com/keanuklestil/groups-relay/internal/scope"
	"github.com/keanuklestil/groups-relay/internal/session"
	"github.com/keanuklestil/groups-relay/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades incoming requests to WebSocket connections and runs an
// Actor for each one's lifetime, resolving the connection's scope from its
// Host header per cfg.
type Handler struct {
	Chain       *middleware.Chain
	Store       *store.EventStore
	CanSee      CanSee
	ScopeConfig scope.Config
	RelayURL    string
	ChannelSize int
	Log         zerolog.Logger
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sc := scope.Resolve(h.ScopeConfig, r.Host)
	connID := uuid.NewString()
	state := session.New(connID, h.RelayURL, sc)
	log := h.Log.With().Str("connection_id", connID).Str("scope", sc.String()).Logger()

	actor := New(conn, h.Chain, h.Store, h.CanSee, state, sc, h.ChannelSize, log)
	actor.Run(r.Context())
}
