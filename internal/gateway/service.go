package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/auth"
	"github.com/openbid/auctiond/internal/bus"
	"github.com/openbid/auctiond/internal/chat"
)

// Config holds the connection tuning knobs.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	HandlerTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		HandlerTimeout:  5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development, restrict in production.
			return true
		},
	}
}

// Service owns the WebSocket surface: it authenticates and upgrades
// connections, routes their events, and re-broadcasts bus events from other
// processes to local room members.
type Service struct {
	cfg         Config
	hub         *Hub
	broadcaster *Broadcaster
	eventBus    bus.Bus
	ctrl        *auction.Controller
	relay       *chat.Relay
	verifier    *auth.Verifier
	upgrader    websocket.Upgrader
}

func NewService(
	cfg Config,
	hub *Hub,
	broadcaster *Broadcaster,
	eventBus bus.Bus,
	ctrl *auction.Controller,
	relay *chat.Relay,
	verifier *auth.Verifier,
) *Service {
	return &Service{
		cfg:         cfg,
		hub:         hub,
		broadcaster: broadcaster,
		eventBus:    eventBus,
		ctrl:        ctrl,
		relay:       relay,
		verifier:    verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// RegisterRoutes mounts the WebSocket and stats endpoints.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/stats", s.handleStats)
}

// HandleWS authenticates the request and upgrades it. An invalid or missing
// token is a connection-level rejection; no event is processed for it.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected unauthenticated connection")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	conn := newConn(ws, identity, s)
	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.id).
		Str("user_id", identity).
		Msg("connection established")
}

// bearerToken pulls the identity token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	total, perRoom := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"total_connections": total,
		"rooms":             perRoom,
	})
}

// RunBusConsumer re-broadcasts bus events from other processes to local
// room members. Events this process originated are skipped; they were
// delivered locally at emit time and must not loop.
func (s *Service) RunBusConsumer(ctx context.Context) error {
	ch, stop, err := s.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stop()

	log.Info().Str("instance", s.broadcaster.InstanceID()).Msg("bus consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bus consumer shutting down")
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Origin == s.broadcaster.InstanceID() {
				continue
			}
			s.hub.Broadcast(ev.Room, ev.Type, ev.Data)
		}
	}
}
