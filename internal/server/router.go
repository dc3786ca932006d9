// Package server hosts the HTTP surface: the WebSocket upgrade
// endpoint, health routes and a small status view over live sessions.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/config"
	"github.com/patdiletx/DevMeet/internal/session"
	"github.com/patdiletx/DevMeet/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The desktop client connects from a file:// origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the main HTTP server.
type Server struct {
	server *http.Server
	addr   string
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(cfg *config.Config, hub *ws.Hub, sessions *session.Store) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Status view over the live registries
	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		type sessionStatus struct {
			SessionID  string `json:"sessionId"`
			State      string `json:"state"`
			Queued     int    `json:"queued"`
			Processed  int    `json:"processed"`
			Processing bool   `json:"processing"`
		}
		out := struct {
			Connections int             `json:"connections"`
			Sessions    []sessionStatus `json:"sessions"`
		}{
			Connections: hub.Len(),
			Sessions:    []sessionStatus{},
		}
		for _, s := range sessions.List() {
			out.Sessions = append(out.Sessions, sessionStatus{
				SessionID:  s.ID,
				State:      s.State().String(),
				Queued:     s.QueueLen(),
				Processed:  s.Processed(),
				Processing: s.Processing(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	// WebSocket endpoint
	r.Get(cfg.WSPath, func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		client := hub.Register(conn)
		go client.WritePump(cfg.HeartbeatInterval)
		go client.ReadPump()
	})

	return r
}

// NewServer wraps the router in an http.Server.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:        addr,
			Handler:     handler,
			IdleTimeout: 120 * time.Second,
		},
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
