package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/manager"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// HeaderUserID carries the user id set by the upstream session layer
const HeaderUserID = "X-User-Id"

// Config holds what the HTTP layer needs from the process
type Config struct {
	Hub            *events.Hub
	Manager        *manager.Manager
	Health         *metrics.HealthChecker
	SendBuffer     int
	AllowedOrigins []string
}

// Server serves the realtime websocket, the REST API and the operational
// endpoints
type Server struct {
	hub        *events.Hub
	manager    *manager.Manager
	health     *metrics.HealthChecker
	sendBuffer int
	upgrader   websocket.Upgrader
	router     chi.Router
	http       *http.Server
	logger     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	s := &Server{
		hub:        cfg.Hub,
		manager:    cfg.Manager,
		health:     cfg.Health,
		sendBuffer: cfg.SendBuffer,
		logger:     log.WithComponent("api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health.HealthHandler())
	r.Get("/ready", s.health.ReadyHandler())
	r.Get("/live", s.health.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/realtime/stats", s.handleRealtimeStats)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/plugins", s.handlePluginsList)
			r.Post("/plugins", s.handlePluginInstall)
			r.Post("/plugins/{id}/enable", s.handlePluginEnable)
			r.Post("/plugins/{id}/disable", s.handlePluginDisable)
			r.Delete("/plugins/{id}", s.handlePluginUninstall)

			r.Get("/instances", s.handleInstancesList)
			r.Post("/instances", s.handleInstanceAdd)
			r.Delete("/instances/{id}", s.handleInstanceRemove)

			r.Get("/alerts", s.handleAlertsList)
			r.Post("/alerts", s.handleAlertSet)
			r.Delete("/alerts/{id}", s.handleAlertRemove)
		})
	})
	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Hijacked websocket
// connections are not tracked by net/http; close the hub for those.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handshakeFromRequest collects the user identity a client presented. The
// auth query parameter holds a JSON auth payload; X-User-Id is folded in
// only when neither it nor the userId query parameter is set.
func handshakeFromRequest(r *http.Request) events.Handshake {
	query := r.URL.Query()
	hs := events.Handshake{Query: query}

	if raw := query.Get("auth"); raw != "" {
		var auth map[string]interface{}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&auth); err == nil {
			hs.Auth = auth
		}
	}

	if header := r.Header.Get(HeaderUserID); header != "" {
		if _, ok := hs.Auth[events.UserIDKey]; !ok && query.Get(events.UserIDKey) == "" {
			if hs.Auth == nil {
				hs.Auth = make(map[string]interface{})
			}
			hs.Auth[events.UserIDKey] = header
		}
	}
	return hs
}

// originChecker allows any origin when the list is empty, otherwise only
// the listed hosts or full origins
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Host)]
		return ok
	}
}
