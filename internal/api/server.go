package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/bryanchriswhite/portalcast/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Status is the view of the backend the API serves.
type Status interface {
	Sessions() []session.Session
	Casts() []cast.Binding
	Outputs(ctx context.Context) ([]display.Output, error)
	CloseSession(handle string) bool
	Subscribe() chan screencast.Event
	Unsubscribe(ch chan screencast.Event)
}

// Server represents the HTTP status API server
type Server struct {
	router   *mux.Router
	status   Status
	version  string
	upgrader websocket.Upgrader
}

// CastView is the JSON form of a live cast
type CastView struct {
	Handle string         `json:"handle"`
	NodeID uint32         `json:"node_id"`
	Output display.Output `json:"output"`
}

// NewServer creates a new API server
func NewServer(status Status, version string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		status:  status,
		version: version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin(r.Header.Get("Origin"))
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/sessions", s.handleGetSessions).Methods("GET")
	api.HandleFunc("/sessions/{handle:.+}", s.handleCloseSession).Methods("DELETE")

	api.HandleFunc("/casts", s.handleGetCasts).Methods("GET")
	api.HandleFunc("/outputs", s.handleGetOutputs).Methods("GET")

	api.HandleFunc("/events", s.handleEvents)
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on addr until ctx is done. Only loopback addresses are accepted.
func (s *Server) Start(ctx context.Context, addr string) error {
	if err := checkLoopback(addr); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Status API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status API: %w", err)
	}
	return nil
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("refusing to serve the status API on non-loopback address %q", addr)
}

// allowedOrigin accepts requests without an Origin header and pages served
// from a loopback host.
func allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !allowedOrigin(origin) {
			logger.WithComponent("api").Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("Rejected cross-origin request")
			http.Error(w, "Forbidden origin", http.StatusForbidden)
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":   "healthy",
		"version":  s.version,
		"sessions": len(s.status.Sessions()),
		"casts":    len(s.status.Casts()),
	})
}

func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.Sessions())
}

func (s *Server) handleGetCasts(w http.ResponseWriter, r *http.Request) {
	bindings := s.status.Casts()
	views := make([]CastView, 0, len(bindings))
	for _, b := range bindings {
		views = append(views, CastView{Handle: b.Handle, NodeID: b.NodeID(), Output: b.Output})
	}
	writeJSON(w, views)
}

func (s *Server) handleGetOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := s.status.Outputs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, outputs)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	if !strings.HasPrefix(handle, "/") {
		handle = "/" + handle
	}

	if !s.status.CloseSession(handle) {
		http.Error(w, "No such session", http.StatusNotFound)
		return
	}

	logger.WithSession("api", handle).Info().Msg("Session closed through the status API")
	writeJSON(w, map[string]string{"status": "closed", "handle": handle})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.status.Subscribe()
	defer s.status.Unsubscribe(updates)

	// The client never sends; a read error means it went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.status.Unsubscribe(updates)
				return
			}
		}
	}()

	for ev := range updates {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}
