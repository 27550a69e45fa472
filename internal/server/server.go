package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livetemplate/karigar/internal/assets"
	"github.com/livetemplate/karigar/internal/config"
	"github.com/livetemplate/karigar/internal/controller"
	"github.com/livetemplate/karigar/internal/generate"
	"github.com/livetemplate/karigar/internal/metrics"
	"github.com/livetemplate/karigar/internal/session"
)

// sweepInterval is how often idle sessions are expired.
const sweepInterval = time.Minute

// Server serves the creation page and relays submissions to the backend.
type Server struct {
	config   *config.Config
	sessions *session.Manager
	recorder *metrics.PrometheusRecorder
	page     *pageRenderer
	// statusPath is the status fragment each websocket renders with livetemplate.
	statusPath    string
	statusCleanup func()
	mux           *http.ServeMux
	handler       http.Handler

	connections map[*websocket.Conn]*wsConn
	connMu      sync.RWMutex

	watcher *Watcher

	cancel context.CancelFunc
	done   []<-chan struct{}
}

// New creates a server that talks to the backend configured in cfg.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if config.IsDebug() {
		log.Printf("[Server] Submissions go to %s", backendLabel(cfg.Backend))
	}
	return NewWithGenerator(cfg, generate.NewClientWithConfig(cfg.Backend))
}

// NewWithGenerator creates a server that sends submissions to gen.
func NewWithGenerator(cfg *config.Config, gen generate.Generator) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	page, err := newPageRenderer(cfg.Server.TemplateDir)
	if err != nil {
		return nil, err
	}

	statusPath, statusCleanup, err := statusSource(cfg.Server.TemplateDir)
	if err != nil {
		return nil, err
	}
	// Parse once up front so a broken fragment fails at startup, not per socket.
	if _, err := newStatusRenderer(statusPath); err != nil {
		statusCleanup()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:        cfg,
		recorder:      metrics.NewPrometheusRecorder(),
		page:          page,
		statusPath:    statusPath,
		statusCleanup: statusCleanup,
		mux:           http.NewServeMux(),
		connections:   make(map[*websocket.Conn]*wsConn),
		cancel:        cancel,
	}
	s.sessions = session.NewManager(func() *controller.Controller {
		return controller.New(gen, s.recorder)
	}, cfg.Sessions.GetTTL(), cfg.Sessions.GetMaxSessions())
	s.done = append(s.done, s.sessions.Run(ctx, sweepInterval))

	limit, limitDone := RateLimitMiddleware(ctx, cfg.RateLimit.GetRPS(), cfg.RateLimit.GetBurst(), 0)
	s.done = append(s.done, limitDone)

	s.routes(limit)
	s.handler = SecurityHeadersMiddleware()(WithCompression(s.mux))
	return s, nil
}

func (s *Server) routes(limit func(http.Handler) http.Handler) {
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.Handle("POST /actions/submit", limit(http.HandlerFunc(s.handleSubmit)))
	s.mux.Handle("POST /actions/reset", limit(http.HandlerFunc(s.handleReset)))
	s.mux.HandleFunc("GET /view", s.handleView)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /assets/{name}", s.handleAsset)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.config.Features.Metrics {
		s.mux.Handle("GET /metrics", s.recorder.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Close stops background work, the watcher, and every session.
func (s *Server) Close() error {
	s.cancel()
	for _, done := range s.done {
		<-done
	}
	err := s.StopWatch()
	s.sessions.Close()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connections = make(map[*websocket.Conn]*wsConn)
	s.connMu.Unlock()

	s.statusCleanup()
	return err
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	_, ctrl := s.sessions.Ensure(w, r)
	v := ctrl.View()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.page.Render(w, s.pageData(v)); err != nil {
		log.Printf("[Server] Failed to render page: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	_, ctrl := s.sessions.Ensure(w, r)
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := readAsset(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", assets.ContentType(name))
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}
