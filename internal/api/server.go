package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.io/infrasutra/shortmail/internal/config"
	"github.io/infrasutra/shortmail/internal/ingest"
)

const maxInboundBytes = 25 << 20

// Ingester accepts one inbound delivery.
type Ingester interface {
	Accept(ctx context.Context, from, to string, body io.Reader) (ingest.Result, error)
}

// Pinger reports whether the storage collaborator is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many polling sessions are live.
type SessionCounter interface {
	Len() int
}

type Server struct {
	cfg      config.Config
	ingester Ingester
	store    Pinger
	sessions SessionCounter
	polling  http.Handler
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewServer(cfg config.Config, ingester Ingester, store Pinger, sessions SessionCounter, polling http.Handler, logger *slog.Logger) *Server {
	if cfg.PollingPath == "" {
		cfg.PollingPath = "/socket.io/"
	}
	server := &Server{
		cfg:      cfg,
		ingester: ingester,
		store:    store,
		sessions: sessions,
		polling:  polling,
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/inbound", server.handleInbound)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, s.cfg.PollingPath) || path == strings.TrimSuffix(s.cfg.PollingPath, "/") {
		s.polling.ServeHTTP(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/") {
		s.mux.ServeHTTP(w, r)
		return
	}
	if path == "/health" {
		s.handleHealth(w, r)
		return
	}
	if path == "/ready" {
		s.handleReady(w, r)
		return
	}
	http.NotFound(w, r)
}

// handleInbound accepts a raw RFC822 message from an upstream mail relay.
// Envelope addresses come from X-Mail-From and X-Mail-To.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	from := r.Header.Get("X-Mail-From")
	to := r.Header.Get("X-Mail-To")

	result, err := s.ingester.Accept(r.Context(), from, to, http.MaxBytesReader(w, r.Body, maxInboundBytes))
	if err != nil {
		s.logger.Error("ingest inbound mail", "to", to, "error", err)
		http.Error(w, "unable to store mail", http.StatusInternalServerError)
		return
	}
	if !result.Accepted {
		// 550 mirrors the SMTP rejection code for the relay in front of us.
		s.respondText(w, 550, result.Reason)
		return
	}
	s.respondText(w, http.StatusAccepted, "stored")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("store not ready", "error", err)
		s.respondText(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
