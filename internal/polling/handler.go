// Package polling serves the Engine.IO long-polling transport that browser
// clients use to receive mailbox updates.
package polling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.io/infrasutra/shortmail/internal/engineio"
	"github.io/infrasutra/shortmail/internal/session"
	"github.io/infrasutra/shortmail/internal/store"
)

const (
	pingInterval   = 25 * time.Second
	pingTimeout    = 20 * time.Second
	historyLimit   = 50
	maxPostBytes   = 1 << 20
	historyTimeout = 10 * time.Second
)

// HistorySource returns stored mail for a mailbox, newest first.
type HistorySource interface {
	QueryRecent(ctx context.Context, mailbox string, limit int) ([]store.Mail, error)
}

// Blacklist reports mailbox ids that clients may not claim.
type Blacklist interface {
	Blacklisted(mailbox string) bool
}

type Handler struct {
	registry  *session.Registry
	history   HistorySource
	blacklist Blacklist
	idle      time.Duration
	logger    *slog.Logger
	now       func() time.Time
	loads     sync.WaitGroup
}

func NewHandler(registry *session.Registry, history HistorySource, blacklist Blacklist, idle time.Duration, logger *slog.Logger) *Handler {
	if idle <= 0 {
		idle = session.IdleTimeout
	}
	return &Handler{
		registry:  registry,
		history:   history,
		blacklist: blacklist,
		idle:      idle,
		logger:    logger,
		now:       time.Now,
	}
}

// Wait blocks until every background history load has finished. Call it
// only after the HTTP server has stopped serving requests, since handlers
// start new loads.
func (h *Handler) Wait() {
	h.loads.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	query := r.URL.Query()
	if query.Get("transport") != "polling" {
		h.respondText(w, http.StatusBadRequest, "unsupported transport")
		return
	}

	sid := query.Get("sid")
	switch {
	case r.Method == http.MethodGet && sid == "":
		h.handleOpen(w)
	case r.Method == http.MethodGet:
		h.handlePoll(w, sid)
	case r.Method == http.MethodPost && sid != "":
		h.handlePost(w, r, sid)
	default:
		h.respondText(w, http.StatusBadRequest, "bad request")
	}
}

func (h *Handler) handleOpen(w http.ResponseWriter) {
	sid := h.registry.Create(h.now(), engineio.Connect())
	open := engineio.Open(engineio.Handshake{
		SID:          sid,
		PingInterval: int(pingInterval / time.Millisecond),
		PingTimeout:  int(pingTimeout / time.Millisecond),
	})
	queued, _ := h.registry.Drain(sid)
	h.logger.Debug("open session", "sid", sid)
	h.respondText(w, http.StatusOK, engineio.EncodePackets(append([]engineio.Packet{open}, queued...)))
}

func (h *Handler) handlePoll(w http.ResponseWriter, sid string) {
	packets, ok := h.registry.Poll(sid, h.now())
	if !ok {
		h.respondText(w, http.StatusBadRequest, "unknown sid")
		return
	}
	if len(packets) == 0 {
		packets = []engineio.Packet{engineio.Noop()}
	}
	h.respondText(w, http.StatusOK, engineio.EncodePackets(packets))
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request, sid string) {
	now := h.now()
	if !h.registry.Touch(sid, now) {
		h.respondText(w, http.StatusBadRequest, "unknown sid")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPostBytes))
	if err != nil {
		h.respondText(w, http.StatusBadRequest, "unable to read body")
		return
	}

	for _, raw := range engineio.DecodePayload(string(body)) {
		packet, ok := engineio.Parse(raw)
		if !ok {
			continue
		}
		switch packet.Type {
		case engineio.TypePing:
			h.registry.Enqueue(sid, engineio.Pong())
		case engineio.TypeEvent:
			h.dispatch(sid, packet)
		}
	}

	if removed := h.registry.Sweep(now, h.idle); removed > 0 {
		h.logger.Info("sweep idle sessions", "removed", removed)
	}
	h.respondText(w, http.StatusOK, "ok")
}

func (h *Handler) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
