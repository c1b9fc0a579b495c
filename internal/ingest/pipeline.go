// Package ingest decides whether an inbound message is accepted, stores it,
// and notifies the sessions watching its mailbox.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.io/infrasutra/shortmail/internal/clientmail"
	"github.io/infrasutra/shortmail/internal/mimeparse"
	"github.io/infrasutra/shortmail/internal/store"
)

// Result is a policy outcome. Rejections carry a human-readable reason.
type Result struct {
	Accepted bool
	Reason   string
}

func reject(reason string) Result {
	return Result{Reason: reason}
}

type Store interface {
	Insert(ctx context.Context, mail store.Mail) error
}

type Notifier interface {
	Notify(mailbox string, payload json.RawMessage) int
}

type Pipeline struct {
	policy   Policy
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewPipeline(policy Policy, store Store, notifier Notifier, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		policy:   policy,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Accept validates one delivery, then parses, stores and announces it.
// Policy rejections come back as a Result; storage failures as an error.
func (p *Pipeline) Accept(ctx context.Context, from, to string, body io.Reader) (Result, error) {
	result := p.policy.Check(from, to)
	if !result.Accepted {
		p.logger.Info("reject mail", "from", from, "to", to, "reason", result.Reason)
		return result, nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return Result{}, fmt.Errorf("read mail body: %w", err)
	}
	parsed := mimeparse.Parse(string(raw))

	mailbox, _ := ParseAddress(to)
	record := store.Mail{
		Mailbox:   mailbox,
		Subject:   parsed.Subject,
		Text:      parsed.Text,
		HTML:      parsed.HTML,
		Sender:    normalizeSender(from),
		CreatedAt: p.now().Unix(),
	}
	if err := p.store.Insert(ctx, record); err != nil {
		return Result{}, err
	}

	listeners := p.notifier.Notify(mailbox, clientmail.Payload(record))
	p.logger.Info("store mail", "mailbox", mailbox, "from", record.Sender, "listeners", listeners)
	return Result{Accepted: true}, nil
}

func normalizeSender(from string) string {
	if local, domain := ParseAddress(from); local != "" {
		return local + "@" + domain
	}
	return strings.ToLower(strings.TrimSpace(from))
}
