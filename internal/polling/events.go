package polling

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.io/infrasutra/shortmail/internal/clientmail"
	"github.io/infrasutra/shortmail/internal/engineio"
)

const (
	eventRequestShortID = "request shortid"
	eventSetShortID     = "set shortid"
	eventShortID        = "shortid"
	eventMail           = "mail"

	maxMailboxIDLength = 64
	randomIDLength     = 10
)

func (h *Handler) dispatch(sid string, packet engineio.Packet) {
	switch packet.Event {
	case eventRequestShortID:
		h.bind(sid, h.randomMailboxID())
	case eventSetShortID:
		var requested string
		if err := json.Unmarshal(packet.Payload, &requested); err != nil {
			return
		}
		mailbox := SanitizeMailboxID(requested)
		if mailbox == "" || h.blacklisted(mailbox) {
			mailbox = h.randomMailboxID()
		}
		h.bind(sid, mailbox)
	}
}

func (h *Handler) bind(sid, mailbox string) {
	if !h.registry.Bind(sid, mailbox) {
		return
	}
	h.registry.Enqueue(sid, engineio.StringEvent(eventShortID, mailbox))
	h.logger.Debug("bind mailbox", "sid", sid, "mailbox", mailbox)

	h.loads.Add(1)
	go func() {
		defer h.loads.Done()
		h.loadHistory(mailbox, sid)
	}()
}

// loadHistory queues the most recent mail for a mailbox, oldest first.
func (h *Handler) loadHistory(mailbox, sid string) {
	if h.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	mails, err := h.history.QueryRecent(ctx, mailbox, historyLimit)
	if err != nil {
		h.logger.Error("load history", "mailbox", mailbox, "error", err)
		return
	}
	slices.Reverse(mails)
	packets := make([]engineio.Packet, 0, len(mails))
	for _, m := range mails {
		packets = append(packets, engineio.Event(eventMail, clientmail.Payload(m)))
	}
	if len(packets) > 0 {
		h.registry.Enqueue(sid, packets...)
	}
}

func (h *Handler) blacklisted(mailbox string) bool {
	return h.blacklist != nil && h.blacklist.Blacklisted(mailbox)
}

func (h *Handler) randomMailboxID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:randomIDLength]
		if !h.blacklisted(id) {
			return id
		}
	}
}

// SanitizeMailboxID lower-cases a requested id, keeps only [a-z0-9_-] and
// truncates it to 64 characters.
func SanitizeMailboxID(requested string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(requested) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			b.WriteRune(c)
			if b.Len() == maxMailboxIDLength {
				break
			}
		}
	}
	return b.String()
}
