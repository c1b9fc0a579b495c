// Package session holds the in-process state of polling clients: the
// sessions themselves, their outbound packet queues, and the index of
// which sessions are listening on which mailbox.
package session

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.io/infrasutra/shortmail/internal/engineio"
)

// IdleTimeout is how long a session may go without a request before Sweep
// removes it.
const IdleTimeout = 60 * time.Minute

// Session is a snapshot of one polling client.
type Session struct {
	ID           string
	Mailbox      string
	LastActivity time.Time
	Pending      int
}

type entry struct {
	id       string
	mailbox  string
	queue    []engineio.Packet
	lastSeen time.Time
}

// Registry owns every session and the mailbox index. All mutations happen
// under one lock so a session is never a member of two mailboxes.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	mailboxes map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]*entry),
		mailboxes: make(map[string]map[string]struct{}),
	}
}

// Create registers a new session whose queue starts with the given packets.
func (r *Registry) Create(now time.Time, initial ...engineio.Packet) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	e := &entry{
		id:       id,
		queue:    append([]engineio.Packet(nil), initial...),
		lastSeen: now,
	}
	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return Session{ID: e.id, Mailbox: e.mailbox, LastActivity: e.lastSeen, Pending: len(e.queue)}, true
}

// Touch records activity on a session. It reports false for unknown ids.
func (r *Registry) Touch(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.lastSeen = now
	return true
}

// Enqueue appends packets to the tail of a session's queue.
func (r *Registry) Enqueue(id string, packets ...engineio.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.queue = append(e.queue, packets...)
	return true
}

// Drain removes and returns everything queued for a session.
func (r *Registry) Drain(id string) ([]engineio.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	packets := e.queue
	e.queue = nil
	return packets, true
}

// Poll records activity and drains the queue in one step, so a sweep
// cannot remove the session between the two.
func (r *Registry) Poll(id string, now time.Time) ([]engineio.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = now
	packets := e.queue
	e.queue = nil
	return packets, true
}

// Bind moves a session onto a mailbox, leaving whatever mailbox it was on.
func (r *Registry) Bind(id, mailbox string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	if e.mailbox != "" && e.mailbox != mailbox {
		r.unbindLocked(e)
	}
	e.mailbox = mailbox
	members, ok := r.mailboxes[mailbox]
	if !ok {
		members = make(map[string]struct{})
		r.mailboxes[mailbox] = members
	}
	members[id] = struct{}{}
	return true
}

// Notify queues a "mail" event on every session bound to the mailbox and
// returns how many were reached. With no listeners the payload is dropped.
func (r *Registry) Notify(mailbox string, payload json.RawMessage) int {
	packet := engineio.Event("mail", payload)
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.mailboxes[mailbox]
	for id := range members {
		if e, ok := r.sessions[id]; ok {
			e.queue = append(e.queue, packet)
		}
	}
	return len(members)
}

// Members lists the session ids bound to a mailbox.
func (r *Registry) Members(mailbox string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.mailboxes[mailbox]))
	for id := range r.mailboxes[mailbox] {
		ids = append(ids, id)
	}
	return ids
}

// Sweep drops sessions idle for longer than idle and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) <= idle {
			continue
		}
		r.unbindLocked(e)
		delete(r.sessions, id)
		removed++
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) unbindLocked(e *entry) {
	if e.mailbox == "" {
		return
	}
	if members, ok := r.mailboxes[e.mailbox]; ok {
		delete(members, e.id)
		if len(members) == 0 {
			delete(r.mailboxes, e.mailbox)
		}
	}
	e.mailbox = ""
}
