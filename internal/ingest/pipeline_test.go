package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.io/infrasutra/shortmail/internal/store"
)

type fakeStore struct {
	mails []store.Mail
	err   error
}

func (f *fakeStore) Insert(_ context.Context, mail store.Mail) error {
	if f.err != nil {
		return f.err
	}
	f.mails = append(f.mails, mail)
	return nil
}

type fakeNotifier struct {
	mailbox string
	payload json.RawMessage
	calls   int
}

func (f *fakeNotifier) Notify(mailbox string, payload json.RawMessage) int {
	f.mailbox = mailbox
	f.payload = payload
	f.calls++
	return 1
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyDecisionOrder(t *testing.T) {
	t.Parallel()

	policy := NewPolicy([]string{"example.com"}, nil, []string{"spam.test"})
	tests := []struct {
		name string
		from string
		to   string
		want string
	}{
		{"invalid recipient", "a@b.c", "not-an-address", ReasonInvalidRecipient},
		{"empty recipient", "a@b.c", "", ReasonInvalidRecipient},
		{"foreign domain", "a@b.c", "box@other.com", ReasonDomainRejected},
		{"blacklisted", "a@b.c", "Admin@example.com", ReasonBlacklisted},
		{"domain checked before blacklist", "a@b.c", "admin@other.com", ReasonDomainRejected},
		{"banned sender", "bot@SPAM.test", "box@example.com", ReasonSenderBlocked},
		{"blacklist before sender ban", "bot@spam.test", "postmaster@example.com", ReasonBlacklisted},
		{"accepted", "Someone <friend@ok.test>", "Box <Box@Example.com>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Check(tt.from, tt.to)
			if tt.want == "" {
				if !got.Accepted {
					t.Errorf("got rejection %q, want accept", got.Reason)
				}
				return
			}
			if got.Accepted || got.Reason != tt.want {
				t.Errorf("got %+v, want reason %q", got, tt.want)
			}
		})
	}
}

func TestPolicyWithoutDomainAcceptsAnyDomain(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(nil, nil, nil)
	if got := policy.Check("a@b.c", "box@anywhere.test"); !got.Accepted {
		t.Errorf("got rejection %q", got.Reason)
	}
}

func TestPolicyCustomBlacklistReplacesDefault(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(nil, []string{"root"}, nil)
	if !policy.Blacklisted("ROOT") {
		t.Error("root should be blacklisted")
	}
	if policy.Blacklisted("admin") {
		t.Error("admin should not be blacklisted with a custom list")
	}
}

func TestParseList(t *testing.T) {
	t.Parallel()

	got := ParseList(" Admin, ,ROOT ,mail")
	want := []string{"admin", "root", "mail"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAcceptStoresAndNotifies(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	notifier := &fakeNotifier{}
	p := NewPipeline(NewPolicy([]string{"example.com"}, nil, nil), st, notifier, discardLogger())
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	raw := "From: Friend <friend@ok.test>\r\nSubject: Hi there\r\n\r\nHello"
	result, err := p.Accept(context.Background(), "Friend@OK.test", "Box@example.com", strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("rejected: %q", result.Reason)
	}

	if len(st.mails) != 1 {
		t.Fatalf("stored %d mails, want 1", len(st.mails))
	}
	m := st.mails[0]
	if m.Mailbox != "box" {
		t.Errorf("Mailbox: got %q, want %q", m.Mailbox, "box")
	}
	if m.Subject != "Hi there" || m.Text != "Hello" || m.HTML != "<pre>Hello</pre>" {
		t.Errorf("parsed fields: got %+v", m)
	}
	if m.Sender != "friend@ok.test" {
		t.Errorf("Sender: got %q", m.Sender)
	}
	if m.CreatedAt != 1700000000 {
		t.Errorf("CreatedAt: got %d", m.CreatedAt)
	}

	if notifier.calls != 1 || notifier.mailbox != "box" {
		t.Fatalf("notify: got %d calls on %q", notifier.calls, notifier.mailbox)
	}
	var payload map[string]string
	if err := json.Unmarshal(notifier.payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["subject"] != "Hi there" || payload["date"] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("payload: got %v", payload)
	}
}

func TestAcceptRejectsBlacklistedRecipient(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	notifier := &fakeNotifier{}
	p := NewPipeline(NewPolicy(ParseList("example.com"), nil, nil), st, notifier, discardLogger())

	result, err := p.Accept(context.Background(), "a@b.c", "Admin@example.com", strings.NewReader("Subject: x\r\n\r\ny"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "recipient blacklisted" {
		t.Errorf("got %+v, want reason %q", result, "recipient blacklisted")
	}
	if len(st.mails) != 0 || notifier.calls != 0 {
		t.Errorf("rejected mail reached store (%d) or notifier (%d)", len(st.mails), notifier.calls)
	}
}

func TestAcceptPropagatesStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	notifier := &fakeNotifier{}
	p := NewPipeline(NewPolicy(nil, nil, nil), &fakeStore{err: boom}, notifier, discardLogger())

	_, err := p.Accept(context.Background(), "a@b.c", "box@example.com", strings.NewReader("x"))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
	if notifier.calls != 0 {
		t.Error("notifier called after failed insert")
	}
}
