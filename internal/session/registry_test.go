package session

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.io/infrasutra/shortmail/internal/engineio"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCreateAndDrain(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Create(t0, engineio.Connect())

	s, ok := r.Get(id)
	if !ok {
		t.Fatal("session not registered")
	}
	if s.ID != id {
		t.Errorf("ID: got %q, want %q", s.ID, id)
	}
	if s.Pending != 1 {
		t.Errorf("Pending: got %d, want 1", s.Pending)
	}

	r.Enqueue(id, engineio.Pong(), engineio.StringEvent("shortid", "abc"))
	packets, ok := r.Drain(id)
	if !ok {
		t.Fatal("Drain: unknown session")
	}
	want := []string{"40", "3", `42["shortid","abc"]`}
	if len(packets) != len(want) {
		t.Fatalf("got %d packets, want %d", len(packets), len(want))
	}
	for i, p := range packets {
		if p.String() != want[i] {
			t.Errorf("packet %d: got %q, want %q", i, p.String(), want[i])
		}
	}

	packets, _ = r.Drain(id)
	if len(packets) != 0 {
		t.Errorf("second drain: got %d packets, want 0", len(packets))
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Error("Get: expected miss")
	}
	if r.Touch("missing", t0) {
		t.Error("Touch: expected false")
	}
	if r.Enqueue("missing", engineio.Pong()) {
		t.Error("Enqueue: expected false")
	}
	if _, ok := r.Drain("missing"); ok {
		t.Error("Drain: expected false")
	}
	if r.Bind("missing", "box") {
		t.Error("Bind: expected false")
	}
}

func TestBindMovesSessionBetweenMailboxes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Create(t0)
	r.Bind(id, "a")
	r.Bind(id, "b")

	if got := r.Members("a"); len(got) != 0 {
		t.Errorf("mailbox a: got %v, want empty", got)
	}
	if got := r.Members("b"); len(got) != 1 || got[0] != id {
		t.Errorf("mailbox b: got %v, want [%s]", got, id)
	}
	s, _ := r.Get(id)
	if s.Mailbox != "b" {
		t.Errorf("Mailbox: got %q, want %q", s.Mailbox, "b")
	}
}

func TestNotifyReachesOnlyBoundSessions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a1 := r.Create(t0)
	a2 := r.Create(t0)
	b := r.Create(t0)
	idle := r.Create(t0)
	r.Bind(a1, "a")
	r.Bind(a2, "a")
	r.Bind(b, "b")

	n := r.Notify("a", json.RawMessage(`{"subject":"hi"}`))
	if n != 2 {
		t.Errorf("Notify: got %d recipients, want 2", n)
	}

	for _, id := range []string{a1, a2} {
		packets, _ := r.Drain(id)
		if len(packets) != 1 || packets[0].String() != `42["mail",{"subject":"hi"}]` {
			t.Errorf("session %s: got %v", id, packets)
		}
	}
	for _, id := range []string{b, idle} {
		if packets, _ := r.Drain(id); len(packets) != 0 {
			t.Errorf("session %s: got %d packets, want 0", id, len(packets))
		}
	}

	if n := r.Notify("nobody", json.RawMessage(`{}`)); n != 0 {
		t.Errorf("Notify without listeners: got %d, want 0", n)
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	stale := r.Create(t0)
	fresh := r.Create(t0)
	r.Bind(stale, "box")
	r.Bind(fresh, "box")
	r.Touch(fresh, t0.Add(50*time.Minute))

	removed := r.Sweep(t0.Add(61*time.Minute), IdleTimeout)
	if removed != 1 {
		t.Errorf("Sweep: got %d removed, want 1", removed)
	}
	if _, ok := r.Get(stale); ok {
		t.Error("stale session still registered")
	}
	if got := r.Members("box"); len(got) != 1 || got[0] != fresh {
		t.Errorf("mailbox members: got %v, want [%s]", got, fresh)
	}

	r.Sweep(t0.Add(200*time.Minute), IdleTimeout)
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
	if got := r.Members("box"); len(got) != 0 {
		t.Errorf("mailbox members after full sweep: got %v", got)
	}
}

func TestConcurrentBindKeepsSingleMembership(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Create(t0)
	boxes := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Bind(id, boxes[i%len(boxes)])
			r.Notify(boxes[(i+1)%len(boxes)], json.RawMessage(`{}`))
		}(i)
	}
	wg.Wait()

	var memberOf []string
	for _, box := range boxes {
		for _, member := range r.Members(box) {
			if member == id {
				memberOf = append(memberOf, box)
			}
		}
	}
	sort.Strings(memberOf)
	s, _ := r.Get(id)
	if len(memberOf) != 1 || memberOf[0] != s.Mailbox {
		t.Errorf("session is a member of %v, bound to %q", memberOf, s.Mailbox)
	}
}

func TestPollTouchesAndDrains(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Create(t0, engineio.Connect())
	later := t0.Add(30 * time.Minute)

	packets, ok := r.Poll(id, later)
	if !ok {
		t.Fatal("Poll: unknown session")
	}
	if len(packets) != 1 || packets[0].String() != "40" {
		t.Errorf("packets: got %v, want the connect ack", packets)
	}
	s, _ := r.Get(id)
	if !s.LastActivity.Equal(later) || s.Pending != 0 {
		t.Errorf("after Poll: got %+v", s)
	}

	// A session polled at 30m is not idle at 61m.
	if removed := r.Sweep(t0.Add(61*time.Minute), IdleTimeout); removed != 0 {
		t.Errorf("Sweep: removed %d, want 0", removed)
	}
	if _, ok := r.Poll("missing", later); ok {
		t.Error("Poll: unknown id reported ok")
	}
}
