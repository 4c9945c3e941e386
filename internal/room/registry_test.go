package room

import (
	"sync"
	"testing"
)

// fakeMember records everything delivered to it.
type fakeMember struct {
	key    string
	userID string

	mu       sync.Mutex
	received []interface{}
}

func (f *fakeMember) SessionKey() string { return f.key }
func (f *fakeMember) UserID() string     { return f.userID }

func (f *fakeMember) Deliver(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, v)
}

func (f *fakeMember) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestJoinAndLeave(t *testing.T) {
	r := NewRegistry()
	m := &fakeMember{key: "sess1", userID: "u1"}

	if err := r.Join("c1", m); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if got := r.MemberCount("c1"); got != 1 {
		t.Errorf("MemberCount = %d, want 1", got)
	}

	if err := r.Join("c1", m); err != ErrAlreadyJoined {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}

	r.Leave("c1", "sess1")
	if got := r.MemberCount("c1"); got != 0 {
		t.Errorf("MemberCount after leave = %d, want 0", got)
	}

	// Idempotent leave, including unknown groups.
	r.Leave("c1", "sess1")
	r.Leave("never-existed", "sess1")
}

func TestJoinNilMember(t *testing.T) {
	r := NewRegistry()
	if err := r.Join("c1", nil); err != ErrNilMember {
		t.Errorf("expected ErrNilMember, got %v", err)
	}
}

// TestBroadcastAll verifies a board_update reaches every member of the
// group, including the sender: a user on two devices stays in sync.
func TestBroadcastAll(t *testing.T) {
	r := NewRegistry()
	sender := &fakeMember{key: "sess1", userID: "u1"}
	other := &fakeMember{key: "sess2", userID: "u2"}
	secondDevice := &fakeMember{key: "sess3", userID: "u1"}
	outsider := &fakeMember{key: "sess4", userID: "u3"}

	for _, m := range []*fakeMember{sender, other, secondDevice} {
		if err := r.Join("c1", m); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	if err := r.Join("c2", outsider); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	r.BroadcastAll("c1", "update")

	for _, m := range []*fakeMember{sender, other, secondDevice} {
		if m.count() != 1 {
			t.Errorf("member %s received %d events, want 1", m.key, m.count())
		}
	}
	if outsider.count() != 0 {
		t.Errorf("outsider received %d events, want 0", outsider.count())
	}
}

// TestBroadcastExcept verifies presence-style events skip the
// originator and only the originator.
func TestBroadcastExcept(t *testing.T) {
	r := NewRegistry()
	sender := &fakeMember{key: "sess1", userID: "u1"}
	a := &fakeMember{key: "sess2", userID: "u2"}
	b := &fakeMember{key: "sess3", userID: "u3"}

	for _, m := range []*fakeMember{sender, a, b} {
		if err := r.Join("c1", m); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	r.BroadcastExcept("c1", "sess1", "presence")

	if sender.count() != 0 {
		t.Errorf("sender received %d events, want 0", sender.count())
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("receivers got (%d, %d) events, want (1, 1)", a.count(), b.count())
	}
}

func TestBroadcastEmptyGroup(t *testing.T) {
	r := NewRegistry()
	// Must not panic.
	r.BroadcastAll("empty", "x")
	r.BroadcastExcept("empty", "sess1", "x")
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	_ = r.Join("c1", &fakeMember{key: "s1", userID: "u1"})
	_ = r.Join("c1", &fakeMember{key: "s2", userID: "u2"})
	_ = r.Join("c2", &fakeMember{key: "s3", userID: "u3"})

	stats := r.Stats()
	if stats["active_classrooms"] != 2 {
		t.Errorf("active_classrooms = %d, want 2", stats["active_classrooms"])
	}
	if stats["total_members"] != 3 {
		t.Errorf("total_members = %d, want 3", stats["total_members"])
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m := &fakeMember{key: string(rune('a' + n)), userID: "u"}
			_ = r.Join("c1", m)
			r.BroadcastAll("c1", "event")
			r.Leave("c1", m.SessionKey())
		}(i)
	}
	wg.Wait()

	if got := r.MemberCount("c1"); got != 0 {
		t.Errorf("MemberCount after concurrent churn = %d, want 0", got)
	}
}
