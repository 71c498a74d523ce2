package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendAndHistory(t *testing.T) {
	s := NewStore(10, time.Minute)

	s.Append("sess-1", "hello", "hi there")
	s.Append("sess-1", "how are you", "fine")

	turns := s.History("sess-1")
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].UserMessage != "hello" || turns[1].AssistantMessage != "fine" {
		t.Errorf("unexpected turns: %+v", turns)
	}

	if got := s.History("unknown"); got != nil {
		t.Errorf("unknown session should return nil, got %v", got)
	}
}

func TestSlidingWindow(t *testing.T) {
	s := NewStore(3, time.Minute)

	for i := 0; i < 5; i++ {
		s.Append("sess", fmt.Sprintf("user %d", i), fmt.Sprintf("assistant %d", i))
	}

	turns := s.History("sess")
	if len(turns) != 3 {
		t.Fatalf("expected window of 3 turns, got %d", len(turns))
	}
	if turns[0].UserMessage != "user 2" {
		t.Errorf("oldest kept turn = %q, want user 2", turns[0].UserMessage)
	}
	if turns[2].UserMessage != "user 4" {
		t.Errorf("newest turn = %q, want user 4", turns[2].UserMessage)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewStore(10, time.Minute)

	current := time.Unix(1000, 0)
	s.now = func() time.Time { return current }

	s.Append("sess", "hello", "hi")

	current = current.Add(59 * time.Second)
	if turns := s.History("sess"); len(turns) != 1 {
		t.Fatalf("session expired too early, got %d turns", len(turns))
	}

	// The read refreshed the TTL; move past it from there.
	current = current.Add(61 * time.Second)
	if turns := s.History("sess"); turns != nil {
		t.Errorf("expected expired session, got %v", turns)
	}

	stats := s.Stats()
	if stats.ActiveSessions != 0 {
		t.Errorf("active sessions = %d, want 0", stats.ActiveSessions)
	}
}

func TestHistoryCopyIsIndependent(t *testing.T) {
	s := NewStore(10, time.Minute)
	s.Append("sess", "original", "reply")

	turns := s.History("sess")
	turns[0].UserMessage = "mutated"

	again := s.History("sess")
	if again[0].UserMessage != "original" {
		t.Errorf("history was mutated through the returned copy")
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10, time.Minute)
	s.Append("sess", "hello", "hi")

	if !s.Clear("sess") {
		t.Error("Clear should report the session existed")
	}
	if s.Clear("sess") {
		t.Error("second Clear should report missing session")
	}
	if turns := s.History("sess"); turns != nil {
		t.Errorf("expected nil after clear, got %v", turns)
	}
}

func TestStats(t *testing.T) {
	s := NewStore(10, time.Minute)
	s.Append("a", "1", "1")
	s.Append("a", "2", "2")
	s.Append("b", "1", "1")

	stats := s.Stats()
	if stats.ActiveSessions != 2 {
		t.Errorf("active sessions = %d, want 2", stats.ActiveSessions)
	}
	if stats.TotalTurns != 3 {
		t.Errorf("total turns = %d, want 3", stats.TotalTurns)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(5, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", n%2)
			for j := 0; j < 50; j++ {
				s.Append(id, "u", "a")
				s.History(id)
				s.Stats()
			}
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	if stats.ActiveSessions != 2 {
		t.Errorf("active sessions = %d, want 2", stats.ActiveSessions)
	}
}
