// Package memory keeps bounded per-session conversation history for
// the chat endpoint. Sessions hold at most MaxTurns exchanges and
// expire after a TTL of inactivity.
package memory

import (
	"context"
	"sync"
	"time"
)

// Turn is one user/assistant exchange.
type Turn struct {
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	CreatedAt        time.Time `json:"created_at"`
}

// SessionStats summarizes the store for the stats endpoint.
type SessionStats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalTurns     int `json:"total_turns"`
}

type session struct {
	turns      []Turn
	lastActive time.Time
}

// Store is an in-memory session store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	maxTurns int
	ttl      time.Duration

	now func() time.Time // test hook
}

// NewStore creates a session store. maxTurns caps history per session
// as a sliding window; ttl evicts idle sessions.
func NewStore(maxTurns int, ttl time.Duration) *Store {
	if maxTurns < 1 {
		maxTurns = 10
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
	}
}

// StartReaper launches a goroutine that evicts expired sessions until
// ctx is cancelled.
func (s *Store) StartReaper(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.evictExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Append records one exchange for a session, keeping only the most
// recent maxTurns turns.
func (s *Store) Append(sessionID, userMessage, assistantMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &session{}
		s.sessions[sessionID] = sess
	}

	sess.turns = append(sess.turns, Turn{
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		CreatedAt:        now,
	})
	if len(sess.turns) > s.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
	sess.lastActive = now
}

// History returns a copy of the session's turns, oldest first, or nil
// for an unknown or expired session. Reading refreshes the TTL.
func (s *Store) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return nil
	}

	now := s.now()
	if now.Sub(sess.lastActive) > s.ttl {
		delete(s.sessions, sessionID)
		return nil
	}
	sess.lastActive = now

	turns := make([]Turn, len(sess.turns))
	copy(turns, sess.turns)
	return turns
}

// Clear removes a session. Returns whether the session existed.
func (s *Store) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// Stats reports active session and turn counts, after evicting
// expired sessions.
func (s *Store) Stats() SessionStats {
	s.evictExpired()

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SessionStats{ActiveSessions: len(s.sessions)}
	for _, sess := range s.sessions {
		stats.TotalTurns += len(sess.turns)
	}
	return stats
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActive) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
