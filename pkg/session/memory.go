package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-memory map. The console
// deliberately has no session database; a restart signs everyone out and the
// identity provider signs them back in. Expired entries are dropped lazily
// on lookup and swept by the optional cleanup routine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Session
	ttl     time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Session),
		ttl:     ttl,
	}
}

// Create persists a new session. A zero ExpiresAt is stamped from the
// store's TTL so callers cannot accidentally create an immortal session.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = time.Now().Add(s.ttl)
	}
	s.entries[sess.ID] = sess
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired;
// expired entries are removed on the spot.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.entries[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.entries, id)
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for expired
	}
	return sess, nil
}

// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
// Touching an unknown or already-expired session is a no-op.
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.entries[id]
	if !ok {
		return nil
	}

	now := time.Now()
	if now.After(sess.ExpiresAt) {
		delete(s.entries, id)
		return nil
	}
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// UpdateState merges state into the session's State map. Unknown sessions
// are ignored; the caller's session may have expired mid-request.
func (s *MemoryStore) UpdateState(_ context.Context, id string, state map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.entries[id]
	if !ok {
		return nil
	}
	if sess.State == nil {
		sess.State = make(map[string]any, len(state))
	}
	maps.Copy(sess.State, state)
	return nil
}

// Cleanup removes expired sessions.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, sess := range s.entries {
		if now.After(sess.ExpiresAt) {
			delete(s.entries, id)
		}
	}
	return nil
}

// len reports the number of stored entries, expired or not.
func (s *MemoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartCleanupRoutine starts a background goroutine that periodically sweeps
// expired sessions. The goroutine is stopped when Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				_ = s.Cleanup(context.Background())
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call Close even if StartCleanupRoutine was never called.
func (s *MemoryStore) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
