package session

import (
	"errors"
	"sort"
	"sync"
)

// Repository defines the concurrency-safe contract for the session registry.
type Repository interface {
	// Create registers a new session. It fails if the id is taken.
	Create(s *Session) error

	// Get returns the session and its ended flag. The ok return is false if
	// the session does not exist.
	Get(id SessionID) (s *Session, ended bool, ok bool)

	// End marks a session as ended and returns it. Only the first call for a
	// session succeeds; later calls return ErrSessionEnded.
	End(id SessionID) (*Session, error)

	// ActiveSessions returns the sessions that are not ended, oldest first.
	ActiveSessions() []*Session

	// ActiveSessionCount returns the number of sessions that are not ended.
	// Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when operating on a session that has ended.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Create implements Repository.Create.
func (r *InMemoryRepository) Create(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetSession(s.ID); exists {
		return ErrSessionExists
	}
	r.store.SetSession(s)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id SessionID) (*Session, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		return nil, false, false
	}
	return s, s.Ended, true
}

// End implements Repository.End.
func (r *InMemoryRepository) End(id SessionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Ended {
		return nil, ErrSessionEnded
	}
	s.Ended = true
	return s, nil
}

// ActiveSessions implements Repository.ActiveSessions.
func (r *InMemoryRepository) ActiveSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && !s.Ended {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && !s.Ended {
			n++
		}
	}
	return n
}
