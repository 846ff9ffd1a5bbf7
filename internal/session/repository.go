package session

import (
	"errors"
	"sync"
)

// Repository defines the concurrency-safe contract for tracking live sessions.
type Repository interface {
	// Add registers a session. Adding an ID twice returns ErrExists.
	Add(s *Session) error

	// Get returns the session with the given ID.
	Get(id ID) (*Session, bool)

	// Remove unregisters a session and returns it so the caller can close it.
	// The ok return is false if no such session exists.
	Remove(id ID) (s *Session, ok bool)

	// RemoveAll unregisters every session. Used at shutdown.
	RemoveAll() []*Session

	// ActiveSessionCount returns the number of registered sessions whose loop
	// is still running. Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrNotFound is returned for an unknown session ID.
	ErrNotFound = errors.New("session not found")

	// ErrExists is returned when adding a session whose ID is already taken.
	ErrExists = errors.New("session already exists")
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

// Add implements Repository.Add.
func (r *InMemoryRepository) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.Get(s.ID()); exists {
		return ErrExists
	}
	r.store.Set(s)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.Get(id)
}

// Remove implements Repository.Remove.
func (r *InMemoryRepository) Remove(id ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.store.Get(id)
	if !ok {
		return nil, false
	}
	r.store.Delete(id)
	return s, true
}

// RemoveAll implements Repository.RemoveAll.
func (r *InMemoryRepository) RemoveAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.store.ListIDs()
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.store.Get(id); ok {
			out = append(out, s)
		}
		r.store.Delete(id)
	}
	return out
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListIDs() {
		if s, ok := r.store.Get(id); ok && !s.Closed() {
			n++
		}
	}
	return n
}
