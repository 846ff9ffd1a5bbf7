package session

// Store is the persistence abstraction for live sessions.
// The Repository uses Store for all reads and writes and does the locking.
type Store interface {
	Get(id ID) (*Session, bool)
	Set(s *Session)
	Delete(id ID)
	ListIDs() []ID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[ID]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[ID]*Session),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(id ID) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// Set implements Store.Set.
func (s *InMemoryStore) Set(sess *Session) {
	s.sessions[sess.ID()] = sess
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(id ID) {
	delete(s.sessions, id)
}

// ListIDs implements Store.ListIDs.
func (s *InMemoryStore) ListIDs() []ID {
	ids := make([]ID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
