package session

import (
	"sort"
	"sync"
)

// Repository stores sessions by id. Implementations must be safe for
// concurrent use; the stored pointers themselves are guarded by the
// engine, which serializes all mutations per process.
type Repository interface {
	Get(id string) (*Session, error)
	Put(s *Session)
	Delete(id string)
	// List returns all sessions ordered by creation time, oldest first.
	List() []*Session
}

// MemoryRepository is the in-process session store. Durability comes
// from the snapshot layer, not from here.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*Session)}
}

func (r *MemoryRepository) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *MemoryRepository) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
