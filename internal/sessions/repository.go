package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Repository provides session persistence operations. Get returns
// (nil, nil) for unknown ids.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// memorySweepInterval bounds how often Save scans for expired records.
const memorySweepInterval = time.Minute

// MemoryRepository keeps sessions in process. Suitable for a single replica
// and for tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	items     map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[string]memoryEntry{}, now: time.Now}
}

func (r *MemoryRepository) Save(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = memoryEntry{data: b, expiresAt: s.ExpiresAt}
	if now := r.now(); now.Sub(r.lastSweep) >= memorySweepInterval {
		r.sweep(now)
		r.lastSweep = now
	}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	e, ok := r.items[id]
	r.mu.RUnlock()
	if !ok || !r.now().Before(e.expiresAt) {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// Len returns the number of stored records, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// sweep drops expired records; callers hold the write lock.
func (r *MemoryRepository) sweep(now time.Time) {
	for id, e := range r.items {
		if !now.Before(e.expiresAt) {
			delete(r.items, id)
		}
	}
}
