package inbox

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process inbox used when no database is configured.
// Entries older than the retention are forgotten lazily.
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{seen: make(map[string]time.Time), retention: retention, now: time.Now}
}

func (m *MemoryStore) Seen(ctx context.Context, messageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.seen[messageID]
	return ok && m.now().Sub(at) < m.retention, nil
}

func (m *MemoryStore) Mark(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, ok := m.seen[messageID]; !ok && len(m.seen) >= 1024 {
		m.evict(now)
	}
	m.seen[messageID] = now
	return nil
}

func (m *MemoryStore) evict(now time.Time) {
	for id, at := range m.seen {
		if now.Sub(at) >= m.retention {
			delete(m.seen, id)
		}
	}
}
