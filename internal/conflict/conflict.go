// Package conflict detects contradicting triples and holds pending
// conflicts until the caller resolves them.
package conflict

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Detect checks an incoming candidate against the active triples sharing
// its subject and predicate. A different object on any of them is a
// contradiction; the returned ConflictInfo carries one such triple and
// the allowed resolutions. Same-object matches are not conflicts, and
// nothing is resolved automatically.
func Detect(ctx context.Context, store storage.Storage, cand types.TripleCandidate) (*types.ConflictInfo, error) {
	// Exact, unpaged scoping. A paged substring query could push the
	// contradicting row past the page boundary.
	existing, err := store.ActiveTriplesExact(ctx, cand.Subject, cand.Predicate)
	if err != nil {
		return nil, err
	}
	for _, tr := range existing {
		if tr.Object == cand.Object {
			continue
		}
		return &types.ConflictInfo{
			ConflictID: uuid.NewString(),
			Subject:    cand.Subject,
			Predicate:  cand.Predicate,
			Existing:   tr,
			Candidate:  cand,
			Resolutions: []string{
				types.ResolutionReplace,
				types.ResolutionRetainBoth,
				types.ResolutionReject,
			},
		}, nil
	}
	return nil, nil
}

// Cache stores pending conflicts between the detect call and the
// resolution call.
type Cache interface {
	SaveConflict(ctx context.Context, c *types.ConflictInfo) error
	LoadConflict(ctx context.Context, id string) (*types.ConflictInfo, error)
	RemoveConflict(ctx context.Context, id string) error
}

const (
	memoryCacheCap = 100
	memoryCacheTTL = time.Hour
)

type memoryEntry struct {
	info     *types.ConflictInfo
	storedAt time.Time
}

// MemoryCache is the fallback conflict cache for engines running without
// a durable store: bounded at 100 conflicts with FIFO eviction, one hour
// TTL checked on read.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]*memoryEntry
	order []string
}

// NewMemoryCache returns an empty bounded cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]*memoryEntry)}
}

// SaveConflict stores the conflict, evicting the oldest when full.
func (m *MemoryCache) SaveConflict(_ context.Context, c *types.ConflictInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[c.ConflictID]; !exists {
		for len(m.items) >= memoryCacheCap && len(m.order) > 0 {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.items, oldest)
		}
		m.order = append(m.order, c.ConflictID)
	}
	m.items[c.ConflictID] = &memoryEntry{info: c, storedAt: time.Now()}
	return nil
}

// LoadConflict returns the conflict or nil when absent or expired.
func (m *MemoryCache) LoadConflict(_ context.Context, id string) (*types.ConflictInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	if time.Since(entry.storedAt) > memoryCacheTTL {
		m.removeLocked(id)
		return nil, nil
	}
	return entry.info, nil
}

// RemoveConflict evicts a conflict after resolution.
func (m *MemoryCache) RemoveConflict(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *MemoryCache) removeLocked(id string) {
	delete(m.items, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
