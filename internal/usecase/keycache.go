package usecase

import (
	"sync"
	"time"

	"hsmtrust/internal/domain"
)

// DefaultFreshnessWindow bounds how old a cached key generation may be:
// a 12 hour restart threshold plus a 15 minute token lifetime.
const DefaultFreshnessWindow = 12*time.Hour + 15*time.Minute

// KeyCache maps generation ids to validated log entries. It is refilled
// wholesale from a validated chain; ids cached by earlier rebuilds are
// overwritten by key, never purged.
type KeyCache struct {
	mu      sync.Mutex
	entries map[string]domain.LogEntry
	window  time.Duration
	now     Clock
}

func NewKeyCache(window time.Duration, now Clock) *KeyCache {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now == nil {
		now = time.Now
	}
	return &KeyCache{
		entries: make(map[string]domain.LogEntry),
		window:  window,
		now:     now,
	}
}

func (c *KeyCache) Lookup(generationID string) (*domain.LogEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[generationID]
	if !ok {
		return nil, false
	}
	return &entry, true
}

// Rebuild walks a chain's validated records newest first and inserts each by
// id, stopping before the first record whose age exceeds the freshness
// window. A record created exactly one window ago is excluded. Entries
// inserted before the cutoff stay inserted.
func (c *KeyCache) Rebuild(records []domain.LogEntry) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	inserted := 0
	for i := len(records) - 1; i >= 0; i-- {
		entry := records[i]
		if !entry.CreatedAt.Add(c.window).After(now) {
			break
		}
		c.entries[entry.ID] = entry
		inserted++
	}
	return inserted
}

func (c *KeyCache) Window() time.Duration {
	return c.window
}
