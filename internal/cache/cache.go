// Package cache holds the latest prediction for each match so bets and
// line lookups can be served without recomputing.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// ErrMiss is returned when no prediction is cached for a match
var ErrMiss = errors.New("cache miss")

// LineCache stores the most recent prediction per match
type LineCache interface {
	Get(ctx context.Context, matchID string) (*models.Prediction, error)
	Set(ctx context.Context, p *models.Prediction) error
	Ping(ctx context.Context) error
	Close() error
}

type memoryEntry struct {
	prediction models.Prediction
	expires    time.Time
}

// MemoryCache is an in-process LineCache. A zero ttl keeps entries forever.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-process line cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, matchID string) (*models.Prediction, error) {
	c.mu.RLock()
	entry, ok := c.entries[matchID]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, matchID)
		c.mu.Unlock()
		return nil, ErrMiss
	}

	p := entry.prediction
	return &p, nil
}

func (c *MemoryCache) Set(_ context.Context, p *models.Prediction) error {
	entry := memoryEntry{prediction: *p}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[p.MatchID] = entry
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached matches, expired or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }
