// Package favorites caches the command account's favorites list.
package favorites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/provider"
)

// Sessions runs a call with the session of an account role.
type Sessions interface {
	Do(ctx context.Context, role model.AccountRole, fn func(model.Session) error) error
}

// FetchError wraps a failed refresh. The previous snapshot is still
// available through Fallback.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch favorites: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

type Options struct {
	Transport provider.ListingTransport
	Sessions  Sessions
	// MaxAge is the staleness threshold; zero refreshes on every read.
	MaxAge time.Duration
	Now    func() time.Time
	Bus    *logbus.Bus
}

type Cache struct {
	opts Options

	// fetchMu serializes Get; mu guards snap so Fallback never waits on a fetch
	fetchMu sync.Mutex
	mu      sync.RWMutex
	snap    model.Snapshot
}

func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAge < 0 {
		opts.MaxAge = 0
	}
	return &Cache{opts: opts}
}

// Get returns the cached snapshot while it is younger than MaxAge, otherwise
// a freshly fetched one. force always fetches.
func (c *Cache) Get(ctx context.Context, force bool) (model.Snapshot, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	now := c.opts.Now()
	if cur := c.Fallback(); !force && !cur.Empty() && c.opts.MaxAge > 0 && cur.Age(now) < c.opts.MaxAge {
		return cur, nil
	}

	var listings []model.Listing
	err := c.opts.Sessions.Do(ctx, model.RoleCommand, func(s model.Session) error {
		var err error
		listings, err = c.opts.Transport.FetchFavorites(ctx, s)
		return err
	})
	if err != nil {
		return model.Snapshot{}, &FetchError{Err: err}
	}
	snap := model.NewSnapshot(listings, c.opts.Now())
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	if c.opts.Bus != nil {
		c.opts.Bus.Log("debug", "favorites refreshed", map[string]any{"count": len(listings), "forced": force})
	}
	return snap, nil
}

// Fallback is the last successful snapshot, possibly empty. Only alerting
// may use it after a failed refresh.
func (c *Cache) Fallback() model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
