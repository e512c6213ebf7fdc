package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/farmtrack/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL  = 5 * time.Minute
	loadTimeout = 5 * time.Second
)

// Snapshot is the cached view of a user used on the authentication path.
// Snapshots are never modified after they are stored.
type Snapshot struct {
	ID           string
	Email        string
	Role         models.Role
	IsActive     bool
	RefreshToken *string
	CapturedAt   time.Time
}

// UserLoader loads the current state of a user from the store.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Recorder observes cache lookups. A nil Recorder is ignored.
type Recorder interface {
	CacheLookup(hit bool)
}

type entry struct {
	snap *Snapshot
	gen  uint64
}

// UserCache is a read-through TTL cache of user snapshots.
type UserCache struct {
	loader   UserLoader
	ttl      time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64 // bumped by Invalidate
	group   singleflight.Group
}

type Option func(*UserCache)

func WithRecorder(r Recorder) Option {
	return func(c *UserCache) { c.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *UserCache) { c.now = now }
}

func NewUserCache(loader UserLoader, ttl time.Duration, logger *slog.Logger, opts ...Option) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &UserCache{
		loader:  loader,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the snapshot for id, loading it from the store when absent or
// older than the TTL. models.ErrNotFound evicts any cached entry.
func (c *UserCache) Get(ctx context.Context, id string) (*Snapshot, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && now.Sub(e.snap.CapturedAt) < c.ttl {
		c.record(true)
		return e.snap, nil
	}
	c.record(false)

	ch := c.group.DoChan(id, func() (interface{}, error) {
		return c.load(ctx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *UserCache) load(ctx context.Context, id string) (*Snapshot, error) {
	c.mu.RLock()
	gen := c.gens[id]
	c.mu.RUnlock()

	// The load is shared by every waiter, so it must not die with the first caller.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	user, err := c.loader.GetByID(loadCtx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.Invalidate(id)
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	snap := &Snapshot{
		ID:           user.ID,
		Email:        user.Email,
		Role:         user.Role,
		IsActive:     user.IsActive,
		RefreshToken: user.RefreshToken,
		CapturedAt:   c.now(),
	}

	c.mu.Lock()
	// An invalidation during the load means the row may have changed after we read it.
	if c.gens[id] == gen {
		c.entries[id] = entry{snap: snap, gen: gen}
	}
	c.mu.Unlock()

	return snap, nil
}

// Invalidate drops the entry for id. Loads already in flight for id will
// not store their result.
func (c *UserCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.gens[id]++
	c.mu.Unlock()
	c.group.Forget(id)
}

// Sweep removes entries older than the TTL and returns how many it removed.
func (c *UserCache) Sweep() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for id, e := range c.entries {
		if now.Sub(e.snap.CapturedAt) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run sweeps the cache every interval until ctx is cancelled.
func (c *UserCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("user cache swept", slog.Int("evicted", n), slog.Int("remaining", c.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *UserCache) record(hit bool) {
	if c.recorder != nil {
		c.recorder.CacheLookup(hit)
	}
}
