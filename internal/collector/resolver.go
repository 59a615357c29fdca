package collector

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Scope names the working set to resolve: an organization, optionally
// narrowed to teams.
type Scope struct {
	Source domain.SourceKind
	Org    string
	Teams  []string
}

// CacheKey normalizes the scope into an order-independent key
func (s Scope) CacheKey() string {
	teams := make([]string, 0, len(s.Teams))
	for _, t := range s.Teams {
		teams = append(teams, strings.ToLower(strings.TrimSpace(t)))
	}
	sort.Strings(teams)
	parts := []string{string(s.Source), strings.ToLower(s.Org)}
	if len(teams) > 0 {
		parts = append(parts, strings.Join(teams, ","))
	}
	return strings.Join(parts, ":")
}

// WorkingSetCache is the resolver's side cache. Implementations return
// (nil, nil) for misses; a corrupted entry is a miss, not an error.
type WorkingSetCache interface {
	Get(ctx context.Context, key string) (*domain.CachedWorkingSet, error)
	Put(ctx context.Context, ws *domain.CachedWorkingSet) error
}

// DirectoryFunc performs the live directory query for a scope. It must
// go through the same executor/retry path as regular collection.
type DirectoryFunc func(ctx context.Context, scope Scope) ([]string, error)

// Resolver resolves working sets through a TTL side cache, hitting the
// live directory on miss and writing the fresh list back (overwriting,
// never merging).
type Resolver struct {
	Cache     WorkingSetCache
	TTL       time.Duration
	Directory DirectoryFunc
	Log       *slog.Logger

	now func() time.Time
}

// NewResolver creates a resolver with the given cache, TTL and
// directory lookup. A nil cache gets an in-memory TTL cache; callers
// that outlive the process pass a persistent backend instead.
func NewResolver(cache WorkingSetCache, ttl time.Duration, directory DirectoryFunc, log *slog.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryWorkingSetCache(64, ttl)
	}
	return &Resolver{
		Cache:     cache,
		TTL:       ttl,
		Directory: directory,
		Log:       log,
		now:       time.Now,
	}
}

// Resolve returns the unit list for the scope
func (r *Resolver) Resolve(ctx context.Context, scope Scope) ([]string, error) {
	key := scope.CacheKey()

	cached, err := r.Cache.Get(ctx, key)
	if err != nil {
		// Cache trouble must never surface to the caller.
		r.Log.Warn("working-set cache read failed, treating as miss", "key", key, "error", err)
	} else if cached != nil && !cached.Expired(r.TTL, r.now()) {
		r.Log.Debug("working set resolved from cache", "key", key, "units", len(cached.Units))
		return cached.Units, nil
	}

	units, err := r.Directory(ctx, scope)
	if err != nil {
		return nil, err
	}
	sort.Strings(units)

	ws := &domain.CachedWorkingSet{Key: key, Units: units, ResolvedAt: r.now()}
	if err := r.Cache.Put(ctx, ws); err != nil {
		r.Log.Warn("working-set cache write failed", "key", key, "error", err)
	}
	r.Log.Info("working set resolved from directory", "key", key, "units", len(units))
	return units, nil
}

// MemoryWorkingSetCache is an in-process TTL cache for callers that
// do not need working sets to survive a restart.
type MemoryWorkingSetCache struct {
	lru *expirable.LRU[string, domain.CachedWorkingSet]
}

// NewMemoryWorkingSetCache creates an in-memory cache evicting entries
// after ttl
func NewMemoryWorkingSetCache(size int, ttl time.Duration) *MemoryWorkingSetCache {
	if size < 1 {
		size = 64
	}
	return &MemoryWorkingSetCache{
		lru: expirable.NewLRU[string, domain.CachedWorkingSet](size, nil, ttl),
	}
}

// Get implements WorkingSetCache
func (c *MemoryWorkingSetCache) Get(_ context.Context, key string) (*domain.CachedWorkingSet, error) {
	ws, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

// Put implements WorkingSetCache
func (c *MemoryWorkingSetCache) Put(_ context.Context, ws *domain.CachedWorkingSet) error {
	c.lru.Add(ws.Key, *ws)
	return nil
}
