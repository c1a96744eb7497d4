package jwks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
)

const (
	DefaultTTL                = time.Hour
	DefaultMinRefreshInterval = 30 * time.Second
	DefaultFetchTimeout       = 10 * time.Second
)

// CacheConfig configures a Cache. FetchTimeout bounds one fetch; the fetch
// is shared by every waiting caller, so it does not inherit any one
// caller's cancellation.
type CacheConfig struct {
	TTL                time.Duration
	MinRefreshInterval time.Duration
	FetchTimeout       time.Duration
	Clock              clockwork.Clock
	Logger             *zap.SugaredLogger
}

// Cache holds the most recently fetched KeySet. An entry older than TTL is
// never served; it is replaced wholesale by the next successful fetch.
// Concurrent fetches are collapsed into one.
type Cache struct {
	fetcher    Fetcher
	ttl        time.Duration
	minRefresh time.Duration
	timeout    time.Duration
	clock      clockwork.Clock
	log        *zap.SugaredLogger

	mu    sync.RWMutex
	entry *KeySet
	group singleflight.Group
}

func NewCache(fetcher Fetcher, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Cache{
		fetcher:    fetcher,
		ttl:        cfg.TTL,
		minRefresh: cfg.MinRefreshInterval,
		timeout:    cfg.FetchTimeout,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}
}

// Get returns the cached key set, fetching it when absent or expired.
func (c *Cache) Get(ctx context.Context) (*KeySet, error) {
	if e := c.current(); e != nil && c.clock.Since(e.FetchedAt) < c.ttl {
		obs.JWKSCacheHits.Inc()
		return e, nil
	}
	return c.load(ctx)
}

// Refresh forces a fetch unless the current entry is younger than the
// minimum refresh interval, in which case the current entry is returned.
func (c *Cache) Refresh(ctx context.Context) (*KeySet, error) {
	if e := c.current(); e != nil && c.clock.Since(e.FetchedAt) < c.minRefresh {
		obs.JWKSFetches.WithLabelValues(obs.ResultSkipped).Inc()
		c.log.Debugw("jwks refresh suppressed", "age", c.clock.Since(e.FetchedAt))
		return e, nil
	}
	return c.load(ctx)
}

func (c *Cache) current() *KeySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

func (c *Cache) load(ctx context.Context) (*KeySet, error) {
	ch := c.group.DoChan("jwks", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

func (c *Cache) fetch(ctx context.Context) (*KeySet, error) {
	start := c.clock.Now()
	body, err := c.fetcher.Fetch(ctx)
	if err != nil {
		obs.JWKSFetches.WithLabelValues(obs.ResultError).Inc()
		c.log.Warnw("jwks fetch failed", "error", err)
		if !errors.Is(err, ErrUpstreamUnavailable) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	set, err := ParseKeySet(body, start)
	if err != nil {
		obs.JWKSFetches.WithLabelValues(obs.ResultError).Inc()
		c.log.Warnw("jwks decode failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.mu.Lock()
	c.entry = set
	c.mu.Unlock()

	obs.JWKSFetches.WithLabelValues(obs.ResultOK).Inc()
	c.log.Debugw("jwks fetched", "keys", set.Len())
	return set, nil
}
