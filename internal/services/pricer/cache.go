package pricer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultTimezone = "Asia/Seoul"

	redisPrefix = "infbuy:closes:"
	redisTTL    = 7 * 24 * time.Hour
)

// RefreshAt is the local wall-clock time after which yesterday's closes are final.
type RefreshAt struct {
	Hour   int
	Minute int
}

// DefaultRefreshAt is 08:30 market-local time.
var DefaultRefreshAt = RefreshAt{Hour: 8, Minute: 30}

// Entry is one cached series.
type Entry struct {
	FetchedAt time.Time           `json:"fetched_at"`
	Closes    []domain.DailyClose `json:"closes"`
}

// CacheBackend stores entries by ticker. Get returns nil, nil on a miss.
type CacheBackend interface {
	Get(ctx context.Context, ticker string) (*Entry, error)
	Put(ctx context.Context, ticker string, e Entry) error
}

// IsStale reports whether an entry fetched at fetchedAt must be refreshed at now.
// An entry is stale when it is missing, was fetched on another local day, or was
// fetched before today's refresh time which has since passed.
func IsStale(fetchedAt, now time.Time, loc *time.Location, refresh RefreshAt) bool {
	if fetchedAt.IsZero() {
		return true
	}
	f, n := fetchedAt.In(loc), now.In(loc)
	fy, fm, fd := f.Date()
	ny, nm, nd := n.Date()
	if fy != ny || fm != nm || fd != nd {
		return true
	}
	cutoff := time.Date(ny, nm, nd, refresh.Hour, refresh.Minute, 0, 0, loc)
	return !n.Before(cutoff) && f.Before(cutoff)
}

// CachedProvider serves closes from a backend and refreshes them once per market day.
type CachedProvider struct {
	next    HistoryProvider
	backend CacheBackend
	loc     *time.Location
	refresh RefreshAt
	l       *zap.Logger
	m       *metrics.Metrics
	now     func() time.Time
}

// NewCachedProvider wraps next. A nil loc means UTC; m may be nil.
func NewCachedProvider(l *zap.Logger, next HistoryProvider, backend CacheBackend,
	loc *time.Location, refresh RefreshAt, m *metrics.Metrics) *CachedProvider {
	if loc == nil {
		loc = time.UTC
	}
	return &CachedProvider{
		next:    next,
		backend: backend,
		loc:     loc,
		refresh: refresh,
		l:       l,
		m:       m,
		now:     time.Now,
	}
}

// Name implements HistoryProvider.
func (c *CachedProvider) Name() string {
	return c.next.Name()
}

// DailyCloses implements HistoryProvider. A failed refresh falls back to the stale entry.
func (c *CachedProvider) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	now := c.now()

	cached, err := c.backend.Get(ctx, ticker)
	if err != nil {
		c.l.Warn("price cache read failed", zap.String("ticker", ticker), zap.Error(err))
		cached = nil
	}
	if cached != nil && !IsStale(cached.FetchedAt, now, c.loc, c.refresh) {
		c.observe("hit")
		return cached.Closes, nil
	}

	closes, err := c.next.DailyCloses(ctx, ticker)
	if err != nil {
		if cached != nil && len(cached.Closes) > 0 {
			c.observe("stale")
			c.l.Warn("serving stale closes",
				zap.String("ticker", ticker),
				zap.Time("fetched_at", cached.FetchedAt),
				zap.Error(err))
			return cached.Closes, nil
		}
		c.observe("error")
		return nil, err
	}

	c.observe("miss")
	if err := c.backend.Put(ctx, ticker, Entry{FetchedAt: now, Closes: closes}); err != nil {
		c.l.Warn("price cache write failed", zap.String("ticker", ticker), zap.Error(err))
	}
	return closes, nil
}

func (c *CachedProvider) observe(result string) {
	if c.m == nil {
		return
	}
	c.m.PriceFetches.WithLabelValues(c.next.Name(), result).Inc()
}

// MemoryCache keeps entries in process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Get implements CacheBackend.
func (m *MemoryCache) Get(_ context.Context, ticker string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[ticker]
	if !ok {
		return nil, nil
	}
	e.Closes = append([]domain.DailyClose(nil), e.Closes...)
	return &e, nil
}

// Put implements CacheBackend.
func (m *MemoryCache) Put(_ context.Context, ticker string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Closes = append([]domain.DailyClose(nil), e.Closes...)
	m.entries[ticker] = e
	return nil
}

// RedisCache stores entries as JSON under infbuy:closes:<ticker>.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return client, nil
}

// Get implements CacheBackend.
func (r *RedisCache) Get(ctx context.Context, ticker string) (*Entry, error) {
	data, err := r.client.Get(ctx, redisPrefix+ticker).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode cached closes")
	}
	return &e, nil
}

// Put implements CacheBackend.
func (r *RedisCache) Put(ctx context.Context, ticker string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode closes")
	}
	return errors.Wrap(r.client.Set(ctx, redisPrefix+ticker, data, redisTTL).Err(), "redis set")
}
