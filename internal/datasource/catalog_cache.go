package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/metrics"
	"github.com/yourusername/racing-value/internal/models"
)

// DefaultCatalogTTL is how long a race list is reused
const DefaultCatalogTTL = 5 * time.Minute

// CachedCatalog decorates a RaceCatalog with a short-lived in-memory cache.
// Errors are never cached.
type CachedCatalog struct {
	next   RaceCatalog
	cache  *cache.Cache
	ttl    time.Duration
	logger *logrus.Entry
}

// NewCachedCatalog wraps next with a cache of the given TTL
func NewCachedCatalog(next RaceCatalog, ttl time.Duration, log *logrus.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CachedCatalog{
		next:   next,
		cache:  cache.New(ttl, ttl*2),
		ttl:    ttl,
		logger: logger.Component(log, "catalog_cache"),
	}
}

// Name returns the name of the wrapped catalog
func (c *CachedCatalog) Name() string {
	return c.next.Name()
}

// ListRaces returns the cached race list for q, fetching it on a miss
func (c *CachedCatalog) ListRaces(ctx context.Context, q RaceQuery) ([]models.Race, error) {
	key := cacheKey(q)
	if v, found := c.cache.Get(key); found {
		if races, ok := v.([]models.Race); ok {
			metrics.RecordCatalogCache(true)
			c.logger.WithField("key", key).Debug("Race catalog cache hit")
			return copyRaces(races), nil
		}
	}
	metrics.RecordCatalogCache(false)

	races, err := c.next.ListRaces(ctx, q)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, copyRaces(races), c.ttl)
	return races, nil
}

// Invalidate drops every cached race list
func (c *CachedCatalog) Invalidate() {
	c.cache.Flush()
}

func cacheKey(q RaceQuery) string {
	raceType := q.RaceType
	if raceType == "" {
		raceType = models.RaceTypeAll
	}
	return fmt.Sprintf("%s|%s|%s", q.DateString(), strings.ToUpper(q.Country), raceType)
}

func copyRaces(races []models.Race) []models.Race {
	out := make([]models.Race, len(races))
	copy(out, races)
	return out
}
