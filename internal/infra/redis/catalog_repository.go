package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"hr-testing-service/internal/domain"
	"hr-testing-service/internal/infra/memory"
)

// CatalogRepository caches test definitions in Redis and falls back to a loader on cache miss.
// Definitions are stored as JSON: SET catalog:test:{testID} {definition} EX ttl
type CatalogRepository struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetTest(ctx context.Context, testID int64) (domain.TestDefinition, error) {
	key := r.testKey(testID)
	if def, ok := r.cached(ctx, key); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if def, ok := r.cached(ctx, key); ok {
			return def, nil
		}

		def, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestDefinition{}, err
		}

		if raw, err := json.Marshal(def); err == nil {
			// best-effort: a failed write only costs another load
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return def, nil
	})
	if err != nil {
		return domain.TestDefinition{}, err
	}
	return result.(domain.TestDefinition), nil
}

func (r *CatalogRepository) ListTests(ctx context.Context, activeOnly bool) ([]domain.Test, error) {
	return r.loader.ListTests(ctx, activeOnly)
}

func (r *CatalogRepository) cached(ctx context.Context, key string) (domain.TestDefinition, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.TestDefinition{}, false
	}
	var def domain.TestDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.TestDefinition{}, false
	}
	return def, true
}

func (r *CatalogRepository) testKey(testID int64) string {
	return "catalog:test:" + strconv.FormatInt(testID, 10)
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
