package memory

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hr-testing-service/internal/domain"
)

// CatalogLoader fetches test definitions from a backing store (Postgres, YAML file).
type CatalogLoader interface {
	LoadTest(ctx context.Context, testID int64) (domain.TestDefinition, error)
	ListTests(ctx context.Context, activeOnly bool) ([]domain.Test, error)
}

// CatalogRepository caches test definitions with TTL to avoid repeated DB hits.
// Test listings always go to the loader so activity flags stay current.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[int64]cachedTest
}

type cachedTest struct {
	def       domain.TestDefinition
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedTest),
	}
}

func (r *CatalogRepository) GetTest(ctx context.Context, testID int64) (domain.TestDefinition, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[testID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.def, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(singleflightKey(testID), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[testID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.def, nil
		}
		r.mu.RUnlock()

		def, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestDefinition{}, err
		}

		r.mu.Lock()
		r.cache[testID] = cachedTest{
			def:       def,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
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

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticCatalogLoader struct {
	tests map[int64]domain.TestDefinition
}

func NewStaticCatalogLoader(tests ...domain.TestDefinition) *StaticCatalogLoader {
	l := &StaticCatalogLoader{tests: make(map[int64]domain.TestDefinition, len(tests))}
	for _, def := range tests {
		l.tests[def.Test.ID] = def
	}
	return l
}

func (l *StaticCatalogLoader) LoadTest(_ context.Context, testID int64) (domain.TestDefinition, error) {
	if def, ok := l.tests[testID]; ok {
		return def, nil
	}
	return domain.TestDefinition{}, domain.ErrTestNotFound
}

func (l *StaticCatalogLoader) ListTests(_ context.Context, activeOnly bool) ([]domain.Test, error) {
	out := make([]domain.Test, 0, len(l.tests))
	for _, def := range l.tests {
		if activeOnly && !def.Test.IsActive {
			continue
		}
		out = append(out, def.Test)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Definitions returns every loaded test definition ordered by test id.
func (l *StaticCatalogLoader) Definitions() []domain.TestDefinition {
	out := make([]domain.TestDefinition, 0, len(l.tests))
	for _, def := range l.tests {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Test.ID < out[j].Test.ID })
	return out
}

func singleflightKey(testID int64) string {
	return "test:" + strconv.FormatInt(testID, 10)
}
