package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// CachedQuizStore fronts an app.QuizStore with a process-local TTL cache for
// Get. Writes go straight to the backing store and evict the entry.
type CachedQuizStore struct {
	app.QuizStore

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.Mutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
	gen   map[string]uint64
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCachedQuizStore(backing app.QuizStore, ttl time.Duration) *CachedQuizStore {
	return &CachedQuizStore{
		QuizStore: backing,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedQuiz),
		gen:       make(map[string]uint64),
	}
}

func (c *CachedQuizStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(id); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if quiz, ok := c.lookup(id); ok {
			return quiz, nil
		}
		c.mu.Lock()
		gen := c.gen[id]
		c.mu.Unlock()

		quiz, err := c.QuizStore.Get(ctx, id)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		// an eviction during the load means quiz may already be stale
		if c.gen[id] == gen && c.ttl > 0 {
			c.cache[id] = cachedQuiz{quiz: cloneQuiz(quiz), expiresAt: c.clock().Add(c.ttlWithJitter())}
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return cloneQuiz(result.(domain.Quiz)), nil
}

func (c *CachedQuizStore) Update(ctx context.Context, quiz domain.Quiz) error {
	defer c.evict(quiz.ID)
	return c.QuizStore.Update(ctx, quiz)
}

func (c *CachedQuizStore) Delete(ctx context.Context, id string) error {
	defer c.evict(id)
	return c.QuizStore.Delete(ctx, id)
}

func (c *CachedQuizStore) IncrementStats(ctx context.Context, id string, score int, passed bool) (domain.QuizStats, error) {
	defer c.evict(id)
	return c.QuizStore.IncrementStats(ctx, id, score, passed)
}

// Invalidate drops the cached entry of a quiz changed behind the cache.
func (c *CachedQuizStore) Invalidate(_ context.Context, id string) {
	c.evict(id)
}

func (c *CachedQuizStore) lookup(id string) (domain.Quiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return cloneQuiz(entry.quiz), true
}

func (c *CachedQuizStore) evict(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.gen[id]++
	c.mu.Unlock()
}

// caller holds c.mu
func (c *CachedQuizStore) ttlWithJitter() time.Duration {
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
