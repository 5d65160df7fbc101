package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// fillScript stores a snapshot only while the version key still holds the
// value read before the load; an eviction in between bumps it.
var fillScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current == false then
	current = ""
end
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// QuizCache keeps JSON snapshots of quizzes in Redis so that every instance
// shares one read cache. Writes pass through to the backing store and
// delete the key; Redis failures degrade to a direct read.
//
//	GET  quiz:{id}:doc -> JSON-encoded domain.Quiz
//	INCR quiz:{id}:ver on every eviction
type QuizCache struct {
	app.QuizStore

	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, backing app.QuizStore, ttl time.Duration, log zerolog.Logger) *QuizCache {
	return &QuizCache{
		QuizStore: backing,
		client:    client,
		ttl:       ttl,
		log:       log.With().Str("component", "redis_quiz_cache").Logger(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) Get(ctx context.Context, id string) (domain.Quiz, error) {
	if quiz, ok := c.read(ctx, id); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if quiz, ok := c.read(ctx, id); ok {
			return quiz, nil
		}
		version, versionOK := c.version(ctx, id)
		quiz, err := c.QuizStore.Get(ctx, id)
		if err != nil {
			return domain.Quiz{}, err
		}
		if versionOK {
			c.write(ctx, quiz, version)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) Update(ctx context.Context, quiz domain.Quiz) error {
	err := c.QuizStore.Update(ctx, quiz)
	c.evict(ctx, quiz.ID)
	return err
}

func (c *QuizCache) Delete(ctx context.Context, id string) error {
	err := c.QuizStore.Delete(ctx, id)
	c.evict(ctx, id)
	return err
}

func (c *QuizCache) IncrementStats(ctx context.Context, id string, score int, passed bool) (domain.QuizStats, error) {
	stats, err := c.QuizStore.IncrementStats(ctx, id, score, passed)
	c.evict(ctx, id)
	return stats, err
}

func (c *QuizCache) read(ctx context.Context, id string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, docKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("quiz_id", id).Msg("cache read failed")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		c.log.Warn().Err(err).Str("quiz_id", id).Msg("discarding undecodable cache entry")
		c.evict(ctx, id)
		return domain.Quiz{}, false
	}
	return quiz, true
}

// version returns the eviction counter for id, "" when it was never bumped.
func (c *QuizCache) version(ctx context.Context, id string) (string, bool) {
	v, err := c.client.Get(ctx, versionKey(id)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", true
	case err != nil:
		c.log.Warn().Err(err).Str("quiz_id", id).Msg("cache version read failed")
		return "", false
	}
	return v, true
}

// write fills the cache unless the key was evicted since version was read.
func (c *QuizCache) write(ctx context.Context, quiz domain.Quiz, version string) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(quiz)
	if err != nil {
		return
	}
	keys := []string{docKey(quiz.ID), versionKey(quiz.ID)}
	stored, err := fillScript.Run(ctx, c.client, keys, version, raw, c.ttlWithJitter().Milliseconds()).Int()
	if err != nil {
		c.log.Warn().Err(err).Str("quiz_id", quiz.ID).Msg("cache write failed")
		return
	}
	if stored == 0 {
		c.log.Debug().Str("quiz_id", quiz.ID).Msg("skipped cache fill after concurrent eviction")
	}
}

// Invalidate drops the cached snapshot of a quiz changed behind the cache.
func (c *QuizCache) Invalidate(ctx context.Context, id string) {
	c.evict(ctx, id)
}

func (c *QuizCache) evict(ctx context.Context, id string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(id))
		pipe.Incr(ctx, versionKey(id))
		if c.ttl > 0 {
			// outlives any snapshot filled before the bump
			pipe.PExpire(ctx, versionKey(id), 2*c.ttl+time.Minute)
		}
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("quiz_id", id).Msg("cache eviction failed")
	}
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func docKey(quizID string) string {
	return "quiz:" + quizID + ":doc"
}

func versionKey(quizID string) string {
	return "quiz:" + quizID + ":ver"
}
