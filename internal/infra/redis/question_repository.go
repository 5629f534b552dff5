package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// SetLoader fetches question sets from a backing store (e.g., Postgres).
type SetLoader interface {
	LoadSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionRepository caches question sets in Redis as JSON blobs and falls
// back to a loader on cache miss.
// Sets are stored as: SET questionset:{setID} {json} EX {ttl}
type QuestionRepository struct {
	client *redis.Client
	loader SetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader SetLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	key := r.setKey(setID)

	if set, ok := r.fromCache(ctx, key, setID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := r.fromCache(ctx, key, setID); ok {
			return set, nil
		}

		set, err := r.loader.LoadSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		if blob, err := json.Marshal(set); err == nil {
			_ = r.client.Set(ctx, key, blob, r.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops a cached set so the next read hits the loader.
func (r *QuestionRepository) Invalidate(ctx context.Context, setID string) error {
	return r.client.Del(ctx, r.setKey(setID)).Err()
}

func (r *QuestionRepository) fromCache(ctx context.Context, key, setID string) (domain.QuestionSet, bool) {
	blob, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal([]byte(blob), &set); err != nil {
		// Corrupt entry; treat as a miss so the loader repairs it.
		_ = r.client.Del(ctx, key).Err()
		return domain.QuestionSet{}, false
	}
	if set.ID == "" {
		set.ID = setID
	}
	return set, true
}

func (r *QuestionRepository) setKey(setID string) string {
	return "questionset:" + setID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
