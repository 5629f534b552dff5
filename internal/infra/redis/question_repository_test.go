package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		SetLoader: memory.NewStaticSetLoader(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	set, err := repo.GetQuestionSet(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(set.Questions) != 1 || set.Questions[0].CorrectIndex != 1 {
		t.Fatalf("unexpected set from loader: %+v", set)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetQuestionSet(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.Questions[0].Prompt != set.Questions[0].Prompt {
		t.Fatalf("cached set lost data: %+v", cached)
	}
}

func TestQuestionRepositoryInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		SetLoader: memory.NewStaticSetLoader(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	ctx := context.Background()
	if _, err := repo.GetQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if err := repo.Invalidate(ctx, "set-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("get set after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected loader to run again after invalidate, calls=%d", loader.calls)
	}
}

func TestQuestionRepositoryCorruptEntryRepaired(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		SetLoader: memory.NewStaticSetLoader(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	if err := mr.Set("questionset:set-1", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	set, err := repo.GetQuestionSet(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader fallback on corrupt entry, calls=%d", loader.calls)
	}
	if len(set.Questions) != 1 {
		t.Fatalf("unexpected repaired set: %+v", set)
	}
}

type countingLoader struct {
	memory.SetLoader
	calls int
}

func (l *countingLoader) LoadSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.calls++
	return l.SetLoader.LoadSet(ctx, setID)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "set-1",
		Questions: []domain.Question{
			{ID: 1, Prompt: "What is 2 + 2?", Options: [4]string{"3", "4", "5", "6"}, CorrectIndex: 1, TimeLimitSec: 30, Points: 10},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
