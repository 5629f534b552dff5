package memory

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuestionRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		SetLoader: NewStaticSetLoader(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "set-1"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuestionSet(context.Background(), "set-1"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryMiss(t *testing.T) {
	repo := NewQuestionRepository(NewStaticSetLoader(nil), time.Minute)
	if _, err := repo.GetQuestionSet(context.Background(), "missing"); err != domain.ErrQuestionSetNotFound {
		t.Fatalf("expected ErrQuestionSetNotFound, got %v", err)
	}
}

type countingLoader struct {
	SetLoader
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
