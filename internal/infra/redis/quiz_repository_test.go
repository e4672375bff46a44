package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func TestQuizCacheStoresWholeQuizInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	cache := NewQuizCache(newClient(mr), loader, time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected quiz document cached under quiz:quiz-1")
	}
	if ttl := mr.TTL("quiz:quiz-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("ttl %v outside jitter window", ttl)
	}

	// a second cache sharing the server must not hit the loader
	other := NewQuizCache(newClient(mr), loader, time.Minute)
	quiz, err := other.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz from peer: %v", err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected one load, got %d", got)
	}

	q2, ok := quiz.Question("q2")
	if !ok {
		t.Fatalf("cached quiz lost question q2")
	}
	text, ok := q2.Body.(domain.FreeText)
	if !ok || !text.Matches("  paris ") {
		t.Fatalf("free-text variant did not survive the round trip: %#v", q2.Body)
	}
	mc, _ := quiz.Questions[0].Body.(domain.MultipleChoice)
	if mc.CorrectOptionID() != "o1" {
		t.Fatalf("correct option lost in cache, got %q", mc.CorrectOptionID())
	}
}

func TestQuizCacheInvalidateAndCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	cache := NewQuizCache(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	_, _ = cache.GetQuiz(ctx, "quiz-1")
	if err := cache.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.GetQuiz(ctx, "quiz-1")

	if err := mr.Set("quiz:quiz-1", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("corrupt entry should fall back to loader: %v", err)
	}
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("expected 3 loads, got %d", got)
	}
}

func TestQuizCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	cache := NewQuizCache(client, memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("expected load despite redis outage, got %v", err)
	}
	if _, err := cache.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "quiz-1",
		Name: "Capitals",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Capital of France?",
				Body: domain.MultipleChoice{Options: []domain.Option{
					{ID: "o1", Text: "Paris", Correct: true},
					{ID: "o2", Text: "Rome"},
				}},
			},
			{
				ID:   "q2",
				Text: "Type the capital of France",
				Body: domain.FreeText{AcceptableAnswers: []string{"Paris"}},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
