package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.fail {
		return errors.New("hub unavailable")
	}
	return nil
}

func (p *recordingPublisher) named(name string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	rooms    *app.RoomService
	runner   *app.QuizRunner
	store    *memory.RoomStore
	attempts *memory.AttemptStore
	pub      *recordingPublisher
	clock    *clock
}

func newFixture(t *testing.T, opts ...app.RoomOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewRoomStore(),
		attempts: memory.NewAttemptStore(),
		pub:      &recordingPublisher{},
		clock:    newClock(),
	}
	opts = append([]app.RoomOption{app.WithClock(f.clock.Now)}, opts...)
	f.rooms = app.NewRoomService(f.store, f.pub, app.DefaultRoomPolicy(), opts...)
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": capitalsQuiz()}), time.Minute)
	f.runner = app.NewQuizRunnerWithClock(f.rooms, f.attempts, quizzes, f.pub, f.clock.Now)
	return f
}

func user(id, name string) domain.Identity {
	return domain.Identity{UserID: id, Name: name}
}

var host = user("host", "Host")

// startedRoom creates a room bound to quiz-1, joins every player, readies
// them and starts it.
func (f *fixture) startedRoom(t *testing.T, players ...domain.Identity) domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := f.rooms.CreateRoom(ctx, host, app.CreateRoomRequest{Name: "Capitals", QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, p := range players {
		if _, err := f.rooms.Join(ctx, p, room.Code); err != nil {
			t.Fatalf("join %s: %v", p.UserID, err)
		}
		if err := f.rooms.SetReady(ctx, room.ID, p.UserID, true); err != nil {
			t.Fatalf("ready %s: %v", p.UserID, err)
		}
	}
	if _, err := f.rooms.Start(ctx, room.ID, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	room, err = f.rooms.RoomByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	return room
}

func capitalsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "quiz-1",
		Name: "Capitals",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Capital of France?",
				Body: domain.MultipleChoice{Options: []domain.Option{
					{ID: "A", Text: "Paris", Correct: true},
					{ID: "B", Text: "Lyon"},
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

func strPtr(s string) *string { return &s }
