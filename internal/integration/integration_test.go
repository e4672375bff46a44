package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/postgres"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/realtime"
)

func TestRoomQuizEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	loader := postgres.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	defer client.Close()

	// Two hubs stand in for two service instances sharing one Redis channel.
	hostHub, playerHub := realtime.NewHub(), realtime.NewHub()
	hostRelay := infraredis.NewEventRelay(client, hostHub, "")
	playerRelay := infraredis.NewEventRelay(client, playerHub, "")
	var g errgroup.Group
	g.Go(func() error { return hostRelay.Run(ctx) })
	g.Go(func() error { return playerRelay.Run(ctx) })
	defer func() {
		cancel()
		_ = g.Wait()
	}()
	<-hostRelay.Ready()
	<-playerRelay.Ready()

	rooms := app.NewRoomService(postgres.NewRoomStore(db), hostRelay, app.DefaultRoomPolicy())
	quizzes := infraredis.NewQuizCache(client, loader, 5*time.Minute)
	runner := app.NewQuizRunner(rooms, postgres.NewAttemptStore(db), quizzes, hostRelay)

	host := domain.Identity{UserID: "host", Name: "Host"}
	alice := domain.Identity{UserID: "u1", Name: "Alice"}
	bob := domain.Identity{UserID: "u2", Name: "Bob"}

	room, err := rooms.CreateRoom(ctx, host, app.CreateRoomRequest{Name: "Capitals", QuizID: "quiz-1", MaxParticipants: 2})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	watcher := playerHub.Connect(bob.UserID)
	if err := playerHub.Subscribe(watcher.ID(), room.Code); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, p := range []domain.Identity{alice, bob} {
		if _, err := rooms.Join(ctx, p, room.Code); err != nil {
			t.Fatalf("join %s: %v", p.UserID, err)
		}
		if err := rooms.SetReady(ctx, room.ID, p.UserID, true); err != nil {
			t.Fatalf("ready %s: %v", p.UserID, err)
		}
	}
	if _, err := rooms.Join(ctx, domain.Identity{UserID: "u3", Name: "Carol"}, room.Code); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	started, err := rooms.Start(ctx, room.ID, host.UserID)
	if err != nil || !started {
		t.Fatalf("start: started=%v err=%v", started, err)
	}
	waitForEvent(t, watcher, domain.EventQuizStarted)

	for _, p := range []domain.Identity{alice, bob} {
		attempt, err := runner.StartAttempt(ctx, p.UserID, room.ID)
		if err != nil {
			t.Fatalf("start attempt: %v", err)
		}
		for {
			view, ok, err := runner.NextQuestion(ctx, attempt.ID, p.UserID)
			if err != nil {
				t.Fatalf("next question: %v", err)
			}
			if !ok {
				break
			}
			sub := app.Submission{QuestionID: view.ID, OptionID: "A"}
			if view.Type == domain.KindFreeText {
				answer := " PARIS"
				sub = app.Submission{QuestionID: view.ID, TextAnswer: &answer}
			}
			if err := runner.SubmitAnswer(ctx, attempt.ID, p.UserID, sub); err != nil {
				t.Fatalf("submit answer: %v", err)
			}
		}
		done, err := runner.Complete(ctx, attempt.ID, p.UserID, domain.CompleteSubmit)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if done.CorrectCount != 2 {
			t.Fatalf("expected 2 correct answers, got %d", done.CorrectCount)
		}
	}
	waitForEvent(t, watcher, domain.EventQuizEnded)

	board, err := runner.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].CorrectAnswers != 2 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func waitForEvent(t *testing.T, c *realtime.Client, name string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Name == name {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(context.Background())
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(context.Background())
	}
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

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
