package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	"quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/realtime"
)

// services is the wired application graph shared by the commands.
type services struct {
	cfg     config.Config
	hub     *realtime.Hub
	relay   *redisinfra.EventRelay
	rooms   *app.RoomService
	runner  *app.QuizRunner
	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	config.InitLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// buildServices picks Postgres-backed stores when postgres.url is set and
// in-memory ones otherwise; Redis, when configured, backs the quiz cache and
// relays broadcasts between instances.
func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	s := &services{cfg: cfg, hub: realtime.NewHub()}
	log := config.Logger

	var (
		roomStore    app.RoomRepository
		attemptStore app.AttemptRepository
		loader       memory.QuizLoader
	)
	if cfg.Postgres.URL != "" {
		db, err := openMigrated(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres pool: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		roomStore = postgres.NewRoomStore(db)
		attemptStore = postgres.NewAttemptStore(db)
		loader = postgres.NewQuizLoader(pool)
		log.Info("using postgres room and attempt stores")
	} else {
		roomStore = memory.NewRoomStore()
		attemptStore = memory.NewAttemptStore()
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
		log.Warn("postgres.url not set; rooms live in memory and only the sample quiz is available")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var (
		quizzes   app.QuizRepository
		publisher app.Publisher = s.hub
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = client.Close() })
		quizzes = redisinfra.NewQuizCache(client, loader, quizTTL)
		s.relay = redisinfra.NewEventRelay(client, s.hub, redisinfra.DefaultChannel)
		publisher = s.relay
		log.WithField("addr", cfg.Redis.Addr).Info("using redis quiz cache and event relay")
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	policy := app.RoomPolicy{
		CodeAttempts:           cfg.Rooms.CodeAttempts,
		MinParticipants:        cfg.Rooms.MinParticipants,
		DefaultMaxParticipants: cfg.Rooms.DefaultMaxParticipants,
	}
	s.rooms = app.NewRoomService(roomStore, publisher, policy)
	s.runner = app.NewQuizRunner(s.rooms, attemptStore, quizzes, publisher)
	return s, nil
}

func openMigrated(ctx context.Context, dsn string) (*bun.DB, error) {
	db := postgres.Open(dsn)
	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !group.IsZero() {
		config.Logger.WithField("group", group.String()).Info("migrations applied")
	}
	return db, nil
}

// sampleQuizzes seeds the in-memory loader so a database-less run is playable.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			ID:   "sample",
			Name: "World capitals",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is the capital of Japan?",
					Body: domain.MultipleChoice{Options: []domain.Option{
						{ID: "o1", Text: "Kyoto"},
						{ID: "o2", Text: "Tokyo", Correct: true},
						{ID: "o3", Text: "Osaka"},
					}},
				},
				{
					ID:   "q2",
					Text: "Name the capital of France.",
					Body: domain.FreeText{AcceptableAnswers: []string{"Paris"}},
				},
				{
					ID:   "q3",
					Text: "Which city is the capital of Australia?",
					Body: domain.MultipleChoice{Options: []domain.Option{
						{ID: "o1", Text: "Sydney"},
						{ID: "o2", Text: "Melbourne"},
						{ID: "o3", Text: "Canberra", Correct: true},
					}},
				},
			},
		},
	}
}
