package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/config"
)

// Sweeper periodically auto-submits attempts whose owners stopped playing.
type Sweeper struct {
	runner     *QuizRunner
	staleAfter time.Duration
	cron       *cron.Cron
}

// NewSweeper schedules the sweep with a cron spec such as "@every 1m".
func NewSweeper(runner *QuizRunner, schedule string, staleAfter time.Duration) (*Sweeper, error) {
	logger := cronLogger{entry: config.Logger.WithField("component", "sweeper")}
	s := &Sweeper{
		runner:     runner,
		staleAfter: staleAfter,
		cron:       cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single sweep and returns how many attempts it closed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	log := config.WithContext(ctx)
	closed, err := s.runner.AutoSubmitStale(ctx, s.staleAfter)
	if err != nil {
		log.WithError(err).Error("auto-submit sweep failed")
		return closed
	}
	if closed > 0 {
		log.WithField("closed", closed).Info("auto-submitted stale attempts")
	}
	return closed
}

// cronLogger routes the scheduler's own messages into logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(cronFields(keysAndValues)).Error(msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
