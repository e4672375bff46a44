package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizroom-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
	// served keeps insertion order per attempt; index guards (attempt, question) uniqueness.
	served map[string][]*domain.AnsweredQuestion
	index  map[string]map[string]*domain.AnsweredQuestion
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*domain.Attempt),
		served:   make(map[string][]*domain.AnsweredQuestion),
		index:    make(map[string]map[string]*domain.AnsweredQuestion),
	}
}

func (s *AttemptStore) OpenAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.UserID == attempt.UserID &&
			existing.RoomID == attempt.RoomID &&
			existing.QuizID == attempt.QuizID &&
			existing.Status == domain.AttemptStarted {
			return *existing, nil
		}
	}
	stored := attempt
	s.attempts[attempt.ID] = &stored
	return stored, nil
}

func (s *AttemptStore) Attempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return *a, nil
}

func (s *AttemptStore) Served(_ context.Context, attemptID string) ([]domain.AnsweredQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.served[attemptID]
	out := make([]domain.AnsweredQuestion, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *AttemptStore) MarkServed(_ context.Context, record domain.AnsweredQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[record.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	byQuestion, ok := s.index[record.AttemptID]
	if !ok {
		byQuestion = make(map[string]*domain.AnsweredQuestion)
		s.index[record.AttemptID] = byQuestion
	}
	if _, dup := byQuestion[record.QuestionID]; dup {
		return domain.ErrQuestionAlreadyServed
	}
	stored := record
	byQuestion[record.QuestionID] = &stored
	s.served[record.AttemptID] = append(s.served[record.AttemptID], &stored)
	return nil
}

func (s *AttemptStore) RecordAnswer(_ context.Context, record domain.AnsweredQuestion) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[record.AttemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Status.Terminal() {
		return domain.Attempt{}, domain.ErrAlreadyCompleted
	}
	stored, ok := s.index[record.AttemptID][record.QuestionID]
	if !ok {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}
	stored.OptionID = record.OptionID
	stored.TextAnswer = record.TextAnswer
	stored.Correct = record.Correct
	stored.AnsweredAt = record.AnsweredAt

	correct := 0
	for _, rec := range s.served[record.AttemptID] {
		if rec.Correct {
			correct++
		}
	}
	attempt.CorrectCount = correct
	return *attempt, nil
}

func (s *AttemptStore) Complete(_ context.Context, attemptID string, status domain.AttemptStatus, completedAt *time.Time) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Status.Terminal() {
		return domain.Attempt{}, domain.ErrAlreadyCompleted
	}
	attempt.Status = status
	attempt.CompletedAt = completedAt
	return *attempt, nil
}

func (s *AttemptStore) AttemptsByRoom(_ context.Context, roomID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.RoomID == roomID {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *AttemptStore) StaleAttempts(_ context.Context, startedBefore time.Time) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.Status == domain.AttemptStarted && a.StartedAt.Before(startedBefore) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(attempts []domain.Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.Before(attempts[j].StartedAt)
	})
}
