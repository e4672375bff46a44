package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

// AttemptStore persists room quiz attempts and their served-records.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// OpenAttempt relies on the partial unique index over Started attempts, so
// two concurrent starts for the same user converge on one row.
func (s *AttemptStore) OpenAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	row := attemptRowFrom(attempt)
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (user_id, room_id, quiz_id) WHERE status = 'Started' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	if rowsAffected(res) > 0 {
		return attempt, nil
	}

	var existing attemptRow
	err = s.db.NewSelect().Model(&existing).
		Where("user_id = ?", attempt.UserID).
		Where("room_id = ?", attempt.RoomID).
		Where("quiz_id = ?", attempt.QuizID).
		Where("status = ?", string(domain.AttemptStarted)).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("select open attempt: %w", err)
	}
	return existing.toDomain(), nil
}

func (s *AttemptStore) Attempt(ctx context.Context, id string) (domain.Attempt, error) {
	if !validID(id) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) Served(ctx context.Context, attemptID string) ([]domain.AnsweredQuestion, error) {
	if !validID(attemptID) {
		return []domain.AnsweredQuestion{}, nil
	}
	var rows []answeredRow
	err := s.db.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).Order("served_at", "question_id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select served questions: %w", err)
	}
	out := make([]domain.AnsweredQuestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *AttemptStore) MarkServed(ctx context.Context, record domain.AnsweredQuestion) error {
	if !validID(record.AttemptID) {
		return domain.ErrAttemptNotFound
	}
	row := answeredRowFrom(record)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		switch sqlState(err) {
		case codeUniqueViolation:
			return domain.ErrQuestionAlreadyServed
		case codeForeignKeyViolation:
			return domain.ErrAttemptNotFound
		}
		return fmt.Errorf("insert served question: %w", err)
	}
	return nil
}

func (s *AttemptStore) RecordAnswer(ctx context.Context, record domain.AnsweredQuestion) (domain.Attempt, error) {
	if !validID(record.AttemptID) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	var attempt attemptRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&attempt).Where("id = ?", record.AttemptID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if domain.AttemptStatus(attempt.Status).Terminal() {
			return domain.ErrAlreadyCompleted
		}

		res, err := tx.NewUpdate().Model((*answeredRow)(nil)).
			Set("option_id = ?", record.OptionID).
			Set("text_answer = ?", record.TextAnswer).
			Set("is_correct = ?", record.Correct).
			Set("answered_at = ?", record.AnsweredAt).
			Where("attempt_id = ?", record.AttemptID).
			Where("question_id = ?", record.QuestionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("record answer: %w", err)
		}
		if rowsAffected(res) == 0 {
			return domain.ErrQuestionNotFound
		}

		correct, err := tx.NewSelect().Model((*answeredRow)(nil)).
			Where("attempt_id = ?", record.AttemptID).
			Where("is_correct").
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count correct answers: %w", err)
		}
		attempt.CorrectCount = correct
		if _, err := tx.NewUpdate().Model(&attempt).Column("correct_count").WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update correct count: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return attempt.toDomain(), nil
}

func (s *AttemptStore) Complete(ctx context.Context, attemptID string, status domain.AttemptStatus, completedAt *time.Time) (domain.Attempt, error) {
	if !validID(attemptID) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	var row attemptRow
	err := s.db.NewUpdate().Model(&row).
		Set("status = ?", string(status)).
		Set("completed_at = ?", completedAt).
		Where("id = ?", attemptID).
		Where("status = ?", string(domain.AttemptStarted)).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, fmt.Errorf("complete attempt: %w", err)
	}
	if _, err := s.Attempt(ctx, attemptID); err != nil {
		return domain.Attempt{}, err
	}
	return domain.Attempt{}, domain.ErrAlreadyCompleted
}

func (s *AttemptStore) AttemptsByRoom(ctx context.Context, roomID string) ([]domain.Attempt, error) {
	if !validID(roomID) {
		return []domain.Attempt{}, nil
	}
	var rows []attemptRow
	if err := s.db.NewSelect().Model(&rows).Where("room_id = ?", roomID).Order("started_at").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select room attempts: %w", err)
	}
	return attemptsToDomain(rows), nil
}

func (s *AttemptStore) StaleAttempts(ctx context.Context, startedBefore time.Time) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(domain.AttemptStarted)).
		Where("started_at < ?", startedBefore).
		Order("started_at").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select stale attempts: %w", err)
	}
	return attemptsToDomain(rows), nil
}
