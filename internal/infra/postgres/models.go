package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID              string     `bun:"id,pk"`
	Code            string     `bun:"code"`
	Name            string     `bun:"name"`
	Description     string     `bun:"description"`
	CreatedBy       string     `bun:"created_by"`
	QuizID          string     `bun:"quiz_id,nullzero"`
	CreatedAt       time.Time  `bun:"created_at"`
	StartedAt       *time.Time `bun:"started_at"`
	EndedAt         *time.Time `bun:"ended_at"`
	Active          bool       `bun:"active"`
	MaxParticipants int        `bun:"max_participants"`
}

func roomRowFrom(r domain.Room) roomRow {
	return roomRow{
		ID:              r.ID,
		Code:            r.Code,
		Name:            r.Name,
		Description:     r.Description,
		CreatedBy:       r.CreatedBy,
		QuizID:          r.QuizID,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		Active:          r.Active,
		MaxParticipants: r.MaxParticipants,
	}
}

func (r roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:              r.ID,
		Code:            r.Code,
		Name:            r.Name,
		Description:     r.Description,
		CreatedBy:       r.CreatedBy,
		QuizID:          r.QuizID,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		Active:          r.Active,
		MaxParticipants: r.MaxParticipants,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:room_participants,alias:rp"`

	ID           string    `bun:"id,pk"`
	RoomID       string    `bun:"room_id"`
	UserID       string    `bun:"user_id"`
	DisplayName  string    `bun:"display_name"`
	AvatarPath   string    `bun:"avatar_path"`
	JoinedAt     time.Time `bun:"joined_at"`
	IsReady      bool      `bun:"is_ready"`
	HasSubmitted bool      `bun:"has_submitted"`
}

func participantRowFrom(p domain.Participant) participantRow {
	return participantRow{
		ID:           p.ID,
		RoomID:       p.RoomID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		AvatarPath:   p.AvatarPath,
		JoinedAt:     p.JoinedAt,
		IsReady:      p.Ready,
		HasSubmitted: p.HasSubmitted,
	}
}

func (p participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:           p.ID,
		RoomID:       p.RoomID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		AvatarPath:   p.AvatarPath,
		JoinedAt:     p.JoinedAt,
		Ready:        p.IsReady,
		HasSubmitted: p.HasSubmitted,
	}
}

func participantsToDomain(rows []participantRow) []domain.Participant {
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

type attemptRow struct {
	bun.BaseModel `bun:"table:room_quiz_attempts,alias:a"`

	ID           string     `bun:"id,pk"`
	RoomID       string     `bun:"room_id"`
	UserID       string     `bun:"user_id"`
	QuizID       string     `bun:"quiz_id"`
	StartedAt    time.Time  `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	Status       string     `bun:"status"`
	CorrectCount int        `bun:"correct_count"`
}

func attemptRowFrom(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:           a.ID,
		RoomID:       a.RoomID,
		UserID:       a.UserID,
		QuizID:       a.QuizID,
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		Status:       string(a.Status),
		CorrectCount: a.CorrectCount,
	}
}

func (a attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:           a.ID,
		RoomID:       a.RoomID,
		UserID:       a.UserID,
		QuizID:       a.QuizID,
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		Status:       domain.AttemptStatus(a.Status),
		CorrectCount: a.CorrectCount,
	}
}

func attemptsToDomain(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

type answeredRow struct {
	bun.BaseModel `bun:"table:room_answered_questions,alias:aq"`

	AttemptID  string     `bun:"attempt_id,pk"`
	QuestionID string     `bun:"question_id,pk"`
	OptionID   string     `bun:"option_id"`
	TextAnswer *string    `bun:"text_answer"`
	IsCorrect  bool       `bun:"is_correct"`
	ServedAt   time.Time  `bun:"served_at"`
	AnsweredAt *time.Time `bun:"answered_at"`
}

func answeredRowFrom(a domain.AnsweredQuestion) answeredRow {
	return answeredRow{
		AttemptID:  a.AttemptID,
		QuestionID: a.QuestionID,
		OptionID:   a.OptionID,
		TextAnswer: a.TextAnswer,
		IsCorrect:  a.Correct,
		ServedAt:   a.ServedAt,
		AnsweredAt: a.AnsweredAt,
	}
}

func (a answeredRow) toDomain() domain.AnsweredQuestion {
	return domain.AnsweredQuestion{
		AttemptID:  a.AttemptID,
		QuestionID: a.QuestionID,
		OptionID:   a.OptionID,
		TextAnswer: a.TextAnswer,
		Correct:    a.IsCorrect,
		ServedAt:   a.ServedAt,
		AnsweredAt: a.AnsweredAt,
	}
}
