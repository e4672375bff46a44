package app

import (
	"context"
	"time"

	"quizroom-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// StartGuard runs inside the store's atomic start unit with the locked room
// and its participants. A non-nil error aborts the start.
type StartGuard func(room domain.Room, participants []domain.Participant) error

// RoomRepository abstracts how rooms and memberships are stored (in-memory, Postgres).
// Implementations must make AddParticipant and StartRoom atomic with respect
// to concurrent callers on the same room.
type RoomRepository interface {
	// CreateRoom persists an active room. It returns domain.ErrCodeTaken when
	// another active room already holds the code.
	CreateRoom(ctx context.Context, room domain.Room) error
	RoomByID(ctx context.Context, id string) (domain.Room, error)
	// LookupRoom returns the room whether or not it is still active.
	LookupRoom(ctx context.Context, id string) (domain.Room, error)
	RoomByCode(ctx context.Context, code string) (domain.Room, error)
	RoomsByCreator(ctx context.Context, userID string) ([]domain.Room, error)
	AllRooms(ctx context.Context) ([]domain.Room, error)

	// AddParticipant inserts the membership unless one exists for the user.
	// It reports whether a row was created and returns domain.ErrRoomFull
	// when the room is at capacity.
	AddParticipant(ctx context.Context, p domain.Participant) (bool, error)
	Participant(ctx context.Context, roomID, userID string) (domain.Participant, error)
	Participants(ctx context.Context, roomID string) ([]domain.Participant, error)
	SetReady(ctx context.Context, roomID, userID string, ready bool) (domain.Participant, error)
	// SetSubmitted flags the participant and returns the room's full membership
	// after the update. changed is false when the flag was already set.
	SetSubmitted(ctx context.Context, roomID, userID string) (members []domain.Participant, changed bool, err error)
	RemoveParticipant(ctx context.Context, roomID, userID string) error

	// StartRoom locks the room, runs guard and stamps startedAt when the room
	// has not started yet. It reports whether this call performed the start.
	StartRoom(ctx context.Context, roomID string, at time.Time, guard StartGuard) (bool, error)
	// EndRoom stamps endedAt and deactivates the room. It reports whether this call ended it.
	EndRoom(ctx context.Context, roomID string, at time.Time) (bool, error)
}

// AttemptRepository stores per-participant quiz progress.
type AttemptRepository interface {
	// OpenAttempt returns the Started attempt for (user, room, quiz) if one
	// exists, otherwise inserts the given one.
	OpenAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	Attempt(ctx context.Context, id string) (domain.Attempt, error)
	Served(ctx context.Context, attemptID string) ([]domain.AnsweredQuestion, error)
	// MarkServed inserts the served-record. A record for the same
	// (attempt, question) yields domain.ErrQuestionAlreadyServed.
	MarkServed(ctx context.Context, record domain.AnsweredQuestion) error
	// RecordAnswer overwrites the answer on an existing served-record and
	// recomputes the attempt's correct count from all of its records.
	RecordAnswer(ctx context.Context, record domain.AnsweredQuestion) (domain.Attempt, error)
	// Complete moves a Started attempt to a terminal status, or returns
	// domain.ErrAlreadyCompleted.
	Complete(ctx context.Context, attemptID string, status domain.AttemptStatus, completedAt *time.Time) (domain.Attempt, error)
	AttemptsByRoom(ctx context.Context, roomID string) ([]domain.Attempt, error)
	StaleAttempts(ctx context.Context, startedBefore time.Time) ([]domain.Attempt, error)
}

// Publisher delivers best-effort notifications to a broadcast group.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
