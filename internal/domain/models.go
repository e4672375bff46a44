package domain

import "time"

// Room is a short-code addressed container for a live multiplayer quiz.
type Room struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	CreatedBy       string     `json:"createdBy"`
	QuizID          string     `json:"quizId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Active          bool       `json:"active"`
	MaxParticipants int        `json:"maxParticipants"`
}

// RoomState is the lifecycle position of a room, derived from its timestamps.
type RoomState string

const (
	RoomCreated       RoomState = "created"
	RoomAwaitingStart RoomState = "awaiting_start"
	RoomInProgress    RoomState = "in_progress"
	RoomEnded         RoomState = "ended"
)

// State reports where the room sits in its lifecycle. A room with no
// participants yet is Created; once someone joined it is AwaitingStart.
func (r Room) State(participants int) RoomState {
	switch {
	case !r.Active || r.EndedAt != nil:
		return RoomEnded
	case r.StartedAt != nil:
		return RoomInProgress
	case participants > 0:
		return RoomAwaitingStart
	default:
		return RoomCreated
	}
}

// Started reports whether the room has left the waiting phase.
func (r Room) Started() bool {
	return r.StartedAt != nil
}

// Participant is a user's membership in a room.
type Participant struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	AvatarPath   string    `json:"avatarPath,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
	Ready        bool      `json:"isReady"`
	HasSubmitted bool      `json:"hasSubmitted"`
}

// AttemptStatus tracks a participant's progress through a room quiz.
type AttemptStatus string

const (
	AttemptStarted       AttemptStatus = "Started"
	AttemptCompleted     AttemptStatus = "Completed"
	AttemptExited        AttemptStatus = "Exited"
	AttemptAutoSubmitted AttemptStatus = "AutoSubmitted"
)

// Terminal reports whether no further mutation is allowed.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptStarted
}

// Attempt is one participant's run through the room quiz.
type Attempt struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"roomId"`
	UserID       string        `json:"userId"`
	QuizID       string        `json:"quizId"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	Status       AttemptStatus `json:"status"`
	CorrectCount int           `json:"correctCount"`
}

// AnsweredQuestion is the served-record of one question within an attempt.
// It exists from the moment the question is handed out; the answer fields
// stay empty until the participant responds.
type AnsweredQuestion struct {
	AttemptID  string     `json:"attemptId"`
	QuestionID string     `json:"questionId"`
	OptionID   string     `json:"optionId,omitempty"`
	TextAnswer *string    `json:"textAnswer,omitempty"`
	Correct    bool       `json:"correct"`
	ServedAt   time.Time  `json:"servedAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

// Answered reports whether a response has been recorded.
func (a AnsweredQuestion) Answered() bool {
	return a.AnsweredAt != nil
}

// CompletionMode selects how an attempt is closed.
type CompletionMode string

const (
	CompleteSubmit     CompletionMode = "submit"
	CompleteExit       CompletionMode = "exit"
	CompleteAutoSubmit CompletionMode = "auto-submit"
)

// Status maps a completion mode onto the terminal attempt status it produces.
func (m CompletionMode) Status() (AttemptStatus, bool) {
	switch m {
	case CompleteSubmit:
		return AttemptCompleted, true
	case CompleteExit:
		return AttemptExited, true
	case CompleteAutoSubmit:
		return AttemptAutoSubmitted, true
	}
	return "", false
}

// Identity is the authenticated caller as asserted by the auth layer.
type Identity struct {
	UserID     string
	Name       string
	AvatarPath string
	Role       string
}

const RoleAdmin = "Admin"

// IsAdmin reports whether the caller carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// LeaderboardEntry ranks one finished attempt inside a room.
type LeaderboardEntry struct {
	Rank           int           `json:"rank"`
	UserID         string        `json:"userId"`
	DisplayName    string        `json:"displayName"`
	AvatarPath     string        `json:"avatarPath,omitempty"`
	CorrectAnswers int           `json:"correctAnswers"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	Duration       time.Duration `json:"durationNs,omitempty"`
}
