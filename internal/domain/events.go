package domain

// Event names pushed over the realtime channel.
const (
	EventJoinedRoom              = "JoinedRoom"
	EventLeftRoom                = "LeftRoom"
	EventQuizStarted             = "QuizStarted"
	EventQuizEnded               = "QuizEnded"
	EventParticipantReadyChanged = "ParticipantReadyStatusChanged"
	EventParticipantsListUpdated = "ParticipantsListUpdated"
	EventParticipantRemoved      = "ParticipantRemoved"
	EventRemovedFromRoom         = "RemovedFromRoom"
	EventAnswerSubmitted         = "AnswerSubmitted"
)

// Event is a best-effort notification for a broadcast group. Receivers treat
// it as a hint and re-read authoritative state through the API.
type Event struct {
	Group   string `json:"group"`
	Name    string `json:"type"`
	Payload any    `json:"payload"`
}

// UserGroup is the personal broadcast group of a user.
func UserGroup(userID string) string {
	return "user:" + userID
}

// ReadyChanged is the payload of ParticipantReadyStatusChanged.
type ReadyChanged struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsReady  bool   `json:"isReady"`
}

// ParticipantRemoved is the payload sent to a room after a host removal.
type ParticipantRemoved struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RoomCode string `json:"roomCode"`
}

// RemovedFromRoom is the payload sent to the removed user's personal group.
type RemovedFromRoom struct {
	RoomCode string `json:"roomCode"`
	RoomName string `json:"roomName"`
	Message  string `json:"message"`
}

// AnswerSubmitted announces progress without revealing correctness.
type AnswerSubmitted struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	AnsweredCount int    `json:"answeredCount"`
}
