package domain

import "errors"

// ErrorKind classifies failures so transports can map them without string matching.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindNotAuthorized     ErrorKind = "not_authorized"
	KindConflict          ErrorKind = "conflict"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindValidation        ErrorKind = "validation"
	KindInternal          ErrorKind = "internal"
)

// Error is a typed failure with a message fit to show to end users.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	// ErrRoomNotFound is returned for unknown or deactivated rooms.
	ErrRoomNotFound = newError(KindNotFound, "Room not found.")
	// ErrParticipantNotFound is returned when the user is not a member of the room.
	ErrParticipantNotFound = newError(KindNotFound, "Room or participant not found.")
	// ErrAttemptNotFound indicates the room quiz attempt does not exist.
	ErrAttemptNotFound = newError(KindNotFound, "Room quiz attempt not found.")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "Quiz not found.")
	// ErrOptionNotFound indicates a submitted option ID is invalid for the question.
	ErrOptionNotFound = newError(KindNotFound, "Option not found for this question.")
	// ErrQuestionNotFound indicates the question was never served to the attempt.
	ErrQuestionNotFound = newError(KindNotFound, "Question not found for this attempt.")

	// ErrNotRoomCreator is returned when someone other than the host manages the room.
	ErrNotRoomCreator = newError(KindNotAuthorized, "You don't have permission to start this room.")
	// ErrNotHost guards host-only management operations other than start.
	ErrNotHost = newError(KindNotAuthorized, "Only the room host can do that.")
	// ErrNotAttemptOwner is returned when a caller touches someone else's attempt.
	ErrNotAttemptOwner = newError(KindNotAuthorized, "This quiz attempt belongs to another user.")
	// ErrAdminOnly guards the cross-tenant room listing.
	ErrAdminOnly = newError(KindNotAuthorized, "Only administrators can list every room.")
	// ErrNotParticipant is returned when a non-member tries to play the room quiz.
	ErrNotParticipant = newError(KindNotAuthorized, "You are not a participant in this room.")

	// ErrRoomFull is returned when the room reached its participant bound.
	ErrRoomFull = newError(KindConflict, "Room is full. Cannot join room that has reached maximum capacity.")
	// ErrNotEnoughParticipants is returned when start is attempted below quorum.
	ErrNotEnoughParticipants = newError(KindValidation, "Not enough participants to start the room.")
	// ErrParticipantsNotReady is returned when someone in the room is not ready.
	ErrParticipantsNotReady = newError(KindValidation, "All participants must be ready to start the room.")
	// ErrRoomNotStarted is returned when the quiz is requested before the host starts the room.
	ErrRoomNotStarted = newError(KindConflict, "Room has not been started yet.")
	// ErrRoomAlreadyStarted blocks membership changes once play began.
	ErrRoomAlreadyStarted = newError(KindConflict, "Room has already started.")
	// ErrRoomEnded blocks quiz progress once the room was ended.
	ErrRoomEnded = newError(KindConflict, "Room has ended.")
	// ErrRoomHasNoQuiz is returned when a started room has no quiz bound.
	ErrRoomHasNoQuiz = newError(KindConflict, "Room does not have a quiz assigned.")
	// ErrAlreadyCompleted is returned when a terminal attempt is closed again.
	ErrAlreadyCompleted = newError(KindConflict, "Quiz already completed.")
	// ErrCodeTaken is returned by stores when an active room already uses the code.
	ErrCodeTaken = newError(KindConflict, "Room code already in use.")
	// ErrQuestionAlreadyServed is returned by stores on a duplicate served-record.
	ErrQuestionAlreadyServed = newError(KindConflict, "Question already served to this attempt.")

	// ErrCodeSpaceExhausted is returned when no free room code was found within the retry budget.
	ErrCodeSpaceExhausted = newError(KindResourceExhausted, "Could not generate a unique room code after multiple attempts.")

	// ErrInvalidRoomCode is returned for codes that are not six digits.
	ErrInvalidRoomCode = newError(KindValidation, "Room code must be 6 digits.")
	// ErrInvalidCompletionMode is returned for unknown completion modes.
	ErrInvalidCompletionMode = newError(KindValidation, "Unknown completion mode.")
	// ErrInvalidAnswer is returned when the submission does not fit the question type.
	ErrInvalidAnswer = newError(KindValidation, "Answer does not match the question type.")
	// ErrInvalidRoom is returned for malformed room creation input.
	ErrInvalidRoom = newError(KindValidation, "Room name is required and max participants must be positive.")
)
