package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
)

// Submission is a participant's answer to one served question.
type Submission struct {
	QuestionID string
	OptionID   string
	TextAnswer *string
}

// QuizRunner drives each participant's own pass through the room quiz.
type QuizRunner struct {
	rooms     *RoomService
	attempts  AttemptRepository
	quizzes   QuizRepository
	publisher Publisher
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRunner(rooms *RoomService, attempts AttemptRepository, quizzes QuizRepository, publisher Publisher) *QuizRunner {
	return &QuizRunner{
		rooms:     rooms,
		attempts:  attempts,
		quizzes:   quizzes,
		publisher: publisher,
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewQuizRunnerWithClock is test-only for deterministic timestamps.
func NewQuizRunnerWithClock(rooms *RoomService, attempts AttemptRepository, quizzes QuizRepository, publisher Publisher, now func() time.Time) *QuizRunner {
	r := NewQuizRunner(rooms, attempts, quizzes, publisher)
	r.now = now
	return r
}

// StartAttempt opens the caller's attempt for the room's quiz, reusing an
// open one when it exists.
func (r *QuizRunner) StartAttempt(ctx context.Context, userID, roomID string) (domain.Attempt, error) {
	room, err := r.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if _, err := r.rooms.Participant(ctx, roomID, userID); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.Attempt{}, domain.ErrNotParticipant
		}
		return domain.Attempt{}, err
	}
	if !room.Started() {
		return domain.Attempt{}, domain.ErrRoomNotStarted
	}
	if room.QuizID == "" {
		return domain.Attempt{}, domain.ErrRoomHasNoQuiz
	}
	if _, err := r.quizzes.GetQuiz(ctx, room.QuizID); err != nil {
		return domain.Attempt{}, err
	}

	attempt, err := r.attempts.OpenAttempt(ctx, domain.Attempt{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		QuizID:    room.QuizID,
		StartedAt: r.now().UTC(),
		Status:    domain.AttemptStarted,
	})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("open attempt: %w", err)
	}
	return attempt, nil
}

// Attempt returns the caller's attempt.
func (r *QuizRunner) Attempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	return r.ownedAttempt(ctx, attemptID, userID)
}

func (r *QuizRunner) ownedAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	attempt, err := r.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	return attempt, nil
}

// ensureRoomOpen rejects progress on attempts whose room was ended.
func (r *QuizRunner) ensureRoomOpen(ctx context.Context, roomID string) error {
	room, err := r.rooms.LookupRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return domain.ErrRoomEnded
	}
	return nil
}

// NextQuestion serves a random question the attempt has not seen. It returns
// ok=false once every question of the quiz was served. The served-record
// insert is what keeps parallel calls from handing out the same question.
func (r *QuizRunner) NextQuestion(ctx context.Context, attemptID, userID string) (domain.QuestionView, bool, error) {
	attempt, err := r.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return domain.QuestionView{}, false, err
	}
	if attempt.Status.Terminal() {
		return domain.QuestionView{}, false, domain.ErrAlreadyCompleted
	}
	if err := r.ensureRoomOpen(ctx, attempt.RoomID); err != nil {
		return domain.QuestionView{}, false, err
	}
	quiz, err := r.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.QuestionView{}, false, err
	}
	records, err := r.attempts.Served(ctx, attemptID)
	if err != nil {
		return domain.QuestionView{}, false, fmt.Errorf("load served questions: %w", err)
	}
	served := make(map[string]struct{}, len(records))
	for _, rec := range records {
		served[rec.QuestionID] = struct{}{}
	}

	for {
		question, ok := r.pickUnserved(quiz, served)
		if !ok {
			return domain.QuestionView{}, false, nil
		}
		err := r.attempts.MarkServed(ctx, domain.AnsweredQuestion{
			AttemptID:  attemptID,
			QuestionID: question.ID,
			ServedAt:   r.now().UTC(),
		})
		if errors.Is(err, domain.ErrQuestionAlreadyServed) {
			// A concurrent call claimed it first; try another one.
			served[question.ID] = struct{}{}
			continue
		}
		if err != nil {
			return domain.QuestionView{}, false, fmt.Errorf("mark served: %w", err)
		}
		return question.View(), true, nil
	}
}

func (r *QuizRunner) pickUnserved(quiz domain.Quiz, served map[string]struct{}) (domain.Question, bool) {
	candidates := make([]domain.Question, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if _, seen := served[q.ID]; !seen {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return domain.Question{}, false
	}
	r.mu.Lock()
	idx := r.rnd.Intn(len(candidates))
	r.mu.Unlock()
	return candidates[idx], true
}

// SubmitAnswer stores the response for a served question. Resubmitting the
// same question overwrites the earlier answer; the correct count is always
// recomputed from the stored records so it never double counts.
func (r *QuizRunner) SubmitAnswer(ctx context.Context, attemptID, userID string, sub Submission) error {
	attempt, err := r.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return domain.ErrAlreadyCompleted
	}
	if err := r.ensureRoomOpen(ctx, attempt.RoomID); err != nil {
		return err
	}
	quiz, err := r.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	question, ok := quiz.Question(sub.QuestionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	correct, err := scoreSubmission(question, sub)
	if err != nil {
		return err
	}

	record := domain.AnsweredQuestion{
		AttemptID:  attemptID,
		QuestionID: question.ID,
		Correct:    correct,
	}
	answeredAt := r.now().UTC()
	record.AnsweredAt = &answeredAt
	if question.Kind() == domain.KindFreeText {
		record.TextAnswer = sub.TextAnswer
	} else {
		record.OptionID = sub.OptionID
	}
	if _, err := r.attempts.RecordAnswer(ctx, record); err != nil {
		return err
	}

	r.announceProgress(ctx, attempt)
	return nil
}

// scoreSubmission validates the answer against the question variant and
// reports whether it is correct.
func scoreSubmission(question domain.Question, sub Submission) (bool, error) {
	switch body := question.Body.(type) {
	case domain.FreeText:
		if sub.TextAnswer == nil {
			return false, domain.ErrInvalidAnswer
		}
		if len(*sub.TextAnswer) > domain.TextAnswerMaxLength {
			return false, domain.ErrInvalidAnswer
		}
		return body.Matches(*sub.TextAnswer), nil
	case domain.MultipleChoice:
		if sub.OptionID == "" {
			return false, domain.ErrInvalidAnswer
		}
		opt, ok := body.Option(sub.OptionID)
		if !ok {
			return false, domain.ErrOptionNotFound
		}
		return opt.Correct, nil
	}
	return false, domain.ErrInvalidAnswer
}

func (r *QuizRunner) announceProgress(ctx context.Context, attempt domain.Attempt) {
	if r.publisher == nil {
		return
	}
	log := config.WithContext(ctx)
	room, err := r.rooms.RoomByID(ctx, attempt.RoomID)
	if err != nil {
		log.WithError(err).Debug("skip progress broadcast")
		return
	}
	records, err := r.attempts.Served(ctx, attempt.ID)
	if err != nil {
		log.WithError(err).Debug("skip progress broadcast")
		return
	}
	answered := 0
	for _, rec := range records {
		if rec.Answered() {
			answered++
		}
	}
	name := attempt.UserID
	if p, err := r.rooms.Participant(ctx, attempt.RoomID, attempt.UserID); err == nil {
		name = p.DisplayName
	}
	event := domain.Event{
		Group: room.Code,
		Name:  domain.EventAnswerSubmitted,
		Payload: domain.AnswerSubmitted{
			UserID:        attempt.UserID,
			UserName:      name,
			AnsweredCount: answered,
		},
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("broadcast dropped")
	}
}

// Complete closes the attempt. Submit and AutoSubmit stamp completedAt and
// count as a room submission; Exit leaves completedAt empty.
func (r *QuizRunner) Complete(ctx context.Context, attemptID, userID string, mode domain.CompletionMode) (domain.Attempt, error) {
	status, ok := mode.Status()
	if !ok {
		return domain.Attempt{}, domain.ErrInvalidCompletionMode
	}
	attempt, err := r.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Status.Terminal() {
		return domain.Attempt{}, domain.ErrAlreadyCompleted
	}
	if err := r.ensureRoomOpen(ctx, attempt.RoomID); err != nil {
		return domain.Attempt{}, err
	}
	return r.complete(ctx, attemptID, status)
}

func (r *QuizRunner) complete(ctx context.Context, attemptID string, status domain.AttemptStatus) (domain.Attempt, error) {
	var completedAt *time.Time
	if status != domain.AttemptExited {
		now := r.now().UTC()
		completedAt = &now
	}
	attempt, err := r.attempts.Complete(ctx, attemptID, status, completedAt)
	if err != nil {
		return domain.Attempt{}, err
	}
	log := config.WithContext(ctx).WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"room_id":    attempt.RoomID,
		"status":     attempt.Status,
	})
	log.Info("attempt completed")

	if status != domain.AttemptExited {
		if err := r.rooms.MarkSubmitted(ctx, attempt.RoomID, attempt.UserID); err != nil {
			log.WithError(err).Warn("mark participant submitted")
		}
	}
	return attempt, nil
}

// Result joins the quiz with the attempt's records into a per-question summary.
func (r *QuizRunner) Result(ctx context.Context, attemptID, userID string) (domain.QuizResult, error) {
	attempt, err := r.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	quiz, err := r.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	records, err := r.attempts.Served(ctx, attemptID)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("load served questions: %w", err)
	}
	return buildResult(attempt, quiz, records), nil
}

func buildResult(attempt domain.Attempt, quiz domain.Quiz, records []domain.AnsweredQuestion) domain.QuizResult {
	byQuestion := make(map[string]domain.AnsweredQuestion, len(records))
	for _, rec := range records {
		byQuestion[rec.QuestionID] = rec
	}

	result := domain.QuizResult{
		AttemptID:      attempt.ID,
		QuizID:         quiz.ID,
		QuizName:       quiz.Name,
		QuizImagePath:  quiz.ImagePath,
		Status:         attempt.Status,
		StartedAt:      attempt.StartedAt,
		CompletedAt:    attempt.CompletedAt,
		TotalQuestions: len(quiz.Questions),
		CorrectAnswers: attempt.CorrectCount,
		Questions:      make([]domain.ResultQuestion, 0, len(quiz.Questions)),
	}
	result.IncorrectAnswers = result.TotalQuestions - result.CorrectAnswers
	if result.IncorrectAnswers < 0 {
		result.IncorrectAnswers = 0
	}

	for _, q := range quiz.Questions {
		view := q.View()
		rq := domain.ResultQuestion{
			ID:          q.ID,
			Text:        q.Text,
			ImagePath:   q.ImagePath,
			Explanation: q.Explanation,
			Type:        q.Kind(),
			Options:     view.Options,
		}
		switch body := q.Body.(type) {
		case domain.MultipleChoice:
			rq.CorrectOptionID = body.CorrectOptionID()
		case domain.FreeText:
			rq.AcceptableAnswers = body.AcceptableAnswers
		}
		if rec, ok := byQuestion[q.ID]; ok {
			rq.Served = true
			rq.SelectedOptionID = rec.OptionID
			rq.SelectedTextAnswer = rec.TextAnswer
			rq.Correct = rec.Correct
		}
		result.Questions = append(result.Questions, rq)
	}
	return result
}

// Leaderboard ranks the room's submitted attempts by correct answers, then
// by how quickly they finished. Ended rooms keep their leaderboard.
func (r *QuizRunner) Leaderboard(ctx context.Context, roomID string) ([]domain.LeaderboardEntry, error) {
	participants, err := r.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	attempts, err := r.attempts.AttemptsByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room attempts: %w", err)
	}
	names := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		names[p.UserID] = p
	}

	entries := make([]domain.LeaderboardEntry, 0, len(attempts))
	for _, a := range attempts {
		if a.Status != domain.AttemptCompleted && a.Status != domain.AttemptAutoSubmitted {
			continue
		}
		entry := domain.LeaderboardEntry{
			UserID:         a.UserID,
			DisplayName:    names[a.UserID].DisplayName,
			AvatarPath:     names[a.UserID].AvatarPath,
			CorrectAnswers: a.CorrectCount,
			StartedAt:      a.StartedAt,
			CompletedAt:    a.CompletedAt,
		}
		if a.CompletedAt != nil {
			entry.Duration = a.CompletedAt.Sub(a.StartedAt)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CorrectAnswers != entries[j].CorrectAnswers {
			return entries[i].CorrectAnswers > entries[j].CorrectAnswers
		}
		// Tie-break by who finished faster, then name.
		if entries[i].Duration != entries[j].Duration {
			return entries[i].Duration < entries[j].Duration
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// AutoSubmitStale closes attempts left Started for longer than maxAge and
// returns how many it closed.
func (r *QuizRunner) AutoSubmitStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := r.attempts.StaleAttempts(ctx, r.now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("list stale attempts: %w", err)
	}
	closed := 0
	for _, a := range stale {
		_, err := r.complete(ctx, a.ID, domain.AttemptAutoSubmitted)
		if errors.Is(err, domain.ErrAlreadyCompleted) {
			continue
		}
		if err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}
