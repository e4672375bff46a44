package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

func TestQuizRunnerScoresMixedQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("u1", "Alice"), user("u2", "Bob")
	room := f.startedRoom(t, alice, bob)

	attempt, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		view, ok, err := f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)
		if err != nil || !ok {
			t.Fatalf("next question %d: ok=%v err=%v", i, ok, err)
		}
		if seen[view.ID] {
			t.Fatalf("question %s served twice", view.ID)
		}
		seen[view.ID] = true
		for _, opt := range view.Options {
			if opt.ID == "" || opt.Text == "" {
				t.Fatalf("option view missing fields: %+v", opt)
			}
		}
	}
	if _, ok, err := f.runner.NextQuestion(ctx, attempt.ID, alice.UserID); err != nil || ok {
		t.Fatalf("expected exhaustion, ok=%v err=%v", ok, err)
	}

	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q1", OptionID: "A"}); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q2", TextAnswer: strPtr("  paris ")}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	// resubmitting the same correct answer must not inflate the score
	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q1", OptionID: "A"}); err != nil {
		t.Fatalf("resubmit q1: %v", err)
	}

	f.clock.Advance(30 * time.Second)
	done, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, domain.CompleteSubmit)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.AttemptCompleted || done.CorrectCount != 2 || done.CompletedAt == nil {
		t.Fatalf("unexpected attempt %+v", done)
	}

	result, err := f.runner.Result(ctx, attempt.ID, alice.UserID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.TotalQuestions != 2 || result.CorrectAnswers != 2 || result.IncorrectAnswers != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Questions[0].CorrectOptionID != "A" || !result.Questions[1].Correct {
		t.Fatalf("unexpected per-question summary %+v", result.Questions)
	}

	progress := f.pub.named(domain.EventAnswerSubmitted)
	if len(progress) != 3 {
		t.Fatalf("expected an AnswerSubmitted per response, got %d", len(progress))
	}
	last := progress[len(progress)-1].Payload.(domain.AnswerSubmitted)
	if last.AnsweredCount != 2 || last.UserName != "Alice" {
		t.Fatalf("unexpected progress payload %+v", last)
	}
}

func TestQuizRunnerChangedAnswerLowersScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, _ := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)
	_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)

	_ = f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q1", OptionID: "A"})
	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q1", OptionID: "B"}); err != nil {
		t.Fatalf("change answer: %v", err)
	}
	got, _ := f.runner.Attempt(ctx, attempt.ID, alice.UserID)
	if got.CorrectCount != 0 {
		t.Fatalf("expected score 0 after switching to a wrong option, got %d", got.CorrectCount)
	}
}

func TestQuizRunnerRejectsBadSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, _ := f.runner.StartAttempt(ctx, alice.UserID, room.ID)

	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, app.Submission{QuestionID: "q1", OptionID: "A"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("unserved question should be rejected, got %v", err)
	}
	_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)
	_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)

	cases := []struct {
		name string
		sub  app.Submission
		want error
	}{
		{"unknown option", app.Submission{QuestionID: "q1", OptionID: "Z"}, domain.ErrOptionNotFound},
		{"text for choice", app.Submission{QuestionID: "q1", TextAnswer: strPtr("A")}, domain.ErrInvalidAnswer},
		{"option for text", app.Submission{QuestionID: "q2", OptionID: "A"}, domain.ErrInvalidAnswer},
		{"unknown question", app.Submission{QuestionID: "q9", OptionID: "A"}, domain.ErrQuestionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, tc.sub)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := f.runner.SubmitAnswer(ctx, attempt.ID, "u2", app.Submission{QuestionID: "q1", OptionID: "A"}); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected ErrNotAttemptOwner, got %v", err)
	}
	if _, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, "abandon"); !errors.Is(err, domain.ErrInvalidCompletionMode) {
		t.Fatalf("expected ErrInvalidCompletionMode, got %v", err)
	}
}

func TestQuizRunnerConcurrentNextQuestionServesDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, _ := f.runner.StartAttempt(ctx, alice.UserID, room.ID)

	var mu sync.Mutex
	served := map[string]int{}
	var exhausted int
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			view, ok, err := f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				served[view.ID]++
			} else {
				exhausted++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("next question: %v", err)
	}
	if len(served) != 2 || served["q1"] != 1 || served["q2"] != 1 || exhausted != 4 {
		t.Fatalf("unexpected distribution served=%v exhausted=%d", served, exhausted)
	}
}

func TestQuizRunnerStartAttemptPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("u1", "Alice"), user("u2", "Bob")
	room, _ := f.rooms.CreateRoom(ctx, host, app.CreateRoomRequest{Name: "r", QuizID: "quiz-1"})
	_, _ = f.rooms.Join(ctx, alice, room.Code)

	if _, err := f.runner.StartAttempt(ctx, bob.UserID, room.ID); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID); !errors.Is(err, domain.ErrRoomNotStarted) {
		t.Fatalf("expected ErrRoomNotStarted, got %v", err)
	}
	if _, err := f.runner.StartAttempt(ctx, alice.UserID, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	noQuiz, _ := f.rooms.CreateRoom(ctx, host, app.CreateRoomRequest{Name: "empty"})
	for _, p := range []domain.Identity{alice, bob} {
		_, _ = f.rooms.Join(ctx, p, noQuiz.Code)
		_ = f.rooms.SetReady(ctx, noQuiz.ID, p.UserID, true)
	}
	if _, err := f.rooms.Start(ctx, noQuiz.ID, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.runner.StartAttempt(ctx, alice.UserID, noQuiz.ID); !errors.Is(err, domain.ErrRoomHasNoQuiz) {
		t.Fatalf("expected ErrRoomHasNoQuiz, got %v", err)
	}
}

func TestQuizRunnerStartAttemptReusesOpenAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))

	first, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	again, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil || again.ID != first.ID {
		t.Fatalf("expected the open attempt back, got %+v %v", again, err)
	}

	exited, err := f.runner.Complete(ctx, first.ID, alice.UserID, domain.CompleteExit)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if exited.Status != domain.AttemptExited || exited.CompletedAt != nil {
		t.Fatalf("exit should not stamp completion: %+v", exited)
	}
	if _, err := f.runner.Complete(ctx, first.ID, alice.UserID, domain.CompleteSubmit); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	after, _ := f.runner.Attempt(ctx, first.ID, alice.UserID)
	if after.Status != domain.AttemptExited || after.CompletedAt != nil {
		t.Fatalf("rejected complete must not touch the attempt: %+v", after)
	}
	if _, _, err := f.runner.NextQuestion(ctx, first.ID, alice.UserID); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted for a closed attempt, got %v", err)
	}

	fresh, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil || fresh.ID == first.ID {
		t.Fatalf("expected a new attempt after exit, got %+v %v", fresh, err)
	}
	p, _ := f.rooms.Participant(ctx, room.ID, alice.UserID)
	if p.HasSubmitted {
		t.Fatalf("exit must not count as a submission")
	}
}

func TestQuizRunnerAnnouncesEndWhenEveryoneSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("u1", "Alice"), user("u2", "Bob")
	room := f.startedRoom(t, alice, bob)

	for i, p := range []domain.Identity{alice, bob} {
		attempt, err := f.runner.StartAttempt(ctx, p.UserID, room.ID)
		if err != nil {
			t.Fatalf("start attempt: %v", err)
		}
		if _, err := f.runner.Complete(ctx, attempt.ID, p.UserID, domain.CompleteSubmit); err != nil {
			t.Fatalf("submit: %v", err)
		}
		ended := f.pub.named(domain.EventQuizEnded)
		if i == 0 && len(ended) != 0 {
			t.Fatalf("QuizEnded sent before everyone submitted")
		}
		if i == 1 && (len(ended) != 1 || ended[0].Group != room.Code) {
			t.Fatalf("expected QuizEnded once everyone submitted, got %+v", ended)
		}
	}
}

func TestQuizRunnerLeaderboardOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := user("u1", "Alice"), user("u2", "Bob"), user("u3", "Carol")
	room := f.startedRoom(t, alice, bob, carol)

	play := func(p domain.Identity, answer string, took time.Duration) {
		t.Helper()
		attempt, err := f.runner.StartAttempt(ctx, p.UserID, room.ID)
		if err != nil {
			t.Fatalf("start attempt: %v", err)
		}
		_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, p.UserID)
		_, _, _ = f.runner.NextQuestion(ctx, attempt.ID, p.UserID)
		if err := f.runner.SubmitAnswer(ctx, attempt.ID, p.UserID, app.Submission{QuestionID: "q1", OptionID: answer}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		f.clock.Advance(took)
		if _, err := f.runner.Complete(ctx, attempt.ID, p.UserID, domain.CompleteSubmit); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	play(alice, "B", time.Second)
	play(bob, "A", 20*time.Second)
	play(carol, "A", 5*time.Second)

	board, err := f.runner.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"Carol", "Bob", "Alice"}
	if len(board) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(board))
	}
	for i, name := range want {
		if board[i].DisplayName != name || board[i].Rank != i+1 {
			t.Fatalf("position %d: got %+v, want %s", i+1, board[i], name)
		}
	}
}

func TestQuizRunnerSecondCompleteKeepsCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, _ := f.runner.StartAttempt(ctx, alice.UserID, room.ID)

	submitted, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, domain.CompleteSubmit)
	if err != nil || submitted.CompletedAt == nil {
		t.Fatalf("submit: %+v %v", submitted, err)
	}
	stamped := *submitted.CompletedAt

	f.clock.Advance(time.Minute)
	for _, mode := range []domain.CompletionMode{domain.CompleteAutoSubmit, domain.CompleteExit, domain.CompleteSubmit} {
		if _, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, mode); !errors.Is(err, domain.ErrAlreadyCompleted) {
			t.Fatalf("%s after submit: expected ErrAlreadyCompleted, got %v", mode, err)
		}
	}
	got, _ := f.runner.Attempt(ctx, attempt.ID, alice.UserID)
	if got.Status != domain.AttemptCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(stamped) {
		t.Fatalf("completion changed after rejected calls: %+v", got)
	}
}

func TestQuizRunnerRejectsProgressAfterRoomEnds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	view, ok, err := f.runner.NextQuestion(ctx, attempt.ID, alice.UserID)
	if err != nil || !ok {
		t.Fatalf("next question: ok=%v err=%v", ok, err)
	}

	if err := f.rooms.End(ctx, room.ID, host); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, _, err := f.runner.NextQuestion(ctx, attempt.ID, alice.UserID); !errors.Is(err, domain.ErrRoomEnded) {
		t.Fatalf("next question after end: expected ErrRoomEnded, got %v", err)
	}
	sub := app.Submission{QuestionID: view.ID, OptionID: "A"}
	if view.Type == domain.KindFreeText {
		sub = app.Submission{QuestionID: view.ID, TextAnswer: strPtr("Paris")}
	}
	if err := f.runner.SubmitAnswer(ctx, attempt.ID, alice.UserID, sub); !errors.Is(err, domain.ErrRoomEnded) {
		t.Fatalf("submit after end: expected ErrRoomEnded, got %v", err)
	}
	if _, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, domain.CompleteSubmit); !errors.Is(err, domain.ErrRoomEnded) {
		t.Fatalf("complete after end: expected ErrRoomEnded, got %v", err)
	}
	if _, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("start attempt after end: expected ErrRoomNotFound, got %v", err)
	}

	got, _ := f.runner.Attempt(ctx, attempt.ID, alice.UserID)
	if got.Status != domain.AttemptStarted || got.CorrectCount != 0 {
		t.Fatalf("attempt changed after room end: %+v", got)
	}
	p, _ := f.store.Participant(ctx, room.ID, alice.UserID)
	if p.HasSubmitted {
		t.Fatalf("participant flagged as submitted in an ended room")
	}
}

func TestQuizRunnerLeaderboardRoomLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.runner.Leaderboard(ctx, "no-such-room"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	alice := user("u1", "Alice")
	room := f.startedRoom(t, alice, user("u2", "Bob"))
	attempt, _ := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if _, err := f.runner.Complete(ctx, attempt.ID, alice.UserID, domain.CompleteSubmit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.rooms.End(ctx, room.ID, host); err != nil {
		t.Fatalf("end: %v", err)
	}
	board, err := f.runner.Leaderboard(ctx, room.ID)
	if err != nil || len(board) != 1 || board[0].DisplayName != "Alice" {
		t.Fatalf("ended room should keep its leaderboard: %+v %v", board, err)
	}
}

func TestQuizRunnerAnnouncesEndOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := user("u1", "Alice"), user("u2", "Bob")
	room := f.startedRoom(t, alice, bob)

	for _, p := range []domain.Identity{alice, bob} {
		attempt, _ := f.runner.StartAttempt(ctx, p.UserID, room.ID)
		if _, err := f.runner.Complete(ctx, attempt.ID, p.UserID, domain.CompleteSubmit); err != nil {
			t.Fatalf("submit %s: %v", p.UserID, err)
		}
	}
	if n := len(f.pub.named(domain.EventQuizEnded)); n != 1 {
		t.Fatalf("expected one QuizEnded, got %d", n)
	}

	// a second run by a participant who already submitted
	again, err := f.runner.StartAttempt(ctx, alice.UserID, room.ID)
	if err != nil {
		t.Fatalf("start second attempt: %v", err)
	}
	if _, err := f.runner.Complete(ctx, again.ID, alice.UserID, domain.CompleteSubmit); err != nil {
		t.Fatalf("submit second attempt: %v", err)
	}
	if n := len(f.pub.named(domain.EventQuizEnded)); n != 1 {
		t.Fatalf("QuizEnded re-announced, got %d events", n)
	}
}
