package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionKind tags the variant carried in Question.Body.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "choice"
	KindFreeText       QuestionKind = "text"
)

// TextAnswerMaxLength bounds free-text responses.
const TextAnswerMaxLength = 500

// Quiz is the read-only question bank a room plays through.
type Quiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ImagePath string     `json:"imagePath,omitempty"`
	Questions []Question `json:"questions"`
}

// Question lookup by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Question is a single quiz item. Body is either MultipleChoice or FreeText.
type Question struct {
	ID          string
	Text        string
	ImagePath   string
	AudioPath   string
	Explanation string
	Body        QuestionBody
}

// QuestionBody is the closed set of question variants.
type QuestionBody interface {
	Kind() QuestionKind
}

// Option is one choice of a multiple-choice question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// MultipleChoice questions are answered by selecting one option.
type MultipleChoice struct {
	Options []Option
}

func (MultipleChoice) Kind() QuestionKind { return KindMultipleChoice }

// Option returns the option with the given id.
func (m MultipleChoice) Option(id string) (Option, bool) {
	for _, opt := range m.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectOptionID returns the first option flagged correct, or "".
func (m MultipleChoice) CorrectOptionID() string {
	for _, opt := range m.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// FreeText questions are answered with typed text matched against a list of
// acceptable answers.
type FreeText struct {
	AcceptableAnswers []string
}

func (FreeText) Kind() QuestionKind { return KindFreeText }

// Matches compares trimmed, case-insensitively against every acceptable answer.
func (f FreeText) Matches(answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}
	for _, accepted := range f.AcceptableAnswers {
		accepted = strings.TrimSpace(accepted)
		if accepted != "" && strings.EqualFold(answer, accepted) {
			return true
		}
	}
	return false
}

// Kind returns the variant tag, defaulting to multiple choice for a nil body.
func (q Question) Kind() QuestionKind {
	if q.Body == nil {
		return KindMultipleChoice
	}
	return q.Body.Kind()
}

type questionJSON struct {
	ID                string       `json:"id"`
	Text              string       `json:"text"`
	ImagePath         string       `json:"imagePath,omitempty"`
	AudioPath         string       `json:"audioPath,omitempty"`
	Explanation       string       `json:"explanation,omitempty"`
	Type              QuestionKind `json:"type"`
	Options           []Option     `json:"options,omitempty"`
	AcceptableAnswers []string     `json:"acceptableAnswers,omitempty"`
}

// MarshalJSON flattens the variant into a "type"-tagged object.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:          q.ID,
		Text:        q.Text,
		ImagePath:   q.ImagePath,
		AudioPath:   q.AudioPath,
		Explanation: q.Explanation,
		Type:        q.Kind(),
	}
	switch body := q.Body.(type) {
	case MultipleChoice:
		out.Options = body.Options
	case FreeText:
		out.AcceptableAnswers = body.AcceptableAnswers
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the variant from its "type" tag. An absent tag is
// read as multiple choice so older stored quizzes keep loading.
func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = Question{
		ID:          in.ID,
		Text:        in.Text,
		ImagePath:   in.ImagePath,
		AudioPath:   in.AudioPath,
		Explanation: in.Explanation,
	}
	switch in.Type {
	case KindMultipleChoice, "":
		q.Body = MultipleChoice{Options: in.Options}
	case KindFreeText:
		q.Body = FreeText{AcceptableAnswers: in.AcceptableAnswers}
	default:
		return fmt.Errorf("question %s: unknown type %q", in.ID, in.Type)
	}
	return nil
}

// OptionView is an option stripped of its correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the payload served to a participant.
type QuestionView struct {
	ID              string       `json:"id"`
	Text            string       `json:"text"`
	ImagePath       string       `json:"imagePath,omitempty"`
	AudioPath       string       `json:"audioPath,omitempty"`
	Type            QuestionKind `json:"type"`
	Options         []OptionView `json:"options,omitempty"`
	AnswerMaxLength int          `json:"answerMaxLength,omitempty"`
}

// View renders the question without anything that reveals the answer.
func (q Question) View() QuestionView {
	view := QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		ImagePath: q.ImagePath,
		AudioPath: q.AudioPath,
		Type:      q.Kind(),
	}
	switch body := q.Body.(type) {
	case MultipleChoice:
		view.Options = optionViews(body.Options)
	case FreeText:
		view.AnswerMaxLength = TextAnswerMaxLength
	}
	return view
}

func optionViews(options []Option) []OptionView {
	views := make([]OptionView, 0, len(options))
	for _, opt := range options {
		views = append(views, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return views
}

// ResultQuestion pairs a question with what the participant answered.
type ResultQuestion struct {
	ID                 string       `json:"id"`
	Text               string       `json:"text"`
	ImagePath          string       `json:"imagePath,omitempty"`
	Explanation        string       `json:"explanation,omitempty"`
	Type               QuestionKind `json:"type"`
	Options            []OptionView `json:"options,omitempty"`
	AcceptableAnswers  []string     `json:"acceptableAnswers,omitempty"`
	CorrectOptionID    string       `json:"correctOptionId,omitempty"`
	SelectedOptionID   string       `json:"selectedOptionId,omitempty"`
	SelectedTextAnswer *string      `json:"selectedTextAnswer,omitempty"`
	Served             bool         `json:"served"`
	Correct            bool         `json:"correct"`
}

// QuizResult summarizes a finished (or in-flight) attempt.
type QuizResult struct {
	AttemptID        string           `json:"attemptId"`
	QuizID           string           `json:"quizId"`
	QuizName         string           `json:"quizName"`
	QuizImagePath    string           `json:"quizImagePath,omitempty"`
	Status           AttemptStatus    `json:"status"`
	StartedAt        time.Time        `json:"startedAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	TotalQuestions   int              `json:"totalQuestions"`
	CorrectAnswers   int              `json:"correctAnswers"`
	IncorrectAnswers int              `json:"incorrectAnswers"`
	Questions        []ResultQuestion `json:"questions"`
}
