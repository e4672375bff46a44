package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuizHandler serves a participant's run through the room quiz.
type QuizHandler struct {
	runner *app.QuizRunner
}

func NewQuizHandler(runner *app.QuizRunner) *QuizHandler {
	return &QuizHandler{runner: runner}
}

type saveResponseRequest struct {
	QuestionID string  `json:"questionId" validate:"required"`
	OptionID   string  `json:"optionId"`
	TextAnswer *string `json:"textAnswer" validate:"omitempty,max=500"`
}

func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	attempt, err := h.runner.StartAttempt(r.Context(), caller.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// NextQuestion answers 204 once every question has been served.
func (h *QuizHandler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	question, ok, err := h.runner.NextQuestion(r.Context(), chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *QuizHandler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	var req saveResponseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := h.runner.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), caller.UserID, app.Submission{
		QuestionID: req.QuestionID,
		OptionID:   req.OptionID,
		TextAnswer: req.TextAnswer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete returns a handler closing the attempt with mode.
func (h *QuizHandler) Complete(mode domain.CompletionMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := IdentityFrom(r.Context())
		attempt, err := h.runner.Complete(r.Context(), chi.URLParam(r, "id"), caller.UserID, mode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	}
}

func (h *QuizHandler) Result(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	result, err := h.runner.Result(r.Context(), chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
