package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomHandler serves room registration, membership and lifecycle endpoints.
type RoomHandler struct {
	rooms  *app.RoomService
	runner *app.QuizRunner
}

func NewRoomHandler(rooms *app.RoomService, runner *app.QuizRunner) *RoomHandler {
	return &RoomHandler{rooms: rooms, runner: runner}
}

type createRoomRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=1000"`
	MaxParticipants int    `json:"maxParticipants" validate:"min=0,max=1000"`
	QuizID          string `json:"quizId" validate:"max=100"`
}

type joinRoomRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type roomView struct {
	domain.Room
	State            domain.RoomState `json:"state"`
	ParticipantCount int              `json:"participantCount"`
}

type submissionStatus struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	HasSubmitted bool   `json:"hasSubmitted"`
}

type submissionStatusView struct {
	Participants []submissionStatus `json:"participants"`
	AllSubmitted bool               `json:"allSubmitted"`
}

func (h *RoomHandler) view(r *http.Request, room domain.Room) (roomView, error) {
	participants, err := h.rooms.Participants(r.Context(), room.ID)
	if err != nil {
		// inactive rooms have no live membership to count
		participants = nil
		if domain.KindOf(err) != domain.KindNotFound {
			return roomView{}, err
		}
	}
	return roomView{Room: room, State: room.State(len(participants)), ParticipantCount: len(participants)}, nil
}

func (h *RoomHandler) views(r *http.Request, rooms []domain.Room) ([]roomView, error) {
	out := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		v, err := h.view(r, room)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), caller, app.CreateRoomRequest{
		Name:            req.Name,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		QuizID:          req.QuizID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomView{Room: room, State: room.State(0)})
}

func (h *RoomHandler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	rooms, err := h.rooms.RoomsByCreator(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.views(r, rooms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RoomHandler) All(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	rooms, err := h.rooms.AllRooms(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.views(r, rooms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RoomHandler) ByCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.RoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeRoom(w, r, room)
}

func (h *RoomHandler) ByID(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.RoomByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeRoom(w, r, room)
}

func (h *RoomHandler) writeRoom(w http.ResponseWriter, r *http.Request, room domain.Room) {
	v, err := h.view(r, room)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	var req joinRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	room, err := h.rooms.Join(r.Context(), caller, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeRoom(w, r, room)
}

func (h *RoomHandler) Participants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.rooms.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *RoomHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	err := h.rooms.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), caller.UserID, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetReady returns a handler that flips the caller's ready flag to ready.
func (h *RoomHandler) SetReady(ready bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := IdentityFrom(r.Context())
		if err := h.rooms.SetReady(r.Context(), chi.URLParam(r, "id"), caller.UserID, ready); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"isReady": ready})
	}
}

func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	roomID := chi.URLParam(r, "id")
	if _, err := h.rooms.Start(r.Context(), roomID, caller.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	room, err := h.rooms.RoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeRoom(w, r, room)
}

func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	if err := h.rooms.End(r.Context(), chi.URLParam(r, "id"), caller); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) SubmissionStatus(w http.ResponseWriter, r *http.Request) {
	participants, err := h.rooms.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := submissionStatusView{Participants: make([]submissionStatus, 0, len(participants)), AllSubmitted: len(participants) > 0}
	for _, p := range participants {
		out.Participants = append(out.Participants, submissionStatus{UserID: p.UserID, DisplayName: p.DisplayName, HasSubmitted: p.HasSubmitted})
		if !p.HasSubmitted {
			out.AllSubmitted = false
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RoomHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.runner.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
