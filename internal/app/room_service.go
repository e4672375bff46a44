package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
)

// RoomPolicy holds the tunable rules of the room lifecycle.
type RoomPolicy struct {
	CodeAttempts           int
	MinParticipants        int
	DefaultMaxParticipants int
}

// DefaultRoomPolicy matches the behaviour rooms have always had.
func DefaultRoomPolicy() RoomPolicy {
	return RoomPolicy{
		CodeAttempts:           10,
		MinParticipants:        2,
		DefaultMaxParticipants: 50,
	}
}

// CreateRoomRequest carries host input for a new room.
type CreateRoomRequest struct {
	Name            string
	Description     string
	MaxParticipants int
	QuizID          string
}

// RoomService owns room registration, membership and the start/end lifecycle.
type RoomService struct {
	rooms     RoomRepository
	publisher Publisher
	policy    RoomPolicy
	now       func() time.Time
	newCode   func() string
}

// RoomOption customizes a RoomService.
type RoomOption func(*RoomService)

// WithClock is mainly for deterministic timestamps in tests.
func WithClock(now func() time.Time) RoomOption {
	return func(s *RoomService) { s.now = now }
}

// WithCodeGenerator replaces the random 6-digit generator.
func WithCodeGenerator(gen func() string) RoomOption {
	return func(s *RoomService) { s.newCode = gen }
}

func NewRoomService(rooms RoomRepository, publisher Publisher, policy RoomPolicy, opts ...RoomOption) *RoomService {
	def := DefaultRoomPolicy()
	if policy.CodeAttempts <= 0 {
		policy.CodeAttempts = def.CodeAttempts
	}
	if policy.MinParticipants <= 0 {
		policy.MinParticipants = def.MinParticipants
	}
	if policy.DefaultMaxParticipants <= 0 {
		policy.DefaultMaxParticipants = def.DefaultMaxParticipants
	}
	s := &RoomService{
		rooms:     rooms,
		publisher: publisher,
		policy:    policy,
		now:       time.Now,
		newCode:   randomCodeGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomCodeGenerator() func() string {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprintf("%06d", rnd.Intn(1000000))
	}
}

// ValidRoomCode reports whether code is exactly six ASCII digits.
func ValidRoomCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// CreateRoom registers a new active room under a fresh code. Codes are
// rejection-sampled against active rooms; the store's uniqueness constraint
// settles races between concurrent creators.
func (s *RoomService) CreateRoom(ctx context.Context, caller domain.Identity, req CreateRoomRequest) (domain.Room, error) {
	if req.Name == "" || req.MaxParticipants < 0 {
		return domain.Room{}, domain.ErrInvalidRoom
	}
	maxParticipants := req.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = s.policy.DefaultMaxParticipants
	}
	log := config.WithContext(ctx)

	for attempt := 0; attempt < s.policy.CodeAttempts; attempt++ {
		code := s.newCode()
		if _, err := s.rooms.RoomByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrRoomNotFound) {
			return domain.Room{}, fmt.Errorf("check room code: %w", err)
		}

		room := domain.Room{
			ID:              uuid.NewString(),
			Code:            code,
			Name:            req.Name,
			Description:     req.Description,
			CreatedBy:       caller.UserID,
			QuizID:          req.QuizID,
			CreatedAt:       s.now().UTC(),
			Active:          true,
			MaxParticipants: maxParticipants,
		}
		err := s.rooms.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		log.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code}).Info("room created")
		return room, nil
	}
	log.WithField("attempts", s.policy.CodeAttempts).Error("room code space exhausted")
	return domain.Room{}, domain.ErrCodeSpaceExhausted
}

// RoomByCode returns the active room for code.
func (s *RoomService) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	if !ValidRoomCode(code) {
		return domain.Room{}, domain.ErrInvalidRoomCode
	}
	return s.rooms.RoomByCode(ctx, code)
}

// RoomByID returns the active room with id.
func (s *RoomService) RoomByID(ctx context.Context, id string) (domain.Room, error) {
	return s.rooms.RoomByID(ctx, id)
}

// LookupRoom returns the room with id, including rooms that already ended.
func (s *RoomService) LookupRoom(ctx context.Context, id string) (domain.Room, error) {
	return s.rooms.LookupRoom(ctx, id)
}

// RoomsByCreator lists the caller's active rooms, newest first.
func (s *RoomService) RoomsByCreator(ctx context.Context, userID string) ([]domain.Room, error) {
	return s.rooms.RoomsByCreator(ctx, userID)
}

// AllRooms lists every room, active or not. Admins only.
func (s *RoomService) AllRooms(ctx context.Context, caller domain.Identity) ([]domain.Room, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrAdminOnly
	}
	return s.rooms.AllRooms(ctx)
}

// Join adds the caller to the room behind code. Re-joining is a no-op success.
func (s *RoomService) Join(ctx context.Context, caller domain.Identity, code string) (domain.Room, error) {
	room, err := s.RoomByCode(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	created, err := s.rooms.AddParticipant(ctx, domain.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      caller.UserID,
		DisplayName: caller.Name,
		AvatarPath:  caller.AvatarPath,
		JoinedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.Room{}, err
	}
	if created {
		config.WithContext(ctx).WithFields(logrus.Fields{"room_id": room.ID, "user_id": caller.UserID}).Info("participant joined")
		s.publishParticipants(ctx, room)
	}
	return room, nil
}

// Participants lists the room's members with their ready and submission flags.
// Ended rooms keep their membership list.
func (s *RoomService) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := s.rooms.LookupRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.rooms.Participants(ctx, roomID)
}

// Participant returns the caller's membership in an active room.
func (s *RoomService) Participant(ctx context.Context, roomID, userID string) (domain.Participant, error) {
	if _, err := s.rooms.RoomByID(ctx, roomID); err != nil {
		return domain.Participant{}, err
	}
	return s.rooms.Participant(ctx, roomID, userID)
}

// SetReady toggles the caller's ready flag. It is accepted after start too so
// client retries never fail; it simply has no effect on the lifecycle then.
func (s *RoomService) SetReady(ctx context.Context, roomID, userID string, ready bool) error {
	room, err := s.rooms.RoomByID(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.ErrParticipantNotFound
	}
	if err != nil {
		return err
	}
	participant, err := s.rooms.SetReady(ctx, roomID, userID, ready)
	if err != nil {
		return err
	}
	s.publish(ctx, domain.Event{
		Group: room.Code,
		Name:  domain.EventParticipantReadyChanged,
		Payload: domain.ReadyChanged{
			UserID:   participant.UserID,
			UserName: participant.DisplayName,
			IsReady:  ready,
		},
	})
	return nil
}

// Start moves the room into play. Only the creator may start it, the room
// needs a quorum and everyone must be ready. A room that already started
// returns success without a second QuizStarted broadcast.
func (s *RoomService) Start(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := s.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	started, err := s.rooms.StartRoom(ctx, roomID, s.now().UTC(), func(locked domain.Room, participants []domain.Participant) error {
		return s.checkStart(locked, participants, userID)
	})
	if err != nil {
		return false, err
	}
	if started {
		config.WithContext(ctx).WithFields(logrus.Fields{"room_id": roomID, "code": room.Code}).Info("room started")
		s.publish(ctx, domain.Event{Group: room.Code, Name: domain.EventQuizStarted, Payload: room.Code})
	}
	return started, nil
}

func (s *RoomService) checkStart(room domain.Room, participants []domain.Participant, userID string) error {
	if room.CreatedBy != userID {
		return domain.ErrNotRoomCreator
	}
	if room.Started() {
		return nil
	}
	if len(participants) < s.policy.MinParticipants {
		return domain.ErrNotEnoughParticipants
	}
	for _, p := range participants {
		if !p.Ready {
			return domain.ErrParticipantsNotReady
		}
	}
	return nil
}

// End deactivates the room. It cannot be undone.
func (s *RoomService) End(ctx context.Context, roomID string, caller domain.Identity) error {
	room, err := s.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != caller.UserID && !caller.IsAdmin() {
		return domain.ErrNotHost
	}
	ended, err := s.rooms.EndRoom(ctx, roomID, s.now().UTC())
	if err != nil {
		return err
	}
	if ended {
		config.WithContext(ctx).WithField("room_id", roomID).Info("room ended")
		s.publish(ctx, domain.Event{Group: room.Code, Name: domain.EventQuizEnded, Payload: room.Code})
	}
	return nil
}

// RemoveParticipant lets the host drop a member before the room starts.
func (s *RoomService) RemoveParticipant(ctx context.Context, roomID, hostID, targetUserID string) error {
	room, err := s.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != hostID {
		return domain.ErrNotHost
	}
	if room.Started() {
		return domain.ErrRoomAlreadyStarted
	}
	target, err := s.rooms.Participant(ctx, roomID, targetUserID)
	if err != nil {
		return err
	}
	if err := s.rooms.RemoveParticipant(ctx, roomID, targetUserID); err != nil {
		return err
	}

	s.publish(ctx, domain.Event{
		Group: domain.UserGroup(targetUserID),
		Name:  domain.EventRemovedFromRoom,
		Payload: domain.RemovedFromRoom{
			RoomCode: room.Code,
			RoomName: room.Name,
			Message:  "You have been removed by the host.",
		},
	})
	s.publish(ctx, domain.Event{
		Group: room.Code,
		Name:  domain.EventParticipantRemoved,
		Payload: domain.ParticipantRemoved{
			UserID:   target.UserID,
			UserName: target.DisplayName,
			RoomCode: room.Code,
		},
	})
	s.publishParticipants(ctx, room)
	return nil
}

// MarkSubmitted records that the participant handed in the quiz. The call
// that sets the last missing flag announces QuizEnded; later resubmissions
// and rooms that already ended stay quiet.
func (s *RoomService) MarkSubmitted(ctx context.Context, roomID, userID string) error {
	room, err := s.rooms.LookupRoom(ctx, roomID)
	if err != nil {
		return err
	}
	participants, changed, err := s.rooms.SetSubmitted(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !changed || !room.Active {
		return nil
	}
	for _, p := range participants {
		if !p.HasSubmitted {
			return nil
		}
	}
	s.publish(ctx, domain.Event{Group: room.Code, Name: domain.EventQuizEnded, Payload: room.Code})
	return nil
}

func (s *RoomService) publishParticipants(ctx context.Context, room domain.Room) {
	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		config.WithContext(ctx).WithError(err).Warn("list participants for broadcast")
		return
	}
	s.publish(ctx, domain.Event{Group: room.Code, Name: domain.EventParticipantsListUpdated, Payload: participants})
}

// publish never fails the caller: broadcasts are hints, state lives in the store.
func (s *RoomService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		config.WithContext(ctx).WithError(err).WithField("event", event.Name).Warn("broadcast dropped")
	}
}
