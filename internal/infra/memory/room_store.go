package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository. A single
// mutex makes every check-then-act sequence atomic.
type RoomStore struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.Room
	activeCodes  map[string]string
	participants map[string][]*domain.Participant
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:        make(map[string]*domain.Room),
		activeCodes:  make(map[string]string),
		participants: make(map[string][]*domain.Participant),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.activeCodes[room.Code]; taken {
		return domain.ErrCodeTaken
	}
	stored := room
	s.rooms[room.ID] = &stored
	s.activeCodes[room.Code] = room.ID
	return nil
}

func (s *RoomStore) RoomByID(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.activeRoomLocked(id)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *room, nil
}

func (s *RoomStore) LookupRoom(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *room, nil
}

func (s *RoomStore) RoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeCodes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *s.rooms[id], nil
}

func (s *RoomStore) RoomsByCreator(_ context.Context, userID string) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0)
	for _, room := range s.rooms {
		if room.Active && room.CreatedBy == userID {
			out = append(out, *room)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RoomStore) AllRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, *room)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rooms []domain.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

func (s *RoomStore) AddParticipant(_ context.Context, p domain.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.activeRoomLocked(p.RoomID)
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	members := s.participants[p.RoomID]
	for _, existing := range members {
		if existing.UserID == p.UserID {
			return false, nil
		}
	}
	if len(members) >= room.MaxParticipants {
		return false, domain.ErrRoomFull
	}
	stored := p
	s.participants[p.RoomID] = append(members, &stored)
	return true, nil
}

func (s *RoomStore) Participant(_ context.Context, roomID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participantLocked(roomID, userID)
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return *p, nil
}

func (s *RoomStore) Participants(_ context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(roomID), nil
}

func (s *RoomStore) SetReady(_ context.Context, roomID, userID string, ready bool) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participantLocked(roomID, userID)
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	p.Ready = ready
	return *p, nil
}

func (s *RoomStore) SetSubmitted(_ context.Context, roomID, userID string) ([]domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participantLocked(roomID, userID)
	if !ok {
		return nil, false, domain.ErrParticipantNotFound
	}
	changed := !p.HasSubmitted
	p.HasSubmitted = true
	return s.snapshotLocked(roomID), changed, nil
}

func (s *RoomStore) RemoveParticipant(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.participants[roomID]
	for i, p := range members {
		if p.UserID == userID {
			s.participants[roomID] = append(members[:i:i], members[i+1:]...)
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (s *RoomStore) StartRoom(_ context.Context, roomID string, at time.Time, guard app.StartGuard) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.activeRoomLocked(roomID)
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if err := guard(*room, s.snapshotLocked(roomID)); err != nil {
		return false, err
	}
	if room.StartedAt != nil {
		return false, nil
	}
	started := at
	room.StartedAt = &started
	return true, nil
}

func (s *RoomStore) EndRoom(_ context.Context, roomID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if !room.Active {
		return false, nil
	}
	ended := at
	room.EndedAt = &ended
	room.Active = false
	delete(s.activeCodes, room.Code)
	return true, nil
}

func (s *RoomStore) activeRoomLocked(id string) (*domain.Room, bool) {
	room, ok := s.rooms[id]
	if !ok || !room.Active {
		return nil, false
	}
	return room, true
}

func (s *RoomStore) participantLocked(roomID, userID string) (*domain.Participant, bool) {
	for _, p := range s.participants[roomID] {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

func (s *RoomStore) snapshotLocked(roomID string) []domain.Participant {
	members := s.participants[roomID]
	out := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, *p)
	}
	return out
}
