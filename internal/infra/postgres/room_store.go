package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomStore persists rooms and memberships. Membership changes and starts
// lock the room row so concurrent callers on one room serialize.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	row := roomRowFrom(room)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if sqlState(err) == codeUniqueViolation {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *RoomStore) RoomByID(ctx context.Context, id string) (domain.Room, error) {
	if !validID(id) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Where("active").Scan(ctx)
	return roomResult(row, err)
}

func (s *RoomStore) LookupRoom(ctx context.Context, id string) (domain.Room, error) {
	if !validID(id) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	return roomResult(row, err)
}

func (s *RoomStore) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Where("active").Scan(ctx)
	return roomResult(row, err)
}

func roomResult(row roomRow, err error) (domain.Room, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RoomStore) RoomsByCreator(ctx context.Context, userID string) ([]domain.Room, error) {
	var rows []roomRow
	err := s.db.NewSelect().Model(&rows).
		Where("created_by = ?", userID).
		Where("active").
		Order("created_at DESC", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select rooms by creator: %w", err)
	}
	return roomsToDomain(rows), nil
}

func (s *RoomStore) AllRooms(ctx context.Context) ([]domain.Room, error) {
	var rows []roomRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at DESC", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	return roomsToDomain(rows), nil
}

func roomsToDomain(rows []roomRow) []domain.Room {
	out := make([]domain.Room, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func (s *RoomStore) AddParticipant(ctx context.Context, p domain.Participant) (bool, error) {
	if !validID(p.RoomID) {
		return false, domain.ErrRoomNotFound
	}
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		room, err := lockRoom(ctx, tx, p.RoomID)
		if err != nil {
			return err
		}
		exists, err := tx.NewSelect().Model((*participantRow)(nil)).
			Where("room_id = ?", p.RoomID).
			Where("user_id = ?", p.UserID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if exists {
			return nil
		}
		count, err := tx.NewSelect().Model((*participantRow)(nil)).Where("room_id = ?", p.RoomID).Count(ctx)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if count >= room.MaxParticipants {
			return domain.ErrRoomFull
		}
		row := participantRowFrom(p)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *RoomStore) Participant(ctx context.Context, roomID, userID string) (domain.Participant, error) {
	if !validID(roomID) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	var row participantRow
	err := s.db.NewSelect().Model(&row).Where("room_id = ?", roomID).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RoomStore) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if !validID(roomID) {
		return []domain.Participant{}, nil
	}
	return listParticipants(ctx, s.db, roomID)
}

func listParticipants(ctx context.Context, db bun.IDB, roomID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := db.NewSelect().Model(&rows).Where("room_id = ?", roomID).Order("joined_at", "id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	return participantsToDomain(rows), nil
}

func (s *RoomStore) SetReady(ctx context.Context, roomID, userID string, ready bool) (domain.Participant, error) {
	if !validID(roomID) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	var row participantRow
	err := s.db.NewUpdate().Model(&row).
		Set("is_ready = ?", ready).
		Where("room_id = ?", roomID).
		Where("user_id = ?", userID).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("update ready flag: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RoomStore) SetSubmitted(ctx context.Context, roomID, userID string) ([]domain.Participant, bool, error) {
	if !validID(roomID) {
		return nil, false, domain.ErrParticipantNotFound
	}
	var (
		members []domain.Participant
		changed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*participantRow)(nil)).
			Set("has_submitted = TRUE").
			Where("room_id = ?", roomID).
			Where("user_id = ?", userID).
			Where("NOT has_submitted").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update submitted flag: %w", err)
		}
		changed = rowsAffected(res) > 0
		if !changed {
			exists, err := tx.NewSelect().Model((*participantRow)(nil)).
				Where("room_id = ?", roomID).
				Where("user_id = ?", userID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("select participant: %w", err)
			}
			if !exists {
				return domain.ErrParticipantNotFound
			}
		}
		members, err = listParticipants(ctx, tx, roomID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return members, changed, nil
}

func (s *RoomStore) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	if !validID(roomID) {
		return domain.ErrParticipantNotFound
	}
	res, err := s.db.NewDelete().Model((*participantRow)(nil)).
		Where("room_id = ?", roomID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *RoomStore) StartRoom(ctx context.Context, roomID string, at time.Time, guard app.StartGuard) (bool, error) {
	if !validID(roomID) {
		return false, domain.ErrRoomNotFound
	}
	started := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		members, err := listParticipants(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := guard(room.toDomain(), members); err != nil {
			return err
		}
		if room.StartedAt != nil {
			return nil
		}
		if _, err := tx.NewUpdate().Model((*roomRow)(nil)).
			Set("started_at = ?", at).
			Where("id = ?", roomID).
			Exec(ctx); err != nil {
			return fmt.Errorf("stamp room start: %w", err)
		}
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return started, nil
}

func (s *RoomStore) EndRoom(ctx context.Context, roomID string, at time.Time) (bool, error) {
	if !validID(roomID) {
		return false, domain.ErrRoomNotFound
	}
	res, err := s.db.NewUpdate().Model((*roomRow)(nil)).
		Set("active = FALSE").
		Set("ended_at = ?", at).
		Where("id = ?", roomID).
		Where("active").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("end room: %w", err)
	}
	if rowsAffected(res) > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*roomRow)(nil)).Where("id = ?", roomID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check room: %w", err)
	}
	if !exists {
		return false, domain.ErrRoomNotFound
	}
	return false, nil
}

func lockRoom(ctx context.Context, tx bun.Tx, roomID string) (roomRow, error) {
	var row roomRow
	err := tx.NewSelect().Model(&row).Where("id = ?", roomID).Where("active").For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return roomRow{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return roomRow{}, fmt.Errorf("lock room: %w", err)
	}
	return row, nil
}
