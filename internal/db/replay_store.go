package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrReplayNotFound is returned when no replay is stored under the id.
var ErrReplayNotFound = errors.New("replay not found")

// ReplayStore keeps uploaded replay files.
type ReplayStore struct {
	pool *pgxpool.Pool
}

// NewReplayStore creates a new replay store.
func NewReplayStore(pool *pgxpool.Pool) *ReplayStore {
	return &ReplayStore{pool: pool}
}

// SaveReplay stores the raw replay bytes. Saving the same id again replaces
// the stored file.
func (s *ReplayStore) SaveReplay(ctx context.Context, id uuid.UUID, filename string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replays (id, filename, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET filename = EXCLUDED.filename, data = EXCLUDED.data
	`, id, filename, data)
	if err != nil {
		return fmt.Errorf("save replay %s: %w", id, err)
	}
	return nil
}

// GetReplay loads the raw replay bytes for a match.
func (s *ReplayStore) GetReplay(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM replays WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReplayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get replay %s: %w", id, err)
	}
	return data, nil
}

// ReplayExists reports whether a replay is stored under the id.
func (s *ReplayStore) ReplayExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM replays WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check replay %s: %w", id, err)
	}
	return exists, nil
}
