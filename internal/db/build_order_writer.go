package db

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sc2builds/internal/buildorder"
)

// ErrBuildOrderNotFound is returned when no build order is stored for a match.
var ErrBuildOrderNotFound = errors.New("build order not found")

// BuildOrderWriter handles writing reconstructed build orders to the database.
type BuildOrderWriter struct {
	pool *pgxpool.Pool
}

// NewBuildOrderWriter creates a new build-order writer.
func NewBuildOrderWriter(pool *pgxpool.Pool) *BuildOrderWriter {
	return &BuildOrderWriter{pool: pool}
}

// WriteBuildOrder stores one participant's build order within a single
// transaction. An advisory lock on the match id keeps concurrent jobs for the
// same match from interleaving; existing rows are purged first so re-running a
// job is idempotent.
func (w *BuildOrderWriter) WriteBuildOrder(ctx context.Context, bo *buildorder.BuildOrder, opts buildorder.Options) error {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(bo.MatchID)); err != nil {
		return fmt.Errorf("acquire match lock: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM build_orders WHERE match_id = $1 AND player_id = $2`,
		bo.MatchID, bo.Player.ID); err != nil {
		return fmt.Errorf("purge build order: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO build_orders (match_id, player_id, player_name, faction, options, halted, anomalies)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, bo.MatchID, bo.Player.ID, bo.Player.Name, bo.Player.Faction, opts, bo.Halted, len(bo.Anomalies)); err != nil {
		return fmt.Errorf("insert build order: %w", err)
	}

	if err := insertEntries(ctx, tx, bo); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}

	if err := insertLines(ctx, tx, bo); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return tx.Commit(ctx)
}

// advisoryLockKey generates a stable int64 key from a UUID for pg_advisory_lock.
func advisoryLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// entryRows flattens entries into COPY rows in timeline order.
func entryRows(bo *buildorder.BuildOrder) [][]any {
	rows := make([][]any, len(bo.Entries))
	for i, e := range bo.Entries {
		rows[i] = []any{
			bo.MatchID, bo.Player.ID, i, e.Seconds, e.Supply, e.Cap,
			e.Label, e.Category.String(), e.Kind.String(), e.Repeat(),
		}
	}
	return rows
}

// insertEntries inserts structured entries using COPY protocol.
func insertEntries(ctx context.Context, tx pgx.Tx, bo *buildorder.BuildOrder) error {
	if len(bo.Entries) == 0 {
		return nil
	}

	columns := []string{
		"match_id", "player_id", "position", "seconds", "supply", "supply_cap",
		"label", "category", "kind", "count",
	}

	_, err := tx.CopyFrom(ctx, pgx.Identifier{"build_order_entries"}, columns, pgx.CopyFromRows(entryRows(bo)))
	return err
}

// insertLines inserts rendered lines using COPY protocol.
func insertLines(ctx context.Context, tx pgx.Tx, bo *buildorder.BuildOrder) error {
	if len(bo.Lines) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"build_order_lines"},
		[]string{"match_id", "player_id", "position", "line"},
		pgx.CopyFromSlice(len(bo.Lines), func(i int) ([]any, error) {
			return []any{bo.MatchID, bo.Player.ID, i, bo.Lines[i]}, nil
		}),
	)
	return err
}

// GetLines returns the stored lines of a match. player selects by slot id or
// name; empty selects the first stored participant.
func (w *BuildOrderWriter) GetLines(ctx context.Context, matchID uuid.UUID, player string) ([]string, error) {
	playerID, err := w.resolvePlayer(ctx, matchID, player)
	if err != nil {
		return nil, err
	}

	rows, err := w.pool.Query(ctx, `
		SELECT line
		FROM build_order_lines
		WHERE match_id = $1 AND player_id = $2
		ORDER BY position
	`, matchID, playerID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	lines, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return lines, nil
}

func (w *BuildOrderWriter) resolvePlayer(ctx context.Context, matchID uuid.UUID, player string) (int, error) {
	var (
		playerID int
		err      error
	)
	switch id, convErr := strconv.Atoi(player); {
	case player == "":
		err = w.pool.QueryRow(ctx, `
			SELECT player_id FROM build_orders WHERE match_id = $1 ORDER BY player_id LIMIT 1
		`, matchID).Scan(&playerID)
	case convErr == nil:
		err = w.pool.QueryRow(ctx, `
			SELECT player_id FROM build_orders WHERE match_id = $1 AND player_id = $2
		`, matchID, id).Scan(&playerID)
	default:
		err = w.pool.QueryRow(ctx, `
			SELECT player_id FROM build_orders WHERE match_id = $1 AND player_name = $2
			ORDER BY player_id LIMIT 1
		`, matchID, player).Scan(&playerID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBuildOrderNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve player: %w", err)
	}
	return playerID, nil
}
