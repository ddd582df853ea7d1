// Package sqlite provides a SQLite-backed match and user store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"chainreaction/domain/match"
	"chainreaction/storage"
	"chainreaction/storage/sqlite/migrations"
	"chainreaction/storage/sqlitemigrate"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists match snapshots and user records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMatch upserts the snapshot. Rows holding the same or a newer version
// are left untouched, so out-of-order writes never roll a match back.
func (s *Store) SaveMatch(ctx context.Context, snap match.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.RoomID) == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO matches (room_id, version, status, snapshot, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
    version = excluded.version,
    status = excluded.status,
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at
WHERE excluded.version > matches.version`,
		snap.RoomID,
		int64(snap.Version),
		snap.Status.String(),
		encodeSnapshot(snap),
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save match %s: %w", snap.RoomID, err)
	}
	return nil
}

func (s *Store) LoadMatch(ctx context.Context, roomID string) (match.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return match.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return match.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	var blob []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot FROM matches WHERE room_id = ?`, roomID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return match.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return match.Snapshot{}, fmt.Errorf("load match %s: %w", roomID, err)
	}
	snap, err := decodeSnapshot(blob)
	if err != nil {
		return match.Snapshot{}, fmt.Errorf("load match %s: %w", roomID, err)
	}
	return snap, nil
}

// UpsertUserRecord creates the user or refreshes its name and last room.
// The win count is never touched here.
func (s *Store) UpsertUserRecord(ctx context.Context, user storage.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	playerID := strings.TrimSpace(user.PlayerID)
	if playerID == "" {
		return fmt.Errorf("player id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (player_id, display_name, last_room_id, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
    display_name = excluded.display_name,
    last_room_id = excluded.last_room_id,
    updated_at = excluded.updated_at`,
		playerID,
		user.DisplayName,
		user.LastRoomID,
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", playerID, err)
	}
	return nil
}

// IncrementWinCount adds one win to playerID and records roomID as credited
// in the same transaction. A room that was already credited is skipped, which
// makes retries after an unacknowledged commit safe.
func (s *Store) IncrementWinCount(ctx context.Context, roomID, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	roomID = strings.TrimSpace(roomID)
	playerID = strings.TrimSpace(playerID)
	if roomID == "" || playerID == "" {
		return fmt.Errorf("room id and player id are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("increment wins %s: begin: %w", playerID, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wins_credited (room_id, player_id, credited_at) VALUES (?, ?, ?)`,
		roomID, playerID, now,
	)
	if IsConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credit room %s: %w", roomID, err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (player_id, wins, updated_at)
VALUES (?, 1, ?)
ON CONFLICT(player_id) DO UPDATE SET
    wins = users.wins + 1,
    updated_at = excluded.updated_at`,
		playerID,
		now,
	); err != nil {
		return fmt.Errorf("increment wins %s: %w", playerID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("increment wins %s: commit: %w", playerID, err)
	}
	return nil
}

// TopWinners lists users by wins, highest first, ties broken by name.
func (s *Store) TopWinners(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT display_name, wins
FROM users
ORDER BY wins DESC, display_name ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top winners: %w", err)
	}
	defer rows.Close()

	var out []storage.LeaderboardEntry
	for rows.Next() {
		var entry storage.LeaderboardEntry
		if err := rows.Scan(&entry.DisplayName, &entry.Wins); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top winners: %w", err)
	}
	return out, nil
}

// IsConflict reports whether err is a primary key or unique violation.
// IncrementWinCount relies on it to detect a room that was already credited.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.Leaderboard = (*Store)(nil)
)
