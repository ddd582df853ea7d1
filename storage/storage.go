// Package storage defines the persistence contract of the game server.
package storage

import (
	"context"
	"errors"

	"chainreaction/domain/match"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence adapter the rooms write through. Writes are
// best-effort mirrors of in-memory state.
type Store interface {
	// SaveMatch stores the snapshot unless a newer version is already stored.
	SaveMatch(ctx context.Context, snap match.Snapshot) error
	// LoadMatch returns the last saved snapshot or ErrNotFound.
	LoadMatch(ctx context.Context, roomID string) (match.Snapshot, error)
	UpsertUserRecord(ctx context.Context, user UserRecord) error
	// IncrementWinCount credits playerID with the win of roomID. A room is
	// credited at most once, so repeating the call is harmless.
	IncrementWinCount(ctx context.Context, roomID, playerID string) error
}

// Leaderboard is the read path over user records.
type Leaderboard interface {
	TopWinners(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

type UserRecord struct {
	PlayerID    string
	DisplayName string
	LastRoomID  string
}

type LeaderboardEntry struct {
	DisplayName string
	Wins        int
}
