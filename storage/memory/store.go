// Package memory provides an in-process Store used for ephemeral servers and
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chainreaction/domain/board"
	"chainreaction/domain/match"
	"chainreaction/storage"
)

type user struct {
	record storage.UserRecord
	wins   int
}

// Store keeps matches and users in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	matches  map[string]match.Snapshot
	users    map[string]*user
	credited map[string]bool // rooms whose win was counted
}

func New() *Store {
	return &Store{
		matches:  make(map[string]match.Snapshot),
		users:    make(map[string]*user),
		credited: make(map[string]bool),
	}
}

func cloneSnapshot(s match.Snapshot) match.Snapshot {
	s.Players = append([]match.PlayerSlot(nil), s.Players...)
	s.Cells = append([]board.Cell(nil), s.Cells...)
	return s
}

func (s *Store) SaveMatch(ctx context.Context, snap match.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.matches[snap.RoomID]; ok && cur.Version >= snap.Version {
		return nil
	}
	s.matches[snap.RoomID] = cloneSnapshot(snap)
	return nil
}

func (s *Store) LoadMatch(ctx context.Context, roomID string) (match.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return match.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.matches[roomID]
	if !ok {
		return match.Snapshot{}, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (s *Store) UpsertUserRecord(ctx context.Context, rec storage.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[rec.PlayerID]; ok {
		u.record = rec
		return nil
	}
	s.users[rec.PlayerID] = &user{record: rec}
	return nil
}

func (s *Store) IncrementWinCount(ctx context.Context, roomID, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credited[roomID] {
		return nil
	}
	s.credited[roomID] = true
	u, ok := s.users[playerID]
	if !ok {
		u = &user{record: storage.UserRecord{PlayerID: playerID}}
		s.users[playerID] = u
	}
	u.wins++
	return nil
}

// Wins returns the win count of one player.
func (s *Store) Wins(playerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[playerID]; ok {
		return u.wins
	}
	return 0
}

// User returns the stored record of one player.
func (s *Store) User(playerID string) (storage.UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[playerID]
	if !ok {
		return storage.UserRecord{}, false
	}
	return u.record, true
}

func (s *Store) TopWinners(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]storage.LeaderboardEntry, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, storage.LeaderboardEntry{DisplayName: u.record.DisplayName, Wins: u.wins})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return strings.Compare(out[i].DisplayName, out[j].DisplayName) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
