package match

import (
	"errors"
	"fmt"

	"chainreaction/domain/board"
)

// Snapshot is the externally visible form of a State, sent to clients and
// written to storage.
type Snapshot struct {
	RoomID       string
	Players      []PlayerSlot
	Rows         int
	Cols         int
	Cells        []board.Cell // row-major
	TurnPlayerID string
	Status       Status
	Winner       board.PlayerIndex
	Placement    Placement
	Version      uint64
}

func (s State) Snapshot() Snapshot {
	return Snapshot{
		RoomID:       s.RoomID,
		Players:      append([]PlayerSlot(nil), s.Players...),
		Rows:         s.Board.Rows(),
		Cols:         s.Board.Cols(),
		Cells:        s.Board.Cells(),
		TurnPlayerID: s.TurnPlayerID,
		Status:       s.Status,
		Winner:       s.Winner,
		Placement:    s.Placement,
		Version:      s.Version,
	}
}

// Cell returns the cell at (row, col) of the snapshot grid.
func (s Snapshot) Cell(row, col int) board.Cell {
	if row < 0 || row >= s.Rows || col < 0 || col >= s.Cols {
		return board.Cell{}
	}
	return s.Cells[row*s.Cols+col]
}

// FromSnapshot rebuilds a State, checking the invariants a stored snapshot
// must satisfy before a room can be brought back to life.
func FromSnapshot(snap Snapshot) (State, error) {
	if snap.RoomID == "" {
		return State{}, errors.New("snapshot: room id is required")
	}
	if len(snap.Players) == 0 || len(snap.Players) > MaxPlayers {
		return State{}, fmt.Errorf("snapshot %s: invalid roster size %d", snap.RoomID, len(snap.Players))
	}
	seen := make(map[string]bool, len(snap.Players))
	for i, p := range snap.Players {
		if p.Index != board.PlayerIndex(i+1) {
			return State{}, fmt.Errorf("snapshot %s: player %q has index %d at seat %d", snap.RoomID, p.ID, p.Index, i+1)
		}
		if p.ID == "" || seen[p.ID] {
			return State{}, fmt.Errorf("snapshot %s: invalid or duplicate player id %q", snap.RoomID, p.ID)
		}
		seen[p.ID] = true
	}
	if snap.Status == StatusInProgress && !seen[snap.TurnPlayerID] {
		return State{}, fmt.Errorf("snapshot %s: turn player %q is not seated", snap.RoomID, snap.TurnPlayerID)
	}
	if snap.Winner != board.NoPlayer && (snap.Status != StatusFinished || int(snap.Winner) > len(snap.Players)) {
		return State{}, fmt.Errorf("snapshot %s: unexpected winner %d", snap.RoomID, snap.Winner)
	}

	b, err := board.FromCells(snap.Rows, snap.Cols, snap.Cells)
	if err != nil {
		return State{}, fmt.Errorf("snapshot %s: %w", snap.RoomID, err)
	}
	return State{
		RoomID:       snap.RoomID,
		Players:      append([]PlayerSlot(nil), snap.Players...),
		Board:        b,
		TurnPlayerID: snap.TurnPlayerID,
		Status:       snap.Status,
		Winner:       snap.Winner,
		Placement:    snap.Placement,
		Version:      snap.Version,
	}, nil
}
