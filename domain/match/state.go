// Package match holds the authoritative state of one chain reaction match and
// the pure transitions applied to it.
package match

import (
	"fmt"
	"strings"

	"chainreaction/domain/board"
)

// Default board dimensions.
const (
	DefaultRows = 6
	DefaultCols = 9
)

// MaxPlayers caps the roster of a single match.
const MaxPlayers = board.MaxPlayers

type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "not_started":
		return StatusNotStarted, nil
	case "in_progress":
		return StatusInProgress, nil
	case "finished":
		return StatusFinished, nil
	}
	return 0, fmt.Errorf("unknown match status %q", s)
}

// Placement decides which cells a player may deposit on.
type Placement int

const (
	// PlacementOpen allows any cell and overwrites its owner.
	PlacementOpen Placement = iota
	// PlacementOwn allows empty cells and cells the mover already owns.
	PlacementOwn
)

func (p Placement) String() string {
	if p == PlacementOwn {
		return "own"
	}
	return "open"
}

func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return PlacementOpen, nil
	case "own":
		return PlacementOwn, nil
	}
	return 0, fmt.Errorf("unknown placement rule %q", s)
}

// Rules configures a new match.
type Rules struct {
	Rows      int
	Cols      int
	Placement Placement
}

func DefaultRules() Rules {
	return Rules{Rows: DefaultRows, Cols: DefaultCols, Placement: PlacementOpen}
}

// Player is the identity a client presents when creating or joining.
type Player struct {
	ID          string
	DisplayName string
}

// PlayerSlot is a seat in the match. Index is assigned in join order and
// never changes.
type PlayerSlot struct {
	ID          string
	DisplayName string
	Index       board.PlayerIndex
	HasMoved    bool
}

// State is the full record of one match. Transitions never mutate a State in
// place; they work on a Clone.
type State struct {
	RoomID       string
	Players      []PlayerSlot
	Board        board.Board
	TurnPlayerID string
	Status       Status
	Winner       board.PlayerIndex
	Placement    Placement
	Version      uint64
}

func (s State) Clone() State {
	out := s
	out.Players = append([]PlayerSlot(nil), s.Players...)
	out.Board = s.Board.Clone()
	return out
}

func (s State) slot(playerID string) (int, bool) {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i, true
		}
	}
	return -1, false
}

// Player returns the slot for playerID.
func (s State) Player(playerID string) (PlayerSlot, bool) {
	i, ok := s.slot(playerID)
	if !ok {
		return PlayerSlot{}, false
	}
	return s.Players[i], true
}

// WinnerID returns the player id of the winner, if any.
func (s State) WinnerID() (string, bool) {
	if s.Winner == board.NoPlayer {
		return "", false
	}
	for _, p := range s.Players {
		if p.Index == s.Winner {
			return p.ID, true
		}
	}
	return "", false
}
