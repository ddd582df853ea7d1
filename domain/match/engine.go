package match

import (
	"fmt"

	"chainreaction/domain/board"
)

// Create opens a match hosted by host. The host takes the first seat and the
// first turn; the match waits for a second player.
func Create(roomID string, host Player, rules Rules) (State, error) {
	b, err := board.New(rules.Rows, rules.Cols)
	if err != nil {
		return State{}, fmt.Errorf("create match: %w", err)
	}
	return State{
		RoomID:       roomID,
		Players:      []PlayerSlot{{ID: host.ID, DisplayName: host.DisplayName, Index: 1}},
		Board:        b,
		TurnPlayerID: host.ID,
		Status:       StatusNotStarted,
		Placement:    rules.Placement,
		Version:      1,
	}, nil
}

// Join seats player at the end of the roster. The second player to arrive
// starts the match with the turn on the first seat.
func Join(s State, player Player) (State, error) {
	if s.Status == StatusFinished {
		return s, ErrMatchNotActive
	}
	if len(s.Players) >= MaxPlayers {
		return s, ErrRoomFull
	}
	if _, ok := s.slot(player.ID); ok {
		return s, ErrAlreadyJoined
	}

	next := s.Clone()
	next.Players = append(next.Players, PlayerSlot{
		ID:          player.ID,
		DisplayName: player.DisplayName,
		Index:       board.PlayerIndex(len(next.Players) + 1),
	})
	if len(next.Players) == 2 && next.Status == StatusNotStarted {
		next.Status = StatusInProgress
		next.TurnPlayerID = next.Players[0].ID
	}
	next.Version++
	return next, nil
}

// Move deposits one atom for playerID at (row, col), resolves the cascade and
// either finishes the match or passes the turn to the next seat.
func Move(s State, playerID string, row, col int) (State, []board.Explosion, error) {
	if s.Status != StatusInProgress {
		return s, nil, ErrMatchNotActive
	}
	if playerID != s.TurnPlayerID {
		return s, nil, ErrNotYourTurn
	}
	seat, ok := s.slot(playerID)
	if !ok {
		return s, nil, ErrNotYourTurn
	}
	target, err := s.Board.Get(row, col)
	if err != nil {
		return s, nil, ErrOutOfBounds
	}
	mover := s.Players[seat].Index
	if s.Placement == PlacementOwn && !target.Empty() && target.Owner != mover {
		return s, nil, ErrCellOwned
	}

	next := s.Clone()
	if err := next.Board.Set(row, col, board.Cell{Owner: mover, Atoms: target.Atoms + 1}); err != nil {
		return s, nil, fmt.Errorf("deposit: %w", err)
	}
	next.Players[seat].HasMoved = true
	resolved, explosions := board.Resolve(next.Board, row, col, mover, func(b board.Board) bool {
		_, over := scoreboard(next.Players, b)
		return over
	})
	next.Board = resolved
	next.Version++

	if winner, over := scoreboard(next.Players, next.Board); over {
		next.Status = StatusFinished
		next.Winner = winner
		return next, explosions, nil
	}
	next.TurnPlayerID = next.Players[(seat+1)%len(next.Players)].ID
	return next, explosions, nil
}

// scoreboard decides whether the match is over. A player stays live while
// they own a cell or have not placed their first atom yet; the match ends
// once at most one live player remains. The cascade uses the same rule to
// stop, so a match that goes on is always left with a settled board.
func scoreboard(players []PlayerSlot, b board.Board) (board.PlayerIndex, bool) {
	if len(players) < 2 {
		return board.NoPlayer, false
	}
	counts := b.CellCounts()
	live := 0
	winner := board.NoPlayer
	for _, p := range players {
		if counts[p.Index] > 0 {
			live++
			winner = p.Index
		} else if !p.HasMoved {
			live++
		}
	}
	if live > 1 {
		return board.NoPlayer, false
	}
	return winner, true
}
