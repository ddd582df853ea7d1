package gamepb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainreaction/domain/board"
	"chainreaction/domain/match"
	"chainreaction/domain/room"
	"chainreaction/storage"
)

func TestFromSnapshot(t *testing.T) {
	state, err := match.Create("r1", match.Player{ID: "p1", DisplayName: "Alice"}, match.Rules{Rows: 2, Cols: 3, Placement: match.PlacementOwn})
	require.NoError(t, err)
	state, err = match.Join(state, match.Player{ID: "p2", DisplayName: "Bob"})
	require.NoError(t, err)
	state, _, err = match.Move(state, "p1", 1, 2)
	require.NoError(t, err)

	got := FromSnapshot(state.Snapshot())
	assert.Equal(t, "r1", got.RoomId)
	assert.Equal(t, int32(2), got.Rows)
	assert.Equal(t, int32(3), got.Cols)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, "own", got.Placement)
	assert.Equal(t, "p2", got.TurnPlayerId)
	assert.Equal(t, &Player{PlayerId: "p1", DisplayName: "Alice", Index: 1, HasMoved: true}, got.Players[0])
	require.Len(t, got.Cells, 6)
	assert.Equal(t, &Cell{Atoms: 1, Owner: 1}, got.Cells[5])
}

func TestFromEvent(t *testing.T) {
	cascade := FromEvent(room.Event{
		Kind:       room.EventCascadeOccurred,
		RoomID:     "r1",
		Version:    7,
		Explosions: []board.Explosion{{Row: 0, Col: 0, Player: 1}},
	})
	assert.Equal(t, &RoomEvent{
		Type:       EventCascadeOccurred,
		RoomId:     "r1",
		Version:    7,
		Explosions: []*Explosion{{Row: 0, Col: 0, Player: 1}},
	}, cascade)

	joined := FromEvent(room.Event{Kind: room.EventPlayerJoined, RoomID: "r1", PlayerID: "p2", DisplayName: "Bob"})
	assert.Equal(t, EventPlayerJoined, joined.Type)
	assert.Equal(t, "Bob", joined.DisplayName)
	assert.Nil(t, joined.Snapshot)
}

func TestRejectedJSON(t *testing.T) {
	data, err := json.Marshal(Rejected("r1", "not_your_turn"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"rejected","roomId":"r1","reason":"not_your_turn"}`, string(data))
}

func TestFromLeaderboard(t *testing.T) {
	assert.Equal(t,
		[]*LeaderboardEntry{{DisplayName: "Bob", Wins: 3}},
		FromLeaderboard([]storage.LeaderboardEntry{{DisplayName: "Bob", Wins: 3}}),
	)
	assert.Nil(t, FromExplosions(nil))
}
