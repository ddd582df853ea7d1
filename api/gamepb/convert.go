package gamepb

import (
	"chainreaction/domain/board"
	"chainreaction/domain/match"
	"chainreaction/domain/room"
	"chainreaction/storage"
)

func FromSnapshot(s match.Snapshot) *Snapshot {
	out := &Snapshot{
		RoomId:       s.RoomID,
		Players:      make([]*Player, 0, len(s.Players)),
		Rows:         int32(s.Rows),
		Cols:         int32(s.Cols),
		Cells:        make([]*Cell, 0, len(s.Cells)),
		TurnPlayerId: s.TurnPlayerID,
		Status:       s.Status.String(),
		Winner:       int32(s.Winner),
		Placement:    s.Placement.String(),
		Version:      s.Version,
	}
	for _, p := range s.Players {
		out.Players = append(out.Players, &Player{
			PlayerId:    p.ID,
			DisplayName: p.DisplayName,
			Index:       int32(p.Index),
			HasMoved:    p.HasMoved,
		})
	}
	for _, c := range s.Cells {
		out.Cells = append(out.Cells, &Cell{Atoms: int32(c.Atoms), Owner: int32(c.Owner)})
	}
	return out
}

func FromExplosions(events []board.Explosion) []*Explosion {
	if len(events) == 0 {
		return nil
	}
	out := make([]*Explosion, 0, len(events))
	for _, e := range events {
		out = append(out, &Explosion{Row: int32(e.Row), Col: int32(e.Col), Player: int32(e.Player)})
	}
	return out
}

func FromLeaderboard(entries []storage.LeaderboardEntry) []*LeaderboardEntry {
	out := make([]*LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, &LeaderboardEntry{DisplayName: e.DisplayName, Wins: int32(e.Wins)})
	}
	return out
}

// FromEvent converts a room broadcast into its wire envelope.
func FromEvent(ev room.Event) *RoomEvent {
	out := &RoomEvent{
		Type:    ev.Kind.String(),
		RoomId:  ev.RoomID,
		Version: ev.Version,
	}
	switch ev.Kind {
	case room.EventRoomCreated, room.EventMatchStarted, room.EventMatchUpdated:
		out.Snapshot = FromSnapshot(ev.Snapshot)
	case room.EventCascadeOccurred:
		out.Explosions = FromExplosions(ev.Explosions)
	case room.EventPlayerJoined:
		out.PlayerId = ev.PlayerID
		out.DisplayName = ev.DisplayName
	}
	return out
}

// RoomCreated is the event sent back to the creator of a room.
func RoomCreated(s match.Snapshot) *RoomEvent {
	return &RoomEvent{
		Type:     EventRoomCreated,
		RoomId:   s.RoomID,
		Version:  s.Version,
		Snapshot: FromSnapshot(s),
	}
}

// Rejected reports a refused command to the requester only.
func Rejected(roomID, reason string) *RoomEvent {
	return &RoomEvent{Type: EventRejected, RoomId: roomID, Reason: reason}
}
