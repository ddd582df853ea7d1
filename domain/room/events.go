package room

import (
	"fmt"

	"chainreaction/domain/board"
	"chainreaction/domain/match"
)

type EventKind int

const (
	EventRoomCreated EventKind = iota + 1
	EventMatchStarted
	EventMatchUpdated
	EventCascadeOccurred
	EventPlayerJoined
)

func (k EventKind) String() string {
	switch k {
	case EventRoomCreated:
		return "room_created"
	case EventMatchStarted:
		return "match_started"
	case EventMatchUpdated:
		return "match_updated"
	case EventCascadeOccurred:
		return "cascade_occurred"
	case EventPlayerJoined:
		return "player_joined"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is broadcast to every subscriber of a room. Which fields are set
// depends on Kind: snapshot kinds carry Snapshot, EventCascadeOccurred
// carries Explosions and EventPlayerJoined carries the joiner.
type Event struct {
	Kind        EventKind
	RoomID      string
	Version     uint64
	Snapshot    match.Snapshot
	Explosions  []board.Explosion
	PlayerID    string
	DisplayName string
}

// Intent is a command applied by a room, one at a time.
type Intent interface {
	intent()
}

type JoinIntent struct {
	Player match.Player
}

type MoveIntent struct {
	PlayerID string
	Row      int
	Col      int
}

func (JoinIntent) intent() {}
func (MoveIntent) intent() {}

// Outcome is the result of an accepted intent.
type Outcome struct {
	Snapshot   match.Snapshot
	Explosions []board.Explosion
}
