// Package gamepb holds the wire messages of the game API. They are shared by
// the Connect service and the WebSocket transport and are encoded as JSON.
package gamepb

// Event types carried by RoomEvent.Type.
const (
	EventRoomCreated     = "room_created"
	EventMatchStarted    = "match_started"
	EventMatchUpdated    = "match_updated"
	EventCascadeOccurred = "cascade_occurred"
	EventPlayerJoined    = "player_joined"
	EventRejected        = "rejected"
)

type Player struct {
	PlayerId    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Index       int32  `json:"index"`
	HasMoved    bool   `json:"hasMoved"`
}

type Cell struct {
	Atoms int32 `json:"atoms"`
	Owner int32 `json:"owner"`
}

// Snapshot is the public state of a match. Cells are row-major.
type Snapshot struct {
	RoomId       string    `json:"roomId"`
	Players      []*Player `json:"players"`
	Rows         int32     `json:"rows"`
	Cols         int32     `json:"cols"`
	Cells        []*Cell   `json:"cells"`
	TurnPlayerId string    `json:"turnPlayerId,omitempty"`
	Status       string    `json:"status"`
	Winner       int32     `json:"winner"`
	Placement    string    `json:"placement"`
	Version      uint64    `json:"version"`
}

type Explosion struct {
	Row    int32 `json:"row"`
	Col    int32 `json:"col"`
	Player int32 `json:"player"`
}

type CreateRoomRequest struct {
	PlayerId    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type CreateRoomResponse struct {
	RoomId   string    `json:"roomId"`
	Snapshot *Snapshot `json:"snapshot"`
}

type JoinRoomRequest struct {
	RoomId      string `json:"roomId"`
	PlayerId    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type JoinRoomResponse struct {
	Snapshot *Snapshot `json:"snapshot"`
}

type MakeMoveRequest struct {
	RoomId   string `json:"roomId"`
	PlayerId string `json:"playerId"`
	Row      int32  `json:"row"`
	Col      int32  `json:"col"`
}

type MakeMoveResponse struct {
	Snapshot   *Snapshot    `json:"snapshot"`
	Explosions []*Explosion `json:"explosions,omitempty"`
}

type GetRoomRequest struct {
	RoomId string `json:"roomId"`
}

type GetRoomResponse struct {
	Snapshot *Snapshot `json:"snapshot"`
}

type GetLeaderboardRequest struct {
	Limit int32 `json:"limit"`
}

type LeaderboardEntry struct {
	DisplayName string `json:"displayName"`
	Wins        int32  `json:"wins"`
}

type GetLeaderboardResponse struct {
	Entries []*LeaderboardEntry `json:"entries"`
}

type StreamRoomEventsRequest struct {
	RoomId string `json:"roomId"`
}

// RoomEvent is the envelope pushed to clients. Type selects which of the
// optional fields are set.
type RoomEvent struct {
	Type        string       `json:"type"`
	RoomId      string       `json:"roomId,omitempty"`
	Version     uint64       `json:"version,omitempty"`
	Snapshot    *Snapshot    `json:"snapshot,omitempty"`
	Explosions  []*Explosion `json:"explosions,omitempty"`
	PlayerId    string       `json:"playerId,omitempty"`
	DisplayName string       `json:"displayName,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}
