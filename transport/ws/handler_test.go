package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainreaction/api/gamepb"
	"chainreaction/domain/match"
	"chainreaction/domain/room"
	"chainreaction/storage/memory"
	"chainreaction/storage/outbox"
)

func newServer(t *testing.T) string {
	t.Helper()
	store := memory.New()
	writer := outbox.New(store, outbox.Options{})
	rooms := room.NewRegistry(store, store, writer, room.Options{})
	srv := httptest.NewServer(NewHandler(rooms, nil))
	t.Cleanup(func() {
		srv.Close()
		_ = rooms.Close(context.Background())
		_ = writer.Close(context.Background())
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) *gamepb.RoomEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev gamepb.RoomEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return &ev
}

func readTypes(t *testing.T, conn *websocket.Conn, n int) []string {
	t.Helper()
	var types []string
	for i := 0; i < n; i++ {
		types = append(types, read(t, conn).Type)
	}
	return types
}

func TestCreateJoinAndMove(t *testing.T) {
	url := newServer(t)
	host := dial(t, url)
	guest := dial(t, url)

	require.NoError(t, host.WriteJSON(Command{Type: CommandCreateRoom, PlayerId: "p1", DisplayName: "Alice"}))
	created := read(t, host)
	require.Equal(t, gamepb.EventRoomCreated, created.Type)
	roomID := created.RoomId
	require.NotEmpty(t, roomID)
	assert.Equal(t, "not_started", created.Snapshot.Status)

	require.NoError(t, guest.WriteJSON(Command{Type: CommandJoinRoom, RoomId: roomID, PlayerId: "p2", DisplayName: "Bob"}))
	want := []string{gamepb.EventMatchStarted, gamepb.EventPlayerJoined}
	assert.Equal(t, want, readTypes(t, host, 2))
	assert.Equal(t, want, readTypes(t, guest, 2))

	require.NoError(t, host.WriteJSON(Command{Type: CommandMakeMove, RoomId: roomID, PlayerId: "p1", Row: 0, Col: 0}))
	for _, conn := range []*websocket.Conn{host, guest} {
		ev := read(t, conn)
		assert.Equal(t, gamepb.EventMatchUpdated, ev.Type)
		assert.Equal(t, "p2", ev.Snapshot.TurnPlayerId)
		assert.Equal(t, &gamepb.Cell{Atoms: 1, Owner: 1}, ev.Snapshot.Cells[0])
	}
}

func TestRejectionGoesToRequesterOnly(t *testing.T) {
	url := newServer(t)
	host := dial(t, url)
	guest := dial(t, url)

	require.NoError(t, host.WriteJSON(Command{Type: CommandCreateRoom, PlayerId: "p1", DisplayName: "Alice"}))
	roomID := read(t, host).RoomId
	require.NoError(t, guest.WriteJSON(Command{Type: CommandJoinRoom, RoomId: roomID, PlayerId: "p2", DisplayName: "Bob"}))
	readTypes(t, host, 2)
	readTypes(t, guest, 2)

	require.NoError(t, guest.WriteJSON(Command{Type: CommandMakeMove, RoomId: roomID, PlayerId: "p2", Row: 0, Col: 0}))
	rejected := read(t, guest)
	assert.Equal(t, gamepb.EventRejected, rejected.Type)
	assert.Equal(t, roomID, rejected.RoomId)
	assert.Equal(t, "not_your_turn", rejected.Reason)

	require.NoError(t, host.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := host.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr), "host should receive nothing, got %v", err)
	assert.True(t, netErr.Timeout())
}

func TestBadCommands(t *testing.T) {
	url := newServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, ReasonBadRequest, read(t, conn).Reason)

	require.NoError(t, conn.WriteJSON(Command{Type: "dance"}))
	assert.Equal(t, ReasonUnknownCommand, read(t, conn).Reason)

	require.NoError(t, conn.WriteJSON(Command{Type: CommandJoinRoom, RoomId: "missing", PlayerId: "p1"}))
	ev := read(t, conn)
	assert.Equal(t, gamepb.EventRejected, ev.Type)
	assert.Equal(t, ReasonRoomNotFound, ev.Reason)

	require.NoError(t, conn.WriteJSON(Command{Type: CommandCreateRoom}))
	assert.Equal(t, ReasonInvalidRequest, read(t, conn).Reason)
}

func TestFailedJoinDropsSubscription(t *testing.T) {
	url := newServer(t)
	host := dial(t, url)
	other := dial(t, url)

	require.NoError(t, host.WriteJSON(Command{Type: CommandCreateRoom, PlayerId: "p1", DisplayName: "Alice"}))
	roomID := read(t, host).RoomId

	require.NoError(t, other.WriteJSON(Command{Type: CommandJoinRoom, RoomId: roomID, PlayerId: "p1"}))
	assert.Equal(t, "already_joined", read(t, other).Reason)

	guest := dial(t, url)
	require.NoError(t, guest.WriteJSON(Command{Type: CommandJoinRoom, RoomId: roomID, PlayerId: "p2", DisplayName: "Bob"}))
	readTypes(t, guest, 2)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "rejected joiner must not keep receiving room events")
}

func TestReason(t *testing.T) {
	assert.Equal(t, "room_full", Reason(match.ErrRoomFull))
	assert.Equal(t, ReasonRoomNotFound, Reason(room.ErrNotFound))
	assert.Equal(t, ReasonInternal, Reason(errors.New("boom")))
}
