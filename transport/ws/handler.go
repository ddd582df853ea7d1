// Package ws serves the game over WebSocket. Clients send JSON commands and
// receive the same RoomEvent envelopes the Connect stream carries.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chainreaction/api/gamepb"
	"chainreaction/domain/match"
	"chainreaction/domain/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
	maxMessage = 4096
)

// Command types accepted from clients.
const (
	CommandCreateRoom = "create_room"
	CommandJoinRoom   = "join_room"
	CommandMakeMove   = "make_move"
)

// Rejection reasons that do not come from the match rules.
const (
	ReasonBadRequest     = "bad_request"
	ReasonUnknownCommand = "unknown_command"
	ReasonRoomNotFound   = "room_not_found"
	ReasonInvalidRequest = "invalid_request"
	ReasonInternal       = "internal_error"
)

// Command is one client message.
type Command struct {
	Type        string `json:"type"`
	RoomId      string `json:"roomId,omitempty"`
	PlayerId    string `json:"playerId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Row         int    `json:"row"`
	Col         int    `json:"col"`
}

type Handler struct {
	rooms    room.Service
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(rooms room.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.With(slog.String("component", "ws")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		h:      h,
		conn:   conn,
		send:   make(chan *gamepb.RoomEvent, sendBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*room.Subscription),
		log:    h.log.With(slog.String("remote", r.RemoteAddr)),
	}
	go c.writePump()
	c.readPump()
}

type client struct {
	h      *Handler
	conn   *websocket.Conn
	send   chan *gamepb.RoomEvent
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu   sync.Mutex
	subs map[string]*room.Subscription
	wg   sync.WaitGroup
}

func (c *client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("connection closed", slog.String("error", err.Error()))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(gamepb.Rejected("", ReasonBadRequest))
			continue
		}
		c.dispatch(cmd)
	}
}

func (c *client) dispatch(cmd Command) {
	switch cmd.Type {
	case CommandCreateRoom:
		snap, err := c.h.rooms.CreateRoom(c.ctx, match.Player{ID: cmd.PlayerId, DisplayName: cmd.DisplayName})
		if err != nil {
			c.reject("", err)
			return
		}
		c.enqueue(gamepb.RoomCreated(snap))
		if err := c.subscribe(snap.RoomID); err != nil {
			c.reject(snap.RoomID, err)
		}
	case CommandJoinRoom:
		// Subscribe first so the joiner sees the events its own join causes.
		fresh, err := c.ensureSubscribed(cmd.RoomId)
		if err != nil {
			c.reject(cmd.RoomId, err)
			return
		}
		if _, err := c.h.rooms.JoinRoom(c.ctx, cmd.RoomId, match.Player{ID: cmd.PlayerId, DisplayName: cmd.DisplayName}); err != nil {
			if fresh {
				c.unsubscribe(cmd.RoomId)
			}
			c.reject(cmd.RoomId, err)
		}
	case CommandMakeMove:
		if _, err := c.ensureSubscribed(cmd.RoomId); err != nil {
			c.reject(cmd.RoomId, err)
			return
		}
		if _, err := c.h.rooms.MakeMove(c.ctx, cmd.RoomId, cmd.PlayerId, cmd.Row, cmd.Col); err != nil {
			c.reject(cmd.RoomId, err)
		}
	default:
		c.enqueue(gamepb.Rejected(cmd.RoomId, ReasonUnknownCommand))
	}
}

// Reason maps a service error onto the reason sent to the client.
func Reason(err error) string {
	if reason := match.Reason(err); reason != "" {
		return reason
	}
	switch {
	case errors.Is(err, room.ErrNotFound):
		return ReasonRoomNotFound
	case errors.Is(err, room.ErrInvalidRequest):
		return ReasonInvalidRequest
	}
	return ReasonInternal
}

func (c *client) reject(roomID string, err error) {
	reason := Reason(err)
	if reason == ReasonInternal {
		c.log.Error("command failed", slog.String("room_id", roomID), slog.String("error", err.Error()))
	}
	c.enqueue(gamepb.Rejected(roomID, reason))
}

func (c *client) ensureSubscribed(roomID string) (bool, error) {
	c.mu.Lock()
	_, ok := c.subs[roomID]
	c.mu.Unlock()
	if ok {
		return false, nil
	}
	return true, c.subscribe(roomID)
}

func (c *client) subscribe(roomID string) error {
	sub, err := c.h.rooms.Subscribe(c.ctx, roomID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[roomID] = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for ev := range sub.Events {
			c.enqueue(gamepb.FromEvent(ev))
		}
	}()
	return nil
}

func (c *client) unsubscribe(roomID string) {
	c.mu.Lock()
	sub, ok := c.subs[roomID]
	delete(c.subs, roomID)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (c *client) enqueue(ev *gamepb.RoomEvent) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		c.log.Warn("client lagging, dropping event", slog.String("type", ev.Type))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Warn("write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.cancel()
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*room.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	c.wg.Wait()
	close(c.done)
}
