package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"chainreaction/api/gamepb"
	"chainreaction/api/gamepbconnect"
	"chainreaction/domain/match"
	"chainreaction/domain/room"
)

const DefaultLeaderboardSize = 10

type Server struct {
	RoomService     room.Service
	LeaderboardSize int
	Logger          *slog.Logger
}

var _ gamepbconnect.GameServiceHandler = (*Server)(nil)

func New(rooms room.Service) *Server {
	return &Server{
		RoomService:     rooms,
		LeaderboardSize: DefaultLeaderboardSize,
		Logger:          slog.Default(),
	}
}

func (s *Server) CreateRoom(ctx context.Context, req *connect.Request[gamepb.CreateRoomRequest]) (*connect.Response[gamepb.CreateRoomResponse], error) {
	snap, err := s.RoomService.CreateRoom(ctx, match.Player{
		ID:          req.Msg.PlayerId,
		DisplayName: req.Msg.DisplayName,
	})
	if err != nil {
		return nil, s.toConnectError("create room", err)
	}
	return connect.NewResponse(&gamepb.CreateRoomResponse{
		RoomId:   snap.RoomID,
		Snapshot: gamepb.FromSnapshot(snap),
	}), nil
}

func (s *Server) JoinRoom(ctx context.Context, req *connect.Request[gamepb.JoinRoomRequest]) (*connect.Response[gamepb.JoinRoomResponse], error) {
	if err := requireRoomID(req.Msg.RoomId); err != nil {
		return nil, err
	}
	out, err := s.RoomService.JoinRoom(ctx, req.Msg.RoomId, match.Player{
		ID:          req.Msg.PlayerId,
		DisplayName: req.Msg.DisplayName,
	})
	if err != nil {
		return nil, s.toConnectError("join room", err)
	}
	return connect.NewResponse(&gamepb.JoinRoomResponse{Snapshot: gamepb.FromSnapshot(out.Snapshot)}), nil
}

func (s *Server) MakeMove(ctx context.Context, req *connect.Request[gamepb.MakeMoveRequest]) (*connect.Response[gamepb.MakeMoveResponse], error) {
	if err := requireRoomID(req.Msg.RoomId); err != nil {
		return nil, err
	}
	out, err := s.RoomService.MakeMove(ctx, req.Msg.RoomId, req.Msg.PlayerId, int(req.Msg.Row), int(req.Msg.Col))
	if err != nil {
		return nil, s.toConnectError("make move", err)
	}
	return connect.NewResponse(&gamepb.MakeMoveResponse{
		Snapshot:   gamepb.FromSnapshot(out.Snapshot),
		Explosions: gamepb.FromExplosions(out.Explosions),
	}), nil
}

func (s *Server) GetRoom(ctx context.Context, req *connect.Request[gamepb.GetRoomRequest]) (*connect.Response[gamepb.GetRoomResponse], error) {
	if err := requireRoomID(req.Msg.RoomId); err != nil {
		return nil, err
	}
	snap, err := s.RoomService.GetRoom(ctx, req.Msg.RoomId)
	if err != nil {
		return nil, s.toConnectError("get room", err)
	}
	return connect.NewResponse(&gamepb.GetRoomResponse{Snapshot: gamepb.FromSnapshot(snap)}), nil
}

func (s *Server) GetLeaderboard(ctx context.Context, req *connect.Request[gamepb.GetLeaderboardRequest]) (*connect.Response[gamepb.GetLeaderboardResponse], error) {
	limit := int(req.Msg.Limit)
	if limit <= 0 || limit > 100 {
		limit = s.LeaderboardSize
	}
	entries, err := s.RoomService.TopWinners(ctx, limit)
	if err != nil {
		return nil, s.toConnectError("leaderboard", err)
	}
	return connect.NewResponse(&gamepb.GetLeaderboardResponse{Entries: gamepb.FromLeaderboard(entries)}), nil
}

// StreamRoomEvents sends the current snapshot, then every broadcast of the
// room until the client goes away or the room closes.
func (s *Server) StreamRoomEvents(
	ctx context.Context,
	req *connect.Request[gamepb.StreamRoomEventsRequest],
	stream *connect.ServerStream[gamepb.RoomEvent],
) error {
	if err := requireRoomID(req.Msg.RoomId); err != nil {
		return err
	}
	sub, err := s.RoomService.Subscribe(ctx, req.Msg.RoomId)
	if err != nil {
		return s.toConnectError("stream room events", err)
	}
	defer sub.Close()

	if err := stream.Send(&gamepb.RoomEvent{
		Type:     gamepb.EventMatchUpdated,
		RoomId:   sub.RoomID,
		Version:  sub.Snapshot.Version,
		Snapshot: gamepb.FromSnapshot(sub.Snapshot),
	}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(gamepb.FromEvent(ev)); err != nil {
				return err
			}
		}
	}
}

func requireRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("room id is required"))
	}
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// toConnectError maps domain errors onto Connect codes. Rule violations carry
// their reason code as the message; anything unexpected is logged and hidden.
func (s *Server) toConnectError(op string, err error) error {
	if code, ok := Code(err); ok {
		msg := match.Reason(err)
		if msg == "" {
			msg = err.Error()
		}
		return connect.NewError(code, errors.New(msg))
	}
	s.logger().Error(op+" failed", slog.String("error", err.Error()))
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// Code returns the Connect code for an expected domain error.
func Code(err error) (connect.Code, bool) {
	switch {
	case errors.Is(err, match.ErrRoomFull):
		return connect.CodeResourceExhausted, true
	case errors.Is(err, match.ErrAlreadyJoined):
		return connect.CodeAlreadyExists, true
	case errors.Is(err, match.ErrOutOfBounds), errors.Is(err, room.ErrInvalidRequest):
		return connect.CodeInvalidArgument, true
	case match.IsValidation(err):
		return connect.CodeFailedPrecondition, true
	case errors.Is(err, room.ErrNotFound):
		return connect.CodeNotFound, true
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded, true
	}
	return 0, false
}
