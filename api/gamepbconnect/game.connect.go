// Package gamepbconnect wires the game API messages to Connect handlers and
// clients.
package gamepbconnect

import (
	context "context"
	errors "errors"
	http "net/http"
	strings "strings"

	connect "connectrpc.com/connect"

	gamepb "chainreaction/api/gamepb"
)

const (
	// GameServiceName is the fully-qualified name of the GameService service.
	GameServiceName = "chainreaction.v1.GameService"
)

// These constants are the fully-qualified names of the RPCs defined in this
// package. They're exposed at runtime as Spec.Procedure and as the final two
// segments of the HTTP route.
const (
	GameServiceCreateRoomProcedure       = "/chainreaction.v1.GameService/CreateRoom"
	GameServiceJoinRoomProcedure         = "/chainreaction.v1.GameService/JoinRoom"
	GameServiceMakeMoveProcedure         = "/chainreaction.v1.GameService/MakeMove"
	GameServiceGetRoomProcedure          = "/chainreaction.v1.GameService/GetRoom"
	GameServiceGetLeaderboardProcedure   = "/chainreaction.v1.GameService/GetLeaderboard"
	GameServiceStreamRoomEventsProcedure = "/chainreaction.v1.GameService/StreamRoomEvents"
)

// GameServiceClient is a client for the chainreaction.v1.GameService service.
type GameServiceClient interface {
	CreateRoom(context.Context, *connect.Request[gamepb.CreateRoomRequest]) (*connect.Response[gamepb.CreateRoomResponse], error)
	JoinRoom(context.Context, *connect.Request[gamepb.JoinRoomRequest]) (*connect.Response[gamepb.JoinRoomResponse], error)
	MakeMove(context.Context, *connect.Request[gamepb.MakeMoveRequest]) (*connect.Response[gamepb.MakeMoveResponse], error)
	GetRoom(context.Context, *connect.Request[gamepb.GetRoomRequest]) (*connect.Response[gamepb.GetRoomResponse], error)
	GetLeaderboard(context.Context, *connect.Request[gamepb.GetLeaderboardRequest]) (*connect.Response[gamepb.GetLeaderboardResponse], error)
	StreamRoomEvents(context.Context, *connect.Request[gamepb.StreamRoomEventsRequest]) (*connect.ServerStreamForClient[gamepb.RoomEvent], error)
}

// NewGameServiceClient constructs a client for the chainreaction.v1.GameService
// service. It always speaks JSON.
//
// The URL supplied here should be the base URL for the Connect server (for
// example, http://api.acme.com or https://acme.com/grpc).
func NewGameServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) GameServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(NewJSONCodec())}, opts...)
	return &gameServiceClient{
		createRoom: connect.NewClient[gamepb.CreateRoomRequest, gamepb.CreateRoomResponse](
			httpClient,
			baseURL+GameServiceCreateRoomProcedure,
			opts...,
		),
		joinRoom: connect.NewClient[gamepb.JoinRoomRequest, gamepb.JoinRoomResponse](
			httpClient,
			baseURL+GameServiceJoinRoomProcedure,
			opts...,
		),
		makeMove: connect.NewClient[gamepb.MakeMoveRequest, gamepb.MakeMoveResponse](
			httpClient,
			baseURL+GameServiceMakeMoveProcedure,
			opts...,
		),
		getRoom: connect.NewClient[gamepb.GetRoomRequest, gamepb.GetRoomResponse](
			httpClient,
			baseURL+GameServiceGetRoomProcedure,
			opts...,
		),
		getLeaderboard: connect.NewClient[gamepb.GetLeaderboardRequest, gamepb.GetLeaderboardResponse](
			httpClient,
			baseURL+GameServiceGetLeaderboardProcedure,
			opts...,
		),
		streamRoomEvents: connect.NewClient[gamepb.StreamRoomEventsRequest, gamepb.RoomEvent](
			httpClient,
			baseURL+GameServiceStreamRoomEventsProcedure,
			opts...,
		),
	}
}

// gameServiceClient implements GameServiceClient.
type gameServiceClient struct {
	createRoom       *connect.Client[gamepb.CreateRoomRequest, gamepb.CreateRoomResponse]
	joinRoom         *connect.Client[gamepb.JoinRoomRequest, gamepb.JoinRoomResponse]
	makeMove         *connect.Client[gamepb.MakeMoveRequest, gamepb.MakeMoveResponse]
	getRoom          *connect.Client[gamepb.GetRoomRequest, gamepb.GetRoomResponse]
	getLeaderboard   *connect.Client[gamepb.GetLeaderboardRequest, gamepb.GetLeaderboardResponse]
	streamRoomEvents *connect.Client[gamepb.StreamRoomEventsRequest, gamepb.RoomEvent]
}

func (c *gameServiceClient) CreateRoom(ctx context.Context, req *connect.Request[gamepb.CreateRoomRequest]) (*connect.Response[gamepb.CreateRoomResponse], error) {
	return c.createRoom.CallUnary(ctx, req)
}

func (c *gameServiceClient) JoinRoom(ctx context.Context, req *connect.Request[gamepb.JoinRoomRequest]) (*connect.Response[gamepb.JoinRoomResponse], error) {
	return c.joinRoom.CallUnary(ctx, req)
}

func (c *gameServiceClient) MakeMove(ctx context.Context, req *connect.Request[gamepb.MakeMoveRequest]) (*connect.Response[gamepb.MakeMoveResponse], error) {
	return c.makeMove.CallUnary(ctx, req)
}

func (c *gameServiceClient) GetRoom(ctx context.Context, req *connect.Request[gamepb.GetRoomRequest]) (*connect.Response[gamepb.GetRoomResponse], error) {
	return c.getRoom.CallUnary(ctx, req)
}

func (c *gameServiceClient) GetLeaderboard(ctx context.Context, req *connect.Request[gamepb.GetLeaderboardRequest]) (*connect.Response[gamepb.GetLeaderboardResponse], error) {
	return c.getLeaderboard.CallUnary(ctx, req)
}

func (c *gameServiceClient) StreamRoomEvents(ctx context.Context, req *connect.Request[gamepb.StreamRoomEventsRequest]) (*connect.ServerStreamForClient[gamepb.RoomEvent], error) {
	return c.streamRoomEvents.CallServerStream(ctx, req)
}

// GameServiceHandler is an implementation of the chainreaction.v1.GameService
// service.
type GameServiceHandler interface {
	CreateRoom(context.Context, *connect.Request[gamepb.CreateRoomRequest]) (*connect.Response[gamepb.CreateRoomResponse], error)
	JoinRoom(context.Context, *connect.Request[gamepb.JoinRoomRequest]) (*connect.Response[gamepb.JoinRoomResponse], error)
	MakeMove(context.Context, *connect.Request[gamepb.MakeMoveRequest]) (*connect.Response[gamepb.MakeMoveResponse], error)
	GetRoom(context.Context, *connect.Request[gamepb.GetRoomRequest]) (*connect.Response[gamepb.GetRoomResponse], error)
	GetLeaderboard(context.Context, *connect.Request[gamepb.GetLeaderboardRequest]) (*connect.Response[gamepb.GetLeaderboardResponse], error)
	StreamRoomEvents(context.Context, *connect.Request[gamepb.StreamRoomEventsRequest], *connect.ServerStream[gamepb.RoomEvent]) error
}

// NewGameServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewGameServiceHandler(svc GameServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts,
		connect.WithCodec(NewJSONCodec()),
		connect.WithCodec(newJSONCodec(codecNameJSONCharsetUTF8)),
	)
	gameServiceCreateRoomHandler := connect.NewUnaryHandler(
		GameServiceCreateRoomProcedure,
		svc.CreateRoom,
		opts...,
	)
	gameServiceJoinRoomHandler := connect.NewUnaryHandler(
		GameServiceJoinRoomProcedure,
		svc.JoinRoom,
		opts...,
	)
	gameServiceMakeMoveHandler := connect.NewUnaryHandler(
		GameServiceMakeMoveProcedure,
		svc.MakeMove,
		opts...,
	)
	gameServiceGetRoomHandler := connect.NewUnaryHandler(
		GameServiceGetRoomProcedure,
		svc.GetRoom,
		opts...,
	)
	gameServiceGetLeaderboardHandler := connect.NewUnaryHandler(
		GameServiceGetLeaderboardProcedure,
		svc.GetLeaderboard,
		opts...,
	)
	gameServiceStreamRoomEventsHandler := connect.NewServerStreamHandler(
		GameServiceStreamRoomEventsProcedure,
		svc.StreamRoomEvents,
		opts...,
	)
	return "/chainreaction.v1.GameService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GameServiceCreateRoomProcedure:
			gameServiceCreateRoomHandler.ServeHTTP(w, r)
		case GameServiceJoinRoomProcedure:
			gameServiceJoinRoomHandler.ServeHTTP(w, r)
		case GameServiceMakeMoveProcedure:
			gameServiceMakeMoveHandler.ServeHTTP(w, r)
		case GameServiceGetRoomProcedure:
			gameServiceGetRoomHandler.ServeHTTP(w, r)
		case GameServiceGetLeaderboardProcedure:
			gameServiceGetLeaderboardHandler.ServeHTTP(w, r)
		case GameServiceStreamRoomEventsProcedure:
			gameServiceStreamRoomEventsHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedGameServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedGameServiceHandler struct{}

func (UnimplementedGameServiceHandler) CreateRoom(context.Context, *connect.Request[gamepb.CreateRoomRequest]) (*connect.Response[gamepb.CreateRoomResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.CreateRoom is not implemented"))
}

func (UnimplementedGameServiceHandler) JoinRoom(context.Context, *connect.Request[gamepb.JoinRoomRequest]) (*connect.Response[gamepb.JoinRoomResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.JoinRoom is not implemented"))
}

func (UnimplementedGameServiceHandler) MakeMove(context.Context, *connect.Request[gamepb.MakeMoveRequest]) (*connect.Response[gamepb.MakeMoveResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.MakeMove is not implemented"))
}

func (UnimplementedGameServiceHandler) GetRoom(context.Context, *connect.Request[gamepb.GetRoomRequest]) (*connect.Response[gamepb.GetRoomResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.GetRoom is not implemented"))
}

func (UnimplementedGameServiceHandler) GetLeaderboard(context.Context, *connect.Request[gamepb.GetLeaderboardRequest]) (*connect.Response[gamepb.GetLeaderboardResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.GetLeaderboard is not implemented"))
}

func (UnimplementedGameServiceHandler) StreamRoomEvents(context.Context, *connect.Request[gamepb.StreamRoomEventsRequest], *connect.ServerStream[gamepb.RoomEvent]) error {
	return connect.NewError(connect.CodeUnimplemented, errors.New("chainreaction.v1.GameService.StreamRoomEvents is not implemented"))
}
