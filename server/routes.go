package server

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"connectrpc.com/connect"

	"chainreaction/api/gamepbconnect"
	"chainreaction/domain/room"
	"chainreaction/transport/ws"
	"chainreaction/utils"
)

const WebSocketPath = "/ws"

type RoutesConfig struct {
	StaticDir       string
	LeaderboardSize int
	Logger          *slog.Logger
}

// Routes mounts the Connect service, the WebSocket endpoint and the web
// client on one handler.
func Routes(rooms room.Service, cfg RoutesConfig, opts ...connect.HandlerOption) http.Handler {
	srv := New(rooms)
	if cfg.LeaderboardSize > 0 {
		srv.LeaderboardSize = cfg.LeaderboardSize
	}
	if cfg.Logger != nil {
		srv.Logger = cfg.Logger
	}

	mux := http.NewServeMux()
	gamePath, gameHandler := gamepbconnect.NewGameServiceHandler(srv, opts...)
	mux.Handle(gamePath, gameHandler)
	mux.Handle(WebSocketPath, ws.NewHandler(rooms, srv.Logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", staticHandler(cfg.StaticDir))

	return utils.WithCORS(mux)
}

// staticHandler serves files from distDir and falls back to index.html for
// client-side routes.
func staticHandler(distDir string) http.Handler {
	fs := http.FileServer(http.Dir(distDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
		path := filepath.Join(distDir, clean)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		index := filepath.Join(distDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}
