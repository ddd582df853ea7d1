// Package config loads server settings from the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"chainreaction/domain/match"
)

// Config holds every setting of the game server. Environment variables seed
// the values and command-line flags override them.
type Config struct {
	Addr       string `env:"CHAINREACTION_ADDR" envDefault:":9090"`
	SQLitePath string `env:"CHAINREACTION_SQLITE_PATH"`
	StaticDir  string `env:"CHAINREACTION_STATIC_DIR" envDefault:"./public/frontend/dist"`

	Rows      int    `env:"CHAINREACTION_ROWS" envDefault:"6"`
	Cols      int    `env:"CHAINREACTION_COLS" envDefault:"9"`
	Placement string `env:"CHAINREACTION_PLACEMENT" envDefault:"open"`

	InboxSize     int           `env:"CHAINREACTION_INBOX_SIZE" envDefault:"64"`
	IdleTimeout   time.Duration `env:"CHAINREACTION_IDLE_TIMEOUT" envDefault:"30m"`
	SweepInterval time.Duration `env:"CHAINREACTION_SWEEP_INTERVAL" envDefault:"1m"`

	OutboxWorkers  int  `env:"CHAINREACTION_OUTBOX_WORKERS" envDefault:"2"`
	OutboxQueue    int  `env:"CHAINREACTION_OUTBOX_QUEUE" envDefault:"256"`
	OutboxMaxTries uint `env:"CHAINREACTION_OUTBOX_MAX_TRIES" envDefault:"5"`

	LeaderboardSize int `env:"CHAINREACTION_LEADERBOARD_SIZE" envDefault:"10"`

	LogFormat    string `env:"CHAINREACTION_LOG_FORMAT" envDefault:"text"`
	LogLevel     string `env:"CHAINREACTION_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"CHAINREACTION_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if fs == nil {
		return Config{}, errors.New("flag parser is required")
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database path; empty keeps everything in memory")
	fs.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory of the web client")
	fs.IntVar(&cfg.Rows, "rows", cfg.Rows, "Board rows")
	fs.IntVar(&cfg.Cols, "cols", cfg.Cols, "Board columns")
	fs.StringVar(&cfg.Placement, "placement", cfg.Placement, "Placement rule: open or own")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Evict rooms idle for this long")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Rows < 2 || c.Cols < 2 {
		return fmt.Errorf("board must be at least 2x2, got %dx%d", c.Rows, c.Cols)
	}
	if _, err := match.ParsePlacement(c.Placement); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Rules returns the match rules new rooms start with.
func (c Config) Rules() match.Rules {
	placement, _ := match.ParsePlacement(c.Placement)
	return match.Rules{Rows: c.Rows, Cols: c.Cols, Placement: placement}
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
