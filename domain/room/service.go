package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"chainreaction/domain/match"
	"chainreaction/storage"
)

var (
	ErrNotFound       = errors.New("room not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Service is what transports use to drive rooms.
type Service interface {
	CreateRoom(ctx context.Context, host match.Player) (match.Snapshot, error)
	JoinRoom(ctx context.Context, roomID string, player match.Player) (Outcome, error)
	MakeMove(ctx context.Context, roomID, playerID string, row, col int) (Outcome, error)
	GetRoom(ctx context.Context, roomID string) (match.Snapshot, error)
	Subscribe(ctx context.Context, roomID string) (*Subscription, error)
	TopWinners(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error)
}

// Subscription streams the events of one room. Close must be called once the
// listener is done.
type Subscription struct {
	RoomID   string
	Snapshot match.Snapshot
	Events   <-chan Event
	close    func()
}

func (s *Subscription) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

const (
	DefaultInboxSize        = 64
	DefaultSubscriberBuffer = 32
	DefaultIdleTimeout      = 30 * time.Minute
	DefaultSweepInterval    = time.Minute
)

type Options struct {
	Rules            match.Rules
	InboxSize        int
	SubscriberBuffer int
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	Logger           *slog.Logger
	Tracer           trace.Tracer
	Now              func() time.Time
	NewID            func() string
}

// Registry maps room ids to live rooms. A room is created exactly once per id,
// either fresh or rebuilt from the last stored snapshot.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	group singleflight.Group

	store       storage.Store
	leaderboard storage.Leaderboard
	persist     Persister
	opts        Options
	cfg         roomConfig
	log         *slog.Logger
}

var _ Service = (*Registry)(nil)

func NewRegistry(store storage.Store, leaderboard storage.Leaderboard, persist Persister, opts Options) *Registry {
	if opts.Rules.Rows == 0 && opts.Rules.Cols == 0 {
		placement := opts.Rules.Placement
		opts.Rules = match.DefaultRules()
		opts.Rules.Placement = placement
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("chainreaction/domain/room")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	log := opts.Logger.With(slog.String("component", "rooms"))
	return &Registry{
		rooms:       make(map[string]*Room),
		store:       store,
		leaderboard: leaderboard,
		persist:     persist,
		opts:        opts,
		log:         log,
		cfg: roomConfig{
			inboxSize:        opts.InboxSize,
			subscriberBuffer: opts.SubscriberBuffer,
			persist:          persist,
			log:              log,
			tracer:           opts.Tracer,
			now:              opts.Now,
		},
	}
}

// Create starts a new room hosted by host.
func (g *Registry) Create(ctx context.Context, host match.Player) (*Room, match.Snapshot, error) {
	_, span := g.opts.Tracer.Start(ctx, "room.create")
	defer span.End()

	state, err := match.Create(g.opts.NewID(), host, g.opts.Rules)
	if err != nil {
		return nil, match.Snapshot{}, err
	}
	r := newRoom(state, g.cfg)

	g.mu.Lock()
	g.rooms[state.RoomID] = r
	g.mu.Unlock()

	snap := state.Snapshot()
	g.persist.SaveMatch(snap)
	g.persist.UpsertUser(storage.UserRecord{
		PlayerID:    host.ID,
		DisplayName: host.DisplayName,
		LastRoomID:  state.RoomID,
	})
	g.log.Info("room created", slog.String("room_id", state.RoomID), slog.String("player_id", host.ID))
	return r, snap, nil
}

// Lookup returns a live room without touching storage.
func (g *Registry) Lookup(roomID string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	if !ok || r.Closed() {
		return nil, ErrNotFound
	}
	return r, nil
}

// GetOrCreate returns the live room or rebuilds it from storage. Concurrent
// callers for the same id share one rebuild.
func (g *Registry) GetOrCreate(ctx context.Context, roomID string) (*Room, error) {
	if r, err := g.Lookup(roomID); err == nil {
		return r, nil
	}
	v, err, _ := g.group.Do(roomID, func() (any, error) {
		if r, err := g.Lookup(roomID); err == nil {
			return r, nil
		}
		snap, err := g.store.LoadMatch(ctx, roomID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", roomID, err)
		}
		state, err := match.FromSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("rehydrate room %s: %w", roomID, err)
		}
		r := newRoom(state, g.cfg)

		g.mu.Lock()
		g.rooms[roomID] = r
		g.mu.Unlock()

		g.log.Info("room rehydrated", slog.String("room_id", roomID), slog.Uint64("version", state.Version))
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// withRoom runs fn against the room, retrying once if the room closed under
// it.
func (g *Registry) withRoom(ctx context.Context, roomID string, fn func(*Room) error) error {
	for attempt := 0; ; attempt++ {
		r, err := g.GetOrCreate(ctx, roomID)
		if err != nil {
			return err
		}
		err = fn(r)
		if errors.Is(err, ErrRoomClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

func (g *Registry) CreateRoom(ctx context.Context, host match.Player) (match.Snapshot, error) {
	if strings.TrimSpace(host.ID) == "" {
		return match.Snapshot{}, fmt.Errorf("%w: player id is required", ErrInvalidRequest)
	}
	_, snap, err := g.Create(ctx, host)
	return snap, err
}

func (g *Registry) JoinRoom(ctx context.Context, roomID string, player match.Player) (Outcome, error) {
	if strings.TrimSpace(player.ID) == "" {
		return Outcome{}, fmt.Errorf("%w: player id is required", ErrInvalidRequest)
	}
	var out Outcome
	err := g.withRoom(ctx, roomID, func(r *Room) error {
		var err error
		out, err = r.Submit(ctx, JoinIntent{Player: player})
		return err
	})
	return out, err
}

func (g *Registry) MakeMove(ctx context.Context, roomID, playerID string, row, col int) (Outcome, error) {
	var out Outcome
	err := g.withRoom(ctx, roomID, func(r *Room) error {
		var err error
		out, err = r.Submit(ctx, MoveIntent{PlayerID: playerID, Row: row, Col: col})
		return err
	})
	return out, err
}

func (g *Registry) GetRoom(ctx context.Context, roomID string) (match.Snapshot, error) {
	var snap match.Snapshot
	err := g.withRoom(ctx, roomID, func(r *Room) error {
		var err error
		snap, err = r.Snapshot(ctx)
		return err
	})
	return snap, err
}

func (g *Registry) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	var sub *Subscription
	err := g.withRoom(ctx, roomID, func(r *Room) error {
		events, snap, unsubscribe, err := r.Subscribe(ctx)
		if err != nil {
			return err
		}
		sub = &Subscription{RoomID: roomID, Snapshot: snap, Events: events, close: unsubscribe}
		return nil
	})
	return sub, err
}

func (g *Registry) TopWinners(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	if g.leaderboard == nil {
		return nil, nil
	}
	return g.leaderboard.TopWinners(ctx, limit)
}

// Len returns the number of rooms in memory.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Registry) snapshotRooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}

func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[r.id]; ok && cur == r {
		delete(g.rooms, r.id)
	}
}

// Sweep evicts every room idle for longer than the idle timeout and returns
// how many left memory.
func (g *Registry) Sweep(ctx context.Context) int {
	evicted := 0
	for _, r := range g.snapshotRooms() {
		closed, err := r.closeIfIdle(ctx, g.opts.IdleTimeout)
		if err != nil {
			g.log.Error("evict room", slog.String("room_id", r.id), slog.String("error", err.Error()))
			continue
		}
		if closed {
			g.remove(r)
			evicted++
			g.log.Info("room evicted", slog.String("room_id", r.id))
		}
	}
	return evicted
}

// Run sweeps idle rooms until ctx ends, then closes every remaining room.
func (g *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return g.Close(shutdownCtx)
		case <-ticker.C:
			g.Sweep(ctx)
		}
	}
}

// Close persists and stops every room.
func (g *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, r := range g.snapshotRooms() {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close room %s: %w", r.id, err))
			continue
		}
		g.remove(r)
	}
	return errors.Join(errs...)
}
