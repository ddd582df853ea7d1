package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chainreaction/domain/match"
	"chainreaction/storage"
)

// ErrRoomClosed is returned by a room that has been evicted or shut down.
// Callers should look the room up again.
var ErrRoomClosed = errors.New("room closed")

// Persister receives the writes a room produces. Queued writes must not
// block; SaveMatchNow is only used when a room leaves memory.
type Persister interface {
	SaveMatch(snap match.Snapshot)
	UpsertUser(rec storage.UserRecord)
	IncrementWins(roomID, playerID string)
	SaveMatchNow(ctx context.Context, snap match.Snapshot) error
}

type roomConfig struct {
	inboxSize        int
	subscriberBuffer int
	persist          Persister
	log              *slog.Logger
	tracer           trace.Tracer
	now              func() time.Time
}

// Room owns one match. Every read and write of the match goes through the
// inbox and runs on the room goroutine, so intents for one room are applied
// strictly in arrival order.
type Room struct {
	id     string
	inbox  chan func()
	done   chan struct{}
	closed atomic.Bool
	cfg    roomConfig
	log    *slog.Logger

	// owned by the room goroutine
	state      match.State
	broadcast  map[int]chan Event
	bcID       int
	lastActive time.Time
	stop       bool
}

func newRoom(state match.State, cfg roomConfig) *Room {
	r := &Room{
		id:         state.RoomID,
		inbox:      make(chan func(), cfg.inboxSize),
		done:       make(chan struct{}),
		cfg:        cfg,
		log:        cfg.log.With(slog.String("room_id", state.RoomID)),
		state:      state,
		broadcast:  make(map[int]chan Event),
		lastActive: cfg.now(),
	}
	go r.run()
	return r
}

func (r *Room) ID() string { return r.id }

// Closed reports whether the room has stopped accepting commands.
func (r *Room) Closed() bool { return r.closed.Load() }

func (r *Room) run() {
	defer close(r.done)
	defer func() {
		for id, ch := range r.broadcast {
			delete(r.broadcast, id)
			close(ch)
		}
	}()
	for cmd := range r.inbox {
		cmd()
		if r.stop {
			return
		}
	}
}

// call runs fn on the room goroutine and waits for it. If ctx ends after fn
// was queued, fn may still run.
func (r *Room) call(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.closed.Load() {
		return ErrRoomClosed
	}
	finished := make(chan struct{})
	cmd := func() {
		fn()
		close(finished)
	}
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit applies one intent and returns its outcome. Rejections are returned
// as *match.ValidationError and leave the match untouched.
func (r *Room) Submit(ctx context.Context, in Intent) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	if cerr := r.call(ctx, func() { out, err = r.apply(ctx, in) }); cerr != nil {
		return Outcome{}, cerr
	}
	return out, err
}

func (r *Room) Snapshot(ctx context.Context) (match.Snapshot, error) {
	var snap match.Snapshot
	if err := r.call(ctx, func() { snap = r.state.Snapshot() }); err != nil {
		return match.Snapshot{}, err
	}
	return snap, nil
}

// Subscribe registers a listener and returns it together with the snapshot
// the first event will follow. Slow listeners lose events rather than stall
// the room. The channel is closed by unsubscribe or when the room closes.
func (r *Room) Subscribe(ctx context.Context) (<-chan Event, match.Snapshot, func(), error) {
	var (
		ch   chan Event
		id   int
		snap match.Snapshot
	)
	err := r.call(ctx, func() {
		r.bcID++
		id = r.bcID
		ch = make(chan Event, r.cfg.subscriberBuffer)
		r.broadcast[id] = ch
		snap = r.state.Snapshot()
		r.lastActive = r.cfg.now()
	})
	if err != nil {
		return nil, match.Snapshot{}, nil, err
	}
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = r.call(context.Background(), func() {
				if c, ok := r.broadcast[id]; ok {
					delete(r.broadcast, id)
					close(c)
				}
				r.lastActive = r.cfg.now()
			})
		})
	}
	return ch, snap, unsubscribe, nil
}

// closeIfIdle stops the room when nobody listens and no intent arrived for
// idle. The final snapshot is written before the room reports closed; on a
// failed write the room stays open.
func (r *Room) closeIfIdle(ctx context.Context, idle time.Duration) (bool, error) {
	return r.shutdown(ctx, func() bool {
		return len(r.broadcast) == 0 && r.cfg.now().Sub(r.lastActive) >= idle
	})
}

// Close persists the final snapshot and stops the room regardless of
// listeners.
func (r *Room) Close(ctx context.Context) error {
	_, err := r.shutdown(ctx, func() bool { return true })
	return err
}

func (r *Room) shutdown(ctx context.Context, ready func() bool) (bool, error) {
	var (
		closed bool
		err    error
	)
	cerr := r.call(ctx, func() {
		if !ready() {
			return
		}
		if err = r.cfg.persist.SaveMatchNow(ctx, r.state.Snapshot()); err != nil {
			return
		}
		r.closed.Store(true)
		r.stop = true
		closed = true
	})
	if errors.Is(cerr, ErrRoomClosed) {
		return true, nil
	}
	if cerr != nil {
		return false, cerr
	}
	if err != nil {
		return false, fmt.Errorf("persist final snapshot: %w", err)
	}
	return closed, nil
}

func (r *Room) apply(ctx context.Context, in Intent) (Outcome, error) {
	r.lastActive = r.cfg.now()
	switch in := in.(type) {
	case JoinIntent:
		return r.join(ctx, in)
	case MoveIntent:
		return r.move(ctx, in)
	default:
		return Outcome{}, fmt.Errorf("unsupported intent %T", in)
	}
}

func (r *Room) join(ctx context.Context, in JoinIntent) (Outcome, error) {
	_, span := r.cfg.tracer.Start(ctx, "room.join", trace.WithAttributes(
		attribute.String("room.id", r.id),
		attribute.String("player.id", in.Player.ID),
	))
	defer span.End()

	next, err := match.Join(r.state, in.Player)
	if err != nil {
		r.reject(span, "join", in.Player.ID, err)
		return Outcome{}, err
	}
	started := r.state.Status == match.StatusNotStarted && next.Status == match.StatusInProgress
	r.state = next
	snap := next.Snapshot()
	span.SetAttributes(attribute.Int64("match.version", int64(snap.Version)))

	r.cfg.persist.SaveMatch(snap)
	r.cfg.persist.UpsertUser(storage.UserRecord{
		PlayerID:    in.Player.ID,
		DisplayName: in.Player.DisplayName,
		LastRoomID:  r.id,
	})

	kind := EventMatchUpdated
	if started {
		kind = EventMatchStarted
	}
	r.publish(Event{Kind: kind, Snapshot: snap})
	r.publish(Event{Kind: EventPlayerJoined, PlayerID: in.Player.ID, DisplayName: in.Player.DisplayName})

	r.log.Info("player joined",
		slog.String("player_id", in.Player.ID),
		slog.Int("players", len(snap.Players)),
	)
	return Outcome{Snapshot: snap}, nil
}

func (r *Room) move(ctx context.Context, in MoveIntent) (Outcome, error) {
	_, span := r.cfg.tracer.Start(ctx, "room.move", trace.WithAttributes(
		attribute.String("room.id", r.id),
		attribute.String("player.id", in.PlayerID),
		attribute.Int("move.row", in.Row),
		attribute.Int("move.col", in.Col),
	))
	defer span.End()

	next, explosions, err := match.Move(r.state, in.PlayerID, in.Row, in.Col)
	if err != nil {
		r.reject(span, "move", in.PlayerID, err)
		return Outcome{}, err
	}
	r.state = next
	snap := next.Snapshot()
	span.SetAttributes(
		attribute.Int64("match.version", int64(snap.Version)),
		attribute.Int("cascade.explosions", len(explosions)),
	)

	r.cfg.persist.SaveMatch(snap)
	if len(explosions) > 0 {
		r.publish(Event{Kind: EventCascadeOccurred, Explosions: explosions})
	}
	r.publish(Event{Kind: EventMatchUpdated, Snapshot: snap})

	if next.Status == match.StatusFinished {
		winnerID, ok := next.WinnerID()
		if ok {
			r.cfg.persist.IncrementWins(r.id, winnerID)
		}
		r.log.Info("match finished",
			slog.String("winner_id", winnerID),
			slog.Uint64("version", snap.Version),
		)
	}
	return Outcome{Snapshot: snap, Explosions: explosions}, nil
}

func (r *Room) reject(span trace.Span, op, playerID string, err error) {
	reason := match.Reason(err)
	span.SetAttributes(attribute.String("reject.reason", reason))
	span.SetStatus(codes.Error, reason)
	r.log.Debug(op+" rejected",
		slog.String("player_id", playerID),
		slog.String("reason", reason),
	)
}

// publish fans an event out without blocking on any listener.
func (r *Room) publish(ev Event) {
	ev.RoomID = r.id
	ev.Version = r.state.Version
	for id, ch := range r.broadcast {
		select {
		case ch <- ev:
		default:
			r.log.Warn("subscriber lagging, dropping event",
				slog.Int("subscriber", id),
				slog.String("event", ev.Kind.String()),
			)
		}
	}
}
