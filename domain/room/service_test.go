package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chainreaction/domain/board"
	"chainreaction/domain/match"
	"chainreaction/storage"
	"chainreaction/storage/memory"
)

var (
	alice = match.Player{ID: "p1", DisplayName: "Alice"}
	bob   = match.Player{ID: "p2", DisplayName: "Bob"}
)

// syncPersister writes straight through to a memory store so tests can read
// persisted state without waiting on a queue.
type syncPersister struct {
	store *memory.Store
}

func (p syncPersister) SaveMatch(snap match.Snapshot) {
	_ = p.store.SaveMatch(context.Background(), snap)
}

func (p syncPersister) UpsertUser(rec storage.UserRecord) {
	_ = p.store.UpsertUserRecord(context.Background(), rec)
}

func (p syncPersister) IncrementWins(roomID, playerID string) {
	_ = p.store.IncrementWinCount(context.Background(), roomID, playerID)
}

func (p syncPersister) SaveMatchNow(ctx context.Context, snap match.Snapshot) error {
	return p.store.SaveMatch(ctx, snap)
}

// countingStore counts LoadMatch calls.
type countingStore struct {
	*memory.Store
	loads atomic.Int32
}

func (c *countingStore) LoadMatch(ctx context.Context, roomID string) (match.Snapshot, error) {
	c.loads.Add(1)
	time.Sleep(10 * time.Millisecond)
	return c.Store.LoadMatch(ctx, roomID)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, store *memory.Store, opts Options) *Registry {
	t.Helper()
	g := NewRegistry(store, store, syncPersister{store: store}, opts)
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func startedRoom(t *testing.T, g *Registry) string {
	t.Helper()
	ctx := context.Background()
	snap, err := g.CreateRoom(ctx, alice)
	require.NoError(t, err)
	_, err = g.JoinRoom(ctx, snap.RoomID, bob)
	require.NoError(t, err)
	return snap.RoomID
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestCreateRoomPersistsHost(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	g := newRegistry(t, store, Options{NewID: func() string { return "room-1" }})

	snap, err := g.CreateRoom(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "room-1", snap.RoomID)
	assert.Equal(t, match.StatusNotStarted, snap.Status)
	assert.Equal(t, uint64(1), snap.Version)

	stored, err := store.LoadMatch(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, snap, stored)
	rec, ok := store.User("p1")
	require.True(t, ok)
	assert.Equal(t, "room-1", rec.LastRoomID)

	_, err = g.CreateRoom(ctx, match.Player{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateRoomUsesUUIDs(t *testing.T) {
	g := newRegistry(t, memory.New(), Options{})
	a, err := g.CreateRoom(context.Background(), alice)
	require.NoError(t, err)
	b, err := g.CreateRoom(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, a.RoomID, 36)
	assert.NotEqual(t, a.RoomID, b.RoomID)
	assert.Equal(t, 2, g.Len())
}

func TestJoinStartsMatchAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	snap, err := g.CreateRoom(ctx, alice)
	require.NoError(t, err)

	sub, err := g.Subscribe(ctx, snap.RoomID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, snap, sub.Snapshot)

	out, err := g.JoinRoom(ctx, snap.RoomID, bob)
	require.NoError(t, err)
	assert.Equal(t, match.StatusInProgress, out.Snapshot.Status)
	assert.Equal(t, "p1", out.Snapshot.TurnPlayerID)

	started := next(t, sub.Events)
	assert.Equal(t, EventMatchStarted, started.Kind)
	assert.Equal(t, out.Snapshot, started.Snapshot)
	joined := next(t, sub.Events)
	assert.Equal(t, EventPlayerJoined, joined.Kind)
	assert.Equal(t, "Bob", joined.DisplayName)
	assert.Equal(t, snap.RoomID, joined.RoomID)

	_, err = g.JoinRoom(ctx, snap.RoomID, bob)
	assert.ErrorIs(t, err, match.ErrAlreadyJoined)
	_, err = g.JoinRoom(ctx, snap.RoomID, match.Player{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCornerCascadeBroadcast(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)

	sub, err := g.Subscribe(ctx, roomID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = g.MakeMove(ctx, roomID, "p1", 0, 0)
	require.NoError(t, err)
	_, err = g.MakeMove(ctx, roomID, "p2", 5, 8)
	require.NoError(t, err)
	out, err := g.MakeMove(ctx, roomID, "p1", 0, 0)
	require.NoError(t, err)
	require.Len(t, out.Explosions, 1)

	for i := 0; i < 2; i++ {
		assert.Equal(t, EventMatchUpdated, next(t, sub.Events).Kind)
	}
	cascade := next(t, sub.Events)
	assert.Equal(t, EventCascadeOccurred, cascade.Kind)
	assert.Equal(t, []board.Explosion{{Row: 0, Col: 0, Player: 1}}, cascade.Explosions)
	updated := next(t, sub.Events)
	assert.Equal(t, EventMatchUpdated, updated.Kind)
	assert.Equal(t, board.Cell{}, updated.Snapshot.Cell(0, 0))
	assert.Equal(t, board.Cell{Owner: 1, Atoms: 1}, updated.Snapshot.Cell(1, 0))
	assert.Equal(t, board.Cell{Owner: 1, Atoms: 1}, updated.Snapshot.Cell(0, 1))
}

func TestRejectionsAreNotBroadcast(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)
	sub, err := g.Subscribe(ctx, roomID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = g.MakeMove(ctx, roomID, "p2", 0, 0)
	assert.ErrorIs(t, err, match.ErrNotYourTurn)
	_, err = g.MakeMove(ctx, roomID, "p1", 9, 9)
	assert.ErrorIs(t, err, match.ErrOutOfBounds)

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	snap, err := g.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestUnknownRoom(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})

	_, err := g.JoinRoom(ctx, "missing", bob)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.MakeMove(ctx, "missing", "p1", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.Subscribe(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentMovesAreSerialized(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)

	// Each player deposits on its own column so no cell ever explodes.
	const perPlayer = 5
	var wg sync.WaitGroup
	for _, p := range []struct {
		id  string
		col int
	}{{"p1", 1}, {"p2", 4}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := 0; row < perPlayer; {
				_, err := g.MakeMove(ctx, roomID, p.id, row, p.col)
				if err == nil {
					row++
					continue
				}
				if !assert.ErrorIs(t, err, match.ErrNotYourTurn) {
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, err := g.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2+2*perPlayer), snap.Version)
	total := 0
	for _, c := range snap.Cells {
		total += c.Atoms
	}
	assert.Equal(t, 2*perPlayer, total)
	assert.Equal(t, "p1", snap.TurnPlayerID)
}

func TestWinnerIsCredited(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	g := newRegistry(t, store, Options{Rules: match.Rules{Rows: 2, Cols: 2}})
	roomID := startedRoom(t, g)

	for _, mv := range []struct {
		player   string
		row, col int
	}{{"p1", 0, 0}, {"p2", 1, 1}, {"p1", 0, 0}, {"p2", 1, 1}} {
		_, err := g.MakeMove(ctx, roomID, mv.player, mv.row, mv.col)
		require.NoError(t, err)
	}

	snap, err := g.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, match.StatusFinished, snap.Status)
	assert.Equal(t, board.PlayerIndex(2), snap.Winner)
	assert.Equal(t, 1, store.Wins("p2"))

	top, err := g.TopWinners(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, storage.LeaderboardEntry{DisplayName: "Bob", Wins: 1}, top[0])

	_, err = g.MakeMove(ctx, roomID, "p1", 0, 1)
	assert.ErrorIs(t, err, match.ErrMatchNotActive)
}

func TestRehydrateExactlyOnce(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	state, err := match.Create("stored", alice, match.DefaultRules())
	require.NoError(t, err)
	state, err = match.Join(state, bob)
	require.NoError(t, err)
	require.NoError(t, base.SaveMatch(ctx, state.Snapshot()))

	store := &countingStore{Store: base}
	g := NewRegistry(store, base, syncPersister{store: base}, Options{})
	t.Cleanup(func() { _ = g.Close(context.Background()) })

	const callers = 16
	rooms := make([]*Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := g.GetOrCreate(ctx, "stored")
			assert.NoError(t, err)
			rooms[i] = r
		}()
	}
	wg.Wait()

	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, 1, g.Len())

	snap, err := g.GetRoom(ctx, "stored")
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot(), snap)
}

func TestIdleRoomIsEvictedAndRehydrated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := &clock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	g := newRegistry(t, store, Options{IdleTimeout: time.Minute, Now: clk.Now})
	roomID := startedRoom(t, g)
	_, err := g.MakeMove(ctx, roomID, "p1", 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, g.Sweep(ctx))
	clk.Advance(2 * time.Minute)

	sub, err := g.Subscribe(ctx, roomID)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, g.Sweep(ctx), "rooms with listeners stay")
	sub.Close()
	clk.Advance(2 * time.Minute)

	assert.Equal(t, 1, g.Sweep(ctx))
	assert.Equal(t, 0, g.Len())
	_, err = g.Lookup(roomID)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := store.LoadMatch(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stored.Version)

	out, err := g.MakeMove(ctx, roomID, "p2", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), out.Snapshot.Version)
	assert.Equal(t, 1, g.Len())
}

func TestClosedRoomIsReplacedOnNextCall(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)

	r, err := g.Lookup(roomID)
	require.NoError(t, err)
	require.NoError(t, r.Close(ctx))
	assert.True(t, r.Closed())

	_, err = r.Submit(ctx, MoveIntent{PlayerID: "p1", Row: 0, Col: 0})
	assert.ErrorIs(t, err, ErrRoomClosed)

	out, err := g.MakeMove(ctx, roomID, "p1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out.Snapshot.Version)

	fresh, err := g.Lookup(roomID)
	require.NoError(t, err)
	assert.NotSame(t, r, fresh)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)
	sub, err := g.Subscribe(ctx, roomID)
	require.NoError(t, err)

	require.NoError(t, g.Close(ctx))
	select {
	case _, ok := <-sub.Events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
	sub.Close()
}

func TestSlowSubscriberDoesNotStallRoom(t *testing.T) {
	ctx := context.Background()
	g := newRegistry(t, memory.New(), Options{SubscriberBuffer: 1})
	roomID := startedRoom(t, g)
	sub, err := g.Subscribe(ctx, roomID)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 4; i++ {
		_, err := g.MakeMove(ctx, roomID, "p1", i, 3)
		require.NoError(t, err)
		_, err = g.MakeMove(ctx, roomID, "p2", i, 6)
		require.NoError(t, err)
	}
	assert.Len(t, sub.Events, 1)
}

func TestSubmitHonoursContext(t *testing.T) {
	g := newRegistry(t, memory.New(), Options{})
	roomID := startedRoom(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.MakeMove(ctx, roomID, "p1", 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntentSpans(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	g := newRegistry(t, memory.New(), Options{Tracer: tp.Tracer("test")})
	roomID := startedRoom(t, g)
	_, err := g.MakeMove(ctx, roomID, "p2", 0, 0)
	require.ErrorIs(t, err, match.ErrNotYourTurn)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "room.create", spans[0].Name())
	assert.Equal(t, "room.join", spans[1].Name())
	assert.Contains(t, spans[1].Attributes(), attribute.String("room.id", roomID))

	moveSpan := spans[2]
	assert.Equal(t, "room.move", moveSpan.Name())
	assert.Equal(t, codes.Error, moveSpan.Status().Code)
	assert.Contains(t, moveSpan.Attributes(), attribute.String("reject.reason", "not_your_turn"))
}

func TestEventKindString(t *testing.T) {
	for kind, want := range map[EventKind]string{
		EventRoomCreated:     "room_created",
		EventMatchStarted:    "match_started",
		EventMatchUpdated:    "match_updated",
		EventCascadeOccurred: "cascade_occurred",
		EventPlayerJoined:    "player_joined",
		EventKind(99):        "event(99)",
	} {
		assert.Equal(t, want, kind.String(), fmt.Sprint(int(kind)))
	}
}
