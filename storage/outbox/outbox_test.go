package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainreaction/domain/match"
	"chainreaction/storage"
	"chainreaction/storage/memory"
)

// flakyStore fails the first failures calls of every method.
type flakyStore struct {
	*memory.Store

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("disk on fire")
	}
	return nil
}

func (f *flakyStore) SaveMatch(ctx context.Context, snap match.Snapshot) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.SaveMatch(ctx, snap)
}

func (f *flakyStore) IncrementWinCount(ctx context.Context, roomID, playerID string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.IncrementWinCount(ctx, roomID, playerID)
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func snapshot(t *testing.T, roomID string) match.Snapshot {
	t.Helper()
	state, err := match.Create(roomID, match.Player{ID: "p1", DisplayName: "Alice"}, match.DefaultRules())
	require.NoError(t, err)
	return state.Snapshot()
}

func TestWriterRetriesUntilSuccess(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 2}
	w := New(store, Options{Workers: 1, MaxTries: 5, NewBackOff: zeroBackOff})

	w.SaveMatch(snapshot(t, "room-1"))
	require.NoError(t, w.Close(context.Background()))

	_, err := store.LoadMatch(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
}

func TestWriterGivesUpAfterMaxTries(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 10}
	w := New(store, Options{Workers: 1, MaxTries: 3, NewBackOff: zeroBackOff})

	w.IncrementWins("room-1", "p1")
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 0, store.Wins("p1"))
}

func TestWriterAppliesAllKinds(t *testing.T) {
	store := memory.New()
	w := New(store, Options{NewBackOff: zeroBackOff})

	w.UpsertUser(storage.UserRecord{PlayerID: "p1", DisplayName: "Alice", LastRoomID: "room-1"})
	require.NoError(t, w.Close(context.Background()))
	w2 := New(store, Options{NewBackOff: zeroBackOff})
	w2.IncrementWins("room-1", "p1")
	w2.IncrementWins("room-1", "p1")
	w2.IncrementWins("room-2", "p1")
	require.NoError(t, w2.Close(context.Background()))

	rec, ok := store.User("p1")
	require.True(t, ok)
	assert.Equal(t, "Alice", rec.DisplayName)
	assert.Equal(t, 2, store.Wins("p1"))
}

func TestSaveMatchNowIsSynchronous(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 1}
	w := New(store, Options{NewBackOff: zeroBackOff})
	defer w.Close(context.Background())

	require.NoError(t, w.SaveMatchNow(context.Background(), snapshot(t, "room-2")))
	_, err := store.LoadMatch(context.Background(), "room-2")
	assert.NoError(t, err)
}

func TestWriterDropsAfterClose(t *testing.T) {
	store := memory.New()
	w := New(store, Options{NewBackOff: zeroBackOff})
	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))

	w.SaveMatch(snapshot(t, "room-3"))
	_, err := store.LoadMatch(context.Background(), "room-3")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// blockingStore holds every write until release is closed.
type blockingStore struct {
	*memory.Store
	release chan struct{}
}

func (b *blockingStore) SaveMatch(ctx context.Context, snap match.Snapshot) error {
	<-b.release
	return b.Store.SaveMatch(ctx, snap)
}

func TestWriterDropsWhenFull(t *testing.T) {
	store := &blockingStore{Store: memory.New(), release: make(chan struct{})}
	w := New(store, Options{Workers: 1, Queue: 1, NewBackOff: zeroBackOff})

	snap := snapshot(t, "room-full")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			w.SaveMatch(snap)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(store.release)
	require.NoError(t, w.Close(context.Background()))
}

func TestWriterKeepsWinsWhenFull(t *testing.T) {
	store := &blockingStore{Store: memory.New(), release: make(chan struct{})}
	w := New(store, Options{Workers: 1, Queue: 1, NewBackOff: zeroBackOff})

	// fill the queue behind a blocked worker
	w.SaveMatch(snapshot(t, "room-a"))
	w.SaveMatch(snapshot(t, "room-b"))
	w.IncrementWins("room-a", "p1")
	w.IncrementWins("room-b", "p2")

	close(store.release)
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 1, store.Wins("p1"))
	assert.Equal(t, 1, store.Wins("p2"))
}

func TestCloseHonoursContext(t *testing.T) {
	store := &blockingStore{Store: memory.New(), release: make(chan struct{})}
	w := New(store, Options{Workers: 1, NewBackOff: zeroBackOff})
	w.SaveMatch(snapshot(t, "room-4"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Close(ctx), context.DeadlineExceeded)
	close(store.release)
}
