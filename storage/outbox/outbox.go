// Package outbox moves persistence off the room goroutines. Writes are queued
// and applied by a small worker pool that retries failures with exponential
// backoff.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"chainreaction/domain/match"
	"chainreaction/storage"
)

const (
	DefaultWorkers  = 2
	DefaultQueue    = 256
	DefaultMaxTries = 5
)

type Options struct {
	Workers  int
	Queue    int
	MaxTries uint
	// Timeout bounds one attempt.
	Timeout time.Duration
	Logger  *slog.Logger
	// NewBackOff overrides the retry schedule, mostly for tests.
	NewBackOff func() backoff.BackOff
}

type job struct {
	kind string
	key  string
	// durable jobs have no later write to supersede them and are never
	// dropped for lack of queue space.
	durable bool
	run     func(ctx context.Context, store storage.Store) error
}

// Writer is an asynchronous front for a storage.Store.
type Writer struct {
	store storage.Store
	opts  Options
	log   *slog.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func New(store storage.Store, opts Options) *Writer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Queue <= 0 {
		opts.Queue = DefaultQueue
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultMaxTries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	w := &Writer{
		store: store,
		opts:  opts,
		log:   log.With(slog.String("component", "outbox")),
		jobs:  make(chan job, opts.Queue),
	}
	for i := 0; i < opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	return w
}

// SaveMatch queues a snapshot write. It never blocks; when the queue is full
// the write is dropped and a later snapshot of the same room supersedes it.
func (w *Writer) SaveMatch(snap match.Snapshot) {
	w.enqueue(job{
		kind: "save_match",
		key:  snap.RoomID,
		run: func(ctx context.Context, store storage.Store) error {
			return store.SaveMatch(ctx, snap)
		},
	})
}

func (w *Writer) UpsertUser(rec storage.UserRecord) {
	w.enqueue(job{
		kind: "upsert_user",
		key:  rec.PlayerID,
		run: func(ctx context.Context, store storage.Store) error {
			return store.UpsertUserRecord(ctx, rec)
		},
	})
}

// IncrementWins credits the win of roomID to playerID. When the queue is
// full the write runs on its own goroutine instead of being dropped.
func (w *Writer) IncrementWins(roomID, playerID string) {
	w.enqueue(job{
		kind:    "increment_wins",
		key:     roomID,
		durable: true,
		run: func(ctx context.Context, store storage.Store) error {
			return store.IncrementWinCount(ctx, roomID, playerID)
		},
	})
}

// SaveMatchNow writes the snapshot synchronously, with the same retry policy
// as queued writes.
func (w *Writer) SaveMatchNow(ctx context.Context, snap match.Snapshot) error {
	return w.do(ctx, job{
		kind: "save_match",
		key:  snap.RoomID,
		run: func(ctx context.Context, store storage.Store) error {
			return store.SaveMatch(ctx, snap)
		},
	})
}

func (w *Writer) enqueue(j job) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn("outbox closed, dropping write", slog.String("kind", j.kind), slog.String("key", j.key))
		return
	}
	select {
	case w.jobs <- j:
	default:
		if j.durable {
			w.log.Warn("outbox full, writing out of band", slog.String("kind", j.kind), slog.String("key", j.key))
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.apply(j)
			}()
			return
		}
		w.log.Warn("outbox full, dropping write", slog.String("kind", j.kind), slog.String("key", j.key))
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.apply(j)
	}
}

func (w *Writer) apply(j job) {
	if err := w.do(context.Background(), j); err != nil {
		w.log.Error("persist failed",
			slog.String("kind", j.kind),
			slog.String("key", j.key),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Writer) do(ctx context.Context, j job) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
		err := j.run(attemptCtx, w.store)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(w.opts.NewBackOff()),
		backoff.WithMaxTries(w.opts.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.log.Warn("persist retry",
				slog.String("kind", j.kind),
				slog.String("key", j.key),
				slog.Duration("next", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", j.kind, j.key, err)
	}
	return nil
}

// Close stops accepting writes and waits until queued ones are applied or
// ctx expires.
func (w *Writer) Close(ctx context.Context) error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
