package pagination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/Sternrassler/go-paginator/pkg/sequence"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Next after Close has been called.
var ErrClosed = errors.New("paginator closed")

// Result is one settled item. Err is nil for successes; for failures Data is
// the zero value and Err carries the envelope.
type Result[O any] struct {
	Data  O
	Index int
	Err   *Error[O]
}

// Failed reports whether the result is an error envelope.
func (r Result[O]) Failed() bool {
	return r.Err != nil
}

// Unordered runs transforms over a windowed source with bounded concurrency
// and yields results in completion order.
//
// It is pull-driven and single-consumer: every Next call applies the
// admission policy, then waits for the first in-flight task to settle.
type Unordered[T, O any] struct {
	src       sequence.Source[T]
	transform Transform[T, O]
	cfg       config
	logger    zerolog.Logger

	cursor     *sequence.Cursor[T]
	exhausted  bool
	nextIndex  int
	nextHandle handle
	pool       map[handle]*task[T, O]
	done       chan settlement[O]

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewUnordered validates the options and returns a scheduler over src.
// Configuration errors are reported here, before the source is read.
func NewUnordered[T, O any](src sequence.Source[T], transform func(ctx context.Context, item T) (O, error), opts ...Option) (*Unordered[T, O], error) {
	if src == nil {
		return nil, fmt.Errorf("source is required")
	}
	if transform == nil {
		return nil, fmt.Errorf("transform is required")
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	parent := cfg.baseCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Unordered[T, O]{
		src:       src,
		transform: transform,
		cfg:       cfg,
		logger:    cfg.log(),
		pool:      make(map[handle]*task[T, O], cfg.chunks),
		done:      make(chan settlement[O], cfg.chunks),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Next returns the next settled item in completion order.
// It returns io.EOF once the source is exhausted and nothing is in flight.
// If ctx is done while waiting, ctx.Err() is returned and the in-flight
// tasks are kept; a later call picks them up again.
func (u *Unordered[T, O]) Next(ctx context.Context) (Result[O], error) {
	if u.closed {
		return Result[O]{}, ErrClosed
	}
	if u.cursor == nil {
		u.cursor = sequence.Window(u.src, u.cfg.offset, u.cfg.windowLimit())
	}

	u.admit()

	if len(u.pool) == 0 {
		u.cancel()
		return Result[O]{}, io.EOF
	}

	select {
	case s := <-u.done:
		return u.settle(s), nil
	case <-ctx.Done():
		return Result[O]{}, ctx.Err()
	}
}

// All returns an iterator over the remaining results. Iteration stops at
// exhaustion; a context error is yielded once as the final element.
func (u *Unordered[T, O]) All(ctx context.Context) iter.Seq2[Result[O], error] {
	return func(yield func(Result[O], error) bool) {
		for {
			r, err := u.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(r, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// InFlight returns the number of tasks currently in the pool.
func (u *Unordered[T, O]) InFlight() int {
	return len(u.pool)
}

// Close cancels the context passed to in-flight transforms and releases the
// source. Results of tasks still running are discarded. Envelopes obtained
// earlier can still be retried with a caller-supplied context.
func (u *Unordered[T, O]) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.cancel()

	u.logger.Debug().
		Int("in_flight", len(u.pool)).
		Int("admitted", u.nextIndex).
		Msg("Paginator closed")

	if u.cursor != nil {
		return u.cursor.Close()
	}
	if c, ok := u.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// admit applies the scheduling mode's admission policy.
func (u *Unordered[T, O]) admit() {
	admitted := 0
	switch u.cfg.mode {
	case ModeInfinite:
		for len(u.pool) < u.cfg.chunks && u.spawn() {
			admitted++
		}
	default:
		if len(u.pool) == 0 {
			for admitted < u.cfg.chunks && u.spawn() {
				admitted++
			}
		}
	}

	if admitted > 0 {
		u.logger.Debug().
			Str("mode", string(u.cfg.mode)).
			Int("admitted", admitted).
			Int("in_flight", len(u.pool)).
			Msg("Admitted tasks")
	}
}

// spawn pulls one item from the cursor and starts its task.
// It returns false once the source is exhausted.
func (u *Unordered[T, O]) spawn() bool {
	if u.exhausted {
		return false
	}

	item, ok := u.cursor.Next()
	if !ok {
		u.exhausted = true
		if err := u.cursor.Close(); err != nil {
			u.logger.Warn().Err(err).Msg("Failed to release source")
		}
		return false
	}

	t := newTask(u.nextIndex, item, u.transform, u.cfg.taskTimeout)
	u.nextIndex++

	h := u.nextHandle
	u.nextHandle++
	u.pool[h] = t

	tasksStarted.WithLabelValues(string(u.cfg.mode)).Inc()
	t.start(u.ctx, h, u.done)
	return true
}

// settle evicts the settled task from the pool and builds the emitted value.
func (u *Unordered[T, O]) settle(s settlement[O]) Result[O] {
	t, ok := u.pool[s.handle]
	if !ok {
		tasksSettled.WithLabelValues("internal").Inc()
		u.logger.Warn().
			Uint64("handle", uint64(s.handle)).
			Msg("Settlement for unknown task")
		pe := internalError[O](fmt.Errorf("unknown task handle %d", s.handle))
		return Result[O]{Index: pe.Index, Err: pe}
	}
	delete(u.pool, s.handle)

	if s.err == nil {
		tasksSettled.WithLabelValues("success").Inc()
		u.logger.Debug().
			Int("index", t.index).
			Int("in_flight", len(u.pool)).
			Msg("Task settled")
		return Result[O]{Data: s.data, Index: t.index}
	}

	pe := publicError[T, O](s.err)
	if pe.Kind == KindInternal {
		tasksSettled.WithLabelValues("internal").Inc()
		u.logger.Warn().Err(s.err).Msg("Unrecognised task failure")
		return Result[O]{Index: pe.Index, Err: pe}
	}

	tasksSettled.WithLabelValues("failure").Inc()
	u.logger.Debug().
		Err(pe.Cause).
		Int("index", pe.Index).
		Int("in_flight", len(u.pool)).
		Msg("Task failed")
	return Result[O]{Index: pe.Index, Err: pe}
}
