package pagination

import (
	"context"
	"errors"
	"io"
	"iter"
	"maps"
	"slices"

	"github.com/Sternrassler/go-paginator/pkg/sequence"
	"github.com/rs/zerolog"
)

// Paginator runs transforms like Unordered but yields results in the order
// the items appear in the window. Out-of-order completions are buffered
// until every earlier index has been emitted.
//
// The buffer has no upper bound: one slow item holds back every result that
// completes after it.
type Paginator[T, O any] struct {
	src      *Unordered[T, O]
	logger   zerolog.Logger
	expected int
	buffer   map[int]Result[O]
	done     bool
}

// New returns an ordered paginator over src. It accepts the same options as
// NewUnordered and fails under the same conditions.
func New[T, O any](src sequence.Source[T], transform func(ctx context.Context, item T) (O, error), opts ...Option) (*Paginator[T, O], error) {
	u, err := NewUnordered(src, transform, opts...)
	if err != nil {
		return nil, err
	}
	return &Paginator[T, O]{
		src:    u,
		logger: u.logger,
		buffer: make(map[int]Result[O]),
	}, nil
}

// Next returns the result for the next index. Failed items occupy their own
// slot as envelopes. It returns io.EOF once every admitted index was emitted.
func (p *Paginator[T, O]) Next(ctx context.Context) (Result[O], error) {
	if p.src.closed {
		return Result[O]{}, ErrClosed
	}
	for {
		if r, ok := p.buffer[p.expected]; ok {
			delete(p.buffer, p.expected)
			reorderBuffered.Dec()
			p.expected++
			return r, nil
		}

		if p.done {
			if len(p.buffer) == 0 {
				return Result[O]{}, io.EOF
			}
			// only reachable after an internal violation swallowed an index
			next := slices.Min(slices.Collect(maps.Keys(p.buffer)))
			p.logger.Warn().
				Int("expected", p.expected).
				Int("next", next).
				Msg("Skipping missing index")
			p.expected = next
			continue
		}

		r, err := p.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			p.done = true
			continue
		}
		if err != nil {
			return Result[O]{}, err
		}

		// internal violations have no slot to wait for
		if r.Index < 0 {
			return r, nil
		}

		p.buffer[r.Index] = r
		reorderBuffered.Inc()
		if r.Index != p.expected {
			p.logger.Debug().
				Int("index", r.Index).
				Int("expected", p.expected).
				Int("buffered", len(p.buffer)).
				Msg("Buffered out-of-order result")
		}
	}
}

// All returns an iterator over the remaining results in index order.
// A context error is yielded once as the final element.
func (p *Paginator[T, O]) All(ctx context.Context) iter.Seq2[Result[O], error] {
	return func(yield func(Result[O], error) bool) {
		for {
			r, err := p.Next(ctx)
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

// Buffered returns the number of results waiting for an earlier index.
func (p *Paginator[T, O]) Buffered() int {
	return len(p.buffer)
}

// Close drops buffered results and closes the underlying scheduler.
func (p *Paginator[T, O]) Close() error {
	reorderBuffered.Sub(float64(len(p.buffer)))
	clear(p.buffer)
	return p.src.Close()
}
