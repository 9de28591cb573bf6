package pagination

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/go-paginator/pkg/sequence"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func drainUnordered[T, O any](t *testing.T, u *Unordered[T, O]) []Result[O] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []Result[O]
	for {
		r, err := u.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, r)
	}
}

func TestNewUnordered_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "zero chunks", opts: []Option{WithChunks(0)}, wantErr: ErrInvalidChunks},
		{name: "negative chunks", opts: []Option{WithChunks(-1)}, wantErr: ErrInvalidChunks},
		{name: "negative offset", opts: []Option{WithOffset(-1)}, wantErr: ErrInvalidOffset},
		{name: "unknown mode", opts: []Option{WithMode("burst")}, wantErr: ErrInvalidMode},
		{name: "limit and size", opts: []Option{WithLimit(3), WithSize(3)}, wantErr: ErrLimitAndSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reads := 0
			src := sequence.FromFunc(func() (int, bool) {
				reads++
				return reads, true
			})

			_, err := NewUnordered(src, identity, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewUnordered() error = %v, want %v", err, tt.wantErr)
			}
			if reads != 0 {
				t.Errorf("source read %d times before iteration", reads)
			}

			_, err = New(src, identity, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewUnordered_Defaults(t *testing.T) {
	u, err := NewUnordered(sequence.Slice(oneToTen()), identity, WithMode(""))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}
	if u.cfg.chunks != 1 {
		t.Errorf("chunks = %d, want 1", u.cfg.chunks)
	}
	if u.cfg.mode != ModeChunks {
		t.Errorf("mode = %q, want %q", u.cfg.mode, ModeChunks)
	}
	if u.cfg.windowLimit() != 0 {
		t.Errorf("windowLimit() = %d, want 0", u.cfg.windowLimit())
	}
}

func TestNewUnordered_NilArguments(t *testing.T) {
	if _, err := NewUnordered[int, int](nil, identity); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewUnordered[int, int](sequence.Slice(oneToTen()), nil); err == nil {
		t.Error("expected error for nil transform")
	}
}

func TestUnordered_CompletionOrder(t *testing.T) {
	delays := map[int]time.Duration{1: 10 * time.Millisecond, 3: 2 * time.Millisecond}
	transform := func(ctx context.Context, n int) (int, error) {
		time.Sleep(delays[n])
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{1, 2, 3}), transform, WithChunks(3))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	results := drainUnordered(t, u)
	ordered := make([]int, 3)
	for _, r := range results {
		ordered[r.Index] = r.Data
	}

	if got := values(results); !reflect.DeepEqual(got, []int{2, 3, 1}) {
		t.Errorf("completion order = %v, want [2 3 1]", got)
	}
	if !reflect.DeepEqual(ordered, []int{1, 2, 3}) {
		t.Errorf("by index = %v, want [1 2 3]", ordered)
	}
}

func TestUnordered_SlidingWindow(t *testing.T) {
	// Even items are slow. The delay grows with the item so that no two slow
	// items can settle at the same instant.
	transform := func(ctx context.Context, n int) (int, error) {
		if n%2 == 0 {
			time.Sleep(10*time.Millisecond + time.Duration(n)*time.Millisecond)
		}
		return n * 10, nil
	}

	for _, mode := range []Mode{ModeChunks, ModeInfinite} {
		t.Run(string(mode), func(t *testing.T) {
			u, err := NewUnordered(sequence.Slice([]int{1, 2, 3, 4, 5, 6, 7, 8}), transform,
				WithOffset(1), WithChunks(2), WithMode(mode))
			if err != nil {
				t.Fatalf("NewUnordered() error = %v", err)
			}

			got := values(drainUnordered(t, u))
			want := []int{30, 20, 50, 40, 70, 60, 80}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestUnordered_ConcurrencyBound(t *testing.T) {
	for _, mode := range []Mode{ModeChunks, ModeInfinite} {
		for _, chunks := range []int{1, 2, 3, 5} {
			t.Run(string(mode), func(t *testing.T) {
				var running, peak, returned atomic.Int64
				var waveViolation atomic.Bool

				transform := func(ctx context.Context, n int) (int, error) {
					if mode == ModeChunks && returned.Load() < int64((n/chunks)*chunks) {
						waveViolation.Store(true)
					}
					cur := running.Add(1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					time.Sleep(time.Duration(1+n%3) * time.Millisecond)
					running.Add(-1)
					returned.Add(1)
					return n, nil
				}

				items := make([]int, 20)
				for i := range items {
					items[i] = i
				}

				u, err := NewUnordered(sequence.Slice(items), transform, WithChunks(chunks), WithMode(mode))
				if err != nil {
					t.Fatalf("NewUnordered() error = %v", err)
				}

				ctx := context.Background()
				for {
					if u.InFlight() > chunks {
						t.Fatalf("InFlight() = %d, exceeds %d", u.InFlight(), chunks)
					}
					_, err := u.Next(ctx)
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						t.Fatalf("Next() error = %v", err)
					}
				}

				if peak.Load() > int64(chunks) {
					t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), chunks)
				}
				if waveViolation.Load() {
					t.Error("task admitted before the previous wave settled")
				}
			})
		}
	}
}

func TestUnordered_InfiniteKeepsPoolFull(t *testing.T) {
	release := make(chan struct{})
	transform := func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			<-release
		}
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{0, 1, 2, 3, 4, 5}), transform,
		WithChunks(3), WithMode(ModeInfinite))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}
	defer close(release)

	started := tasksStarted.WithLabelValues(string(ModeInfinite))
	before := testutil.ToFloat64(started)

	// every Next tops the pool back up before waiting, so one slot
	// is free right after each settlement until the source runs dry
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		r, err := u.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if r.Data == 0 {
			t.Fatal("blocked item settled early")
		}
		if got := u.InFlight(); got != 2 {
			t.Errorf("after Next() #%d InFlight() = %d, want 2", i, got)
		}
		if got := testutil.ToFloat64(started) - before; got != float64(2+i) {
			t.Errorf("after Next() #%d started = %v, want %d", i, got, 2+i)
		}
	}
}

func TestUnordered_ChunksWaitsForWholeWave(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	transform := func(ctx context.Context, n int) (int, error) {
		started.Add(1)
		if n == 0 {
			<-release
		}
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{0, 1, 2, 3}), transform, WithChunks(2))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	if _, err := u.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = u.Next(ctx)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want deadline exceeded", err)
	}
	if got := started.Load(); got != 2 {
		t.Errorf("started = %d, want 2 while the first wave is pending", got)
	}

	close(release)
	rest := drainUnordered(t, u)
	if len(rest) != 3 {
		t.Errorf("got %d remaining results, want 3", len(rest))
	}
}

func TestUnordered_ErrorIsolation(t *testing.T) {
	u, err := NewUnordered(stream(oneToTen()), evenOnly, WithChunks(4), WithMode(ModeInfinite))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	results := drainUnordered(t, u)
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}

	seen := map[int]bool{}
	for _, r := range results {
		seen[r.Index] = true
		item := r.Index + 1
		if item%2 == 1 {
			if !r.Failed() {
				t.Errorf("item %d: expected envelope", item)
				continue
			}
			if r.Err.Kind != KindTransform {
				t.Errorf("item %d: Kind = %q", item, r.Err.Kind)
			}
			if r.Err.Cause == nil || r.Err.Cause.Error() != "test" {
				t.Errorf("item %d: Cause = %v", item, r.Err.Cause)
			}
		} else if r.Failed() || r.Data != item {
			t.Errorf("item %d: got %+v", item, r)
		}
	}
	if len(seen) != 10 {
		t.Errorf("got %d distinct indices, want 10", len(seen))
	}
}

func TestUnordered_Retry(t *testing.T) {
	var reads atomic.Int64
	items := sequence.Slice([]int{1, 2, 3})
	src := sequence.FromFunc(func() (int, bool) {
		reads.Add(1)
		return items.Next()
	})

	attempts := map[int]int{}
	var mu sync.Mutex
	transform := func(ctx context.Context, n int) (int, error) {
		mu.Lock()
		attempts[n]++
		a := attempts[n]
		mu.Unlock()
		if n == 2 && a < 3 {
			return 0, errors.New("flaky")
		}
		return n * 100, nil
	}

	u, err := NewUnordered(src, transform, WithChunks(3))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	var envelope *Error[int]
	for _, r := range drainUnordered(t, u) {
		if r.Failed() {
			envelope = r.Err
		}
	}
	if envelope == nil {
		t.Fatal("expected one envelope")
	}
	if envelope.Index != 1 {
		t.Errorf("envelope.Index = %d, want 1", envelope.Index)
	}
	readsBefore := reads.Load()

	ctx := context.Background()
	_, err = envelope.Retry(ctx)
	var second *Error[int]
	if !errors.As(err, &second) {
		t.Fatalf("Retry() error = %v, want *Error[int]", err)
	}
	if second.Index != 1 || !second.Retryable() {
		t.Errorf("second envelope = %+v", second)
	}

	data, err := second.Retry(ctx)
	if err != nil {
		t.Fatalf("second Retry() error = %v", err)
	}
	if data != 200 {
		t.Errorf("Retry() = %d, want 200", data)
	}
	if reads.Load() != readsBefore {
		t.Errorf("source read during retry: %d -> %d", readsBefore, reads.Load())
	}
	if attempts[2] != 3 {
		t.Errorf("attempts = %d, want 3", attempts[2])
	}

	// retrying does not feed results back into the finished iteration
	if _, err := u.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after retry error = %v, want io.EOF", err)
	}
}

func TestUnordered_PanicBecomesEnvelope(t *testing.T) {
	transform := func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			panic("kaboom")
		}
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{1, 2, 3}), transform, WithChunks(3))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	var failed []Result[int]
	for _, r := range drainUnordered(t, u) {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(failed))
	}

	var pe *PanicError
	if !errors.As(failed[0].Err, &pe) {
		t.Fatalf("cause = %v, want *PanicError", failed[0].Err.Cause)
	}
	if pe.Value != "kaboom" {
		t.Errorf("panic value = %v", pe.Value)
	}
	if failed[0].Index != 1 {
		t.Errorf("Index = %d, want 1", failed[0].Index)
	}
}

func TestUnordered_InternalViolation(t *testing.T) {
	u, err := NewUnordered(sequence.Slice(oneToTen()), identity)
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	before := testutil.ToFloat64(tasksSettled.WithLabelValues("internal"))

	r := u.settle(settlement[int]{handle: 42})
	if !r.Failed() {
		t.Fatal("expected envelope for unknown handle")
	}
	if r.Index != -1 || r.Err.Index != -1 {
		t.Errorf("Index = %d, want -1", r.Index)
	}
	if r.Err.Kind != KindInternal || r.Err.Retryable() {
		t.Errorf("envelope = %+v, want non-retryable internal", r.Err)
	}
	if _, err := r.Err.Retry(context.Background()); !errors.Is(err, ErrInternal) {
		t.Errorf("Retry() error = %v, want ErrInternal", err)
	}
	if !errors.Is(r.Err, ErrInternal) {
		t.Error("internal envelope should wrap ErrInternal")
	}

	if got := testutil.ToFloat64(tasksSettled.WithLabelValues("internal")); got != before+1 {
		t.Errorf("internal settlements = %v, want %v", got, before+1)
	}

	// unrecognised failure shapes take the same path
	pe := publicError[int, int](errors.New("stray"))
	if pe.Kind != KindInternal || pe.Index != -1 {
		t.Errorf("publicError() = %+v, want internal envelope", pe)
	}
}

func TestUnordered_ContextCancelKeepsPool(t *testing.T) {
	release := make(chan struct{})
	transform := func(ctx context.Context, n int) (int, error) {
		<-release
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{7}), transform)
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := u.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want context.Canceled", err)
	}
	if u.InFlight() != 1 {
		t.Fatalf("InFlight() = %d, want 1", u.InFlight())
	}

	close(release)
	r, err := u.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if r.Data != 7 || r.Index != 0 {
		t.Errorf("got %+v", r)
	}
}

func TestUnordered_CloseCancelsInFlight(t *testing.T) {
	cancelled := make(chan struct{})
	transform := func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	}

	u, err := NewUnordered(sequence.Slice([]int{1}), transform)
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := u.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v", err)
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight transform was not cancelled")
	}

	if _, err := u.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Close error = %v, want ErrClosed", err)
	}
}

func TestUnordered_EarlyStopDoesNotBlockWorkers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(4)
	transform := func(ctx context.Context, n int) (int, error) {
		defer wg.Done()
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n, nil
	}

	u, err := NewUnordered(sequence.Slice([]int{1, 2, 3, 4}), transform, WithChunks(4))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	for range u.All(context.Background()) {
		break
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("abandoned tasks did not finish")
	}
}

func TestUnordered_TaskTimeout(t *testing.T) {
	transform := func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	u, err := NewUnordered(sequence.Slice([]int{1}), transform, WithTaskTimeout(5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}

	results := drainUnordered(t, u)
	if len(results) != 1 || !results[0].Failed() {
		t.Fatalf("got %+v, want one envelope", results)
	}
	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Errorf("cause = %v, want deadline exceeded", results[0].Err.Cause)
	}
}

func TestUnordered_Metrics(t *testing.T) {
	started := testutil.ToFloat64(tasksStarted.WithLabelValues(string(ModeInfinite)))
	failures := testutil.ToFloat64(tasksSettled.WithLabelValues("failure"))

	u, err := NewUnordered(sequence.Slice(oneToTen()), evenOnly, WithChunks(3), WithMode(ModeInfinite))
	if err != nil {
		t.Fatalf("NewUnordered() error = %v", err)
	}
	drainUnordered(t, u)

	if got := testutil.ToFloat64(tasksStarted.WithLabelValues(string(ModeInfinite))); got != started+10 {
		t.Errorf("tasks started = %v, want %v", got, started+10)
	}
	if got := testutil.ToFloat64(tasksSettled.WithLabelValues("failure")); got != failures+5 {
		t.Errorf("failures = %v, want %v", got, failures+5)
	}
}
