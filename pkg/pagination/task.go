package pagination

import (
	"context"
	"time"
)

// Transform maps one input item to one output value.
type Transform[T, O any] func(ctx context.Context, item T) (O, error)

// handle identifies one attempt inside the scheduler pool.
type handle uint64

// settlement is what an attempt reports back to the scheduler.
type settlement[O any] struct {
	handle handle
	data   O
	err    error
}

// task is one unit of work. It owns its item, so retrying never touches the source.
type task[T, O any] struct {
	index     int
	item      T
	transform Transform[T, O]
	timeout   time.Duration
}

func newTask[T, O any](index int, item T, transform Transform[T, O], timeout time.Duration) *task[T, O] {
	return &task[T, O]{
		index:     index,
		item:      item,
		transform: transform,
		timeout:   timeout,
	}
}

// execute calls the transform exactly once. Failures, including panics, are
// returned as *taskFailure.
func (t *task[T, O]) execute(ctx context.Context) (data O, err error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		taskDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			var zero O
			data, err = zero, &taskFailure[T, O]{cause: newPanicError(r), task: t}
		}
	}()

	data, err = t.transform(ctx, t.item)
	if err != nil {
		return data, &taskFailure[T, O]{cause: err, task: t}
	}
	return data, nil
}

// start runs one attempt in its own goroutine and reports on done under h.
// done must have room for the report so an abandoned scheduler never blocks it.
func (t *task[T, O]) start(ctx context.Context, h handle, done chan<- settlement[O]) {
	inFlight.Inc()
	go func() {
		data, err := t.execute(ctx)
		inFlight.Dec()
		done <- settlement[O]{handle: h, data: data, err: err}
	}()
}
