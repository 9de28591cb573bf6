package pagination

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// Configuration errors returned by the constructors.
var (
	// ErrInvalidChunks is returned when the concurrency bound is not positive.
	ErrInvalidChunks = errors.New("invalid chunks")

	// ErrInvalidOffset is returned for a negative offset.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidMode is returned for an unknown scheduling mode.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrLimitAndSize is returned when both a limit and a size are configured.
	ErrLimitAndSize = errors.New("limit and size are mutually exclusive")

	// ErrInternal is the cause carried by internal-violation envelopes and
	// the error their Retry always returns.
	ErrInternal = errors.New("pagination: internal error")
)

// Kind tells ordinary transform failures apart from internal violations.
type Kind string

const (
	// KindTransform marks a failure returned (or panicked) by the transform.
	KindTransform Kind = "transform"

	// KindInternal marks a settlement the scheduler could not attribute to a
	// task in its pool. Its index is -1 and it cannot be retried.
	KindInternal Kind = "internal"
)

// Error is the envelope delivered in place of a failed item.
// It is a value in the output stream, never a fault of the iteration itself.
type Error[O any] struct {
	// Cause is the error returned by the transform.
	Cause error

	// Index is the position of the item inside the window, or -1.
	Index int

	// Kind classifies the failure.
	Kind Kind

	retry func(ctx context.Context) (O, error)
}

// Error implements the error interface.
func (e *Error[O]) Error() string {
	if e.Kind == KindInternal {
		return fmt.Sprintf("pagination: internal failure: %v", e.Cause)
	}
	return fmt.Sprintf("pagination: item %d failed: %v", e.Index, e.Cause)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error[O]) Unwrap() error {
	return e.Cause
}

// Retry runs the transform again for the same item and index. The source is
// not consulted and the result is not injected back into the iteration.
// On failure the returned error is a fresh *Error[O] that can itself be retried.
func (e *Error[O]) Retry(ctx context.Context) (O, error) {
	if e.retry == nil {
		var zero O
		return zero, ErrInternal
	}
	return e.retry(ctx)
}

// Retryable reports whether Retry can possibly succeed.
func (e *Error[O]) Retryable() bool {
	return e.Kind != KindInternal && e.retry != nil
}

// taskFailure is the internal envelope. It keeps the owning task so the
// scheduler can re-execute it; it never leaves the package.
type taskFailure[T, O any] struct {
	cause error
	task  *task[T, O]
}

func (f *taskFailure[T, O]) Error() string {
	return fmt.Sprintf("task %d: %v", f.task.index, f.cause)
}

func (f *taskFailure[T, O]) Unwrap() error {
	return f.cause
}

// publicError converts an internal failure into the envelope handed to
// callers. Anything that is not a *taskFailure becomes an internal violation.
func publicError[T, O any](err error) *Error[O] {
	var tf *taskFailure[T, O]
	if !errors.As(err, &tf) {
		return internalError[O](err)
	}

	t := tf.task
	return &Error[O]{
		Cause: tf.cause,
		Index: t.index,
		Kind:  KindTransform,
		retry: func(ctx context.Context) (O, error) {
			retriesTotal.WithLabelValues("attempt").Inc()
			data, err := t.execute(ctx)
			if err != nil {
				retriesTotal.WithLabelValues("failure").Inc()
				return data, publicError[T, O](err)
			}
			retriesTotal.WithLabelValues("success").Inc()
			return data, nil
		},
	}
}

func internalError[O any](cause error) *Error[O] {
	if cause == nil {
		cause = ErrInternal
	} else if !errors.Is(cause, ErrInternal) {
		cause = fmt.Errorf("%w: %v", ErrInternal, cause)
	}
	return &Error[O]{
		Cause: cause,
		Index: -1,
		Kind:  KindInternal,
		retry: func(context.Context) (O, error) {
			var zero O
			return zero, ErrInternal
		},
	}
}

// IsPaginationError reports whether err (or any error in its chain) is an
// envelope produced by this package.
func IsPaginationError[O any](err error) bool {
	var pe *Error[O]
	return errors.As(err, &pe)
}

// IndexOf returns the item index recorded in the first envelope of err's chain.
func IndexOf[O any](err error) (int, bool) {
	var pe *Error[O]
	if errors.As(err, &pe) {
		return pe.Index, true
	}
	return 0, false
}

// CauseOf unwraps the first envelope in err's chain and returns its cause.
// If err is not an envelope it is returned as-is.
func CauseOf[O any](err error) error {
	var pe *Error[O]
	if errors.As(err, &pe) {
		return pe.Cause
	}
	return err
}

// PanicError wraps a value recovered from a panicking transform.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns the panic value followed by the stack trace.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}
