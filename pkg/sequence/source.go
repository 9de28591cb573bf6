package sequence

import "iter"

// Source is a single-pass producer of items.
// Next returns false once the source is exhausted.
type Source[T any] interface {
	Next() (T, bool)
}

// RandomAccess is implemented by sources whose length is known upfront and
// whose items can be read by position without consuming them.
type RandomAccess[T any] interface {
	Len() int
	At(i int) T
}

// SliceSource is a random-access source backed by a slice.
// It can also be consumed as a plain Source.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// Slice wraps items as a random-access source. The slice is not copied.
func Slice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

// Len returns the number of items in the slice.
func (s *SliceSource[T]) Len() int { return len(s.items) }

// At returns the item at position i.
func (s *SliceSource[T]) At(i int) T { return s.items[i] }

// Next returns the next unread item.
func (s *SliceSource[T]) Next() (T, bool) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

// FuncSource adapts a generator function to a Source.
type FuncSource[T any] func() (T, bool)

// FromFunc wraps fn as a single-pass source.
func FromFunc[T any](fn func() (T, bool)) FuncSource[T] {
	return FuncSource[T](fn)
}

// Next calls the underlying function.
func (f FuncSource[T]) Next() (T, bool) { return f() }

// FromChan reads items from ch until it is closed.
func FromChan[T any](ch <-chan T) FuncSource[T] {
	return func() (T, bool) {
		v, ok := <-ch
		return v, ok
	}
}

// SeqSource pulls items from an iter.Seq. It must be stopped with Close
// if it is abandoned before exhaustion.
type SeqSource[T any] struct {
	next func() (T, bool)
	stop func()
}

// FromSeq converts a push-style iterator into a single-pass source.
func FromSeq[T any](seq iter.Seq[T]) *SeqSource[T] {
	next, stop := iter.Pull(seq)
	return &SeqSource[T]{next: next, stop: stop}
}

// Next pulls the next item from the sequence.
func (s *SeqSource[T]) Next() (T, bool) { return s.next() }

// Close stops the underlying iterator. It is safe to call more than once.
func (s *SeqSource[T]) Close() error {
	s.stop()
	return nil
}
