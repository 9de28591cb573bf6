package sequence

import "io"

// Cursor is a lazy, single-pass view of a windowed source.
type Cursor[T any] struct {
	next   func() (T, bool)
	closer io.Closer
	done   bool
}

// Next returns the next item of the window. Once it has reported false it
// keeps doing so without consulting the source again.
func (c *Cursor[T]) Next() (T, bool) {
	if c.done {
		var zero T
		return zero, false
	}
	v, ok := c.next()
	if !ok {
		c.done = true
	}
	return v, ok
}

// Close releases the underlying source if it holds resources (for example a
// source created by FromSeq). It is safe to call more than once.
func (c *Cursor[T]) Close() error {
	c.done = true
	if c.closer == nil {
		return nil
	}
	closer := c.closer
	c.closer = nil
	return closer.Close()
}

// Window returns a cursor over src that skips offset items and stops at limit.
//
// For random-access sources the window is the slice [offset, limit). For
// single-pass sources offset items are discarded before the first yield and
// at most limit items are yielded after that. A limit of zero or less means
// no limit. A negative offset is treated as zero.
func Window[T any](src Source[T], offset, limit int) *Cursor[T] {
	if offset < 0 {
		offset = 0
	}

	cur := &Cursor[T]{}
	if c, ok := src.(io.Closer); ok {
		cur.closer = c
	}

	if ra, ok := src.(RandomAccess[T]); ok {
		cur.next = sliceWindow(ra, offset, limit)
		return cur
	}

	cur.next = streamWindow(src, offset, limit)
	return cur
}

// sliceWindow applies [offset, limit) without touching the source state.
func sliceWindow[T any](ra RandomAccess[T], offset, limit int) func() (T, bool) {
	end := ra.Len()
	if limit > 0 && limit < end {
		end = limit
	}
	pos := offset
	return func() (T, bool) {
		if pos >= end {
			var zero T
			return zero, false
		}
		v := ra.At(pos)
		pos++
		return v, true
	}
}

// streamWindow enforces the window on a destructive source. The skip happens
// lazily on the first call so that building the cursor has no side effects.
func streamWindow[T any](src Source[T], offset, limit int) func() (T, bool) {
	skipped := false
	remaining := limit
	return func() (T, bool) {
		var zero T
		if !skipped {
			skipped = true
			for i := 0; i < offset; i++ {
				if _, ok := src.Next(); !ok {
					return zero, false
				}
			}
		}
		if limit > 0 {
			if remaining == 0 {
				return zero, false
			}
			remaining--
		}
		return src.Next()
	}
}
