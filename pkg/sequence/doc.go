// Package sequence turns finite slices and single-pass producers into lazy,
// windowed cursors.
//
// Two kinds of source are supported:
//
//   - Random-access sources (anything implementing [RandomAccess]) have a known
//     length and can be read without side effects. Windowing is applied
//     eagerly as a pure slice of [offset, limit).
//   - Single-pass sources only implement [Source]. Reading is destructive, so
//     the offset is enforced by discarding items and the limit by counting the
//     items handed out after the skip.
//
// A limit of zero or less means "no limit" for both kinds.
//
// Example usage:
//
//	cur := sequence.Window(sequence.Slice([]int{1, 2, 3, 4}), 1, 0)
//	defer cur.Close()
//	for v, ok := cur.Next(); ok; v, ok = cur.Next() {
//		fmt.Println(v) // 2, 3, 4
//	}
package sequence
