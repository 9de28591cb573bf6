// Package pagination drives an asynchronous transform over a sequence of
// items with bounded concurrency.
//
// Two iterators are provided:
//
//   - [Unordered] yields results as soon as they settle (completion order).
//   - [Paginator] reassembles the same results into window order.
//
// Neither aborts on a failing item. A failure is delivered inline as an
// [Error] envelope carrying the cause, the item index and a Retry method that
// runs the transform again for the same item without reading the source.
//
// Example usage:
//
//	p, err := pagination.New(sequence.Slice(ids), fetchUser,
//		pagination.WithChunks(4),
//		pagination.WithMode(pagination.ModeInfinite),
//	)
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	for r, err := range p.All(ctx) {
//		if err != nil {
//			return err
//		}
//		if r.Failed() {
//			user, err := r.Err.Retry(ctx)
//			...
//		}
//	}
//
// Admission follows the configured [Mode]: ModeChunks starts a new wave of
// up to chunks tasks only once the previous wave has settled, ModeInfinite
// keeps chunks tasks in flight at all times.
//
// The package also contains [BatchFetcher], which fetches every page of a
// paginated endpoint through an Unordered paginator and retries failed pages
// with [RetryWithBackoff].
package pagination
