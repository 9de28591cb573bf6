package pagination

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/go-paginator/pkg/sequence"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// Timeout per page fetch attempt
	Timeout time.Duration
	// Retry controls how failed pages are retried after the first pass
	Retry RetryConfig
}

// DefaultConfig returns a conservative configuration for paginated HTTP APIs
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// PageFetcher fetches a single page of an endpoint
type PageFetcher interface {
	// FetchPage fetches a single page and returns data + total page count
	FetchPage(ctx context.Context, endpoint string, pageNum int) (data []byte, totalPages int, err error)
}

// PartialError is returned when some pages could not be fetched.
// The result map returned alongside it holds every page that succeeded.
type PartialError struct {
	Fetched     int
	Total       int
	FailedPages []int
	Err         error
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	return fmt.Sprintf("partial data: %d/%d pages, failed pages %v: %v",
		e.Fetched, e.Total, e.FailedPages, e.Err)
}

// Unwrap returns the last page failure.
func (e *PartialError) Unwrap() error {
	return e.Err
}

// BatchFetcher fetches all pages of an endpoint with bounded concurrency
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1 to learn the page count, then fetches the
// remaining pages through a sliding-window paginator. Failed pages are
// retried with backoff once the first pass is complete.
// Returns map of pageNumber -> data for successful pages; if pages are still
// missing the error is a *PartialError.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, endpoint string) (map[int][]byte, error) {
	start := time.Now()
	logger := log.With().Str("component", "batch-fetcher").Str("endpoint", endpoint).Logger()

	// Fetch first page to get total page count
	firstCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	firstPageData, totalPages, err := bf.fetcher.FetchPage(firstCtx, endpoint, 1)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	results := map[int][]byte{1: firstPageData}

	// Single page optimization
	if totalPages <= 1 {
		logger.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	logger.Info().
		Int("total_pages", totalPages).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	pages := make([]int, 0, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		pages = append(pages, page)
	}

	fetch := func(ctx context.Context, page int) ([]byte, error) {
		data, _, err := bf.fetcher.FetchPage(ctx, endpoint, page)
		return data, err
	}

	p, err := NewUnordered(sequence.Slice(pages), fetch,
		WithChunks(bf.config.MaxConcurrency),
		WithMode(ModeInfinite),
		WithTaskTimeout(bf.config.Timeout),
		WithContext(ctx),
		WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create paginator: %w", err)
	}
	defer p.Close()

	failed, err := bf.collect(ctx, p, pages, results, totalPages, logger)
	if err != nil {
		return results, &PartialError{
			Fetched:     len(results),
			Total:       totalPages,
			FailedPages: missingPages(results, totalPages),
			Err:         err,
		}
	}

	var lastErr error
	for _, e := range failed {
		page := pages[e.Index]
		data, err := RetryWithBackoff(ctx, e, bf.config.Retry)
		if err != nil {
			lastErr = err
			continue
		}
		results[page] = data
	}

	if len(results) < totalPages {
		missing := missingPages(results, totalPages)
		if lastErr == nil {
			// only an internal failure can lose a page without an envelope
			lastErr = ErrInternal
		}
		logger.Warn().
			Err(lastErr).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Ints("failed_pages", missing).
			Msg("Returning partial results")
		return results, &PartialError{
			Fetched:     len(results),
			Total:       totalPages,
			FailedPages: missing,
			Err:         lastErr,
		}
	}

	logger.Info().
		Int("pages", len(results)).
		Int("retried", len(failed)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// collect drains p into results and returns the envelopes of failed pages.
// Internal envelopes carry no page; they are logged and skipped, and the page
// they swallowed is reported by missingPages.
func (bf *BatchFetcher) collect(ctx context.Context, p *Unordered[int, []byte], pages []int, results map[int][]byte, totalPages int, logger zerolog.Logger) ([]*Error[[]byte], error) {
	var failed []*Error[[]byte]
	for r, err := range p.All(ctx) {
		if err != nil {
			return failed, err
		}

		if r.Failed() && r.Err.Kind == KindInternal {
			logger.Warn().Err(r.Err).Msg("Skipping internal failure")
			continue
		}

		page := pages[r.Index]
		if r.Failed() {
			logger.Warn().
				Err(r.Err.Cause).
				Int("page", page).
				Msg("Page fetch failed")
			failed = append(failed, r.Err)
			continue
		}

		results[page] = r.Data

		// Progress logging every 50 pages
		if len(results)%50 == 0 {
			logger.Info().
				Int("fetched", len(results)).
				Int("total", totalPages).
				Float64("progress_pct", float64(len(results))/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}
	return failed, nil
}

func missingPages(results map[int][]byte, totalPages int) []int {
	var missing []int
	for page := 1; page <= totalPages; page++ {
		if _, ok := results[page]; !ok {
			missing = append(missing, page)
		}
	}
	sort.Ints(missing)
	return missing
}
