// Package fetch implements pagination.PageFetcher over HTTP for APIs that
// report the page count in an X-Pages response header.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page requests.
var (
	pageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_page_requests_total",
		Help: "Total page requests by status",
	}, []string{"status"})

	pageRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_page_request_duration_seconds",
		Help:    "Page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to every endpoint (e.g. "https://api.example.com").
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// HTTPClient performs the requests (default: client with 30s timeout).
	HTTPClient *http.Client
}

// Client fetches single pages of paginated endpoints.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new page client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		logger:     log.With().Str("component", "page-client").Logger(),
	}, nil
}

// FetchPage performs GET endpoint?page=pageNum and returns the body together
// with the total page count taken from the X-Pages header.
func (c *Client) FetchPage(ctx context.Context, endpoint string, pageNum int) ([]byte, int, error) {
	start := time.Now()
	defer func() {
		pageRequestDuration.Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pageRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("page", pageNum).Msg("Page request failed")
		return nil, 0, &HTTPError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	pageRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("page", pageNum).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Page request error")
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	totalPages, err := parsePages(resp.Header.Get("X-Pages"))
	if err != nil {
		return nil, 0, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("page", pageNum).
		Int("total_pages", totalPages).
		Int("bytes", len(body)).
		Msg("Fetched page")

	return body, totalPages, nil
}

// parsePages reads X-Pages. An absent header means a single page.
func parsePages(v string) (int, error) {
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPages, v)
	}
	return n, nil
}
