package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/go-paginator/pkg/fetch"
	"github.com/Sternrassler/go-paginator/pkg/logging"
	"github.com/Sternrassler/go-paginator/pkg/metrics"
	"github.com/Sternrassler/go-paginator/pkg/pagination"
	"github.com/Sternrassler/go-paginator/pkg/redisseq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagefetch: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("pagefetch")

	pageClient, err := fetch.New(fetch.Config{
		BaseURL:   cfg.UpstreamURL,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create page client")
	}

	// Redis is optional; without it /drain is unavailable
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		logger.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
	}

	srv := newServer(pageClient, redisClient, cfg.batchConfig(), logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("upstream", cfg.UpstreamURL).
		Int("max_concurrency", cfg.MaxConcurrency).
		Msg("Starting pagefetch server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

type server struct {
	fetcher        pagination.PageFetcher
	redis          *redis.Client
	maxConcurrency int
	batchConfig    pagination.Config
	logger         zerolog.Logger
}

func newServer(fetcher pagination.PageFetcher, redisClient *redis.Client, batch pagination.Config, logger zerolog.Logger) *server {
	if batch.MaxConcurrency <= 0 {
		batch.MaxConcurrency = 10
	}
	batch.Retry.ShouldRetry = fetch.ShouldRetry

	return &server{
		fetcher:        fetcher,
		redis:          redisClient,
		maxConcurrency: batch.MaxConcurrency,
		batchConfig:    batch,
		logger:         logger,
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/fetch", s.fetchHandler)
	mux.HandleFunc("/drain", s.drainHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// fetchSummary describes a batch fetch of every page of one endpoint.
type fetchSummary struct {
	Endpoint    string `json:"endpoint"`
	TotalPages  int    `json:"total_pages"`
	Fetched     int    `json:"fetched"`
	Bytes       int    `json:"bytes"`
	FailedPages []int  `json:"failed_pages,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *server) fetchHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		http.Error(w, "endpoint parameter is required", http.StatusBadRequest)
		return
	}

	bf := pagination.NewBatchFetcher(s.fetcher, s.batchConfig)
	pages, err := bf.FetchAllPages(r.Context(), endpoint)

	summary := fetchSummary{
		Endpoint:   endpoint,
		TotalPages: len(pages),
		Fetched:    len(pages),
	}
	for _, data := range pages {
		summary.Bytes += len(data)
	}

	if err != nil {
		var partial *pagination.PartialError
		if !errors.As(err, &partial) {
			s.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Batch fetch failed")
			http.Error(w, fmt.Sprintf("fetch failed: %v", err), http.StatusBadGateway)
			return
		}
		summary.TotalPages = partial.Total
		summary.FailedPages = partial.FailedPages
		summary.Error = partial.Err.Error()
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// drainItem is the outcome of probing one endpoint taken from a Redis list.
type drainItem struct {
	Index      int    `json:"index"`
	Endpoint   string `json:"endpoint,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
}

type drainSummary struct {
	Key         string      `json:"key"`
	Items       []drainItem `json:"items"`
	Failed      int         `json:"failed"`
	SourceError string      `json:"source_error,omitempty"`
}

// drainHandler pops endpoint paths from a Redis list and fetches the first
// page of each, reporting results in list order.
func (s *server) drainHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		http.Error(w, "redis is not configured", http.StatusServiceUnavailable)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key parameter is required", http.StatusBadRequest)
		return
	}

	opts := []pagination.Option{
		pagination.WithChunks(s.maxConcurrency),
		pagination.WithMode(pagination.ModeInfinite),
		pagination.WithContext(r.Context()),
		pagination.WithLogger(s.logger),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		opts = append(opts, pagination.WithLimit(limit))
	}

	src := redisseq.NewList[string](r.Context(), s.redis, key)
	probe := func(ctx context.Context, endpoint string) (drainItem, error) {
		_, pages, err := s.fetcher.FetchPage(ctx, endpoint, 1)
		if err != nil {
			return drainItem{}, fmt.Errorf("%s: %w", endpoint, err)
		}
		return drainItem{Endpoint: endpoint, Pages: pages}, nil
	}

	p, err := pagination.New(src, probe, opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer p.Close()

	summary := drainSummary{Key: key, Items: []drainItem{}}
	for res, err := range p.All(r.Context()) {
		if err != nil {
			http.Error(w, fmt.Sprintf("drain interrupted: %v", err), http.StatusServiceUnavailable)
			return
		}
		if res.Failed() {
			item := drainItem{Index: res.Index, Error: res.Err.Cause.Error()}
			var httpErr *fetch.HTTPError
			if errors.As(res.Err, &httpErr) {
				item.ErrorClass = string(httpErr.ErrorClass)
			}
			summary.Items = append(summary.Items, item)
			summary.Failed++
			continue
		}
		item := res.Data
		item.Index = res.Index
		summary.Items = append(summary.Items, item)
	}

	if err := src.Err(); err != nil {
		summary.SourceError = err.Error()
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
