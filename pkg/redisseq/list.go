// Package redisseq exposes a Redis list as a single-pass sequence source.
//
// Items are JSON-encoded list elements. Reading pops them with LPOP, so the
// source is destructive: an item handed to a paginator (or skipped by its
// offset) is gone from Redis.
package redisseq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ListPops tracks items popped from Redis lists
	ListPops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redisseq_pops_total",
			Help: "Total number of items popped from Redis list sources",
		},
	)

	// ListErrors tracks list source errors by operation
	ListErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redisseq_errors_total",
			Help: "Total number of Redis list source errors",
		},
		[]string{"operation"}, // "pop", "decode", "push"
	)
)

// ErrDecode indicates a list element could not be decoded.
var ErrDecode = errors.New("decode list item")

// List is a single-pass source that pops JSON items from a Redis list.
// Next reports false when the list is empty or an error occurred; Err tells
// the two apart.
type List[T any] struct {
	ctx    context.Context
	redis  *redis.Client
	key    string
	logger zerolog.Logger

	mu  sync.Mutex
	err error
}

// NewList creates a source over the list at key. ctx bounds every pop.
func NewList[T any](ctx context.Context, redisClient *redis.Client, key string) *List[T] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &List[T]{
		ctx:    ctx,
		redis:  redisClient,
		key:    key,
		logger: log.With().Str("component", "redisseq").Str("key", key).Logger(),
	}
}

// Next pops and decodes the head of the list.
func (l *List[T]) Next() (T, bool) {
	var zero T
	if l.Err() != nil {
		return zero, false
	}

	data, err := l.redis.LPop(l.ctx, l.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false
		}
		ListErrors.WithLabelValues("pop").Inc()
		l.setErr(fmt.Errorf("redis lpop: %w", err))
		return zero, false
	}
	ListPops.Inc()

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		ListErrors.WithLabelValues("decode").Inc()
		l.setErr(fmt.Errorf("%w: %v", ErrDecode, err))
		return zero, false
	}
	return item, true
}

// Err returns the error that stopped the source, if any.
func (l *List[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *List[T]) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
		l.logger.Warn().Err(err).Msg("List source stopped")
	}
}

// Len returns the number of items left in the list.
func (l *List[T]) Len(ctx context.Context) (int64, error) {
	n, err := l.redis.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}

// Push appends JSON-encoded items to the tail of the list at key.
func Push[T any](ctx context.Context, redisClient *redis.Client, key string, items ...T) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			ListErrors.WithLabelValues("push").Inc()
			return fmt.Errorf("marshal list item: %w", err)
		}
		values = append(values, data)
	}

	if err := redisClient.RPush(ctx, key, values...).Err(); err != nil {
		ListErrors.WithLabelValues("push").Inc()
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}
