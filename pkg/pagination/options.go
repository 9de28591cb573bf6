package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects the admission policy of the scheduler.
type Mode string

const (
	// ModeChunks admits a new wave of up to chunks tasks only once the
	// previous wave has fully settled.
	ModeChunks Mode = "chunks"

	// ModeInfinite tops the pool back up to chunks after every settlement,
	// giving a sliding window of concurrent tasks.
	ModeInfinite Mode = "infinite"
)

// Option configures a paginator.
type Option func(*config)

type config struct {
	chunks      int
	offset      int
	mode        Mode
	limit       optional
	size        optional
	taskTimeout time.Duration
	baseCtx     context.Context
	logger      *zerolog.Logger
}

// optional is an integer setting that distinguishes "unset" from zero.
type optional struct {
	value int
	set   bool
}

func defaultConfig() config {
	return config{
		chunks: 1,
		offset: 0,
		mode:   ModeChunks,
	}
}

// WithChunks sets the maximum number of transforms in flight. Default 1.
func WithChunks(n int) Option {
	return func(c *config) {
		c.chunks = n
	}
}

// WithOffset skips the first n items of the source. Default 0.
func WithOffset(n int) Option {
	return func(c *config) {
		c.offset = n
	}
}

// WithMode sets the admission policy. Default ModeChunks.
func WithMode(m Mode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithLimit sets the end of the window. For random-access sources the window
// is [offset, limit); for single-pass sources at most limit items are taken
// after the offset. A limit of zero or less means no limit.
func WithLimit(n int) Option {
	return func(c *config) {
		c.limit = optional{value: n, set: true}
	}
}

// WithSize is shorthand for WithLimit(size + offset) and cannot be combined
// with WithLimit. For random-access sources the window is
// [offset, offset+size); for single-pass sources at most size+offset items
// are taken after the offset. A resulting limit of zero or less means no limit.
func WithSize(n int) Option {
	return func(c *config) {
		c.size = optional{value: n, set: true}
	}
}

// WithTaskTimeout bounds every transform attempt started by the scheduler.
// Zero (the default) means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *config) {
		c.taskTimeout = d
	}
}

// WithContext sets the parent of the context handed to transforms started by
// the scheduler. Cancelling it cancels every in-flight attempt, like Close.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.baseCtx = ctx
	}
}

// WithLogger sets the logger used by the scheduler.
// Defaults to the global zerolog logger with component=paginator.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = &l
	}
}

func newConfig(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.chunks <= 0 {
		return fmt.Errorf("%w: chunks=%d", ErrInvalidChunks, c.chunks)
	}
	if c.offset < 0 {
		return fmt.Errorf("%w: offset=%d", ErrInvalidOffset, c.offset)
	}
	switch c.mode {
	case "":
		c.mode = ModeChunks
	case ModeChunks, ModeInfinite:
	default:
		return fmt.Errorf("%w: mode=%q", ErrInvalidMode, c.mode)
	}
	if c.limit.set && c.size.set {
		return ErrLimitAndSize
	}
	return nil
}

// windowLimit resolves limit/size into the limit handed to the sequencer.
// Zero means no limit.
func (c *config) windowLimit() int {
	switch {
	case c.limit.set:
		return c.limit.value
	case c.size.set:
		return c.size.value + c.offset
	default:
		return 0
	}
}

func (c *config) log() zerolog.Logger {
	if c.logger != nil {
		return *c.logger
	}
	return log.With().Str("component", "paginator").Logger()
}
