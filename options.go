package assetsync

import (
	"log/slog"
	"runtime"
	"time"
)

// Options configures the engine entry points. Zero values mean defaults.
type Options struct {
	// Concurrency bounds the worker pools used for hashing during a scan
	// and for uploads during a sync.
	Concurrency int

	// RetryAttempts is the per-object attempt budget for transient
	// transport failures, RetryBaseDelay the first backoff step. The
	// delay doubles on every attempt.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// Logger receives warnings and per-object progress. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for the engine entry points.
type Option func(*Options)

func defaultEngineOptions() *Options {
	return &Options{
		Concurrency:    runtime.NumCPU(),
		RetryAttempts:  4,
		RetryBaseDelay: 500 * time.Millisecond,
		Logger:         slog.Default(),
	}
}

// WithConcurrency bounds the scan and upload worker pools.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithRetryPolicy sets the per-object retry budget and the initial
// backoff delay.
func WithRetryPolicy(attempts int, baseDelay time.Duration) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.RetryAttempts = attempts
		}
		if baseDelay > 0 {
			o.RetryBaseDelay = baseDelay
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
