// Package retry runs operations again with exponential backoff and jitter.
// Retrier serves the sync client, the Telegram client and the event bus;
// Backoff schedules outbox redelivery without sleeping.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Errors returned by an operation are classified by wrapping them:
// Retryable marks a transient failure, Permanent stops Do at once.
// Unmarked errors stop Do unless Config.RetryIf accepts them.

type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// AfterError asks the retrier to wait at least Wait before the next attempt.
// Remote services answering 429 with Retry-After produce one.
type AfterError struct {
	Err  error
	Wait time.Duration
}

func (e *AfterError) Error() string {
	return e.Err.Error()
}

func (e *AfterError) Unwrap() error {
	return e.Err
}

// After wraps err so the next attempt is delayed by at least wait.
// The wrapped error is retryable.
func After(err error, wait time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: &AfterError{Err: err, Wait: wait}}
}

// Config of a Retrier. The zero value of a field keeps its DefaultConfig value
// when set through an Option.
type Config struct {
	MaxAttempts  int // including the first call
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0 disables jitter, 1 spreads delays by ±100%

	// RetryIf accepts unmarked errors as retryable.
	RetryIf func(error) bool

	// OnRetry runs before every sleep with the error that caused it.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig: 3 attempts, 100ms doubling up to 30s, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier ignores values below 1.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

// WithJitter ignores values outside [0,1].
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier sleeps between attempts; it is safe for concurrent use.
type Retrier struct {
	config  Config
	backoff Backoff
}

func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config, backoff: BackoffFrom(config)}
}

// Do calls operation until it succeeds, fails with a non-retryable error,
// runs out of attempts or ctx ends. The returned error has the retry markers
// stripped.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = unwrapMarkers(err)

		if IsPermanent(err) {
			return lastErr
		}

		shouldRetry := IsRetryable(err)
		if r.config.RetryIf != nil {
			shouldRetry = shouldRetry || r.config.RetryIf(err)
		}
		if !shouldRetry {
			return lastErr
		}

		if attempt == r.config.MaxAttempts {
			return lastErr
		}

		delay := r.backoff.Delay(attempt)
		var after *AfterError
		if errors.As(err, &after) && after.Wait > delay {
			delay = after.Wait
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// unwrapMarkers strips RetryableError, PermanentError and AfterError so
// callers see the underlying cause.
func unwrapMarkers(err error) error {
	for {
		switch e := err.(type) {
		case *RetryableError:
			err = e.Err
		case *PermanentError:
			err = e.Err
		case *AfterError:
			err = e.Err
		default:
			return err
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Backoff
// ──────────────────────────────────────────────────────────────────────────────

// Backoff computes exponential delays with jitter. Unlike Retrier it does not
// sleep: the outbox stores the result as the next delivery time.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// rnd returns a value in [0,1). Nil means math/rand.
	rnd func() float64
}

// BackoffFrom builds a Backoff from retry configuration.
func BackoffFrom(c Config) Backoff {
	return Backoff{
		Initial:    c.InitialDelay,
		Max:        c.MaxDelay,
		Multiplier: c.Multiplier,
		Jitter:     c.JitterFactor,
	}
}

// WithoutJitter returns a copy with jitter disabled.
func (b Backoff) WithoutJitter() Backoff {
	b.Jitter = 0
	return b
}

// Delay returns the wait before retry number attempt (1-based):
// Initial * Multiplier^(attempt-1), capped at Max, spread by ±Jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	base := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && base > float64(b.Max) {
		base = float64(b.Max)
	}

	if b.Jitter > 0 {
		rnd := b.rnd
		if rnd == nil {
			rnd = rand.Float64
		}
		base += base * b.Jitter * (rnd()*2 - 1)
	}

	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// Next returns the time of the next attempt after now.
func (b Backoff) Next(now time.Time, attempt int) time.Time {
	return now.Add(b.Delay(attempt))
}

// ──────────────────────────────────────────────────────────────────────────────
// Presets
// ──────────────────────────────────────────────────────────────────────────────

// SyncAPIRetrier returns a Retrier for a single push or pull to the sync API.
// Longer outages are handled by the outbox, so attempts are few.
func SyncAPIRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
		WithOnRetry(onRetry),
	)
}

// OutboxBackoff is the redelivery schedule for outbox messages.
func OutboxBackoff() Backoff {
	return Backoff{
		Initial:    30 * time.Second,
		Max:        30 * time.Minute,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// TelegramRetrier covers a single Bot API call. The client marks 4xx as
// permanent except 429, which waits for retry_after.
func TelegramRetrier() *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(1.5),
		WithJitter(0.1),
	)
}
