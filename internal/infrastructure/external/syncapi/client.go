// Package syncapi implements the client side of the remote progress sync API.
// The sync daemon drains the local outbox through it and pulls newer
// server copies on startup.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/circuitbreaker"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/retry"
)

// Header names understood by the sync API.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderInitData       = "X-Telegram-Init-Data"

	progressPath = "/api/sync/progress"
	userAgent    = "progress-hub-syncapi/1"
	maxBodyBytes = 4 << 20
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the sync API client.
type Config struct {
	// BaseURL is the sync API base URL, e.g. https://api.teens.space.
	BaseURL string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Token is a student JWT sent as a bearer token (optional).
	Token string

	// InitData is a raw Telegram WebApp initData string (optional).
	InitData string

	// RateLimiter configures the client-side token bucket.
	RateLimiter RateLimiterConfig

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Timeout:     15 * time.Second,
		RateLimiter: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the sync API. It implements command.RemoteProgress.
type Client struct {
	config      Config
	baseURL     string
	httpClient  *http.Client
	log         *logger.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

var _ command.RemoteProgress = (*Client)(nil)

// NewClient creates a new sync API client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig("").Timeout
	}
	log := config.Logger.With(logger.Component("syncapi"))

	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		log:         log,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		breaker: circuitbreaker.SyncAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}),
		retrier: retry.SyncAPIRetrier(func(attempt int, err error, delay time.Duration) {
			log.Debug("retrying sync request",
				logger.Attempt(attempt),
				logger.Duration("delay", delay),
				logger.Err(err))
		}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Push uploads the state. On 409 it returns the server's current state
// together with a version conflict error.
func (c *Client) Push(ctx context.Context, s *ledger.State) (*ledger.State, error) {
	if s == nil {
		return nil, shared.NewDomainError("sync", "Push", shared.ErrInvalidInput, "state is required")
	}
	body, err := NewProgressDTO(s)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(HeaderIdempotencyKey, command.IdempotencyKey(s.TelegramID, s.Version))

	resp, err := c.doRequest(ctx, http.MethodPost, progressPath, body, header)
	if err != nil {
		return nil, fmt.Errorf("push %d@%d: %w", s.TelegramID, s.Version, err)
	}

	switch {
	case resp.status == http.StatusOK || resp.status == http.StatusCreated:
		stored, err := resp.progress(s.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("push %d@%d: %w", s.TelegramID, s.Version, err)
		}
		return stored, nil

	case resp.status == http.StatusConflict:
		server, err := resp.progress(s.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("push %d@%d: conflict without server state: %w", s.TelegramID, s.Version, err)
		}
		return server, ledger.ConflictError(server, s)
	}

	return nil, fmt.Errorf("push %d@%d: %w", s.TelegramID, s.Version, resp.failure("Push"))
}

// Pull downloads the server copy. Unknown learners yield shared.ErrStateNotFound.
func (c *Client) Pull(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	path := progressPath + "/" + strconv.FormatInt(id.Int64(), 10)

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("pull %d: %w", id, err)
	}

	switch resp.status {
	case http.StatusOK:
		s, err := resp.progress(id)
		if err != nil {
			return nil, fmt.Errorf("pull %d: %w", id, err)
		}
		return s, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("pull %d: %w", id, shared.ErrStateNotFound)
	}

	return nil, fmt.Errorf("pull %d: %w", id, resp.failure("Pull"))
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type response struct {
	status     int
	envelope   APIResponse
	decodeErr  error
	retryAfter time.Duration
}

// progress decodes the envelope data as a ProgressDTO.
func (r *response) progress(want shared.TelegramID) (*ledger.State, error) {
	if r.decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSyncAPIInvalid, r.decodeErr)
	}
	var dto ProgressDTO
	if err := json.Unmarshal(r.envelope.Data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSyncAPIInvalid, err)
	}
	return dto.State(want)
}

// failure maps a non-success status to a domain error.
func (r *response) failure(op string) error {
	var cause error = fmt.Errorf("status %d", r.status)
	if r.envelope.Error != nil {
		cause = r.envelope.Error
	}

	switch {
	case r.status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %s", shared.ErrSyncAPIRateLimited, r.retryAfter)
	case r.status == http.StatusUnauthorized:
		return shared.WrapError("sync", op, shared.ErrUnauthorized, "sync API rejected credentials", cause)
	case r.status == http.StatusForbidden:
		return shared.WrapError("sync", op, shared.ErrForbidden, "sync API denied access", cause)
	case r.status >= 500:
		return shared.WrapError("sync", op, shared.ErrServiceUnavailable, "sync API failed", cause)
	case r.status >= 400:
		return shared.WrapError("sync", op, shared.ErrInvalidInput, "sync API rejected request", cause)
	}
	return shared.WrapError("sync", op, shared.ErrInvalidFormat, "unexpected sync API status", cause)
}

// doRequest runs one logical request through the rate limiter, the circuit
// breaker and the retrier. Only transport failures and 5xx responses are
// retried and counted by the breaker.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, header http.Header) (*response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	if err := c.rateLimiter.Allow(ctx); err != nil {
		return nil, err
	}

	var resp *response
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			r, err := c.doSingleRequest(ctx, method, path, payload, header)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Permanent(err)
				}
				return retry.Retryable(err)
			}
			resp = r
			if r.status >= 500 {
				return retry.Retryable(r.failure("Request"))
			}
			return nil
		})
	})

	switch {
	case err == nil:
	case circuitbreaker.IsRejected(err):
		return nil, fmt.Errorf("%w: %w", shared.ErrSyncAPIUnavailable, err)
	default:
		return nil, err
	}

	if resp.status == http.StatusTooManyRequests {
		c.rateLimiter.RecordRateLimitHit(resp.retryAfter)
		c.log.Warn("sync API rate limited",
			logger.String("path", path),
			logger.Duration("retry_after", resp.retryAfter))
	}
	return resp, nil
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, payload []byte, header http.Header) (*response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if c.config.InitData != "" {
		req.Header.Set(HeaderInitData, c.config.InitData)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrSyncAPIUnavailable, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", shared.ErrSyncAPIUnavailable, err)
	}

	c.log.Debug("sync api request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", httpResp.StatusCode),
		logger.Latency(time.Since(start)))

	r := &response{status: httpResp.StatusCode}
	if len(raw) == 0 {
		r.decodeErr = errors.New("empty response body")
	} else if err := json.Unmarshal(raw, &r.envelope); err != nil {
		r.decodeErr = err
	}
	if r.status == http.StatusTooManyRequests {
		r.retryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
	}
	return r, nil
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return time.Minute
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus reports the client's protection state.
type ClientStatus struct {
	RateLimiter RateLimiterStatus
	Breaker     circuitbreaker.State
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter: c.rateLimiter.Status(),
		Breaker:     c.breaker.State(),
	}
}
