package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/metrics"
)

const maxErrorBodyLen = 256

var errAttemptTimeout = errors.New("per-call timeout exceeded")

// HTTPClientConfig holds configuration for HTTP clients
type HTTPClientConfig struct {
	MinInterval  time.Duration // minimum spacing between consecutive outbound calls
	Timeout      time.Duration // per attempt
	Retry        RetryPolicy
	MaxBodyBytes int64
}

// DefaultHTTPClientConfig returns the provider limits: 600ms spacing, 10s timeout, 3 attempts
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MinInterval:  600 * time.Millisecond,
		Timeout:      10 * time.Second,
		Retry:        DefaultRetryPolicy(),
		MaxBodyBytes: 4 << 20,
	}
}

// HTTPClientConfigFromConfig builds client settings from fetcher configuration
func HTTPClientConfigFromConfig(cfg config.FetcherConfig) HTTPClientConfig {
	out := DefaultHTTPClientConfig()
	out.MinInterval = cfg.MinInterval
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	out.Retry = RetryPolicyFromConfig(cfg)
	return out
}

// Request is one outbound provider call
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Sensitive values are masked wherever the URL is logged or returned in an error
	Sensitive []string
}

// Response is a fully read provider response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v
func (r *Response) DecodeJSON(v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	return dec.Decode(v)
}

// Fetcher executes provider calls. RateLimitedHTTPClient is the production implementation.
type Fetcher interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Option configures a RateLimitedHTTPClient
type Option func(*RateLimitedHTTPClient)

// WithClock replaces the wall clock used for pacing and backoff
func WithClock(c clock.Clock) Option {
	return func(rc *RateLimitedHTTPClient) {
		rc.clock = c
	}
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(rc *RateLimitedHTTPClient) {
		rc.base = rt
	}
}

// RateLimitedHTTPClient wraps retryablehttp.Client with call pacing and per-attempt timeouts.
// Every attempt, retries included, waits for the limiter, so consecutive calls are at least
// MinInterval apart.
type RateLimitedHTTPClient struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	clock   clock.Clock
	base    http.RoundTripper
	cfg     HTTPClientConfig
	logger  *logrus.Entry

	mu       sync.Mutex
	lastCall time.Time // scheduled start of the most recent attempt
}

// NewRateLimitedHTTPClient creates a new rate-limited HTTP client
func NewRateLimitedHTTPClient(cfg HTTPClientConfig, log *logrus.Logger, opts ...Option) *RateLimitedHTTPClient {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultHTTPClientConfig().MaxBodyBytes
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	retryClient := retryablehttp.NewClient()
	c := &RateLimitedHTTPClient{
		client:  retryClient,
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock.Real{},
		base:    retryClient.HTTPClient.Transport,
		cfg:     cfg,
		logger:  logger.Component(log, "fetcher"),
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient.HTTPClient.Transport = &pacedTransport{client: c}
	retryClient.RetryMax = cfg.Retry.retries()
	retryClient.Backoff = noWait
	retryClient.CheckRetry = retryOnNetworkError
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = leveledLogger{entry: c.logger}

	return c
}

// Execute performs req, retrying timeouts and network failures per the retry policy.
// 4xx and 5xx responses are returned immediately as a FetchError of kind KindHTTPStatus.
func (c *RateLimitedHTTPClient) Execute(ctx context.Context, r Request) (*Response, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url: %w", err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	display := redactURL(u, r.Sensitive...)

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body interface{}
	if len(r.Body) > 0 {
		body = r.Body
	}

	ctx = context.WithValue(ctx, attemptKey{}, &attemptState{})
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.fail(ctx, u, display, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, c.fail(ctx, u, display, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		fe := &FetchError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			URL:        display,
			Body:       truncate(string(data), maxErrorBodyLen),
		}
		metrics.RecordFetchFailure(u.Host, string(fe.Kind))
		c.logger.WithFields(logrus.Fields{
			"url":         fe.URL,
			"status_code": resp.StatusCode,
		}).Warn("Provider returned error status")
		return nil, fe
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Close closes any resources held by the client
func (c *RateLimitedHTTPClient) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *RateLimitedHTTPClient) fail(ctx context.Context, u *url.URL, display string, err error) *FetchError {
	kind := classifyTransportError(ctx, err)
	// url.Error repeats the full URL, query string included
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	fe := &FetchError{
		Kind: kind,
		URL:  display,
		Err:  err,
	}
	metrics.RecordFetchFailure(u.Host, string(fe.Kind))
	c.logger.WithFields(logrus.Fields{
		"url":  fe.URL,
		"kind": fe.Kind,
	}).WithError(err).Warn("Provider call failed")
	return fe
}

func classifyTransportError(ctx context.Context, err error) FetchErrorKind {
	if errors.Is(err, errAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetworkUnavailable
}

// retryOnNetworkError retries failed round trips only; any response, whatever its status, is final
func retryOnNetworkError(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

type attemptKey struct{}

type attemptState struct {
	attempts int
}

// pacedTransport waits out backoff and the call interval on the client's clock before each attempt
type pacedTransport struct {
	client *RateLimitedHTTPClient
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client
	ctx := req.Context()

	if st, ok := ctx.Value(attemptKey{}).(*attemptState); ok {
		if st.attempts > 0 {
			if err := c.clock.Sleep(ctx, c.cfg.Retry.Delay(st.attempts-1)); err != nil {
				return nil, err
			}
		}
		st.attempts++
	}

	reservation, delay := c.reserve()
	if err := c.clock.Sleep(ctx, delay); err != nil {
		reservation.CancelAt(c.clock.Now())
		return nil, err
	}

	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if c.cfg.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}

	start := time.Now()
	resp, err := c.base.RoundTrip(req.WithContext(attemptCtx))
	metrics.RecordFetchAttempt(req.URL.Host, time.Since(start).Seconds())
	if err != nil {
		timedOut := ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if timedOut {
			return nil, fmt.Errorf("%w after %s: %v", errAttemptTimeout, c.cfg.Timeout, err)
		}
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// reserve books the next call slot. The limiter's delay is rounded in floating point and can
// fall a nanosecond short, so it is clamped to lastCall+MinInterval.
func (c *RateLimitedHTTPClient) reserve() (*rate.Reservation, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	reservation := c.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if c.cfg.MinInterval > 0 && !c.lastCall.IsZero() {
		if gap := c.lastCall.Add(c.cfg.MinInterval).Sub(now); gap > delay {
			delay = gap
		}
	}
	if delay < 0 {
		delay = 0
	}
	c.lastCall = now.Add(delay)
	return reservation, delay
}

// cancelOnClose releases the attempt context once the body is consumed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Info(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		switch v := keysAndValues[i+1].(type) {
		case *url.URL:
			// path segments may carry a key, so only the host is logged
			fields["host"] = v.Host
		default:
			fields[key] = v
		}
	}
	return l.entry.WithFields(fields)
}

// redactURL drops the query string, which may carry an API key, and masks sensitive values
func redactURL(u *url.URL, sensitive ...string) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	out := clean.String()
	for _, s := range sensitive {
		if s != "" {
			out = strings.ReplaceAll(out, url.PathEscape(s), "***")
			out = strings.ReplaceAll(out, s, "***")
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
