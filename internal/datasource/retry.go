package datasource

import (
	"math"
	"net/http"
	"time"

	"github.com/yourusername/racing-value/internal/config"
)

// BackoffStrategy selects how the wait between attempts grows
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy is the single retry abstraction shared by every outbound call.
// Only timeouts and network failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    BackoffStrategy
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 500ms to 5s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffExponential,
		BackoffMin:  500 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// RetryPolicyFromConfig builds a policy from fetcher configuration
func RetryPolicyFromConfig(cfg config.FetcherConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Strategy:    BackoffStrategy(cfg.Backoff),
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
	}
}

// Delay returns the wait before retry number retry (0 for the first retry)
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 0 || p.BackoffMin <= 0 {
		return 0
	}
	if p.Strategy == BackoffFixed {
		return p.BackoffMin
	}

	wait := float64(p.BackoffMin) * math.Pow(2, float64(retry))
	if p.BackoffMax > 0 && wait > float64(p.BackoffMax) {
		return p.BackoffMax
	}
	if wait > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(wait)
}

// retries returns the retry budget in retryablehttp terms
func (p RetryPolicy) retries() int {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return p.MaxAttempts - 1
}

// noWait is handed to retryablehttp; the paced transport sleeps on the injected clock instead
func noWait(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return 0
}
