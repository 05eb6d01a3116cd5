package completion

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	minJitter = 50 * time.Millisecond
	maxJitter = 250 * time.Millisecond
)

// RetryPolicy implements capped attempts with exponential backoff and a Retry-After floor.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryPolicy builds a policy; non-positive values fall back to 3 attempts and 1s.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return RetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts reports the attempt ceiling.
func (p RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether another attempt is allowed after the given one (1-based).
func (p RetryPolicy) ShouldRetry(status int, err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return retryableStatus(status)
}

// Backoff returns base*2^(attempt-1) plus jitter, raised to retryAfter when that is larger.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.baseDelay)*math.Pow(2, float64(attempt-1))) + jitter()
	if retryAfter > delay {
		return retryAfter
	}
	return delay
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ParseRetryAfter reads delta-seconds or an HTTP-date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}

func jitter() time.Duration {
	span := int64(maxJitter - minJitter)
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return (minJitter + maxJitter) / 2
	}
	return minJitter + time.Duration(n.Int64())
}
