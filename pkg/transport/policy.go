package transport

import (
	"context"
	"math"
	"time"

	"modeldb-client/pkg/config"
)

// Policy decides which outcomes are retried and how long to wait.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	RetryStatus []int
}

// DefaultPolicy retries 429, 503 and 504 up to five times.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		RetryStatus: []int{429, 503, 504},
	}
}

// PolicyFromConfig builds a Policy from session configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	p := Policy{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.BackoffBase,
		MaxDelay:    cfg.BackoffMax,
		RetryStatus: append([]int(nil), cfg.RetryStatus...),
	}
	if p.RetryStatus == nil {
		p.RetryStatus = DefaultPolicy().RetryStatus
	}
	return p
}

// Delay returns the wait before retry number n (0-based): BaseDelay * 2^n,
// capped at MaxDelay when MaxDelay is positive. Uncapped delays saturate at
// the largest Duration.
func (p Policy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retryable reports whether status is in RetryStatus.
func (p Policy) Retryable(status int) bool {
	for _, s := range p.RetryStatus {
		if s == status {
			return true
		}
	}
	return false
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d or ctx to be done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
