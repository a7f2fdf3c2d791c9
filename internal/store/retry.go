package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
)

// Classifier decides whether a store error is worth another attempt.
type Classifier func(error) bool

// Policy retries transient store failures with exponential backoff and
// jitter. Non-transient errors propagate immediately; exhausting attempts
// surfaces the last transient error as a store-unavailable condition.
type Policy struct {
	MaxAttempts uint64
	Base        time.Duration
	Jitter      time.Duration
	IsTransient Classifier
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        100 * time.Millisecond,
		Jitter:      50 * time.Millisecond,
		IsTransient: Transient,
	}
}

func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	var backoff retry.Backoff = retry.NewExponential(p.Base)
	if p.Jitter > 0 {
		backoff = retry.WithJitter(p.Jitter, backoff)
	}
	backoff = retry.WithMaxRetries(p.MaxAttempts-1, backoff)

	var lastTransient error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			if p.IsTransient(err) {
				lastTransient = err
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if lastTransient != nil && errors.Is(err, lastTransient) {
		return errs.Unavailable(lastTransient)
	}
	return err
}

// Transient classifies connection-level failures: net timeouts, resets,
// bad connections, and postgres class 08 (connection exception). Constraint
// violations and business-rule rejections are never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errs.KindOf(err) != "" {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08xxx connection exception, 57P01 admin shutdown, 40001 serialization failure
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "40001"
	}
	return false
}
