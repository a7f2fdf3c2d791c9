package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        10 * time.Millisecond,
		Jitter:      0,
		IsTransient: Transient,
	}
}

func TestRetryTransientThenSucceed(t *testing.T) {
	var stamps []time.Time
	err := testPolicy().Do(context.Background(), func(context.Context) error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	// Base delay doubles per attempt.
	gap1 := stamps[1].Sub(stamps[0])
	gap2 := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, gap1, 10*time.Millisecond)
	assert.Greater(t, gap2, gap1)
}

func TestRetryNonTransientPropagatesImmediately(t *testing.T) {
	calls := 0
	want := errs.Validation("bad input")
	err := testPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRetryExhaustionSurfacesUnavailable(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return syscall.ECONNRESET
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.KindUnavailable, errs.KindOf(err))
	assert.ErrorIs(t, err, syscall.ECONNRESET)
}

func TestTransientClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"bad conn", driver.ErrBadConn, true},
		{"deadline", context.DeadlineExceeded, true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"business rule", errs.BusinessRule("duplicate", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Transient(tc.err))
		})
	}
}
