package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return perrors.NewAPIError("notion", 401, "unauthorized")
	})
	assert.ErrorIs(t, err, perrors.ErrAuthFailure)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryableError_EventualSuccess(t *testing.T) {
	calls := 0
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return perrors.NewAPIError("jira", 502, "bad gateway")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_RetryableError_AllFail(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return perrors.NewAPIError("anthropic", 429, "rate limit")
	})
	assert.ErrorIs(t, err, perrors.ErrRateLimit)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_GenericNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return errors.New("generic error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, backoff(cfg, 0))
	assert.Equal(t, 2*time.Second, backoff(cfg, 1))
	assert.Equal(t, 3*time.Second, backoff(cfg, 5))
}
