package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIError_WrapsSentinels(t *testing.T) {
	assert.ErrorIs(t, NewAPIError("github", 401, "bad credentials"), ErrAuthFailure)
	assert.ErrorIs(t, NewAPIError("jira", 404, "no issue"), ErrNotFound)
	assert.ErrorIs(t, NewAPIError("notion", 429, "slow down"), ErrRateLimit)
	assert.NoError(t, NewAPIError("notion", 500, "boom").Unwrap())
}

func TestAPIError_Message(t *testing.T) {
	err := NewAPIError("jira", 500, "internal")
	assert.Equal(t, "jira API error (status 500): internal", err.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("gh", 503, "down")))
	assert.True(t, IsRetryable(NewAPIError("gh", 429, "limit")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.False(t, IsRetryable(NewAPIError("gh", 400, "bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestInvalidAndNotFound(t *testing.T) {
	err := Invalid("phase %q is not valid", "beta")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), `phase "beta" is not valid`)

	err = NotFound("project", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `project "p1"`)
}
