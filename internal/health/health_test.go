package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h fiber.Handler) (int, string) {
	t.Helper()
	app := fiber.New()
	app.Get("/probe", h)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/probe", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestLivenessHandler(t *testing.T) {
	code, body := probe(t, LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ok")
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("cache", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Len(t, c.Last(), 2)
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("cache", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("notion", ConfiguredCheck(func() bool { return false }))

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusDegraded, results["notion"])
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil })
	down := PingCheck(func(context.Context) error { return errors.New("closed") })
	assert.Equal(t, StatusOK, ok(context.Background()))
	assert.Equal(t, StatusDown, down(context.Background()))
}

func TestReadinessHandler_Healthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("svc", func(ctx context.Context) Status { return StatusOK })

	code, body := probe(t, c.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ready"`)
}

func TestReadinessHandler_NotReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("svc", func(ctx context.Context) Status { return StatusDown })

	code, body := probe(t, c.ReadinessHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "not_ready")
}
