// Package health provides liveness and readiness probes for buffr.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Checker manages health checks for all dependencies.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	last    map[string]Status
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		last:    make(map[string]Status),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// PingCheck adapts an error-returning ping into a CheckFunc: any error is down.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// ConfiguredCheck reports degraded for an optional integration that has no credentials.
func ConfiguredCheck(configured func() bool) CheckFunc {
	return func(context.Context) Status {
		if configured() {
			return StatusOK
		}
		return StatusDegraded
	}
}

// RunAll executes all health checks concurrently and caches results.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			s := f(checkCtx)
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	c.mu.Lock()
	for name, s := range results {
		if prev, ok := c.last[name]; ok && prev != s {
			c.logger.Info().Str("check", name).Str("from", string(prev)).Str("to", string(s)).Msg("health changed")
		}
	}
	c.last = results
	c.mu.Unlock()

	return results
}

// Last returns the results of the most recent run.
func (c *Checker) Last() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}

// IsReady returns true if no check is down.
func (c *Checker) IsReady(ctx context.Context) bool {
	return ready(c.RunAll(ctx))
}

func ready(results map[string]Status) bool {
	for _, s := range results {
		if s == StatusDown {
			return false
		}
	}
	return true
}

// LivenessHandler serves /healthz.
func LivenessHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// ReadinessHandler serves /readyz.
func (c *Checker) ReadinessHandler() fiber.Handler {
	return func(fc *fiber.Ctx) error {
		results := c.RunAll(fc.UserContext())
		if ready(results) {
			return fc.JSON(fiber.Map{"status": "ready", "checks": results})
		}
		return fc.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready", "checks": results})
	}
}
