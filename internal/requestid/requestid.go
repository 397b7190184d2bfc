// Package requestid provides request ID propagation via context and a Fiber middleware.
package requestid

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request ID.
const Header = "X-Request-ID"

// LocalsKey is the fiber.Ctx locals key holding the request ID.
const LocalsKey = "request_id"

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// Middleware reuses an inbound X-Request-ID (or mints one), echoes it on the
// response and stores it in both the fiber locals and the user context.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(Header, id)
		c.Locals(LocalsKey, id)
		c.SetUserContext(WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}
