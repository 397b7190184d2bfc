package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// errorMapping maps a sentinel to a response. Order matters: an upstream
// 404 wraps ErrNotFound but is reported as a bad gateway.
var errorMapping = []struct {
	err    error
	status int
	typ    string
}{
	{perrors.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
	{perrors.ErrUnknownTool, fiber.StatusNotFound, "unknown_tool"},
	{perrors.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{perrors.ErrConflict, fiber.StatusConflict, "conflict"},
	{perrors.ErrNotConfigured, fiber.StatusServiceUnavailable, "not_configured"},
	{perrors.ErrRateLimit, fiber.StatusTooManyRequests, "upstream_rate_limited"},
	{perrors.ErrAuthFailure, fiber.StatusBadGateway, "upstream_auth_failed"},
	{perrors.ErrTimeout, fiber.StatusGatewayTimeout, "timeout"},
	{perrors.ErrUnavailable, fiber.StatusBadGateway, "upstream_unavailable"},
}

// statusFor returns the HTTP status and problem type of err.
func statusFor(err error) (int, string) {
	var apiErr *perrors.APIError
	if errors.As(err, &apiErr) && !errors.Is(err, perrors.ErrRateLimit) {
		return fiber.StatusBadGateway, "upstream_error"
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.typ
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, "http_error"
	}
	return fiber.StatusInternalServerError, "internal_error"
}

// writeError renders err as a problem. Internal errors hide their detail.
func writeError(c *fiber.Ctx, err error) error {
	status, typ := statusFor(err)
	detail := err.Error()
	if status == fiber.StatusInternalServerError {
		detail = "An internal error occurred"
	}
	return problemResponse(c, status, typ, utils.StatusMessage(status), detail)
}
