package http

import (
	"strings"

	"chessbot/internal/core"

	"github.com/gofiber/fiber/v2"
)

// clientKey identifies the caller for rate limiting. X-Forwarded-For wins
// over the remote address.
func clientKey(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP from the chain
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return c.IP()
}

// contentTypeValidator rejects POST bodies that are not JSON
func contentTypeValidator(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.CodeInvalidRequest,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.CodeInternalError,
	}

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			response.Code = core.CodeNotFound
		case fiber.StatusBadRequest:
			response.Code = core.CodeInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.CodeRateLimited
		}
	}

	return c.Status(code).JSON(response)
}
