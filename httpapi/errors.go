package httpapi

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/xraph/starpay"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorBody{Error: code, Message: message})
}

func badQuery(key string, err error) error {
	msg := fmt.Sprintf("invalid %s", key)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case starpay.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, starpay.ErrInvalidInput):
		return fiber.StatusBadRequest
	case starpay.IsRetryable(err), errors.Is(err, starpay.ErrStoreClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func codeOf(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "invalid_input"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// handleError renders errors returned by handlers. Internal errors are
// logged in full and reported to the client without detail.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		s.logger.Error().Err(err).
			Str("path", c.Path()).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("request failed")
		msg = "internal error"
	}
	return writeError(c, status, codeOf(status), msg)
}
