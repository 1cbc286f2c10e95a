package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/services"
)

// ServiceErrorStatus maps a service error code to its HTTP status
func ServiceErrorStatus(code string) int {
	switch code {
	case services.ErrCodeNotFound:
		return fiber.StatusNotFound
	case services.ErrCodeConflict:
		return fiber.StatusConflict
	case services.ErrCodeInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func statusCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return "CONFLICT"
	default:
		return "ERROR"
	}
}

// ErrorHandler returns a custom error handler middleware. Service errors keep their
// code and details, fiber errors keep their status, anything else is a 500.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		detail := models.ErrorDetail{
			Code:    "ERROR",
			Message: "Internal Server Error",
		}

		var svcErr *services.ServiceError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &svcErr):
			code = ServiceErrorStatus(svcErr.Code)
			detail = models.ErrorDetail{
				Code:    svcErr.Code,
				Message: svcErr.Message,
				Details: svcErr.Details,
			}
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			detail = models.ErrorDetail{
				Code:    statusCode(code),
				Message: fiberErr.Message,
			}
		}
		detail.Path = c.Path()

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", code,
			"error", err,
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("Request error", fields...)
		} else {
			logger.Warn("Request rejected", fields...)
		}

		return c.Status(code).JSON(models.ErrorResponse{Error: detail})
	}
}
