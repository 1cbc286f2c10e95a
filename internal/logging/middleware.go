package logging

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header names propagated by the HTTP middleware
const (
	CorrelationIDHeader = "X-Correlation-Id"
	RequestIDHeader     = "X-Request-ID"
)

// FiberMiddleware logs every request and seeds the request context with a logger,
// a request ID and a correlation ID. A non-blank inbound X-Correlation-Id is kept,
// otherwise a 32 hex character one is generated. Both ids are echoed back.
func FiberMiddleware(logger *Logger, skipPaths ...string) fiber.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDHeader, requestID)

		correlationID := strings.TrimSpace(c.Get(CorrelationIDHeader))
		if correlationID == "" {
			correlationID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		c.Set(CorrelationIDHeader, correlationID)

		ctx := c.UserContext()
		ctx = WithRequestID(ctx, requestID)
		ctx = WithCorrelationID(ctx, correlationID)
		ctx = WithLogger(ctx, logger)
		c.SetUserContext(ctx)

		err := c.Next()

		if skip[c.Path()] {
			return err
		}

		statusCode := c.Response().StatusCode()
		fields := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
			"correlation_id", correlationID,
		}

		if err != nil {
			fields = append(fields, "error", err)
			logger.Error("Request failed", fields...)
			return err
		}

		switch {
		case statusCode >= 500:
			logger.Error("Server error", fields...)
		case statusCode >= 400:
			logger.Warn("Client error", fields...)
		default:
			logger.Info("Request completed", fields...)
		}

		return nil
	}
}
