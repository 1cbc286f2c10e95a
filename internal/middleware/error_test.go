package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/services"
)

func errorApp(handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
	app.Use(recover.New())
	app.All("/api/sm/shards/:shardId/drain", handler)
	return app
}

func decodeError(t *testing.T, app *fiber.App, method string) (int, models.ErrorResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, "/api/sm/shards/S1/drain", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestErrorHandler_FiberError(t *testing.T) {
	tests := []struct {
		name           string
		err            *fiber.Error
		expectedStatus int
		expectedCode   string
	}{
		{"bad request", fiber.NewError(fiber.StatusBadRequest, "Malformed body"), fiber.StatusBadRequest, "BAD_REQUEST"},
		{"unauthorized", fiber.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", fiber.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
		{"not found", fiber.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"method not allowed", fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"conflict", fiber.ErrConflict, fiber.StatusConflict, "CONFLICT"},
		{"unavailable", fiber.ErrServiceUnavailable, fiber.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := errorApp(func(c *fiber.Ctx) error { return tt.err })

			status, body := decodeError(t, app, "POST")
			if status != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, status)
			}
			if body.Error.Code != tt.expectedCode {
				t.Errorf("Expected code %q, got %q", tt.expectedCode, body.Error.Code)
			}
			if body.Error.Message != tt.err.Message {
				t.Errorf("Expected message %q, got %q", tt.err.Message, body.Error.Message)
			}
			if body.Error.Path != "/api/sm/shards/S1/drain" {
				t.Errorf("Expected request path, got %q", body.Error.Path)
			}
		})
	}
}

func TestErrorHandler_GenericErrorHidesMessage(t *testing.T) {
	app := errorApp(func(c *fiber.Ctx) error {
		return errors.New("kafka: leader not available")
	})

	for _, method := range []string{"GET", "POST"} {
		status, body := decodeError(t, app, method)
		if status != fiber.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", method, status)
		}
		if body.Error.Message != "Internal Server Error" {
			t.Errorf("%s: internal error leaked: %q", method, body.Error.Message)
		}
	}
}

func TestErrorHandler_PanicRecovery(t *testing.T) {
	app := errorApp(func(c *fiber.Ctx) error {
		panic("registry corrupted")
	})

	status, body := decodeError(t, app, "POST")
	if status != fiber.StatusInternalServerError {
		t.Errorf("Expected status 500 after panic, got %d", status)
	}
	if body.Error.Code != "ERROR" {
		t.Errorf("Expected code ERROR, got %q", body.Error.Code)
	}
}

func TestErrorHandler_ServiceError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"not found", services.NewServiceError(services.ErrCodeNotFound, "Shard not found"), fiber.StatusNotFound, "NOT_FOUND"},
		{"conflict", services.NewServiceError(services.ErrCodeConflict, "Shard already exists"), fiber.StatusConflict, "CONFLICT"},
		{"invalid", services.NewServiceError(services.ErrCodeInvalidRequest, "Invalid status"), fiber.StatusBadRequest, "INVALID_REQUEST"},
		{"wrapped", fmt.Errorf("issue: %w", services.NewServiceError(services.ErrCodeNotFound, "Shard not found")), fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown code", services.NewServiceError("BROKEN", "broken"), fiber.StatusInternalServerError, "BROKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := errorApp(func(c *fiber.Ctx) error { return tt.err })

			status, body := decodeError(t, app, "POST")
			if status != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, status)
			}
			if body.Error.Code != tt.expectedCode {
				t.Errorf("Expected code %q, got %q", tt.expectedCode, body.Error.Code)
			}
		})
	}
}

func TestErrorHandler_ServiceErrorDetails(t *testing.T) {
	app := errorApp(func(c *fiber.Ctx) error {
		return services.NewServiceErrorWithDetails(services.ErrCodeNotFound, "Shard not found",
			map[string]interface{}{"shard_id": c.Params("shardId")})
	})

	_, body := decodeError(t, app, "POST")
	if body.Error.Details["shard_id"] != "S1" {
		t.Errorf("Expected shard_id detail, got %v", body.Error.Details)
	}
}

func TestServiceErrorStatus(t *testing.T) {
	if got := ServiceErrorStatus(services.ErrCodeConflict); got != fiber.StatusConflict {
		t.Errorf("ServiceErrorStatus(CONFLICT) = %d", got)
	}
	if got := ServiceErrorStatus(""); got != fiber.StatusInternalServerError {
		t.Errorf("ServiceErrorStatus(\"\") = %d", got)
	}
}
