package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrincipalApp() *fiber.App {
	logger := logging.NewNop()
	app := fiber.New()
	app.Use(PrincipalFromHeaders(logger))
	app.Get("/read", RequireOperator(logger), func(c *fiber.Ctx) error {
		return c.SendString(logging.ActorFromContext(c.UserContext()))
	})
	app.Post("/write", RequireAdmin(logger), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app
}

func TestPrincipalFromHeaders_Parsing(t *testing.T) {
	app := fiber.New()
	app.Use(PrincipalFromHeaders(logging.NewNop()))

	var got Principal
	var found bool
	app.Get("/", func(c *fiber.Ctx) error {
		got, found = PrincipalFrom(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "alice")
	req.Header.Set(RolesHeader, " sm-operator, ,SM-ADMIN ,")
	_, err := app.Test(req)
	require.NoError(t, err)

	require.True(t, found)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, []string{"sm-operator", "SM-ADMIN"}, got.Roles)
	assert.True(t, got.HasRole(RoleAdmin))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "   ")
	_, err = app.Test(req)
	require.NoError(t, err)
	assert.False(t, found, "blank user stays anonymous")
}

func TestRequireRoles(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		roles      string
		wantStatus int
		wantCode   string
	}{
		{"anonymous read", "GET", "/read", "", "", fiber.StatusUnauthorized, "UNAUTHORIZED"},
		{"operator read", "GET", "/read", "bob", "sm-operator", fiber.StatusOK, ""},
		{"admin read", "GET", "/read", "carol", "sm-admin", fiber.StatusOK, ""},
		{"viewer read", "GET", "/read", "dave", "viewer", fiber.StatusForbidden, "FORBIDDEN"},
		{"no roles read", "GET", "/read", "erin", "", fiber.StatusForbidden, "FORBIDDEN"},
		{"operator write", "POST", "/write", "bob", "sm-operator", fiber.StatusForbidden, "FORBIDDEN"},
		{"admin write", "POST", "/write", "carol", "sm-operator,sm-admin", fiber.StatusAccepted, ""},
		{"anonymous write", "POST", "/write", "", "sm-admin", fiber.StatusUnauthorized, "UNAUTHORIZED"},
	}

	app := newPrincipalApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.user != "" {
				req.Header.Set(UserHeader, tt.user)
			}
			if tt.roles != "" {
				req.Header.Set(RolesHeader, tt.roles)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				var errResp models.ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
				assert.Equal(t, tt.wantCode, errResp.Error.Code)
			}
		})
	}
}

func TestRequireRoles_ActorReachesHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/read", nil)
	req.Header.Set(UserHeader, "bob")
	req.Header.Set(RolesHeader, "sm-operator")

	resp, err := newPrincipalApp().Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(body))
}
