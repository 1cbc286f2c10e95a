package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
)

// Trusted headers set by the fronting gateway
const (
	UserHeader  = "X-User"
	RolesHeader = "X-Roles"
)

// Roles understood by the admin API
const (
	RoleOperator = "sm-operator"
	RoleAdmin    = "sm-admin"
)

const principalKey = "principal"

// Principal is the caller identity taken from the trusted headers
type Principal struct {
	Name  string
	Roles []string
}

// HasRole reports whether the principal holds role, compared case-insensitively
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// PrincipalFromHeaders builds a Principal from X-User and the comma separated X-Roles.
// Requests without a non-blank X-User stay anonymous.
func PrincipalFromHeaders(logger *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := strings.TrimSpace(c.Get(UserHeader))
		if user == "" {
			return c.Next()
		}

		var roles []string
		for _, role := range strings.Split(c.Get(RolesHeader), ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}

		c.Locals(principalKey, Principal{Name: user, Roles: roles})
		c.SetUserContext(logging.WithActor(c.UserContext(), user))

		logger.Debug("Created principal", "user", user, "roles", roles)
		return c.Next()
	}
}

// PrincipalFrom returns the request principal, if any
func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalKey).(Principal)
	return p, ok
}

// RequireRoles admits principals holding any of roles. Anonymous requests get 401,
// principals without a matching role get 403.
func RequireRoles(logger *logging.Logger, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			logger.Warn("Unauthenticated request",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "UNAUTHORIZED",
					Message: "Authentication is required. Provide the X-User header.",
				},
			})
		}

		for _, role := range roles {
			if p.HasRole(role) {
				return c.Next()
			}
		}

		logger.Warn("Principal lacks required role",
			"path", c.Path(),
			"method", c.Method(),
			"user", p.Name,
			"required", roles,
		)
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "FORBIDDEN",
				Message: "Missing required role.",
				Details: map[string]interface{}{"required_roles": roles},
			},
		})
	}
}

// RequireOperator admits operators and admins
func RequireOperator(logger *logging.Logger) fiber.Handler {
	return RequireRoles(logger, RoleOperator, RoleAdmin)
}

// RequireAdmin admits admins only
func RequireAdmin(logger *logging.Logger) fiber.Handler {
	return RequireRoles(logger, RoleAdmin)
}
