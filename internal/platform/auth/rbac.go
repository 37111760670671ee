package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles recognized by the system.
const (
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RoleAdmin        = "admin"
	RoleResident     = "resident"
)

// ValidRoles maps every accepted role value.
var ValidRoles = map[string]bool{
	RoleDoctor:       true,
	RoleNurse:        true,
	RoleReceptionist: true,
	RoleAdmin:        true,
	RoleResident:     true,
}

// RequireRole returns middleware that checks if the user has one of the
// specified roles. Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// IsClinical reports whether the role belongs to clinical staff.
func IsClinical(role string) bool {
	return role == RoleDoctor || role == RoleNurse || role == RoleResident
}
