package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware authenticates requests with a bearer session token and enforces
// the rolling session window. Expired sessions get a distinct error code so
// clients can show the "session expired" message instead of a generic 401.
func Middleware(issuer *TokenIssuer, store SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			sid, _, err := issuer.Parse(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			session, err := store.Validate(c.Request().Context(), sid)
			if err != nil {
				if errors.Is(err, ErrSessionExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "session_expired")
				}
				// Fail closed: any error resolving the signed-in profile
				// is treated as logged out.
				return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), session)))
			return next(c)
		}
	}
}
