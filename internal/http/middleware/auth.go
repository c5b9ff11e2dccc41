package middleware

import (
	"net/http"
	"strings"

	"wainbox/internal/auth"

	"github.com/labstack/echo/v4"
)

const principalKey = "principal"

// JWTAuth middleware resolves the bearer token into a principal
func JWTAuth(authService *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get token from Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			// Check if header starts with "Bearer "
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			principal, err := authService.ResolvePrincipal(c.Request().Context(), tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			SetPrincipal(c, principal)
			return next(c)
		}
	}
}

// RequireAdmin middleware ensures the principal holds the admin role
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal := GetPrincipal(c)
			if principal == nil {
				return echo.NewHTTPError(http.StatusForbidden, "User role not found")
			}
			if !principal.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "Admin only")
			}
			return next(c)
		}
	}
}

// SetPrincipal stores the principal on the request context
func SetPrincipal(c echo.Context, principal *auth.Principal) {
	c.Set(principalKey, principal)
	c.Set("user_id", principal.ID)
	c.Set("user_role", principal.Role)
}

// GetPrincipal returns the principal resolved by JWTAuth, or nil
func GetPrincipal(c echo.Context) *auth.Principal {
	principal, _ := c.Get(principalKey).(*auth.Principal)
	return principal
}
