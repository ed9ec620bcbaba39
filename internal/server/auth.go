package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"chatgateway/internal/core"
)

// AuthMiddleware accepts a request when its Bearer token matches one of
// accessCodes. An empty list disables authentication. Paths in skipPaths
// are always allowed.
func AuthMiddleware(accessCodes []string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(accessCodes) == 0 {
				return next(c)
			}
			if _, ok := skip[c.Request().URL.Path]; ok {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return handleError(c, core.NewAuthenticationError("missing authorization header"))
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return handleError(c, core.NewAuthenticationError("invalid authorization header format, expected 'Bearer <token>'"))
			}

			if !validAccessCode(strings.TrimPrefix(authHeader, prefix), accessCodes) {
				return handleError(c, core.NewAuthenticationError("invalid access code"))
			}

			return next(c)
		}
	}
}

func validAccessCode(token string, accessCodes []string) bool {
	valid := false
	for _, code := range accessCodes {
		if subtle.ConstantTimeCompare([]byte(token), []byte(code)) == 1 {
			valid = true
		}
	}
	return valid
}
