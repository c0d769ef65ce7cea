package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware verifies Firebase bearer tokens and resolves the caller's
// admin capability once, here at the boundary. Handlers and usecases receive
// it as a plain bool and never re-derive roles.
type AuthMiddleware struct {
	authClient *auth.Client
	isAdmin    func(uid string) bool
}

func NewAuthMiddleware(authClient *auth.Client, isAdmin func(uid string) bool) *AuthMiddleware {
	return &AuthMiddleware{
		authClient: authClient,
		isAdmin:    isAdmin,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		token, err := m.authClient.VerifyIDToken(c.Request().Context(), parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set("uid", token.UID)
		c.Set("is_admin", m.isAdmin(token.UID))

		return next(c)
	}
}

// VerifyToken supports the websocket route, where the token arrives as a
// query parameter instead of a header.
func (m *AuthMiddleware) VerifyToken(c echo.Context, token string) (string, bool, error) {
	decoded, err := m.authClient.VerifyIDToken(c.Request().Context(), token)
	if err != nil {
		return "", false, err
	}
	return decoded.UID, m.isAdmin(decoded.UID), nil
}
