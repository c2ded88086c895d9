package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/model"
)

// CookieName is the session cookie set by /auth/login.
const CookieName = "auth-token"

// SessionDecoder turns a raw session token into a principal, or nil when the
// token is missing, malformed, forged or expired.
type SessionDecoder interface {
	CurrentUser(raw string) *model.Principal
}

// Session decodes the auth-token cookie, falling back to an
// "Authorization: Bearer" header, and stores the principal in the request
// context. It never rejects a request: routes that need a principal are
// wrapped with RequireSession or RequirePermission.
func Session(dec SessionDecoder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p := dec.CurrentUser(rawToken(c)); p != nil {
				req := c.Request()
				c.SetRequest(req.WithContext(model.WithPrincipal(req.Context(), p)))
			}
			return next(c)
		}
	}
}

func rawToken(c echo.Context) string {
	if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
