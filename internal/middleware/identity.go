package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/model"
)

// userID returns the principal's id as a string, or "anon" when the request
// carries no session.
func userID(c echo.Context) string {
	if p := model.PrincipalFrom(c.Request().Context()); p != nil {
		return strconv.FormatUint(p.UserID, 10)
	}
	return "anon"
}
