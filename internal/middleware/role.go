package middleware

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/rbac"
)

// PermissionChecker answers whether a user holds (action, subject).
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uint64, action rbac.Action, subject rbac.Subject) (bool, error)
}

// RequireSession rejects requests without a principal with 401.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if model.PrincipalFrom(c.Request().Context()) == nil {
				return apperror.Unauthenticated("")
			}
			return next(c)
		}
	}
}

// RequirePermission is the route guard. Without a principal, or with one whose
// account is no longer active, the request is answered 401; without the (action, subject) permission it is answered 403
// naming the required pair. The inner handler runs only when both checks
// pass, and its result is returned unchanged.
func RequirePermission(checker PermissionChecker, action rbac.Action, subject rbac.Subject) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			p := model.PrincipalFrom(ctx)
			if p == nil {
				return apperror.Unauthenticated("")
			}
			ok, err := checker.HasPermission(ctx, p.UserID, action, subject)
			if errors.Is(err, rbac.ErrInactiveAccount) {
				return apperror.Unauthenticated("")
			}
			if err != nil {
				return apperror.Internal("resolve permissions", err)
			}
			if !ok {
				return apperror.Forbidden(string(action), string(subject))
			}
			return next(c)
		}
	}
}
