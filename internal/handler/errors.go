package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
)

// ErrorHandler renders every error returned by a handler or middleware.
// Application errors use their own status and body; echo's HTTP errors
// (unknown route, wrong method, malformed body) keep their status; anything
// else is logged and answered with a generic 500.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err, c, log)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}

func render(err error, c echo.Context, log *zap.Logger) (int, map[string]any) {
	if ae, ok := apperror.As(err); ok {
		if ae.Kind == apperror.KindInternal {
			log.Error("internal error",
				zap.String("op", ae.Message),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(ae.Cause))
		}
		return ae.Status(), ae.Body()
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			msg = s
		}
		return he.Code, map[string]any{"error": kindForStatus(he.Code), "message": msg}
	}

	log.Error("unhandled error",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path),
		zap.Error(err))
	return http.StatusInternalServerError, apperror.Internal("unhandled", err).Body()
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return string(apperror.KindValidation)
	case http.StatusUnauthorized:
		return string(apperror.KindAuthentication)
	case http.StatusForbidden:
		return string(apperror.KindAuthorization)
	case http.StatusNotFound:
		return string(apperror.KindNotFound)
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return string(apperror.KindConflict)
	case http.StatusTooManyRequests:
		return "too_many_requests"
	}
	if code >= http.StatusInternalServerError {
		return string(apperror.KindInternal)
	}
	return "error"
}
