package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/middleware"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/service"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	Cfg  config.Config
	Auth *service.AuthService
}

func NewAuthHandler(cfg config.Config, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: auth}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResp struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type bootstrapReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=255"`
}

// Login checks credentials and sets the auth-token cookie. The token is
// also returned in the body for clients using the Authorization header.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	c.SetCookie(h.sessionCookie(sess.Token.Token, h.Cfg.SessionTTL))
	return c.JSON(http.StatusOK, loginResp{User: sess.User, Token: sess.Token.Token, ExpiresAt: sess.Token.Exp})
}

// Logout clears the cookie. It needs no session and always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(h.sessionCookie("", -1))
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account and effective permissions.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	prof, err := h.Auth.Me(ctx, model.PrincipalFrom(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prof)
}

// ForgotPassword answers the same way whether or not the email is known.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	h.Auth.RequestPasswordReset(ctx, req.Email)
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "if the address belongs to an account, a reset link has been sent",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Bootstrap creates the first administrator. It is disabled when
// ADMIN_SECRET_KEY is unset.
func (h *AuthHandler) Bootstrap(c echo.Context) error {
	if h.Cfg.AdminSecretKey == "" {
		return echo.ErrNotFound
	}
	given := c.Request().Header.Get("X-Admin-Secret")
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.Cfg.AdminSecretKey)) != 1 {
		return apperror.Unauthenticated("invalid admin secret")
	}
	var req bootstrapReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.Bootstrap(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *AuthHandler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}
