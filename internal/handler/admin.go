package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
)

// AdminHandler serves user, role, permission and audit log management.
type AdminHandler struct {
	Users *service.UserService
	Roles *service.RoleService
	Perms *repository.PermissionRepo
	Audit *repository.AuditRepo
}

func NewAdminHandler(users *service.UserService, roles *service.RoleService, db *repository.Set) *AdminHandler {
	return &AdminHandler{Users: users, Roles: roles, Perms: db.Permissions, Audit: db.Audit}
}

// ----- DTOs -----

type createUserReq struct {
	Email      string   `json:"email" validate:"required,email"`
	FullName   string   `json:"full_name" validate:"required,max=255"`
	Password   string   `json:"password" validate:"omitempty,min=8,max=72"`
	ExternalID string   `json:"external_id" validate:"max=191"`
	RoleIDs    []uint64 `json:"role_ids" validate:"max=20"`
}

type updateUserReq struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=255"`
}

type roleRefReq struct {
	RoleID uint64 `json:"role_id" validate:"required"`
}

type roleReq struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type permissionReq struct {
	Action  string `json:"action" validate:"required"`
	Subject string `json:"subject" validate:"required"`
}

// ----- users -----

func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return err
	}
	status := model.UserStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))
	switch status {
	case "", model.UserActive, model.UserInactive, model.UserDeactivated:
	default:
		return apperror.Field("status", "must be one of: ACTIVE INACTIVE DEACTIVATED")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Users.List(ctx, repository.UserFilter{
		Status:         status,
		Query:          strings.TrimSpace(c.QueryParam("q")),
		IncludeDeleted: c.QueryParam("include_deleted") == "true",
		Page:           page,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AdminHandler) GetUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Create(ctx, service.NewUser{
		Email:      req.Email,
		FullName:   req.FullName,
		Password:   req.Password,
		ExternalID: req.ExternalID,
		RoleIDs:    req.RoleIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *AdminHandler) UpdateUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.UpdateProfile(ctx, id, req.Email, req.FullName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ActivateUser(c echo.Context) error {
	return h.setStatus(c, model.UserActive)
}

func (h *AdminHandler) DeactivateUser(c echo.Context) error {
	return h.setStatus(c, model.UserDeactivated)
}

func (h *AdminHandler) setStatus(c echo.Context, status model.UserStatus) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if p := model.PrincipalFrom(ctx); p != nil && p.UserID == id && status != model.UserActive {
		return apperror.Validation("you cannot deactivate your own account", nil)
	}
	u, err := h.Users.SetStatus(ctx, id, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) AssignRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleRefReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.AssignRole(ctx, id, req.RoleID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) RemoveRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleRefReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.RemoveRole(ctx, id, req.RoleID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) UserPermissions(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	perms, err := h.Users.Permissions(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(perms))
}

// ----- roles -----

func (h *AdminHandler) ListRoles(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Roles.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AdminHandler) GetRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Roles.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *AdminHandler) CreateRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Roles.Create(ctx, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *AdminHandler) UpdateRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Roles.Update(ctx, id, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *AdminHandler) DeleteRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Roles.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) AssignPermission(c echo.Context) error {
	return h.changePermission(c, true)
}

func (h *AdminHandler) RevokePermission(c echo.Context) error {
	return h.changePermission(c, false)
}

func (h *AdminHandler) changePermission(c echo.Context, grant bool) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req permissionReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	var detail *service.RoleDetail
	if grant {
		detail, err = h.Roles.AssignPermission(ctx, id, req.Action, req.Subject)
	} else {
		detail, err = h.Roles.RevokePermission(ctx, id, req.Action, req.Subject)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// ListPermissions returns the catalog.
func (h *AdminHandler) ListPermissions(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Perms.List(ctx)
	if err != nil {
		return apperror.Internal("list permissions", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// ----- audit log -----

func (h *AdminHandler) ListAuditLogs(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return err
	}
	actor, err := queryUint(c, "actor_id")
	if err != nil {
		return err
	}
	f := repository.AuditFilter{
		EntityType: strings.TrimSpace(c.QueryParam("entity_type")),
		EntityID:   strings.TrimSpace(c.QueryParam("entity_id")),
		Page:       page,
	}
	if actor != 0 {
		f.ActorID = &actor
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Audit.List(ctx, f)
	if err != nil {
		return apperror.Internal("list audit logs", err)
	}
	return c.JSON(http.StatusOK, items(list))
}
