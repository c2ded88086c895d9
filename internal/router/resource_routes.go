package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/handler"
	"github.com/iliyamo/school-admin/internal/rbac"
)

const (
	scopeProfile  = "school_profile"
	scopeYears    = "academic_years"
	scopeClasses  = "class_levels"
	scopeSections = "sections"
	scopeSubjects = "subjects"
)

func (r *routes) academics(api *echo.Group, h *handler.AcademicsHandler) {
	const (
		C = rbac.ActionCreate
		U = rbac.ActionUpdate
		D = rbac.ActionDelete
	)

	// ---- School profile ----
	api.GET("/school-profile", h.GetProfile, r.read(rbac.SubjectSchoolProfile, scopeProfile)...)
	api.PUT("/school-profile", h.UpdateProfile, r.write(U, rbac.SubjectSchoolProfile, scopeProfile)...)

	// ---- Academic years ----
	g := api.Group("/academics")
	g.GET("/years", h.ListYears, r.read(rbac.SubjectAcademicYear, scopeYears)...)
	g.POST("/years", h.CreateYear, r.write(C, rbac.SubjectAcademicYear, scopeYears)...)
	g.GET("/years/:id", h.GetYear, r.read(rbac.SubjectAcademicYear, scopeYears)...)
	g.PUT("/years/:id", h.UpdateYear, r.write(U, rbac.SubjectAcademicYear, scopeYears)...)
	g.DELETE("/years/:id", h.DeleteYear, r.write(D, rbac.SubjectAcademicYear, scopeYears)...)
	g.POST("/years/:id/activate", h.ActivateYear, r.write(U, rbac.SubjectAcademicYear, scopeYears)...)

	// ---- Class levels ----
	g.GET("/classes", h.ListClasses, r.read(rbac.SubjectClassLevel, scopeClasses)...)
	g.POST("/classes", h.CreateClass, r.write(C, rbac.SubjectClassLevel, scopeClasses)...)
	g.GET("/classes/:id", h.GetClass, r.read(rbac.SubjectClassLevel, scopeClasses)...)
	g.PUT("/classes/:id", h.UpdateClass, r.write(U, rbac.SubjectClassLevel, scopeClasses)...)
	g.DELETE("/classes/:id", h.DeleteClass, r.write(D, rbac.SubjectClassLevel, scopeClasses)...)

	// ---- Sections ----
	// section detail carries a live enrollment count, so it is not cached
	g.GET("/sections", h.ListSections, r.read(rbac.SubjectSection, scopeSections)...)
	g.POST("/sections", h.CreateSection, r.write(C, rbac.SubjectSection, scopeSections)...)
	g.GET("/sections/:id", h.GetSection, r.read(rbac.SubjectSection, "")...)
	g.PUT("/sections/:id", h.UpdateSection, r.write(U, rbac.SubjectSection, scopeSections)...)
	g.DELETE("/sections/:id", h.DeleteSection, r.write(D, rbac.SubjectSection, scopeSections)...)

	// ---- Subjects ----
	g.GET("/subjects", h.ListSubjects, r.read(rbac.SubjectSubject, scopeSubjects)...)
	g.POST("/subjects", h.CreateSubject, r.write(C, rbac.SubjectSubject, scopeSubjects)...)
	g.GET("/subjects/:id", h.GetSubject, r.read(rbac.SubjectSubject, scopeSubjects)...)
	g.PUT("/subjects/:id", h.UpdateSubject, r.write(U, rbac.SubjectSubject, scopeSubjects)...)
	g.DELETE("/subjects/:id", h.DeleteSubject, r.write(D, rbac.SubjectSubject, scopeSubjects)...)
}

func (r *routes) people(api *echo.Group, h *handler.PeopleHandler) {
	crud(api, r, "/staff", rbac.SubjectStaff, h.ListStaff, h.CreateStaff, h.GetStaff, h.UpdateStaff, h.DeleteStaff)
	crud(api, r, "/students", rbac.SubjectStudent, h.ListStudents, h.CreateStudent, h.GetStudent, h.UpdateStudent, h.DeleteStudent)
	crud(api, r, "/announcements", rbac.SubjectAnnouncement,
		h.ListAnnouncements, h.CreateAnnouncement, h.GetAnnouncement, h.UpdateAnnouncement, h.DeleteAnnouncement)
}

func (r *routes) finance(api *echo.Group, h *handler.FinanceHandler) {
	const s = rbac.SubjectFinance
	g := api.Group("/finance")

	g.GET("/fee-types", h.ListFeeTypes, r.guard(rbac.ActionRead, s))
	g.POST("/fee-types", h.CreateFeeType, r.guard(rbac.ActionCreate, s))
	g.PUT("/fee-types/:id", h.UpdateFeeType, r.guard(rbac.ActionUpdate, s))
	g.DELETE("/fee-types/:id", h.DeleteFeeType, r.guard(rbac.ActionDelete, s))

	g.GET("/invoices", h.ListInvoices, r.guard(rbac.ActionRead, s))
	g.POST("/invoices", h.CreateInvoice, r.guard(rbac.ActionCreate, s))
	g.GET("/invoices/export", h.ExportInvoices, r.guard(rbac.ActionRead, s))
	g.GET("/invoices/:id", h.GetInvoice, r.guard(rbac.ActionRead, s))
	g.DELETE("/invoices/:id", h.DeleteInvoice, r.guard(rbac.ActionDelete, s))

	g.GET("/invoices/:id/payments", h.ListPayments, r.guard(rbac.ActionRead, s))
	g.POST("/invoices/:id/payments", h.RecordPayment, r.guard(rbac.ActionCreate, s))
}

func (r *routes) exams(api *echo.Group, h *handler.ExamHandler) {
	crud(api, r, "/exams", rbac.SubjectExamination, h.List, h.Create, h.Get, h.Update, h.Delete)
	api.GET("/exams/:id/results", h.Results, r.guard(rbac.ActionRead, rbac.SubjectExamination))
	api.PUT("/exams/:id/results", h.PutResults, r.guard(rbac.ActionUpdate, rbac.SubjectExamination))
}

func (r *routes) admin(api *echo.Group, h *handler.AdminHandler) {
	const s = rbac.SubjectUserManagement
	update := r.guard(rbac.ActionUpdate, s)

	// ---- Roles ----
	crud(api, r, "/roles", s, h.ListRoles, h.CreateRole, h.GetRole, h.UpdateRole, h.DeleteRole)
	api.POST("/roles/:id/assign-permission", h.AssignPermission, update)
	api.POST("/roles/:id/revoke-permission", h.RevokePermission, update)
	api.GET("/permissions", h.ListPermissions, r.guard(rbac.ActionRead, s))

	// ---- Users ----
	crud(api, r, "/users", s, h.ListUsers, h.CreateUser, h.GetUser, h.UpdateUser, h.DeleteUser)
	api.POST("/users/:id/activate", h.ActivateUser, update)
	api.POST("/users/:id/deactivate", h.DeactivateUser, update)
	api.POST("/users/:id/assign-role", h.AssignRole, update)
	api.POST("/users/:id/remove-role", h.RemoveRole, update)
	api.GET("/users/:id/permissions", h.UserPermissions, r.guard(rbac.ActionRead, s))

	// ---- Audit log ----
	api.GET("/audit-logs", h.ListAuditLogs, r.guard(rbac.ActionRead, rbac.SubjectAuditLog))
}

// crud mounts the five conventional routes of a resource, each guarded by
// the action matching its method.
func crud(api *echo.Group, r *routes, path string, subject rbac.Subject, list, create, get, update, del echo.HandlerFunc) {
	api.GET(path, list, r.guard(rbac.ActionRead, subject))
	api.POST(path, create, r.guard(rbac.ActionCreate, subject))
	api.GET(path+"/:id", get, r.guard(rbac.ActionRead, subject))
	api.PUT(path+"/:id", update, r.guard(rbac.ActionUpdate, subject))
	api.DELETE(path+"/:id", del, r.guard(rbac.ActionDelete, subject))
}
