package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
)

// PeopleHandler serves staff, students and announcements.
type PeopleHandler struct {
	Staff         *repository.StaffRepo
	Students      *repository.StudentRepo
	Announcements *repository.AnnouncementRepo
	Audit         *service.Auditor
}

func NewPeopleHandler(db *repository.Set, audit *service.Auditor) *PeopleHandler {
	return &PeopleHandler{
		Staff:         db.Staff,
		Students:      db.Students,
		Announcements: db.Announcements,
		Audit:         audit,
	}
}

// ----- DTOs -----

type staffReq struct {
	UserID    *uint64 `json:"user_id"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     string  `json:"phone" validate:"max=50"`
	Position  string  `json:"position" validate:"required,max=100"`
	HiredOn   Date    `json:"hired_on"`
}

func (r staffReq) model(id uint64) *model.Staff {
	return &model.Staff{
		ID:        id,
		UserID:    r.UserID,
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Email:     r.Email,
		Phone:     r.Phone,
		Position:  strings.TrimSpace(r.Position),
		HiredOn:   r.HiredOn.Ptr(),
	}
}

type studentReq struct {
	AdmissionNo   string  `json:"admission_no" validate:"required,max=50"`
	FirstName     string  `json:"first_name" validate:"required,max=100"`
	LastName      string  `json:"last_name" validate:"required,max=100"`
	DateOfBirth   Date    `json:"date_of_birth"`
	Gender        string  `json:"gender" validate:"omitempty,oneof=M F X"`
	SectionID     *uint64 `json:"section_id"`
	GuardianName  string  `json:"guardian_name" validate:"max=200"`
	GuardianPhone string  `json:"guardian_phone" validate:"max=50"`
	Status        string  `json:"status" validate:"omitempty,oneof=ENROLLED GRADUATED WITHDRAWN"`
}

func (r studentReq) model(id uint64) *model.Student {
	status := model.StudentStatus(r.Status)
	if status == "" {
		status = model.StudentEnrolled
	}
	return &model.Student{
		ID:            id,
		AdmissionNo:   strings.TrimSpace(r.AdmissionNo),
		FirstName:     strings.TrimSpace(r.FirstName),
		LastName:      strings.TrimSpace(r.LastName),
		DateOfBirth:   r.DateOfBirth.Ptr(),
		Gender:        r.Gender,
		SectionID:     r.SectionID,
		GuardianName:  r.GuardianName,
		GuardianPhone: r.GuardianPhone,
		Status:        status,
	}
}

type announcementReq struct {
	Title       string `json:"title" validate:"required,max=200"`
	Body        string `json:"body" validate:"required"`
	Audience    string `json:"audience" validate:"required,oneof=ALL STAFF STUDENTS GUARDIANS"`
	PublishedAt Date   `json:"published_at"`
}

// ----- staff -----

func (h *PeopleHandler) ListStaff(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Staff.List(ctx, strings.TrimSpace(c.QueryParam("position")), page)
	if err != nil {
		return apperror.Internal("list staff", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *PeopleHandler) GetStaff(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Staff.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "staff member", "load staff member")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *PeopleHandler) CreateStaff(c echo.Context) error {
	var req staffReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m := req.model(0)
	if err := h.Staff.Create(ctx, m); err != nil {
		return service.MapRepoError(err, "staff member", "create staff member")
	}
	h.Audit.Record(ctx, "staff.create", "staff", idString(m.ID), map[string]any{"email": m.Email})
	return c.JSON(http.StatusCreated, m)
}

func (h *PeopleHandler) UpdateStaff(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req staffReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m := req.model(id)
	if err := h.Staff.Update(ctx, m); err != nil {
		return service.MapRepoError(err, "staff member", "update staff member")
	}
	h.Audit.Record(ctx, "staff.update", "staff", idString(id), map[string]any{"email": m.Email})
	return c.JSON(http.StatusOK, m)
}

func (h *PeopleHandler) DeleteStaff(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Staff.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "staff member", "delete staff member")
	}
	h.Audit.Record(ctx, "staff.delete", "staff", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- students -----

// ListStudents supports section_id, status and q filters plus paging. The
// total ignores paging.
func (h *PeopleHandler) ListStudents(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return err
	}
	sectionID, err := queryUint(c, "section_id")
	if err != nil {
		return err
	}
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	switch model.StudentStatus(status) {
	case "", model.StudentEnrolled, model.StudentGraduated, model.StudentWithdrawn:
	default:
		return apperror.Field("status", "must be one of: ENROLLED GRADUATED WITHDRAWN")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, total, err := h.Students.List(ctx, repository.StudentFilter{
		SectionID: sectionID,
		Status:    model.StudentStatus(status),
		Query:     strings.TrimSpace(c.QueryParam("q")),
		Page:      page,
	})
	if err != nil {
		return apperror.Internal("list students", err)
	}
	resp := items(list)
	resp["total"] = total
	return c.JSON(http.StatusOK, resp)
}

func (h *PeopleHandler) GetStudent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Students.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "student", "load student")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *PeopleHandler) CreateStudent(c echo.Context) error {
	var req studentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m := req.model(0)
	if err := h.Students.Create(ctx, m); err != nil {
		return studentErr(err, "create student")
	}
	h.Audit.Record(ctx, "student.create", "student", idString(m.ID), map[string]any{"admission_no": m.AdmissionNo})
	return c.JSON(http.StatusCreated, m)
}

func (h *PeopleHandler) UpdateStudent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req studentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m := req.model(id)
	if err := h.Students.Update(ctx, m); err != nil {
		return studentErr(err, "update student")
	}
	h.Audit.Record(ctx, "student.update", "student", idString(id), map[string]any{
		"admission_no": m.AdmissionNo,
		"status":       string(m.Status),
	})
	return c.JSON(http.StatusOK, m)
}

// studentErr reports section problems against the section_id field.
func studentErr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrSectionFull):
		return apperror.Field("section_id", "section is full")
	case errors.Is(err, repository.ErrInvalidReference):
		return apperror.Field("section_id", "section does not exist")
	}
	return service.MapRepoError(err, "student", op)
}

func (h *PeopleHandler) DeleteStudent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Students.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "student", "delete student")
	}
	h.Audit.Record(ctx, "student.delete", "student", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- announcements -----

func (h *PeopleHandler) ListAnnouncements(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Announcements.List(ctx, strings.ToUpper(strings.TrimSpace(c.QueryParam("audience"))), page)
	if err != nil {
		return apperror.Internal("list announcements", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *PeopleHandler) GetAnnouncement(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Announcements.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "announcement", "load announcement")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *PeopleHandler) CreateAnnouncement(c echo.Context) error {
	var req announcementReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a := &model.Announcement{
		Title:       strings.TrimSpace(req.Title),
		Body:        req.Body,
		Audience:    req.Audience,
		PublishedAt: req.PublishedAt.Ptr(),
		AuthorID:    model.ActorID(ctx),
	}
	if err := h.Announcements.Create(ctx, a); err != nil {
		return service.MapRepoError(err, "announcement", "create announcement")
	}
	h.Audit.Record(ctx, "announcement.create", "announcement", idString(a.ID), map[string]any{"title": a.Title})
	return c.JSON(http.StatusCreated, a)
}

func (h *PeopleHandler) UpdateAnnouncement(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req announcementReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a := &model.Announcement{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Body:        req.Body,
		Audience:    req.Audience,
		PublishedAt: req.PublishedAt.Ptr(),
	}
	if err := h.Announcements.Update(ctx, a); err != nil {
		return service.MapRepoError(err, "announcement", "update announcement")
	}
	h.Audit.Record(ctx, "announcement.update", "announcement", idString(id), map[string]any{"title": a.Title})
	return c.JSON(http.StatusOK, a)
}

func (h *PeopleHandler) DeleteAnnouncement(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Announcements.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "announcement", "delete announcement")
	}
	h.Audit.Record(ctx, "announcement.delete", "announcement", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}
