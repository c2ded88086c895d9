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

// AcademicsHandler serves the school profile and the academic structure:
// years, class levels, sections and subjects.
type AcademicsHandler struct {
	Profile  *repository.SchoolProfileRepo
	Years    *repository.AcademicYearRepo
	Classes  *repository.ClassLevelRepo
	Sections *repository.SectionRepo
	Subjects *repository.SubjectRepo
	Audit    *service.Auditor
}

func NewAcademicsHandler(db *repository.Set, audit *service.Auditor) *AcademicsHandler {
	return &AcademicsHandler{
		Profile:  db.Profile,
		Years:    db.Years,
		Classes:  db.Classes,
		Sections: db.Sections,
		Subjects: db.Subjects,
		Audit:    audit,
	}
}

// ----- DTOs -----

type profileReq struct {
	Name    string `json:"name" validate:"required,max=255"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Website string `json:"website" validate:"omitempty,url"`
	LogoURL string `json:"logo_url" validate:"omitempty,url"`
}

type yearReq struct {
	Name     string `json:"name" validate:"required,max=100"`
	StartsOn Date   `json:"starts_on"`
	EndsOn   Date   `json:"ends_on"`
}

type classReq struct {
	AcademicYearID uint64 `json:"academic_year_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=500"`
}

type sectionReq struct {
	ClassLevelID uint64 `json:"class_level_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=50"`
	Capacity     uint32 `json:"capacity" validate:"required,max=1000"`
}

type subjectReq struct {
	Code        string `json:"code" validate:"required,max=20"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (r yearReq) check() error {
	fields := map[string]string{}
	if r.StartsOn.IsZero() {
		fields["starts_on"] = "required"
	}
	if r.EndsOn.IsZero() {
		fields["ends_on"] = "required"
	}
	if len(fields) == 0 && !r.EndsOn.After(r.StartsOn.Time) {
		fields["ends_on"] = "must be after starts_on"
	}
	if len(fields) > 0 {
		return apperror.Validation("validation failed", fields)
	}
	return nil
}

// ----- school profile -----

func (h *AcademicsHandler) GetProfile(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Profile.Get(ctx)
	if err != nil {
		return service.MapRepoError(err, "school profile", "load school profile")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *AcademicsHandler) UpdateProfile(c echo.Context) error {
	var req profileReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p := &model.SchoolProfile{
		Name:    strings.TrimSpace(req.Name),
		Address: req.Address,
		Phone:   req.Phone,
		Email:   req.Email,
		Website: req.Website,
		LogoURL: req.LogoURL,
	}
	if err := h.Profile.Save(ctx, p); err != nil {
		return service.MapRepoError(err, "school profile", "save school profile")
	}
	h.Audit.Record(ctx, "school_profile.update", "school_profile", "1", map[string]any{"name": p.Name})
	return c.JSON(http.StatusOK, p)
}

// ----- academic years -----

func (h *AcademicsHandler) ListYears(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Years.List(ctx)
	if err != nil {
		return apperror.Internal("list academic years", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AcademicsHandler) GetYear(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	y, err := h.Years.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "academic year", "load academic year")
	}
	return c.JSON(http.StatusOK, y)
}

func (h *AcademicsHandler) CreateYear(c echo.Context) error {
	var req yearReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.check(); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	y := &model.AcademicYear{Name: strings.TrimSpace(req.Name), StartsOn: req.StartsOn.Time, EndsOn: req.EndsOn.Time}
	if err := h.Years.Create(ctx, y); err != nil {
		return service.MapRepoError(err, "academic year", "create academic year")
	}
	h.Audit.Record(ctx, "academic_year.create", "academic_year", idString(y.ID), map[string]any{"name": y.Name})
	return c.JSON(http.StatusCreated, y)
}

func (h *AcademicsHandler) UpdateYear(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req yearReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.check(); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	y := &model.AcademicYear{ID: id, Name: strings.TrimSpace(req.Name), StartsOn: req.StartsOn.Time, EndsOn: req.EndsOn.Time}
	if err := h.Years.Update(ctx, y); err != nil {
		return service.MapRepoError(err, "academic year", "update academic year")
	}
	h.Audit.Record(ctx, "academic_year.update", "academic_year", idString(id), map[string]any{"name": y.Name})
	return c.JSON(http.StatusOK, y)
}

func (h *AcademicsHandler) DeleteYear(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Years.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "academic year", "delete academic year")
	}
	h.Audit.Record(ctx, "academic_year.delete", "academic_year", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ActivateYear makes the year current and clears the flag on all others.
func (h *AcademicsHandler) ActivateYear(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Years.Activate(ctx, id); err != nil {
		return service.MapRepoError(err, "academic year", "activate academic year")
	}
	h.Audit.Record(ctx, "academic_year.activate", "academic_year", idString(id), nil)
	return h.GetYear(c)
}

// ----- class levels -----

func (h *AcademicsHandler) ListClasses(c echo.Context) error {
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Classes.List(ctx, yearID)
	if err != nil {
		return apperror.Internal("list class levels", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AcademicsHandler) GetClass(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cl, err := h.Classes.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "class level", "load class level")
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *AcademicsHandler) CreateClass(c echo.Context) error {
	var req classReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cl := &model.ClassLevel{AcademicYearID: req.AcademicYearID, Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := h.Classes.Create(ctx, cl); err != nil {
		return service.MapRepoError(err, "class level", "create class level")
	}
	h.Audit.Record(ctx, "class_level.create", "class_level", idString(cl.ID), map[string]any{"name": cl.Name})
	return c.JSON(http.StatusCreated, cl)
}

func (h *AcademicsHandler) UpdateClass(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req classReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cl := &model.ClassLevel{ID: id, AcademicYearID: req.AcademicYearID, Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := h.Classes.Update(ctx, cl); err != nil {
		return service.MapRepoError(err, "class level", "update class level")
	}
	h.Audit.Record(ctx, "class_level.update", "class_level", idString(id), map[string]any{"name": cl.Name})
	return c.JSON(http.StatusOK, cl)
}

func (h *AcademicsHandler) DeleteClass(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Classes.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "class level", "delete class level")
	}
	h.Audit.Record(ctx, "class_level.delete", "class_level", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- sections -----

func (h *AcademicsHandler) ListSections(c echo.Context) error {
	classID, err := queryUint(c, "class_id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Sections.List(ctx, classID)
	if err != nil {
		return apperror.Internal("list sections", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AcademicsHandler) GetSection(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Sections.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "section", "load section")
	}
	enrolled, err := h.Sections.EnrolledCount(ctx, id)
	if err != nil {
		return apperror.Internal("count enrolled students", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"section": s, "enrolled": enrolled})
}

func (h *AcademicsHandler) CreateSection(c echo.Context) error {
	var req sectionReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s := &model.Section{ClassLevelID: req.ClassLevelID, Name: strings.TrimSpace(req.Name), Capacity: req.Capacity}
	if err := h.Sections.Create(ctx, s); err != nil {
		return service.MapRepoError(err, "section", "create section")
	}
	h.Audit.Record(ctx, "section.create", "section", idString(s.ID), map[string]any{"name": s.Name})
	return c.JSON(http.StatusCreated, s)
}

// UpdateSection refuses to shrink capacity below current enrollment.
func (h *AcademicsHandler) UpdateSection(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req sectionReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	enrolled, err := h.Sections.EnrolledCount(ctx, id)
	if err != nil {
		return apperror.Internal("count enrolled students", err)
	}
	if int(req.Capacity) < enrolled {
		return apperror.Field("capacity", "is below the number of enrolled students")
	}
	s := &model.Section{ID: id, ClassLevelID: req.ClassLevelID, Name: strings.TrimSpace(req.Name), Capacity: req.Capacity}
	if err := h.Sections.Update(ctx, s); err != nil {
		return service.MapRepoError(err, "section", "update section")
	}
	h.Audit.Record(ctx, "section.update", "section", idString(id), map[string]any{"name": s.Name})
	return h.GetSection(c)
}

func (h *AcademicsHandler) DeleteSection(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Sections.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "section", "delete section")
	}
	h.Audit.Record(ctx, "section.delete", "section", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- subjects -----

func (h *AcademicsHandler) ListSubjects(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Subjects.List(ctx)
	if err != nil {
		return apperror.Internal("list subjects", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *AcademicsHandler) GetSubject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Subjects.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "subject", "load subject")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *AcademicsHandler) CreateSubject(c echo.Context) error {
	var req subjectReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s := &model.Subject{Code: strings.ToUpper(strings.TrimSpace(req.Code)), Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := h.Subjects.Create(ctx, s); err != nil {
		return service.MapRepoError(err, "subject", "create subject")
	}
	h.Audit.Record(ctx, "subject.create", "subject", idString(s.ID), map[string]any{"code": s.Code})
	return c.JSON(http.StatusCreated, s)
}

func (h *AcademicsHandler) UpdateSubject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req subjectReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s := &model.Subject{ID: id, Code: strings.ToUpper(strings.TrimSpace(req.Code)), Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := h.Subjects.Update(ctx, s); err != nil {
		return service.MapRepoError(err, "subject", "update subject")
	}
	h.Audit.Record(ctx, "subject.update", "subject", idString(id), map[string]any{"code": s.Code})
	return c.JSON(http.StatusOK, s)
}

func (h *AcademicsHandler) DeleteSubject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Subjects.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "subject", "delete subject")
	}
	h.Audit.Record(ctx, "subject.delete", "subject", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}
