package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
)

// ExamHandler serves examinations and their results.
type ExamHandler struct {
	Exams *repository.ExamRepo
	Audit *service.Auditor
}

func NewExamHandler(db *repository.Set, audit *service.Auditor) *ExamHandler {
	return &ExamHandler{Exams: db.Exams, Audit: audit}
}

// ----- DTOs -----

type examReq struct {
	AcademicYearID uint64          `json:"academic_year_id" validate:"required"`
	ClassLevelID   uint64          `json:"class_level_id" validate:"required"`
	SubjectID      uint64          `json:"subject_id" validate:"required"`
	Name           string          `json:"name" validate:"required,max=100"`
	HeldOn         Date            `json:"held_on"`
	MaxScore       decimal.Decimal `json:"max_score"`
}

func (r examReq) model(id uint64) (*model.Exam, error) {
	if err := positive("max_score", r.MaxScore); err != nil {
		return nil, err
	}
	if r.HeldOn.IsZero() {
		return nil, apperror.Field("held_on", "required")
	}
	return &model.Exam{
		ID:             id,
		AcademicYearID: r.AcademicYearID,
		ClassLevelID:   r.ClassLevelID,
		SubjectID:      r.SubjectID,
		Name:           strings.TrimSpace(r.Name),
		HeldOn:         r.HeldOn.Time,
		MaxScore:       r.MaxScore,
	}, nil
}

type resultReq struct {
	StudentID uint64          `json:"student_id" validate:"required"`
	Score     decimal.Decimal `json:"score"`
	Remarks   string          `json:"remarks" validate:"max=255"`
}

type resultsReq struct {
	Results []resultReq `json:"results" validate:"required,min=1,max=500,dive"`
}

func (h *ExamHandler) List(c echo.Context) error {
	var f repository.ExamFilter
	var err error
	if f.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return err
	}
	if f.ClassLevelID, err = queryUint(c, "class_level_id"); err != nil {
		return err
	}
	if f.SubjectID, err = queryUint(c, "subject_id"); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Exams.List(ctx, f)
	if err != nil {
		return apperror.Internal("list exams", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *ExamHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Exams.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "exam", "load exam")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *ExamHandler) Create(c echo.Context) error {
	var req examReq
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := req.model(0)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Exams.Create(ctx, e); err != nil {
		return service.MapRepoError(err, "exam", "create exam")
	}
	h.Audit.Record(ctx, "exam.create", "exam", idString(e.ID), map[string]any{"name": e.Name})
	return c.JSON(http.StatusCreated, e)
}

func (h *ExamHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req examReq
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := req.model(id)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Exams.Update(ctx, e); err != nil {
		return service.MapRepoError(err, "exam", "update exam")
	}
	h.Audit.Record(ctx, "exam.update", "exam", idString(id), map[string]any{"name": e.Name})
	return c.JSON(http.StatusOK, e)
}

func (h *ExamHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Exams.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "exam", "delete exam")
	}
	h.Audit.Record(ctx, "exam.delete", "exam", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

func (h *ExamHandler) Results(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Exams.Get(ctx, id); err != nil {
		return service.MapRepoError(err, "exam", "load exam")
	}
	list, err := h.Exams.Results(ctx, id)
	if err != nil {
		return apperror.Internal("list exam results", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// PutResults records scores for an exam. The batch is applied atomically;
// one out-of-range score rejects all of them.
func (h *ExamHandler) PutResults(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req resultsReq
	if err := bind(c, &req); err != nil {
		return err
	}
	seen := make(map[uint64]bool, len(req.Results))
	results := make([]model.ExamResult, 0, len(req.Results))
	for _, r := range req.Results {
		if seen[r.StudentID] {
			return apperror.Field("results", "duplicate student_id")
		}
		seen[r.StudentID] = true
		results = append(results, model.ExamResult{ExamID: id, StudentID: r.StudentID, Score: r.Score, Remarks: r.Remarks})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Exams.UpsertResults(ctx, id, results); err != nil {
		if errors.Is(err, repository.ErrScoreOutOfRange) {
			return apperror.Field("score", err.Error())
		}
		return service.MapRepoError(err, "exam", "record exam results")
	}
	h.Audit.Record(ctx, "exam.results", "exam", idString(id), map[string]any{"count": len(results)})
	return h.Results(c)
}
