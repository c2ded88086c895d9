package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/school-admin/internal/model"
)

// ErrScoreOutOfRange is returned when a result is negative or above the
// exam's max score.
var ErrScoreOutOfRange = errors.New("score out of range")

const examColumns = "id, academic_year_id, class_level_id, subject_id, name, held_on, max_score, created_at, updated_at"

// ExamRepo persists exams and their results.
type ExamRepo struct{ DB *sql.DB }

func NewExamRepo(db *sql.DB) *ExamRepo { return &ExamRepo{DB: db} }

func scanExam(s rowScanner) (*model.Exam, error) {
	var e model.Exam
	if err := s.Scan(&e.ID, &e.AcademicYearID, &e.ClassLevelID, &e.SubjectID, &e.Name, &e.HeldOn, &e.MaxScore,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExamRepo) Create(ctx context.Context, e *model.Exam) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO exams (academic_year_id, class_level_id, subject_id, name, held_on, max_score) VALUES (?,?,?,?,?,?)",
		e.AcademicYearID, e.ClassLevelID, e.SubjectID, e.Name, e.HeldOn, e.MaxScore)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *got
	return nil
}

func (r *ExamRepo) Get(ctx context.Context, id uint64) (*model.Exam, error) {
	e, err := scanExam(r.DB.QueryRowContext(ctx, "SELECT "+examColumns+" FROM exams WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// ExamFilter narrows List. Zero values mean "any".
type ExamFilter struct {
	AcademicYearID uint64
	ClassLevelID   uint64
	SubjectID      uint64
}

func (r *ExamRepo) List(ctx context.Context, f ExamFilter) ([]*model.Exam, error) {
	qb := sq.Select(examColumns).From("exams").OrderBy("held_on DESC", "id DESC")
	if f.AcademicYearID != 0 {
		qb = qb.Where(sq.Eq{"academic_year_id": f.AcademicYearID})
	}
	if f.ClassLevelID != 0 {
		qb = qb.Where(sq.Eq{"class_level_id": f.ClassLevelID})
	}
	if f.SubjectID != 0 {
		qb = qb.Where(sq.Eq{"subject_id": f.SubjectID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExamRepo) Update(ctx context.Context, e *model.Exam) error {
	if _, err := r.DB.ExecContext(ctx,
		`UPDATE exams SET academic_year_id = ?, class_level_id = ?, subject_id = ?, name = ?, held_on = ?, max_score = ?
		  WHERE id = ?`,
		e.AcademicYearID, e.ClassLevelID, e.SubjectID, e.Name, e.HeldOn, e.MaxScore, e.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *got
	return nil
}

// Delete removes an exam; its results cascade.
func (r *ExamRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM exams WHERE id = ?", id)
	return expectOne(res, err)
}

// Results lists the scores recorded for an exam.
func (r *ExamRepo) Results(ctx context.Context, examID uint64) ([]*model.ExamResult, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT exam_id, student_id, score, remarks, updated_at FROM exam_results WHERE exam_id = ? ORDER BY student_id", examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ExamResult
	for rows.Next() {
		var res model.ExamResult
		if err := rows.Scan(&res.ExamID, &res.StudentID, &res.Score, &res.Remarks, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

// UpsertResults writes every result for examID or none of them. Each score
// must lie in [0, max_score].
func (r *ExamRepo) UpsertResults(ctx context.Context, examID uint64, results []model.ExamResult) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackOn(tx, &err)

	var maxScore decimal.Decimal
	if err = tx.QueryRowContext(ctx, "SELECT max_score FROM exams WHERE id = ? FOR SHARE", examID).Scan(&maxScore); err != nil {
		return translate(err)
	}
	for _, res := range results {
		if res.Score.IsNegative() || res.Score.GreaterThan(maxScore) {
			return fmt.Errorf("%w: student %d scored %s of %s", ErrScoreOutOfRange, res.StudentID, res.Score, maxScore)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO exam_results (exam_id, student_id, score, remarks) VALUES (?,?,?,?)
			 ON DUPLICATE KEY UPDATE score = VALUES(score), remarks = VALUES(remarks)`,
			examID, res.StudentID, res.Score, res.Remarks); err != nil {
			return translate(err)
		}
	}
	return tx.Commit()
}
