package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/school-admin/internal/model"
)

// SchoolProfileRepo reads and writes the single school_profile row.
type SchoolProfileRepo struct{ DB *sql.DB }

func NewSchoolProfileRepo(db *sql.DB) *SchoolProfileRepo { return &SchoolProfileRepo{DB: db} }

// Get returns ErrNotFound until the profile has been saved once.
func (r *SchoolProfileRepo) Get(ctx context.Context) (*model.SchoolProfile, error) {
	var p model.SchoolProfile
	err := r.DB.QueryRowContext(ctx,
		"SELECT name, address, phone, email, website, logo_url, updated_at FROM school_profile WHERE id = 1").
		Scan(&p.Name, &p.Address, &p.Phone, &p.Email, &p.Website, &p.LogoURL, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Save creates or replaces the profile.
func (r *SchoolProfileRepo) Save(ctx context.Context, p *model.SchoolProfile) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO school_profile (id, name, address, phone, email, website, logo_url)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), address = VALUES(address), phone = VALUES(phone),
		   email = VALUES(email), website = VALUES(website), logo_url = VALUES(logo_url)`,
		p.Name, p.Address, p.Phone, p.Email, p.Website, p.LogoURL)
	return translate(err)
}

const yearColumns = "id, name, starts_on, ends_on, is_current, created_at, updated_at"

// AcademicYearRepo persists academic years.
type AcademicYearRepo struct{ DB *sql.DB }

func NewAcademicYearRepo(db *sql.DB) *AcademicYearRepo { return &AcademicYearRepo{DB: db} }

func scanYear(s rowScanner) (*model.AcademicYear, error) {
	var y model.AcademicYear
	if err := s.Scan(&y.ID, &y.Name, &y.StartsOn, &y.EndsOn, &y.IsCurrent, &y.CreatedAt, &y.UpdatedAt); err != nil {
		return nil, err
	}
	return &y, nil
}

func (r *AcademicYearRepo) Create(ctx context.Context, y *model.AcademicYear) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO academic_years (name, starts_on, ends_on) VALUES (?,?,?)", y.Name, y.StartsOn, y.EndsOn)
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
	*y = *got
	return nil
}

func (r *AcademicYearRepo) Get(ctx context.Context, id uint64) (*model.AcademicYear, error) {
	y, err := scanYear(r.DB.QueryRowContext(ctx, "SELECT "+yearColumns+" FROM academic_years WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return y, nil
}

func (r *AcademicYearRepo) List(ctx context.Context) ([]*model.AcademicYear, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+yearColumns+" FROM academic_years ORDER BY starts_on DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AcademicYear
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

func (r *AcademicYearRepo) Update(ctx context.Context, y *model.AcademicYear) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE academic_years SET name = ?, starts_on = ?, ends_on = ? WHERE id = ?",
		y.Name, y.StartsOn, y.EndsOn, y.ID)
	if err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, y.ID)
	if err != nil {
		return err
	}
	*y = *got
	return nil
}

func (r *AcademicYearRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM academic_years WHERE id = ?", id)
	return expectOne(res, err)
}

// Activate makes id the only current year.
func (r *AcademicYearRepo) Activate(ctx context.Context, id uint64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackOn(tx, &err)

	var exists uint64
	if err = tx.QueryRowContext(ctx, "SELECT id FROM academic_years WHERE id = ? FOR UPDATE", id).Scan(&exists); err != nil {
		return translate(err)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE academic_years SET is_current = FALSE WHERE is_current = TRUE AND id <> ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE academic_years SET is_current = TRUE WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

const classColumns = "id, academic_year_id, name, description, created_at, updated_at"

// ClassLevelRepo persists class levels.
type ClassLevelRepo struct{ DB *sql.DB }

func NewClassLevelRepo(db *sql.DB) *ClassLevelRepo { return &ClassLevelRepo{DB: db} }

func scanClass(s rowScanner) (*model.ClassLevel, error) {
	var c model.ClassLevel
	if err := s.Scan(&c.ID, &c.AcademicYearID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClassLevelRepo) Create(ctx context.Context, c *model.ClassLevel) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO class_levels (academic_year_id, name, description) VALUES (?,?,?)",
		c.AcademicYearID, c.Name, c.Description)
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
	*c = *got
	return nil
}

func (r *ClassLevelRepo) Get(ctx context.Context, id uint64) (*model.ClassLevel, error) {
	c, err := scanClass(r.DB.QueryRowContext(ctx, "SELECT "+classColumns+" FROM class_levels WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// List returns class levels, optionally restricted to one academic year.
func (r *ClassLevelRepo) List(ctx context.Context, yearID uint64) ([]*model.ClassLevel, error) {
	qb := sq.Select(classColumns).From("class_levels").OrderBy("name")
	if yearID != 0 {
		qb = qb.Where(sq.Eq{"academic_year_id": yearID})
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
	var out []*model.ClassLevel
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ClassLevelRepo) Update(ctx context.Context, c *model.ClassLevel) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE class_levels SET academic_year_id = ?, name = ?, description = ? WHERE id = ?",
		c.AcademicYearID, c.Name, c.Description, c.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *got
	return nil
}

func (r *ClassLevelRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM class_levels WHERE id = ?", id)
	return expectOne(res, err)
}

const sectionColumns = "id, class_level_id, name, capacity, created_at, updated_at"

// SectionRepo persists sections.
type SectionRepo struct{ DB *sql.DB }

func NewSectionRepo(db *sql.DB) *SectionRepo { return &SectionRepo{DB: db} }

func scanSection(s rowScanner) (*model.Section, error) {
	var sec model.Section
	if err := s.Scan(&sec.ID, &sec.ClassLevelID, &sec.Name, &sec.Capacity, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return nil, err
	}
	return &sec, nil
}

func (r *SectionRepo) Create(ctx context.Context, s *model.Section) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sections (class_level_id, name, capacity) VALUES (?,?,?)", s.ClassLevelID, s.Name, s.Capacity)
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
	*s = *got
	return nil
}

func (r *SectionRepo) Get(ctx context.Context, id uint64) (*model.Section, error) {
	s, err := scanSection(r.DB.QueryRowContext(ctx, "SELECT "+sectionColumns+" FROM sections WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// List returns sections, optionally restricted to one class level.
func (r *SectionRepo) List(ctx context.Context, classID uint64) ([]*model.Section, error) {
	qb := sq.Select(sectionColumns).From("sections").OrderBy("class_level_id", "name")
	if classID != 0 {
		qb = qb.Where(sq.Eq{"class_level_id": classID})
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
	var out []*model.Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SectionRepo) Update(ctx context.Context, s *model.Section) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE sections SET class_level_id = ?, name = ?, capacity = ? WHERE id = ?",
		s.ClassLevelID, s.Name, s.Capacity, s.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

func (r *SectionRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sections WHERE id = ?", id)
	return expectOne(res, err)
}

// EnrolledCount returns the number of enrolled students in a section.
func (r *SectionRepo) EnrolledCount(ctx context.Context, id uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students WHERE section_id = ? AND status = 'ENROLLED'", id).Scan(&n)
	return n, err
}

const subjectColumns = "id, code, name, description, created_at, updated_at"

// SubjectRepo persists subjects.
type SubjectRepo struct{ DB *sql.DB }

func NewSubjectRepo(db *sql.DB) *SubjectRepo { return &SubjectRepo{DB: db} }

func scanSubject(s rowScanner) (*model.Subject, error) {
	var sub model.Subject
	if err := s.Scan(&sub.ID, &sub.Code, &sub.Name, &sub.Description, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubjectRepo) Create(ctx context.Context, s *model.Subject) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO subjects (code, name, description) VALUES (?,?,?)", s.Code, s.Name, s.Description)
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
	*s = *got
	return nil
}

func (r *SubjectRepo) Get(ctx context.Context, id uint64) (*model.Subject, error) {
	s, err := scanSubject(r.DB.QueryRowContext(ctx, "SELECT "+subjectColumns+" FROM subjects WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (r *SubjectRepo) List(ctx context.Context) ([]*model.Subject, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+subjectColumns+" FROM subjects ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubjectRepo) Update(ctx context.Context, s *model.Subject) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE subjects SET code = ?, name = ?, description = ? WHERE id = ?",
		s.Code, s.Name, s.Description, s.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

func (r *SubjectRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM subjects WHERE id = ?", id)
	return expectOne(res, err)
}
