package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/school-admin/internal/model"
)

const staffColumns = "id, user_id, first_name, last_name, email, phone, position, hired_on, created_at, updated_at"

// StaffRepo persists staff members.
type StaffRepo struct{ DB *sql.DB }

func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{DB: db} }

func scanStaff(s rowScanner) (*model.Staff, error) {
	var (
		m       model.Staff
		userID  sql.NullInt64
		hiredOn sql.NullTime
	)
	if err := s.Scan(&m.ID, &userID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Position,
		&hiredOn, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.UserID = uintPtr(userID)
	m.HiredOn = timePtr(hiredOn)
	return &m, nil
}

func (r *StaffRepo) Create(ctx context.Context, m *model.Staff) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO staff (user_id, first_name, last_name, email, phone, position, hired_on) VALUES (?,?,?,?,?,?,?)",
		nullableUint(m.UserID), m.FirstName, m.LastName, NormalizeEmail(m.Email), m.Phone, m.Position, nullableTime(m.HiredOn))
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
	*m = *got
	return nil
}

func (r *StaffRepo) Get(ctx context.Context, id uint64) (*model.Staff, error) {
	m, err := scanStaff(r.DB.QueryRowContext(ctx, "SELECT "+staffColumns+" FROM staff WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// List returns staff ordered by last name, optionally filtered by position.
func (r *StaffRepo) List(ctx context.Context, position string, page Page) ([]*model.Staff, error) {
	qb := sq.Select(staffColumns).From("staff").OrderBy("last_name", "first_name").
		Limit(page.limit()).Offset(page.Offset)
	if position != "" {
		qb = qb.Where(sq.Eq{"position": position})
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
	var out []*model.Staff
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *StaffRepo) Update(ctx context.Context, m *model.Staff) error {
	if _, err := r.DB.ExecContext(ctx,
		`UPDATE staff SET user_id = ?, first_name = ?, last_name = ?, email = ?, phone = ?, position = ?, hired_on = ?
		  WHERE id = ?`,
		nullableUint(m.UserID), m.FirstName, m.LastName, NormalizeEmail(m.Email), m.Phone, m.Position,
		nullableTime(m.HiredOn), m.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *got
	return nil
}

func (r *StaffRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM staff WHERE id = ?", id)
	return expectOne(res, err)
}

const studentColumns = "id, admission_no, first_name, last_name, date_of_birth, gender, section_id, guardian_name, guardian_phone, status, created_at, updated_at"

// StudentRepo persists students.
type StudentRepo struct{ DB *sql.DB }

func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{DB: db} }

func scanStudent(s rowScanner) (*model.Student, error) {
	var (
		m         model.Student
		dob       sql.NullTime
		sectionID sql.NullInt64
		status    string
	)
	if err := s.Scan(&m.ID, &m.AdmissionNo, &m.FirstName, &m.LastName, &dob, &m.Gender, &sectionID,
		&m.GuardianName, &m.GuardianPhone, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.DateOfBirth = timePtr(dob)
	m.SectionID = uintPtr(sectionID)
	m.Status = model.StudentStatus(status)
	return &m, nil
}

// ErrSectionFull is returned when an enrolment would take a section past its
// capacity.
var ErrSectionFull = errors.New("section is full")

// takesSeat reports whether saving m adds an enrolled student to its section,
// given where the student was before (nil section for a new student).
func takesSeat(m *model.Student, prevSection *uint64, prevStatus model.StudentStatus) bool {
	if m.SectionID == nil || m.Status != model.StudentEnrolled {
		return false
	}
	return prevSection == nil || *prevSection != *m.SectionID || prevStatus != model.StudentEnrolled
}

// reserveSeat locks the section row and checks it has room for one more
// enrolled student. Concurrent enrolments into the same section queue on the
// lock, and the count runs after it is taken so it sees every committed one.
func reserveSeat(ctx context.Context, tx *sql.Tx, sectionID uint64) error {
	var capacity int
	err := tx.QueryRowContext(ctx, "SELECT capacity FROM sections WHERE id = ? FOR UPDATE", sectionID).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: section %d", ErrInvalidReference, sectionID)
	}
	if err != nil {
		return err
	}
	var enrolled int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students WHERE section_id = ? AND status = 'ENROLLED'", sectionID).Scan(&enrolled); err != nil {
		return err
	}
	if enrolled >= capacity {
		return ErrSectionFull
	}
	return nil
}

// Create inserts a student. Enrolling into a section takes a seat under the
// section's row lock; a full section yields ErrSectionFull and nothing is
// written.
func (r *StudentRepo) Create(ctx context.Context, m *model.Student) (err error) {
	if m.Status == "" {
		m.Status = model.StudentEnrolled
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackOn(tx, &err)

	if takesSeat(m, nil, "") {
		if err = reserveSeat(ctx, tx, *m.SectionID); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO students (admission_no, first_name, last_name, date_of_birth, gender, section_id,
		                       guardian_name, guardian_phone, status)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		m.AdmissionNo, m.FirstName, m.LastName, nullableTime(m.DateOfBirth), m.Gender, nullableUint(m.SectionID),
		m.GuardianName, m.GuardianPhone, string(m.Status))
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	got, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*m = *got
	return nil
}

func (r *StudentRepo) Get(ctx context.Context, id uint64) (*model.Student, error) {
	m, err := scanStudent(r.DB.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// StudentFilter narrows List. Zero values mean "any".
type StudentFilter struct {
	SectionID uint64
	Status    model.StudentStatus
	Query     string // admission number or name fragment
	Page      Page
}

func (f StudentFilter) apply(qb sq.SelectBuilder) sq.SelectBuilder {
	if f.SectionID != 0 {
		qb = qb.Where(sq.Eq{"section_id": f.SectionID})
	}
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(f.Status)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		qb = qb.Where(sq.Or{
			sq.Like{"admission_no": like},
			sq.Like{"first_name": like},
			sq.Like{"last_name": like},
		})
	}
	return qb
}

// List returns one page of students and the total matching the filter.
func (r *StudentRepo) List(ctx context.Context, f StudentFilter) ([]*model.Student, int, error) {
	countQ, countArgs, err := f.apply(sq.Select("COUNT(*)").From("students")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := f.apply(sq.Select(studentColumns).From("students")).
		OrderBy("last_name", "first_name", "id").
		Limit(f.Page.limit()).
		Offset(f.Page.Offset).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*model.Student
	for rows.Next() {
		m, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// Update rewrites a student. Moving into another section, or re-enrolling,
// takes a seat the same way Create does; staying put never does.
func (r *StudentRepo) Update(ctx context.Context, m *model.Student) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackOn(tx, &err)

	var (
		prevSection sql.NullInt64
		prevStatus  string
	)
	if err = tx.QueryRowContext(ctx,
		"SELECT section_id, status FROM students WHERE id = ? FOR UPDATE", m.ID).
		Scan(&prevSection, &prevStatus); err != nil {
		return translate(err)
	}
	if takesSeat(m, uintPtr(prevSection), model.StudentStatus(prevStatus)) {
		if err = reserveSeat(ctx, tx, *m.SectionID); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE students SET admission_no = ?, first_name = ?, last_name = ?, date_of_birth = ?, gender = ?,
		        section_id = ?, guardian_name = ?, guardian_phone = ?, status = ?
		  WHERE id = ?`,
		m.AdmissionNo, m.FirstName, m.LastName, nullableTime(m.DateOfBirth), m.Gender, nullableUint(m.SectionID),
		m.GuardianName, m.GuardianPhone, string(m.Status), m.ID); err != nil {
		return translate(err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	got, err := r.Get(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *got
	return nil
}

func (r *StudentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	return expectOne(res, err)
}

const announcementColumns = "id, title, body, audience, published_at, author_id, created_at, updated_at"

// AnnouncementRepo persists announcements.
type AnnouncementRepo struct{ DB *sql.DB }

func NewAnnouncementRepo(db *sql.DB) *AnnouncementRepo { return &AnnouncementRepo{DB: db} }

func scanAnnouncement(s rowScanner) (*model.Announcement, error) {
	var (
		a         model.Announcement
		published sql.NullTime
		author    sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.Title, &a.Body, &a.Audience, &published, &author, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.PublishedAt = timePtr(published)
	a.AuthorID = uintPtr(author)
	return &a, nil
}

func (r *AnnouncementRepo) Create(ctx context.Context, a *model.Announcement) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO announcements (title, body, audience, published_at, author_id) VALUES (?,?,?,?,?)",
		a.Title, a.Body, a.Audience, nullableTime(a.PublishedAt), nullableUint(a.AuthorID))
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
	*a = *got
	return nil
}

func (r *AnnouncementRepo) Get(ctx context.Context, id uint64) (*model.Announcement, error) {
	a, err := scanAnnouncement(r.DB.QueryRowContext(ctx, "SELECT "+announcementColumns+" FROM announcements WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// List returns announcements newest first, optionally for one audience.
func (r *AnnouncementRepo) List(ctx context.Context, audience string, page Page) ([]*model.Announcement, error) {
	qb := sq.Select(announcementColumns).From("announcements").OrderBy("created_at DESC", "id DESC").
		Limit(page.limit()).Offset(page.Offset)
	if audience != "" {
		qb = qb.Where(sq.Eq{"audience": audience})
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
	var out []*model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AnnouncementRepo) Update(ctx context.Context, a *model.Announcement) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE announcements SET title = ?, body = ?, audience = ?, published_at = ? WHERE id = ?",
		a.Title, a.Body, a.Audience, nullableTime(a.PublishedAt), a.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = *got
	return nil
}

func (r *AnnouncementRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM announcements WHERE id = ?", id)
	return expectOne(res, err)
}
