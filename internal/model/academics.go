package model

import "time"

// SchoolProfile is the single row describing the school itself.
type SchoolProfile struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Website   string    `json:"website"`
	LogoURL   string    `json:"logo_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AcademicYear is a school year. At most one is current.
type AcademicYear struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	StartsOn  time.Time `json:"starts_on"`
	EndsOn    time.Time `json:"ends_on"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassLevel is a grade within an academic year (e.g. "Grade 5").
type ClassLevel struct {
	ID             uint64    `json:"id"`
	AcademicYearID uint64    `json:"academic_year_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Section splits a class level into groups of students.
type Section struct {
	ID           uint64    `json:"id"`
	ClassLevelID uint64    `json:"class_level_id"`
	Name         string    `json:"name"`
	Capacity     uint32    `json:"capacity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Subject struct {
	ID          uint64    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
