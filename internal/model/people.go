package model

import "time"

// Staff is an employee record, optionally linked to a login account.
type Staff struct {
	ID        uint64     `json:"id"`
	UserID    *uint64    `json:"user_id,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Position  string     `json:"position"`
	HiredOn   *time.Time `json:"hired_on,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type StudentStatus string

const (
	StudentEnrolled  StudentStatus = "ENROLLED"
	StudentGraduated StudentStatus = "GRADUATED"
	StudentWithdrawn StudentStatus = "WITHDRAWN"
)

type Student struct {
	ID            uint64        `json:"id"`
	AdmissionNo   string        `json:"admission_no"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	DateOfBirth   *time.Time    `json:"date_of_birth,omitempty"`
	Gender        string        `json:"gender"`
	SectionID     *uint64       `json:"section_id,omitempty"`
	GuardianName  string        `json:"guardian_name"`
	GuardianPhone string        `json:"guardian_phone"`
	Status        StudentStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Announcement is a notice addressed to an audience.
type Announcement struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Audience    string     `json:"audience"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AuthorID    *uint64    `json:"author_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
