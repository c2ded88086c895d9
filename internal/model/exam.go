package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Exam struct {
	ID             uint64          `json:"id"`
	AcademicYearID uint64          `json:"academic_year_id"`
	ClassLevelID   uint64          `json:"class_level_id"`
	SubjectID      uint64          `json:"subject_id"`
	Name           string          `json:"name"`
	HeldOn         time.Time       `json:"held_on"`
	MaxScore       decimal.Decimal `json:"max_score"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ExamResult is one student's score in one exam.
type ExamResult struct {
	ExamID    uint64          `json:"exam_id"`
	StudentID uint64          `json:"student_id"`
	Score     decimal.Decimal `json:"score"`
	Remarks   string          `json:"remarks"`
	UpdatedAt time.Time       `json:"updated_at"`
}
