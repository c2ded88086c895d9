package repository

import "database/sql"

// Set holds one repository per table group, all sharing a connection pool.
type Set struct {
	Users         *UserRepo
	Roles         *RoleRepo
	Permissions   *PermissionRepo
	Audit         *AuditRepo
	Profile       *SchoolProfileRepo
	Years         *AcademicYearRepo
	Classes       *ClassLevelRepo
	Sections      *SectionRepo
	Subjects      *SubjectRepo
	Staff         *StaffRepo
	Students      *StudentRepo
	Announcements *AnnouncementRepo
	FeeTypes      *FeeTypeRepo
	Invoices      *InvoiceRepo
	Payments      *PaymentRepo
	Exams         *ExamRepo
}

func NewSet(db *sql.DB) *Set {
	return &Set{
		Users:         NewUserRepo(db),
		Roles:         NewRoleRepo(db),
		Permissions:   NewPermissionRepo(db),
		Audit:         NewAuditRepo(db),
		Profile:       NewSchoolProfileRepo(db),
		Years:         NewAcademicYearRepo(db),
		Classes:       NewClassLevelRepo(db),
		Sections:      NewSectionRepo(db),
		Subjects:      NewSubjectRepo(db),
		Staff:         NewStaffRepo(db),
		Students:      NewStudentRepo(db),
		Announcements: NewAnnouncementRepo(db),
		FeeTypes:      NewFeeTypeRepo(db),
		Invoices:      NewInvoiceRepo(db),
		Payments:      NewPaymentRepo(db),
		Exams:         NewExamRepo(db),
	}
}
