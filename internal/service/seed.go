package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
)

// TeacherRole is the seeded system role for teaching staff.
const TeacherRole = "Teacher"

type systemRole struct {
	name        string
	description string
	grants      []rbac.Permission
}

func systemRoles() []systemRole {
	var teacher []rbac.Permission
	for _, s := range []rbac.Subject{
		rbac.SubjectSchoolProfile, rbac.SubjectAcademicYear, rbac.SubjectClassLevel, rbac.SubjectSection,
		rbac.SubjectSubject, rbac.SubjectStudent, rbac.SubjectExamination, rbac.SubjectAnnouncement,
	} {
		teacher = append(teacher, rbac.Permission{Action: rbac.ActionRead, Subject: s})
	}
	teacher = append(teacher,
		rbac.Permission{Action: rbac.ActionUpdate, Subject: rbac.SubjectExamination},
	)
	return []systemRole{
		{name: AdminRole, description: "Full access to every module", grants: []rbac.Permission{rbac.Sentinel}},
		{name: TeacherRole, description: "Read academics and students, grade exams", grants: teacher},
	}
}

// Seeder installs the permission catalog and the system roles. Running it
// again is harmless.
type Seeder struct {
	Roles RoleStore
	Perms PermissionStore
	Log   *zap.Logger
}

func (s *Seeder) Run(ctx context.Context) error {
	if err := s.Perms.EnsureCatalog(ctx); err != nil {
		return err
	}
	for _, sr := range systemRoles() {
		role, err := s.Roles.GetByName(ctx, sr.name)
		if errors.Is(err, repository.ErrNotFound) {
			role = &model.Role{Name: sr.name, Description: sr.description, IsSystem: true}
			err = s.Roles.Create(ctx, role)
		}
		if err != nil {
			return fmt.Errorf("seed role %s: %w", sr.name, err)
		}
		for _, p := range sr.grants {
			row, err := s.Perms.Get(ctx, p)
			if err != nil {
				return fmt.Errorf("seed role %s: permission %s: %w", sr.name, p, err)
			}
			if err := s.Roles.GrantPermission(ctx, role.ID, row.ID); err != nil {
				return fmt.Errorf("seed role %s: grant %s: %w", sr.name, p, err)
			}
		}
		if s.Log != nil {
			s.Log.Info("system role ready", zap.String("role", sr.name), zap.Int("grants", len(sr.grants)))
		}
	}
	return nil
}
