// Package rbac resolves users to permissions and answers access checks.
//
// A permission is an (action, subject) pair. The catalog is the cross product
// of the module subjects and the four CRUD actions, plus the sentinel
// (ALL, ALL) which a role holds to be granted everything.
package rbac

import (
	"sort"
	"strings"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionAll    Action = "ALL"
)

type Subject string

const (
	SubjectSchoolProfile  Subject = "SCHOOL_PROFILE"
	SubjectAcademicYear   Subject = "ACADEMIC_YEAR"
	SubjectUserManagement Subject = "USER_MANAGEMENT"
	SubjectClassLevel     Subject = "CLASS_LEVEL"
	SubjectSection        Subject = "SECTION"
	SubjectSubject        Subject = "SUBJECT"
	SubjectStaff          Subject = "STAFF"
	SubjectFinance        Subject = "FINANCE"
	SubjectAuditLog       Subject = "AUDIT_LOG"
	SubjectStudent        Subject = "STUDENT"
	SubjectExamination    Subject = "EXAMINATION"
	SubjectAnnouncement   Subject = "ANNOUNCEMENT"
	SubjectAll            Subject = "ALL"
)

// Permission is a single grantable (action, subject) pair.
type Permission struct {
	Action  Action  `json:"action"`
	Subject Subject `json:"subject"`
}

func (p Permission) String() string { return string(p.Action) + ":" + string(p.Subject) }

// Sentinel grants every permission to the role holding it.
var Sentinel = Permission{Action: ActionAll, Subject: SubjectAll}

var crudActions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

var modules = []Subject{
	SubjectSchoolProfile,
	SubjectAcademicYear,
	SubjectUserManagement,
	SubjectClassLevel,
	SubjectSection,
	SubjectSubject,
	SubjectStaff,
	SubjectFinance,
	SubjectAuditLog,
	SubjectStudent,
	SubjectExamination,
	SubjectAnnouncement,
}

// Modules returns the subjects that make up the catalog, sentinel excluded.
func Modules() []Subject {
	out := make([]Subject, len(modules))
	copy(out, modules)
	return out
}

// Catalog returns every permission the system knows about, sentinel last.
func Catalog() []Permission {
	out := make([]Permission, 0, len(modules)*len(crudActions)+1)
	for _, m := range modules {
		for _, a := range crudActions {
			out = append(out, Permission{Action: a, Subject: m})
		}
	}
	return append(out, Sentinel)
}

// ParseAction normalizes s and reports whether it names a known action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAll:
		return a, true
	}
	return "", false
}

// ParseSubject normalizes s and reports whether it names a known subject.
func ParseSubject(s string) (Subject, bool) {
	sub := Subject(strings.ToUpper(strings.TrimSpace(s)))
	if sub == SubjectAll {
		return sub, true
	}
	for _, m := range modules {
		if m == sub {
			return sub, true
		}
	}
	return "", false
}

// Valid reports whether p is part of the catalog. (ALL, X) and (X, ALL) for
// a concrete X are not.
func (p Permission) Valid() bool {
	if p == Sentinel {
		return true
	}
	_, okA := ParseAction(string(p.Action))
	_, okS := ParseSubject(string(p.Subject))
	return okA && okS && p.Action != ActionAll && p.Subject != SubjectAll
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Allows reports whether the set grants action on subject, either directly or
// through the sentinel.
func (s PermissionSet) Allows(action Action, subject Subject) bool {
	return s.Has(Permission{Action: action, Subject: subject}) || s.Has(Sentinel)
}

// Sorted returns the permissions ordered by subject then action.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Action < out[j].Action
	})
	return out
}
