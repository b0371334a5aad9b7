package course

import (
	"context"
	"errors"
	"strings"
)

var ErrCourseNotFound = errors.New("course not found")

type Course struct {
	ID        int64
	Shortname string
	Fullname  string
	// DefaultRoleID is assigned on enrolment when a row names no role.
	DefaultRoleID int64
}

type Role struct {
	ID        int64
	Shortname string
	Name      string
}

// DisplayName prefers the course-local name over the shortname.
func (r Role) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Shortname
}

// Matches compares name against the local name and the shortname, ignoring case.
func (r Role) Matches(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(r.Name, name) || strings.EqualFold(r.Shortname, name)
}

type Group struct {
	ID       int64
	CourseID int64
	Name     string
}

// Gateway is the host platform's course, enrolment and group store.
type Gateway interface {
	GetCourse(ctx context.Context, id int64) (Course, error)
	AllowedRoles(ctx context.Context, courseID int64) ([]Role, error)
	// GroupsByName returns existing groups keyed by lowercased name.
	GroupsByName(ctx context.Context, courseID int64, names []string) (map[string]Group, error)
	// RolesFor returns the roles each account holds in the course.
	RolesFor(ctx context.Context, courseID int64, accountIDs []int64) (map[int64][]Role, error)
	IsEnrolled(ctx context.Context, courseID, accountID int64) (bool, error)
	Enrol(ctx context.Context, courseID, accountID, roleID int64) error
	// ReplaceRoles unassigns every role the account holds in the course and assigns roleID.
	ReplaceRoles(ctx context.Context, courseID, accountID, roleID int64) error
	EnsureGroup(ctx context.Context, courseID int64, name string) (Group, error)
	// AddMember reports whether a new membership was created.
	AddMember(ctx context.Context, groupID, accountID int64) (bool, error)
}

// JoinDisplayNames renders roles as a comma-separated list.
func JoinDisplayNames(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.DisplayName())
	}
	return strings.Join(names, ", ")
}

func ContainsRole(roles []Role, id int64) bool {
	for _, r := range roles {
		if r.ID == id {
			return true
		}
	}
	return false
}
