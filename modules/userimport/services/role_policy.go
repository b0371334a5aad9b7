package services

import (
	"strings"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

// RoleTransition describes a requested role change for an enrolled account.
type RoleTransition struct {
	ActorID      int64
	SubjectID    int64
	Current      []course.Role
	Requested    course.Role
	CurrentNames string
}

// RolePolicy guards role changes made through an import.
type RolePolicy struct {
	ladder course.RoleLadder
}

func NewRolePolicy(ladder course.RoleLadder) RolePolicy {
	if len(ladder) < 2 {
		ladder = course.DefaultRoleLadder
	}
	return RolePolicy{ladder: ladder}
}

// Allow rejects only an importer demoting themselves from the second rung of
// the ladder to the lowest one; everything else is accepted.
func (p RolePolicy) Allow(t RoleTransition) bool {
	if t.ActorID == 0 || t.ActorID != t.SubjectID {
		return true
	}
	if !strings.EqualFold(t.Requested.Shortname, p.ladder.Lowest()) {
		return true
	}
	if len(t.Current) != 1 {
		return true
	}
	return !strings.EqualFold(t.Current[0].Shortname, p.ladder.NextHigher())
}
