package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

func TestRolePolicy_Allow(t *testing.T) {
	t.Parallel()

	student := course.Role{ID: 5, Shortname: "student", Name: "Student"}
	teacher := course.Role{ID: 4, Shortname: "teacher", Name: "Teacher"}
	editing := course.Role{ID: 3, Shortname: "editingteacher", Name: "Editing teacher"}

	policy := NewRolePolicy(course.DefaultRoleLadder)

	cases := []struct {
		name string
		tr   RoleTransition
		want bool
	}{
		{
			name: "self demotion from next-higher role is rejected",
			tr:   RoleTransition{ActorID: 7, SubjectID: 7, Current: []course.Role{teacher}, Requested: student},
			want: false,
		},
		{
			name: "same change for another user is accepted",
			tr:   RoleTransition{ActorID: 7, SubjectID: 8, Current: []course.Role{teacher}, Requested: student},
			want: true,
		},
		{
			name: "self change from a higher role is accepted",
			tr:   RoleTransition{ActorID: 7, SubjectID: 7, Current: []course.Role{editing}, Requested: student},
			want: true,
		},
		{
			name: "self change while holding several roles is accepted",
			tr:   RoleTransition{ActorID: 7, SubjectID: 7, Current: []course.Role{teacher, editing}, Requested: student},
			want: true,
		},
		{
			name: "self promotion is accepted",
			tr:   RoleTransition{ActorID: 7, SubjectID: 7, Current: []course.Role{student}, Requested: teacher},
			want: true,
		},
		{
			name: "unknown actor is never treated as self",
			tr:   RoleTransition{ActorID: 0, SubjectID: 0, Current: []course.Role{teacher}, Requested: student},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.Allow(tc.tr))
		})
	}
}

func TestNewRolePolicy_FallsBackToDefaultLadder(t *testing.T) {
	t.Parallel()

	policy := NewRolePolicy(course.RoleLadder{"solo"})
	assert.False(t, policy.Allow(RoleTransition{
		ActorID:   1,
		SubjectID: 1,
		Current:   []course.Role{{Shortname: "teacher"}},
		Requested: course.Role{Shortname: "student"},
	}))
}
