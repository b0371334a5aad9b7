package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/pkg/composables"
)

var ErrCourseNotFound = course.ErrCourseNotFound

// roleName prefers the course-local label over the global role name.
const roleName = `COALESCE(NULLIF(cr.local_name, ''), r.name)`

type CourseRepository struct{}

func NewCourseRepository() course.Gateway {
	return &CourseRepository{}
}

func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (course.Course, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return course.Course{}, err
	}
	var c course.Course
	err = tx.QueryRow(ctx, `
SELECT id, shortname, fullname, COALESCE(default_role_id, 0)
FROM courses
WHERE id = $1
`, id).Scan(&c.ID, &c.Shortname, &c.Fullname, &c.DefaultRoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return course.Course{}, ErrCourseNotFound
		}
		return course.Course{}, gerrors.Wrap(err, "get course")
	}
	return c, nil
}

func (r *CourseRepository) AllowedRoles(ctx context.Context, courseID int64) ([]course.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT r.id, r.shortname, `+roleName+`
FROM course_roles cr
JOIN roles r ON r.id = cr.role_id
WHERE cr.course_id = $1
ORDER BY r.id
`, courseID)
	if err != nil {
		return nil, gerrors.Wrap(err, "query course roles")
	}
	defer rows.Close()

	var out []course.Role
	for rows.Next() {
		var role course.Role
		if err := rows.Scan(&role.ID, &role.Shortname, &role.Name); err != nil {
			return nil, gerrors.Wrap(err, "scan role")
		}
		out = append(out, role)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CourseRepository) GroupsByName(ctx context.Context, courseID int64, names []string) (map[string]course.Group, error) {
	out := map[string]course.Group{}
	if len(names) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT id, course_id, name
FROM course_groups
WHERE course_id = $1 AND lower(name) = ANY($2)
`, courseID, lowered(names))
	if err != nil {
		return nil, gerrors.Wrap(err, "query course groups")
	}
	defer rows.Close()

	for rows.Next() {
		var g course.Group
		if err := rows.Scan(&g.ID, &g.CourseID, &g.Name); err != nil {
			return nil, gerrors.Wrap(err, "scan group")
		}
		out[strings.ToLower(g.Name)] = g
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CourseRepository) RolesFor(ctx context.Context, courseID int64, accountIDs []int64) (map[int64][]course.Role, error) {
	out := map[int64][]course.Role{}
	if len(accountIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT ra.account_id, r.id, r.shortname, `+roleName+`
FROM role_assignments ra
JOIN roles r ON r.id = ra.role_id
LEFT JOIN course_roles cr ON cr.course_id = ra.course_id AND cr.role_id = ra.role_id
WHERE ra.course_id = $1 AND ra.account_id = ANY($2)
ORDER BY ra.account_id, r.id
`, courseID, accountIDs)
	if err != nil {
		return nil, gerrors.Wrap(err, "query role assignments")
	}
	defer rows.Close()

	for rows.Next() {
		var accountID int64
		var role course.Role
		if err := rows.Scan(&accountID, &role.ID, &role.Shortname, &role.Name); err != nil {
			return nil, gerrors.Wrap(err, "scan role assignment")
		}
		out[accountID] = append(out[accountID], role)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CourseRepository) IsEnrolled(ctx context.Context, courseID, accountID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var enrolled bool
	err = tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM enrolments WHERE course_id = $1 AND account_id = $2)
`, courseID, accountID).Scan(&enrolled)
	if err != nil {
		return false, gerrors.Wrap(err, "check enrolment")
	}
	return enrolled, nil
}

func (r *CourseRepository) Enrol(ctx context.Context, courseID, accountID, roleID int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO enrolments (course_id, account_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, courseID, accountID); err != nil {
		return gerrors.Wrap(err, "failed to enrol")
	}
	if roleID == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO role_assignments (course_id, account_id, role_id)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
`, courseID, accountID, roleID); err != nil {
		return gerrors.Wrap(err, "failed to assign role")
	}
	return nil
}

func (r *CourseRepository) ReplaceRoles(ctx context.Context, courseID, accountID, roleID int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM role_assignments
WHERE course_id = $1 AND account_id = $2
`, courseID, accountID); err != nil {
		return gerrors.Wrap(err, "failed to unassign roles")
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO role_assignments (course_id, account_id, role_id)
VALUES ($1, $2, $3)
`, courseID, accountID, roleID); err != nil {
		return gerrors.Wrap(err, "failed to assign role")
	}
	return nil
}

func (r *CourseRepository) EnsureGroup(ctx context.Context, courseID int64, name string) (course.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return course.Group{}, err
	}
	g := course.Group{CourseID: courseID}
	err = tx.QueryRow(ctx, `
SELECT id, name
FROM course_groups
WHERE course_id = $1 AND lower(name) = lower($2)
`, courseID, name).Scan(&g.ID, &g.Name)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return course.Group{}, gerrors.Wrap(err, "find group")
	}

	g.Name = name
	err = tx.QueryRow(ctx, `
INSERT INTO course_groups (course_id, name)
VALUES ($1, $2)
RETURNING id
`, courseID, name).Scan(&g.ID)
	if err != nil {
		return course.Group{}, gerrors.Wrap(err, "failed to create group")
	}
	return g, nil
}

func (r *CourseRepository) AddMember(ctx context.Context, groupID, accountID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO group_members (group_id, account_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, groupID, accountID)
	if err != nil {
		return false, gerrors.Wrap(err, "failed to add group member")
	}
	return tag.RowsAffected() > 0, nil
}
