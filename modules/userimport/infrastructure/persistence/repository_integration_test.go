package persistence_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/persistence"
	"github.com/iota-uz/lms-admin/pkg/composables"
	"github.com/iota-uz/lms-admin/pkg/itf"
)

func setupDB(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	itf.RequirePostgres(t)

	pool := itf.NewPool(t)
	ctx := composables.WithPool(context.Background(), pool)
	require.NoError(t, persistence.Migrate(ctx, pool))
	return ctx, pool
}

func seedCourse(t *testing.T, ctx context.Context, pool *pgxpool.Pool) int64 {
	t.Helper()

	var courseID int64
	require.NoError(t, pool.QueryRow(ctx, `
INSERT INTO courses (shortname, fullname, default_role_id)
VALUES ('ALG1', 'Algebra I', (SELECT id FROM roles WHERE shortname = 'student'))
RETURNING id
`).Scan(&courseID))
	_, err := pool.Exec(ctx, `
INSERT INTO course_roles (course_id, role_id, local_name)
SELECT $1, id, CASE WHEN shortname = 'student' THEN 'Learner' ELSE '' END FROM roles
`, courseID)
	require.NoError(t, err)
	return courseID
}

func TestAccountRepository_CreateFindReactivate(t *testing.T) {
	ctx, pool := setupDB(t)
	repo := persistence.NewAccountRepository()

	created, err := repo.Create(ctx, account.CreateParams{
		Email:     "Ana@Example.com",
		Username:  "ana@example.com",
		Firstname: "Ana",
		Lastname:  "Lopez",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = repo.Create(ctx, account.CreateParams{Email: "other@example.com", Username: "ANA@example.com", Firstname: "X", Lastname: "Y"})
	require.ErrorIs(t, err, persistence.ErrUsernameTaken)

	found, err := repo.FindByEmails(ctx, []string{"ana@example.com"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, created.ID, found[0].ID)

	byName, err := repo.FindByUsernames(ctx, []string{"ana@example.com", "nobody"})
	require.NoError(t, err)
	require.Len(t, byName, 1)

	_, err = pool.Exec(ctx, `UPDATE accounts SET suspended = TRUE WHERE id = $1`, created.ID)
	require.NoError(t, err)

	changed, err := repo.Reactivate(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Reactivate(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = repo.Reactivate(ctx, created.ID+1000)
	require.ErrorIs(t, err, persistence.ErrAccountNotFound)

	require.NoError(t, repo.UpdateProfile(ctx, created.ID, "Anna", "López"))
	found, err = repo.FindByEmails(ctx, []string{"ana@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Anna", found[0].Firstname)
	require.Equal(t, "López", found[0].Lastname)
}

func TestCourseRepository_EnrolmentAndGroups(t *testing.T) {
	ctx, pool := setupDB(t)
	courseID := seedCourse(t, ctx, pool)
	accounts := persistence.NewAccountRepository()
	courses := persistence.NewCourseRepository()

	acc, err := accounts.Create(ctx, account.CreateParams{Email: "b@example.com", Username: "b@example.com", Firstname: "B", Lastname: "B"})
	require.NoError(t, err)

	c, err := courses.GetCourse(ctx, courseID)
	require.NoError(t, err)
	require.Equal(t, "Algebra I", c.Fullname)
	require.NotZero(t, c.DefaultRoleID)

	roles, err := courses.AllowedRoles(ctx, courseID)
	require.NoError(t, err)
	require.Len(t, roles, 4)

	_, err = courses.GetCourse(ctx, courseID+1000)
	require.ErrorIs(t, err, persistence.ErrCourseNotFound)

	enrolled, err := courses.IsEnrolled(ctx, courseID, acc.ID)
	require.NoError(t, err)
	require.False(t, enrolled)

	require.NoError(t, courses.Enrol(ctx, courseID, acc.ID, c.DefaultRoleID))
	enrolled, err = courses.IsEnrolled(ctx, courseID, acc.ID)
	require.NoError(t, err)
	require.True(t, enrolled)

	held, err := courses.RolesFor(ctx, courseID, []int64{acc.ID})
	require.NoError(t, err)
	require.Len(t, held[acc.ID], 1)
	require.Equal(t, "Learner", held[acc.ID][0].Name)

	var teacherID int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT id FROM roles WHERE shortname = 'teacher'`).Scan(&teacherID))
	require.NoError(t, courses.ReplaceRoles(ctx, courseID, acc.ID, teacherID))
	held, err = courses.RolesFor(ctx, courseID, []int64{acc.ID})
	require.NoError(t, err)
	require.Len(t, held[acc.ID], 1)
	require.Equal(t, teacherID, held[acc.ID][0].ID)

	g, err := courses.EnsureGroup(ctx, courseID, "Group A")
	require.NoError(t, err)
	again, err := courses.EnsureGroup(ctx, courseID, "group a")
	require.NoError(t, err)
	require.Equal(t, g.ID, again.ID)

	groups, err := courses.GroupsByName(ctx, courseID, []string{"GROUP A", "missing"})
	require.NoError(t, err)
	require.Contains(t, groups, "group a")
	require.Len(t, groups, 1)

	added, err := courses.AddMember(ctx, g.ID, acc.ID)
	require.NoError(t, err)
	require.True(t, added)
	added, err = courses.AddMember(ctx, g.ID, acc.ID)
	require.NoError(t, err)
	require.False(t, added)
}

func TestInTx_RollsBackFailedRow(t *testing.T) {
	ctx, _ := setupDB(t)
	repo := persistence.NewAccountRepository()

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		if _, err := repo.Create(txCtx, account.CreateParams{Email: "c@example.com", Username: "c@example.com", Firstname: "C", Lastname: "C"}); err != nil {
			return err
		}
		_, err := repo.Create(txCtx, account.CreateParams{Email: "d@example.com", Username: "c@example.com", Firstname: "D", Lastname: "D"})
		return err
	})
	require.ErrorIs(t, err, persistence.ErrUsernameTaken)

	found, err := repo.FindByEmails(ctx, []string{"c@example.com"})
	require.NoError(t, err)
	require.Empty(t, found)
}
