package services_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/mail"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/memory"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/eventbus"
	"github.com/iota-uz/lms-admin/pkg/logging"
)

const courseID = 10

var (
	roleManager = course.Role{ID: 1, Shortname: "manager", Name: "Manager"}
	roleEditing = course.Role{ID: 3, Shortname: "editingteacher", Name: "Teacher"}
	roleTeacher = course.Role{ID: 4, Shortname: "teacher", Name: "Non-editing teacher"}
	roleStudent = course.Role{ID: 5, Shortname: "student", Name: "Student"}
)

type fixture struct {
	dir          *memory.Directory
	courses      *memory.Courses
	reservations *memory.Reservations
	mails        *mail.Recorder
	svc          *services.ImportService
}

func newFixture(t *testing.T, opts services.ImportOptions) *fixture {
	t.Helper()

	f := &fixture{
		dir:          memory.NewDirectory(),
		courses:      memory.NewCourses(),
		reservations: memory.NewReservations(time.Minute),
		mails:        &mail.Recorder{},
	}
	f.courses.AddCourse(course.Course{ID: courseID, Shortname: "ALG1", Fullname: "Algebra I", DefaultRoleID: roleStudent.ID},
		roleManager, roleEditing, roleTeacher, roleStudent)

	bus := eventbus.NewEventPublisher(logging.NopEntry())
	bus.Subscribe(services.NewReportMailer(f.mails, "https://lms.example.test").Handle)

	if opts.Workers == 0 {
		opts.Workers = 2
	}
	f.svc = services.NewImportService(
		f.dir, f.courses, f.reservations, &memory.Transactor{},
		services.NewRolePolicy(course.DefaultRoleLadder), bus, opts,
	)
	return f
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func (f *fixture) preview(t *testing.T, data []byte, cid int64, actor int64) *services.Preview {
	t.Helper()
	p, err := f.svc.Preview(context.Background(), services.PreviewRequest{
		Name:       "users.csv",
		Data:       data,
		Delimiter:  "semicolon",
		Encoding:   "auto",
		CourseID:   cid,
		ActorID:    actor,
		ActorEmail: "admin@example.test",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) commit(t *testing.T, p *services.Preview) *services.CommitResult {
	t.Helper()
	res, err := f.svc.Commit(context.Background(), p)
	require.NoError(t, err)
	return res
}

// resultColumn returns the last cell of every report row after the header.
func resultColumn(t *testing.T, report []byte) []string {
	t.Helper()
	require.True(t, bytes.HasPrefix(report, []byte("\uFEFF")), "report must start with a UTF-8 BOM")
	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(string(report), "\uFEFF"), "\r\n"), "\r\n")
	require.NotEmpty(t, lines)
	require.True(t, strings.HasSuffix(lines[0], ";Result"))
	out := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		out = append(out, l[strings.LastIndex(l, ";")+1:])
	}
	return out
}

func diagnosticsWithCode(ds []services.Diagnostic, code services.DiagnosticCode) []services.Diagnostic {
	var out []services.Diagnostic
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

func TestImport_CreatesAccounts(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	data := csvFile(
		"email;lastname;firstname",
		"Ana.Lopez@Example.com;Lopez;Ana",
		"",
		"bo+tag@example.com;Berg;Bo",
	)

	p := f.preview(t, data, 0, 0)
	require.Equal(t, 2, p.ValidLines)
	require.Equal(t, 2, p.ValidForCreation)
	require.Empty(t, p.ValidForReactivation)
	require.Equal(t, 1, f.dir.EmailLookups)
	require.Equal(t, 1, f.dir.UsernameLookups)

	res := f.commit(t, p)
	require.Equal(t, []string{"Created", "Created"}, resultColumn(t, res.Report))
	require.Equal(t, 2, res.Counts[services.OutcomeCreated])
	require.Zero(t, res.Failed)
	require.Equal(t, "Rapport_users.csv", res.ReportName)

	accounts := f.dir.All()
	require.Len(t, accounts, 2)
	require.Equal(t, "ana.lopez@example.com", accounts[0].Username)
	require.Equal(t, "bo_tag@example.com", accounts[1].Username)
	require.True(t, strings.HasPrefix(f.dir.Credential(accounts[0].ID), "$2a$"))
	require.Zero(t, f.reservations.Len())

	sent := f.mails.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "admin@example.test", sent[0].To)
	require.Equal(t, "User import report", sent[0].Subject)
	require.Equal(t, res.Report, sent[0].Attachment)
}

func TestImport_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	data := csvFile(
		"email;lastname;firstname;role;group",
		"a@example.com;Alpha;Ann;student;Group A",
		"b@example.com;Beta;Ben;;",
	)

	first := f.commit(t, f.preview(t, data, courseID, 0))
	require.Equal(t, []string{"CreatedAndEnrolled", "CreatedAndEnrolled"}, resultColumn(t, first.Report))

	p := f.preview(t, data, courseID, 0)
	require.Zero(t, p.ValidForCreation)
	require.Empty(t, diagnosticsWithCode(p.Diagnostics, services.CodeUnknownGroup))

	second := f.commit(t, p)
	require.Equal(t, []string{"AlreadyExists", "AlreadyExists"}, resultColumn(t, second.Report))
	require.Len(t, f.dir.All(), 2)
	require.Len(t, f.courses.Groups(courseID), 1)
}

func TestImport_ReportHasOneLinePerDataLine(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	data := csvFile(
		"email;lastname;firstname",
		"ok@example.com;Ok;Olga",
		"broken;Bad;Bill",
		"x@example.com;;Xena",
		"ok2@example.com;Ok;Omar",
	)

	p := f.preview(t, data, 0, 0)
	require.Equal(t, 2, p.ValidLines)

	res := f.commit(t, p)
	results := resultColumn(t, res.Report)
	require.Len(t, results, 4)
	require.Len(t, res.Lines, 4)
	assert.Equal(t, "Created", results[0])
	assert.Contains(t, results[1], "invalid email")
	assert.Contains(t, results[2], "missing field: lastname")
	assert.Equal(t, "Created", results[3])
	assert.Equal(t, []int{2, 3, 4, 5}, []int{res.Lines[0].Line, res.Lines[1].Line, res.Lines[2].Line, res.Lines[3].Line})
}

func TestImport_DuplicateEmailInFileCreatesOnce(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	data := csvFile(
		"email;lastname;firstname",
		"dup@example.com;One;First",
		"DUP@example.com;Two;Second",
	)

	p := f.preview(t, data, 0, 0)
	require.Equal(t, 1, p.ValidForCreation)

	res := f.commit(t, p)
	require.Equal(t, []string{"Created", "AlreadyExists"}, resultColumn(t, res.Report))
	accounts := f.dir.All()
	require.Len(t, accounts, 1)
	require.Equal(t, "Second", accounts[0].Firstname)
}

func TestImport_AmbiguousEmailIsExcluded(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	f.dir.Seed(account.Account{Email: "shared@example.com", Username: "shared1"})
	f.dir.Seed(account.Account{Email: "Shared@example.com", Username: "shared2"})

	data := csvFile(
		"email;lastname;firstname",
		"shared@example.com;Sh;Sam",
		"fresh@example.com;Fr;Fay",
	)
	p := f.preview(t, data, 0, 0)
	require.Equal(t, 1, p.ValidLines)

	warnings := diagnosticsWithCode(p.Diagnostics, services.CodeEmailAlreadyUsed)
	require.Len(t, warnings, 1)
	require.Equal(t, 2, warnings[0].Line)
	require.Equal(t, services.SeverityWarning, warnings[0].Severity)

	res := f.commit(t, p)
	results := resultColumn(t, res.Report)
	require.Contains(t, results[0], "email already used")
	require.Equal(t, "Created", results[1])
	require.Len(t, f.dir.All(), 3)
}

func TestImport_UsernameHeldByAnotherAccountIsAmbiguous(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	f.dir.Seed(account.Account{Email: "eve@example.com", Username: "eve@example.com"})
	f.dir.Seed(account.Account{Email: "other@example.com", Username: "eve@example.com"})
	f.dir.Seed(account.Account{Email: "third@example.com", Username: "third"})

	data := csvFile(
		"email;lastname;firstname",
		"eve@example.com;Eve;Eva",
		"third@example.com;Third;Tom",
	)
	p := f.preview(t, data, 0, 0)
	require.Equal(t, 1, p.ValidLines)
	require.Len(t, diagnosticsWithCode(p.Diagnostics, services.CodeEmailAlreadyUsed), 1)
	require.Len(t, diagnosticsWithCode(p.Diagnostics, services.CodeUserExists), 1)
}

func TestImport_NewAccountSkipsTakenUsername(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	f.dir.Seed(account.Account{Email: "someone@else.com", Username: "kim@example.com"})
	f.dir.Seed(account.Account{Email: "another@else.com", Username: "kim@example.com1"})

	p := f.preview(t, csvFile("email;lastname;firstname", "kim@example.com;Kim;Kai"), 0, 0)
	require.Equal(t, 1, p.ValidForCreation)

	res := f.commit(t, p)
	require.Equal(t, []string{"Created"}, resultColumn(t, res.Report))
	created, err := f.dir.FindByEmails(context.Background(), []string{"kim@example.com"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, "kim@example.com2", created[0].Username)
}

func TestImport_ReactivatesSuspendedAccount(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	sleeper := f.dir.Seed(account.Account{Email: "sleepy@example.com", Username: "sleepy", Suspended: true})

	data := csvFile(
		"email;lastname;firstname;role;group",
		"sleepy@example.com;Sl;Sid;;",
	)
	p := f.preview(t, data, courseID, 0)
	require.Contains(t, p.ValidForReactivation, "sleepy@example.com")
	require.Len(t, diagnosticsWithCode(p.Diagnostics, services.CodeReactivation), 1)
	require.Empty(t, diagnosticsWithCode(p.Diagnostics, services.CodeUserExists))

	res := f.commit(t, p)
	require.Equal(t, []string{"ReactivatedAndEnrolled"}, resultColumn(t, res.Report))
	got, _ := f.dir.Get(sleeper.ID)
	require.False(t, got.Suspended)

	held, err := f.courses.RolesFor(context.Background(), courseID, []int64{sleeper.ID})
	require.NoError(t, err)
	require.Equal(t, []course.Role{roleStudent}, held[sleeper.ID])
}

func TestImport_ReactivationWithoutCourse(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	f.dir.Seed(account.Account{Email: "z@example.com", Username: "z", Suspended: true})

	res := f.commit(t, f.preview(t, csvFile("email;lastname;firstname", "z@example.com;Z;Zoe"), 0, 0))
	require.Equal(t, []string{"Reactivated"}, resultColumn(t, res.Report))
}

func TestImport_SessionEnrolmentAndGroups(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	existing := f.dir.Seed(account.Account{Email: "old@example.com", Username: "old", Firstname: "Olaf", Lastname: "Old"})
	promoted := f.dir.Seed(account.Account{Email: "up@example.com", Username: "up", Firstname: "Uma", Lastname: "Up"})
	f.courses.SetRoles(courseID, promoted.ID, roleStudent.ID)
	f.courses.AddGroup(courseID, "Group A")

	data := csvFile(
		"email;lastname;firstname;role;group",
		"new@example.com;New;Nina;teacher;Group B",
		"old@example.com;Old;Olaf;;group a",
		"up@example.com;Up;Uma;Non-editing teacher;",
		"new2@example.com;New;Ned;student;GROUP B",
	)
	p := f.preview(t, data, courseID, 0)
	require.True(t, p.IsSessionImport())

	unknown := diagnosticsWithCode(p.Diagnostics, services.CodeUnknownGroup)
	require.Len(t, unknown, 1)
	require.Equal(t, 2, unknown[0].Line)

	changes := diagnosticsWithCode(p.Diagnostics, services.CodeRoleChange)
	require.Len(t, changes, 1)
	require.Equal(t, "role change: Student -> Non-editing teacher", changes[0].Message)

	res := f.commit(t, p)
	require.Equal(t,
		[]string{"CreatedAndEnrolled", "Enrolled", "RoleUpdated", "CreatedAndEnrolled"},
		resultColumn(t, res.Report))

	groups := f.courses.Groups(courseID)
	require.Len(t, groups, 2)
	require.Equal(t, []int64{existing.ID}, f.courses.Members(groups[0].ID))
	require.Len(t, f.courses.Members(groups[1].ID), 2)

	held, err := f.courses.RolesFor(context.Background(), courseID, []int64{existing.ID, promoted.ID})
	require.NoError(t, err)
	require.Equal(t, []course.Role{roleStudent}, held[existing.ID])
	require.Equal(t, []course.Role{roleTeacher}, held[promoted.ID])

	sent := f.mails.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Session import report: Algebra I", sent[0].Subject)
	require.Contains(t, sent[0].Body, fmt.Sprintf("https://lms.example.test/course/view.php?id=%d", courseID))
}

func TestImport_SelfDemotionIsRejected(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	actor := f.dir.Seed(account.Account{Email: "me@example.com", Username: "me"})
	colleague := f.dir.Seed(account.Account{Email: "col@example.com", Username: "col"})
	f.courses.SetRoles(courseID, actor.ID, roleTeacher.ID)
	f.courses.SetRoles(courseID, colleague.ID, roleTeacher.ID)

	data := csvFile(
		"email;lastname;firstname;role;group",
		"me@example.com;Me;Max;student;",
		"col@example.com;Col;Cleo;student;",
	)
	p := f.preview(t, data, courseID, actor.ID)
	require.Equal(t, 1, p.ValidLines)

	lost := diagnosticsWithCode(p.Diagnostics, services.CodeLosePrivilege)
	require.Len(t, lost, 1)
	require.Equal(t, 2, lost[0].Line)
	require.Equal(t, services.SeverityError, lost[0].Severity)

	res := f.commit(t, p)
	results := resultColumn(t, res.Report)
	require.Contains(t, results[0], "would lose privilege")
	require.Equal(t, "RoleUpdated", results[1])

	held, err := f.courses.RolesFor(context.Background(), courseID, []int64{actor.ID})
	require.NoError(t, err)
	require.Equal(t, []course.Role{roleTeacher}, held[actor.ID])
}

func TestImport_RowFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	blocked := f.dir.Seed(account.Account{Email: "blocked@example.com", Username: "blocked"})
	f.courses.FailEnrol[blocked.ID] = errors.New("enrolment plugin disabled")

	data := csvFile(
		"email;lastname;firstname;role;group",
		"blocked@example.com;Bl;Bea;;",
		"fine@example.com;Fi;Fin;;",
	)
	res := f.commit(t, f.preview(t, data, courseID, 0))

	results := resultColumn(t, res.Report)
	require.Equal(t, "Failed: enrol: enrolment plugin disabled", results[0])
	require.Equal(t, "CreatedAndEnrolled", results[1])
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 1, res.Counts[services.OutcomeFailed])
}

func TestImport_NotificationFailureIsReported(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	f.mails.Err = errors.New("smtp down")

	res := f.commit(t, f.preview(t, csvFile("email;lastname;firstname", "n@example.com;N;Nia"), 0, 0))
	require.Error(t, res.NotifyErr)
	require.Contains(t, res.NotifyErr.Error(), "smtp down")
	require.Equal(t, []string{"Created"}, resultColumn(t, res.Report))
}

func TestPreview_FatalBatches(t *testing.T) {
	f := newFixture(t, services.ImportOptions{MaxRows: 2})

	cases := []struct {
		name string
		data []byte
		code services.DiagnosticCode
	}{
		{"too many rows", csvFile("email;lastname;firstname", "a@x.io;A;A", "b@x.io;B;B", "c@x.io;C;C"), services.CodeTooManyRows},
		{"no valid rows", csvFile("email;lastname;firstname", "nope;A;A"), services.CodeNoValidRows},
		{"missing headers", csvFile("email;firstname", "a@x.io;A"), services.CodeMissingHeaders},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Preview(context.Background(), services.PreviewRequest{Data: tc.data, Delimiter: "semicolon"})
			require.ErrorIs(t, err, services.ErrFatal)
			var fe *services.FatalError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, tc.code, fe.Diagnostic.Code)
		})
	}
	require.Empty(t, f.dir.All())
}

func TestPreview_UnknownCourse(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	_, err := f.svc.Preview(context.Background(), services.PreviewRequest{
		Data:      csvFile("email;lastname;firstname", "a@x.io;A;A"),
		Delimiter: "semicolon",
		CourseID:  999,
	})
	require.ErrorIs(t, err, memory.ErrCourseNotFound)
}

func TestCommit_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, services.ImportOptions{})
	p := f.preview(t, csvFile("email;lastname;firstname", "a@x.io;A;A"), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Commit(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, f.dir.All())
}
