package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
)

type notifierFunc func(context.Context, Notification) error

func (f notifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

func TestReportMailer_Compose(t *testing.T) {
	t.Parallel()

	m := NewReportMailer(nil, "https://lms.example.test/")
	e := &ImportCommitted{
		Preview: &Preview{
			Name:       "s1.csv",
			ActorEmail: "admin@example.test",
			Course:     &CourseContext{Course: course.Course{ID: 42, Fullname: "Physics"}},
		},
		Result: &CommitResult{
			Counts:     map[Outcome]int{OutcomeEnrolled: 2, OutcomeCreatedAndEnrolled: 1},
			ReportName: "Rapport_s1.csv",
			Report:     []byte("x"),
		},
	}

	n := m.Compose(e)
	require.Equal(t, "admin@example.test", n.To)
	require.Equal(t, "Session import report: Physics", n.Subject)
	require.Contains(t, n.Body, "https://lms.example.test/course/view.php?id=42")
	require.Contains(t, n.Body, "CreatedAndEnrolled: 1\nEnrolled: 2\n")
	require.Equal(t, "Rapport_s1.csv", n.AttachmentName)
}

func TestReportMailer_Handle(t *testing.T) {
	t.Parallel()

	var calls int
	boom := errors.New("relay refused")
	m := NewReportMailer(notifierFunc(func(context.Context, Notification) error {
		calls++
		return boom
	}), "")

	e := &ImportCommitted{Preview: &Preview{}, Result: &CommitResult{}}
	require.NoError(t, m.Handle(context.Background(), e))
	require.Zero(t, calls)

	e.Preview.ActorEmail = "admin@example.test"
	require.ErrorIs(t, m.Handle(context.Background(), e), boom)
	require.Equal(t, 1, calls)
}
