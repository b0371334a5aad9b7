package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Notification is an email with one attachment.
type Notification struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// Notifier delivers notifications; the SMTP implementation lives in infrastructure.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ImportCommitted is published once a batch has been committed and its report built.
type ImportCommitted struct {
	Preview *Preview
	Result  *CommitResult
}

// ReportMailer sends the report of a committed batch to the importing user.
type ReportMailer struct {
	notifier Notifier
	origin   string
}

func NewReportMailer(notifier Notifier, origin string) *ReportMailer {
	return &ReportMailer{notifier: notifier, origin: strings.TrimRight(origin, "/")}
}

// Handle is the event bus subscriber for ImportCommitted.
func (m *ReportMailer) Handle(ctx context.Context, e *ImportCommitted) error {
	if e.Preview.ActorEmail == "" {
		return nil
	}
	n := m.Compose(e)
	if err := m.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("send import report to %s: %w", n.To, err)
	}
	return nil
}

func (m *ReportMailer) Compose(e *ImportCommitted) Notification {
	p, r := e.Preview, e.Result

	var body strings.Builder
	subject := "User import report"
	if p.IsSessionImport() {
		subject = fmt.Sprintf("Session import report: %s", p.Course.Course.Fullname)
		fmt.Fprintf(&body, "The import into %s is finished.\n", p.Course.Course.Fullname)
		fmt.Fprintf(&body, "Course: %s/course/view.php?id=%d\n\n", m.origin, p.Course.Course.ID)
	} else {
		fmt.Fprintf(&body, "The user import of %s is finished.\n\n", p.Name)
	}

	outcomes := make([]string, 0, len(r.Counts))
	for o := range r.Counts {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&body, "%s: %d\n", o, r.Counts[Outcome(o)])
	}
	fmt.Fprintf(&body, "\nThe detailed report is attached (%s).\n", r.ReportName)

	return Notification{
		To:             p.ActorEmail,
		Subject:        subject,
		Body:           body.String(),
		AttachmentName: r.ReportName,
		Attachment:     r.Report,
	}
}
