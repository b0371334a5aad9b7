package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/configuration"
)

func newTestNotifier(send sendFunc) *SMTPNotifier {
	n := NewSMTPNotifier(configuration.SMTPOptions{
		Host: "smtp.example.test",
		Port: 2525,
		From: "lms@example.test",
	})
	n.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	if send != nil {
		n.send = send
	}
	return n
}

func TestSMTPNotifier_Render(t *testing.T) {
	t.Parallel()

	n := newTestNotifier(nil)
	msg, err := n.Render(services.Notification{
		To:             "admin@example.test",
		Subject:        "User import report",
		Body:           "Created: 2\n",
		AttachmentName: "Rapport_users.csv",
		Attachment:     []byte("email;Result\r\n"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	text := buf.String()
	require.Contains(t, text, "lms@example.test")
	require.Contains(t, text, "admin@example.test")
	require.Contains(t, text, "User import report")
	require.Contains(t, text, "multipart/mixed")
	require.Contains(t, text, "Created: 2")
	require.Contains(t, text, "Rapport_users.csv")
	require.Contains(t, text, "text/csv")
	require.Contains(t, text, "ZW1haWw7UmVzdWx0DQo=")
}

func TestSMTPNotifier_RenderRejectsBadRecipient(t *testing.T) {
	t.Parallel()

	_, err := newTestNotifier(nil).Render(services.Notification{To: "not an address"})
	require.Error(t, err)
}

func TestSMTPNotifier_NotifySendsToRecipient(t *testing.T) {
	t.Parallel()

	var got []string
	n := newTestNotifier(func(_ context.Context, msg *gomail.Msg) error {
		var err error
		got, err = msg.GetRecipients()
		return err
	})

	err := n.Notify(context.Background(), services.Notification{To: "admin@example.test", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"admin@example.test"}, got)
}

func TestSMTPNotifier_NotifyWrapsSendError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	n := newTestNotifier(func(context.Context, *gomail.Msg) error { return boom })

	err := n.Notify(context.Background(), services.Notification{To: "admin@example.test"})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "smtp.example.test:2525")
}

func TestSMTPNotifier_NotifyHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := newTestNotifier(func(context.Context, *gomail.Msg) error {
		t.Fatal("send must not run")
		return nil
	})
	require.ErrorIs(t, n.Notify(ctx, services.Notification{To: "admin@example.test"}), context.Canceled)
}
