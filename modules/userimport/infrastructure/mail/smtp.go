package mail

import (
	"bytes"
	"context"
	"time"

	"github.com/go-faster/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/configuration"
)

const reportContentType gomail.ContentType = "text/csv"

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPNotifier sends notifications through an SMTP relay, upgrading to
// STARTTLS when the relay offers it.
type SMTPNotifier struct {
	opts configuration.SMTPOptions
	now  func() time.Time
	send sendFunc
}

func NewSMTPNotifier(opts configuration.SMTPOptions) *SMTPNotifier {
	n := &SMTPNotifier{opts: opts, now: time.Now}
	n.send = n.dialAndSend
	return n
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg services.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := n.Render(msg)
	if err != nil {
		return err
	}
	if err := n.send(ctx, m); err != nil {
		return errors.Wrapf(err, "smtp send via %s:%d", n.opts.Host, n.opts.Port)
	}
	return nil
}

// Render builds the message: a plain text body and, when present, the
// attachment as text/csv.
func (n *SMTPNotifier) Render(msg services.Notification) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(n.opts.From); err != nil {
		return nil, errors.Wrap(err, "from address")
	}
	if err := m.To(msg.To); err != nil {
		return nil, errors.Wrap(err, "recipient address")
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(n.now())
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	if len(msg.Attachment) > 0 {
		err := m.AttachReader(msg.AttachmentName, bytes.NewReader(msg.Attachment),
			gomail.WithFileContentType(reportContentType))
		if err != nil {
			return nil, errors.Wrap(err, "attach report")
		}
	}
	return m, nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(n.opts.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if n.opts.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(n.opts.User),
			gomail.WithPassword(n.opts.Password),
		)
	}
	client, err := gomail.NewClient(n.opts.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	return client.DialAndSendWithContext(ctx, msg)
}
