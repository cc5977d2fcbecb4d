package jobs

import (
	"context"
	"net/smtp"
	"strings"
)

// MailSender delivers one rendered message to one address.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers mail through the configured relay. In development the
// relay is Mailpit; production points at the real gateway.
type SMTPSender struct {
	Addr string
	From string
}

// Send submits a plain-text message to the relay.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(s.Addr, nil, s.From, []string{to}, []byte(msg))
}
