package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/jordan-wright/email"

	"bititec-mailer/config"
)

// SMTPSender relays through a plain SMTP server with PLAIN auth.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	s := cfg.Mail.SMTP
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", s.Host, s.Port),
		auth: auth,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *SMTPSender) Name() string { return "SMTP" }

// Send blocks until the SMTP exchange finishes; net/smtp has no context
// support, so ctx is not consulted.
func (s *SMTPSender) Send(_ context.Context, msg *Message) error {
	e := buildEnvelope(msg)

	if err := s.send(e, s.addr, s.auth); err != nil {
		se := &SendError{
			Provider: s.Name(),
			Message:  err.Error(),
			Err:      fmt.Errorf("failed to send email: %w", err),
		}
		var reply *textproto.Error
		if errors.As(err, &reply) {
			se.Message = reply.Msg
			se.Details = []ProviderError{{
				Message: reply.Msg,
				Reason:  strconv.Itoa(reply.Code),
			}}
		}
		return se
	}

	return nil
}

// buildEnvelope converts a Message into a multipart/alternative email.
func buildEnvelope(msg *Message) *email.Email {
	e := email.NewEmail()
	e.From = msg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	e.HTML = []byte(msg.HTML)
	for k, v := range msg.Headers {
		e.Headers.Set(k, v)
	}
	return e
}
