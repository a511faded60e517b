package notification

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks bititec-mailer/notification Sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bititec-mailer/config"
)

// Sender delivers one fully built message through an email provider.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	// Name identifies the provider in logs.
	Name() string
}

// Message is built fresh for every request and dropped once Send returns.
type Message struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

// ProviderError is one structured error reported by a provider. When Raw is
// set it holds the provider's entry as received and is marshalled unchanged.
type ProviderError struct {
	Message string          `json:"message"`
	Field   string          `json:"field,omitempty"`
	Help    string          `json:"help,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (e ProviderError) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain ProviderError
	return json.Marshal(plain(e))
}

// SendError is returned when a provider rejects or fails a transmission.
// Details is nil when the provider gave no structured error list.
type SendError struct {
	Provider string
	Message  string
	Details  []ProviderError
	Err      error
}

func (e *SendError) Error() string { return e.Message }

func (e *SendError) Unwrap() error { return e.Err }

// AsSendError extracts a *SendError from err's chain.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// NewSender builds the provider selected by cfg.Mail.Provider.
func NewSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	switch cfg.Mail.Provider {
	case config.ProviderSendGrid:
		return NewSendGridSender(cfg.Mail.SendGrid.APIKey, cfg.Mail.SendGrid.Host), nil
	case config.ProviderResend:
		sender, err := NewResendSender(cfg.Mail.Resend.APIKey, cfg.Mail.Resend.BaseURL)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case config.ProviderSMTP:
		return NewSMTPSender(cfg), nil
	case config.ProviderGmail:
		sender, err := NewGmailSenderFromFile(ctx, cfg.Mail.Gmail.CredentialsFile, cfg.Mail.From)
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}
