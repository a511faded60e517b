package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v3"
)

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender builds the sender. An empty baseURL keeps the SDK default.
func NewResendSender(apiKey, baseURL string) (*ResendSender, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendSender{client: client}, nil
}

func (s *ResendSender) Name() string { return "Resend" }

func (s *ResendSender) Send(ctx context.Context, msg *Message) error {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
	}

	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		se := &SendError{
			Provider: s.Name(),
			Message:  strings.TrimPrefix(err.Error(), "[ERROR]: "),
			Err:      fmt.Errorf("resend: %w", err),
		}
		var rateErr *resend.RateLimitError
		if errors.As(err, &rateErr) {
			se.Message = rateErr.Message
			se.Details = []ProviderError{{
				Message: rateErr.Message,
				Reason:  "rate_limit_exceeded",
			}}
		}
		return se
	}
	return nil
}
