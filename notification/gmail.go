package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailSender sends through the Gmail API as the configured sender, using a
// service account with domain-wide delegation.
type GmailSender struct {
	service *gmail.Service
}

// NewGmailSenderFromFile reads service account credentials from path and
// impersonates senderAddress.
func NewGmailSenderFromFile(ctx context.Context, path, senderAddress string) (*GmailSender, error) {
	creds, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to read credentials: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(creds, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
	}
	jwtConfig.Subject = senderAddress

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return NewGmailSender(svc), nil
}

func NewGmailSender(svc *gmail.Service) *GmailSender {
	return &GmailSender{service: svc}
}

func (s *GmailSender) Name() string { return "Gmail" }

func (s *GmailSender) Send(ctx context.Context, msg *Message) error {
	raw, err := buildEnvelope(msg).Bytes()
	if err != nil {
		return fmt.Errorf("gmail: failed to build message: %w", err)
	}

	gmsg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := s.service.Users.Messages.Send("me", gmsg).Context(ctx).Do(); err != nil {
		se := &SendError{
			Provider: s.Name(),
			Message:  err.Error(),
			Err:      fmt.Errorf("gmail: %w", err),
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			se.Message = apiErr.Message
			for _, item := range apiErr.Errors {
				se.Details = append(se.Details, ProviderError{
					Message: item.Message,
					Reason:  item.Reason,
				})
			}
		}
		return se
	}
	return nil
}
