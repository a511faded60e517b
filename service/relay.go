package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bititec-mailer/models"
	"bititec-mailer/notification"
	"bititec-mailer/utils"
)

// RefHeader carries the request id on every outbound message.
const RefHeader = "X-Entity-Ref-ID"

// RelayService turns validated requests into exactly one provider call each.
// Nothing is retried or deduplicated.
type RelayService struct {
	formatter *Formatter
	sender    notification.Sender
	logger    *zap.Logger
}

func NewRelayService(formatter *Formatter, sender notification.Sender, logger *zap.Logger) *RelayService {
	return &RelayService{
		formatter: formatter,
		sender:    sender,
		logger:    logger,
	}
}

// SendEmail relays a free-form message. req must already be validated.
func (s *RelayService) SendEmail(ctx context.Context, req *models.EmailRequest, refID string) error {
	return s.deliver(ctx, s.formatter.EmailMessage(req), refID, "email")
}

// SendServiceCall relays a service-call access notification. req must already
// be validated.
func (s *RelayService) SendServiceCall(ctx context.Context, req *models.ServiceCallRequest, refID string) error {
	msg, err := s.formatter.ServiceCallMessage(req)
	if err != nil {
		s.logger.Error("failed to build service call email",
			zap.Error(err),
			zap.String("request_id", refID),
			zap.String("service_call_id", req.ServiceCallID.String()))
		return err
	}
	return s.deliver(ctx, msg, refID, "service_call")
}

// SendTest sends the provider smoke-test message used by the send-test command.
func (s *RelayService) SendTest(ctx context.Context, to, refID string) error {
	provider := s.sender.Name()
	body := fmt.Sprintf("If you can read this, %s is working!", provider)
	req := &models.EmailRequest{
		Email:   to,
		Subject: models.Text(provider + " Test"),
		Body:    models.Text(body),
	}
	return s.deliver(ctx, s.formatter.EmailMessage(req), refID, "test")
}

// ProviderName reports which provider messages go through.
func (s *RelayService) ProviderName() string {
	return s.sender.Name()
}

// deliver performs the single send. Client cancellation is not propagated:
// once issued, a transmission always runs to completion.
func (s *RelayService) deliver(ctx context.Context, msg *notification.Message, refID, kind string) error {
	if refID != "" {
		if msg.Headers == nil {
			msg.Headers = make(map[string]string, 1)
		}
		msg.Headers[RefHeader] = refID
	}

	err := s.sender.Send(context.WithoutCancel(ctx), msg)
	if err == nil {
		s.logger.Debug("email sent",
			zap.String("kind", kind),
			zap.String("provider", s.sender.Name()),
			zap.String("request_id", refID),
			zap.String("recipient_domain", utils.ExtractDomain(msg.To)))
		return nil
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("kind", kind),
		zap.String("provider", s.sender.Name()),
		zap.String("request_id", refID),
		zap.String("to", utils.MaskEmail(msg.To)),
	}
	if se, ok := notification.AsSendError(err); ok && se.Details != nil {
		fields = append(fields, zap.Any("details", se.Details))
	}
	s.logger.Error("failed to send email", fields...)

	return err
}
