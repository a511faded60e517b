package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	netmail "net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendGridEndpoint    = "/v3/mail/send"
)

// SendGridSender posts messages to the SendGrid v3 mail/send API.
type SendGridSender struct {
	apiKey string
	host   string
}

func NewSendGridSender(apiKey, host string) *SendGridSender {
	if host == "" {
		host = defaultSendGridHost
	}
	return &SendGridSender{apiKey: apiKey, host: host}
}

func (s *SendGridSender) Name() string { return "SendGrid" }

func (s *SendGridSender) Send(ctx context.Context, msg *Message) error {
	from := sgAddress(msg.From)
	to := sgAddress(msg.To)

	m := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	if len(msg.Headers) > 0 {
		m.Headers = msg.Headers
	}

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = http.MethodPost
	request.Body = sgmail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return &SendError{
			Provider: s.Name(),
			Message:  err.Error(),
			Err:      fmt.Errorf("sendgrid request: %w", err),
		}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return &SendError{
			Provider: s.Name(),
			Message:  http.StatusText(resp.StatusCode),
			Details:  parseSendGridErrors(resp.Body),
			Err:      fmt.Errorf("sendgrid responded with status %d", resp.StatusCode),
		}
	}

	return nil
}

// sgAddress splits "Name <addr>" for SendGrid; anything unparsable is passed
// through as a bare address and left for the API to reject.
func sgAddress(addr string) *sgmail.Email {
	if parsed, err := netmail.ParseAddress(addr); err == nil {
		return sgmail.NewEmail(parsed.Name, parsed.Address)
	}
	return sgmail.NewEmail("", addr)
}

type sendGridErrorBody struct {
	Errors []json.RawMessage `json:"errors"`
}

type sendGridError struct {
	Message string          `json:"message"`
	Field   *string         `json:"field"`
	Help    json.RawMessage `json:"help"`
}

// parseSendGridErrors keeps each entry of the response's errors list as sent,
// with the common fields also decoded for logging.
func parseSendGridErrors(body string) []ProviderError {
	var parsed sendGridErrorBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Errors == nil {
		return nil
	}

	details := make([]ProviderError, 0, len(parsed.Errors))
	for _, raw := range parsed.Errors {
		pe := ProviderError{Raw: raw}
		var e sendGridError
		if json.Unmarshal(raw, &e) == nil {
			pe.Message = e.Message
			if e.Field != nil {
				pe.Field = *e.Field
			}
			var help string
			if json.Unmarshal(e.Help, &help) == nil {
				pe.Help = help
			}
		}
		details = append(details, pe)
	}
	return details
}
