package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"bititec-mailer/config"
)

func testMessage() *Message {
	return &Message{
		To:      "client@example.com",
		From:    "Bititec Systems <noreply@bititecsystems.com>",
		Subject: "Service Call Details: T-1 for Acme, NYC",
		Text:    "hello",
		HTML:    "<p>hello</p>",
		Headers: map[string]string{"X-Entity-Ref-ID": "req-1"},
	}
}

func TestSendGridSender_Success(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender("SG.test", srv.URL)
	require.NoError(t, sender.Send(context.Background(), testMessage()))

	from := captured["from"].(map[string]any)
	assert.Equal(t, "noreply@bititecsystems.com", from["email"])
	assert.Equal(t, "Bititec Systems", from["name"])
	assert.Equal(t, "Service Call Details: T-1 for Acme, NYC", captured["subject"])

	personalizations := captured["personalizations"].([]any)
	require.Len(t, personalizations, 1)
	to := personalizations[0].(map[string]any)["to"].([]any)
	assert.Equal(t, "client@example.com", to[0].(map[string]any)["email"])

	contents := captured["content"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "text/plain", contents[0].(map[string]any)["type"])
	assert.Equal(t, "text/html", contents[1].(map[string]any)["type"])

	headers := captured["headers"].(map[string]any)
	assert.Equal(t, "req-1", headers["X-Entity-Ref-ID"])
}

func TestSendGridSender_Failure(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantDetails string
		wantFields  []ProviderError
	}{
		{
			name:        "structured errors",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"message":"The from address does not match a verified Sender Identity.","field":"from","help":"http://sendgrid.com/docs"}]}`,
			wantMessage: "Bad Request",
			wantDetails: `[{"message":"The from address does not match a verified Sender Identity.","field":"from","help":"http://sendgrid.com/docs"}]`,
			wantFields: []ProviderError{{
				Message: "The from address does not match a verified Sender Identity.",
				Field:   "from",
				Help:    "http://sendgrid.com/docs",
			}},
		},
		{
			name:        "null field and help are kept",
			status:      http.StatusUnauthorized,
			body:        `{"errors":[{"message":"The provided authorization grant is invalid, expired, or revoked","field":null,"help":null}]}`,
			wantMessage: "Unauthorized",
			wantDetails: `[{"message":"The provided authorization grant is invalid, expired, or revoked","field":null,"help":null}]`,
			wantFields: []ProviderError{{
				Message: "The provided authorization grant is invalid, expired, or revoked",
			}},
		},
		{
			name:        "non-string help and extra keys are kept",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"message":"Invalid type","field":"content","help":{"url":"http://sendgrid.com/docs"},"error_id":"abc"}]}`,
			wantMessage: "Bad Request",
			wantDetails: `[{"message":"Invalid type","field":"content","help":{"url":"http://sendgrid.com/docs"},"error_id":"abc"}]`,
			wantFields: []ProviderError{{
				Message: "Invalid type",
				Field:   "content",
			}},
		},
		{
			name:        "unstructured body",
			status:      http.StatusBadGateway,
			body:        `upstream exploded`,
			wantMessage: "Bad Gateway",
			wantDetails: `null`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := NewSendGridSender("SG.test", srv.URL).Send(context.Background(), testMessage())
			require.Error(t, err)

			se, ok := AsSendError(err)
			require.True(t, ok)
			assert.Equal(t, "SendGrid", se.Provider)
			assert.Equal(t, tt.wantMessage, se.Error())

			encoded, err := json.Marshal(se.Details)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantDetails, string(encoded))

			require.Len(t, se.Details, len(tt.wantFields))
			for i, want := range tt.wantFields {
				got := se.Details[i]
				got.Raw = nil
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestProviderError_MarshalJSON(t *testing.T) {
	encoded, err := json.Marshal([]ProviderError{{Message: "mailbox unavailable", Reason: "550"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"message":"mailbox unavailable","reason":"550"}]`, string(encoded))
}

func TestSMTPSender(t *testing.T) {
	cfg := config.Default()
	cfg.Mail.SMTP.Host = "smtp.example.com"
	cfg.Mail.SMTP.Port = 2525
	cfg.Mail.SMTP.Username = "relay"

	t.Run("success", func(t *testing.T) {
		sender := NewSMTPSender(cfg)
		var gotAddr string
		var got *email.Email
		sender.send = func(e *email.Email, addr string, auth smtp.Auth) error {
			gotAddr, got = addr, e
			assert.NotNil(t, auth)
			return nil
		}

		require.NoError(t, sender.Send(context.Background(), testMessage()))
		assert.Equal(t, "smtp.example.com:2525", gotAddr)
		assert.Equal(t, []string{"client@example.com"}, got.To)
		assert.Equal(t, "<p>hello</p>", string(got.HTML))
		assert.Equal(t, "hello", string(got.Text))
		assert.Equal(t, "req-1", got.Headers.Get("X-Entity-Ref-ID"))
	})

	t.Run("smtp reply error", func(t *testing.T) {
		sender := NewSMTPSender(cfg)
		sender.send = func(*email.Email, string, smtp.Auth) error {
			return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
		}

		err := sender.Send(context.Background(), testMessage())
		se, ok := AsSendError(err)
		require.True(t, ok)
		assert.Equal(t, "mailbox unavailable", se.Message)
		assert.Equal(t, []ProviderError{{Message: "mailbox unavailable", Reason: "550"}}, se.Details)
	})

	t.Run("connection error", func(t *testing.T) {
		sender := NewSMTPSender(cfg)
		sender.send = func(*email.Email, string, smtp.Auth) error {
			return errors.New("dial tcp: connection refused")
		}

		err := sender.Send(context.Background(), testMessage())
		se, ok := AsSendError(err)
		require.True(t, ok)
		assert.Equal(t, "dial tcp: connection refused", se.Message)
		assert.Nil(t, se.Details)
	})
}

func TestGmailSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"Invalid To header","errors":[{"message":"Invalid To header","domain":"global","reason":"invalidArgument"}]}}`)
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)

	err = NewGmailSender(svc).Send(context.Background(), testMessage())
	se, ok := AsSendError(err)
	require.True(t, ok)
	assert.Equal(t, "Gmail", se.Provider)
	assert.Equal(t, "Invalid To header", se.Message)
	assert.Equal(t, []ProviderError{{Message: "Invalid To header", Reason: "invalidArgument"}}, se.Details)
}

func TestResendSender_Success(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`)
	}))
	defer srv.Close()

	sender, err := NewResendSender("re_test", srv.URL)
	require.NoError(t, err)
	require.NoError(t, sender.Send(context.Background(), testMessage()))

	assert.Equal(t, "Bititec Systems <noreply@bititecsystems.com>", captured["from"])
	assert.Equal(t, []any{"client@example.com"}, captured["to"])
	assert.Equal(t, "<p>hello</p>", captured["html"])
	assert.Equal(t, "hello", captured["text"])
	assert.Equal(t, map[string]any{"X-Entity-Ref-ID": "req-1"}, captured["headers"])
}

func TestResendSender_Failure(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		headers     map[string]string
		wantMessage string
		wantDetails []ProviderError
	}{
		{
			name:        "validation error",
			status:      http.StatusUnprocessableEntity,
			body:        `{"statusCode":422,"name":"validation_error","message":"Invalid ` + "`to`" + ` field."}`,
			wantMessage: "Invalid `to` field.",
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"statusCode":401,"name":"missing_api_key","message":"Missing API key in the authorization header"}`,
			wantMessage: "Missing API key in the authorization header",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"statusCode":429,"name":"rate_limit_exceeded","message":"Too many requests"}`,
			headers:     map[string]string{"retry-after": "1"},
			wantMessage: "Too many requests",
			wantDetails: []ProviderError{{Message: "Too many requests", Reason: "rate_limit_exceeded"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			sender, err := NewResendSender("re_test", srv.URL+"/")
			require.NoError(t, err)

			err = sender.Send(context.Background(), testMessage())
			require.Error(t, err)

			se, ok := AsSendError(err)
			require.True(t, ok)
			assert.Equal(t, "Resend", se.Provider)
			assert.Equal(t, tt.wantMessage, se.Error())
			assert.Equal(t, tt.wantDetails, se.Details)
		})
	}
}

func TestNewSender(t *testing.T) {
	tests := []struct {
		provider string
		name     string
		wantErr  bool
	}{
		{config.ProviderSendGrid, "SendGrid", false},
		{config.ProviderResend, "Resend", false},
		{config.ProviderSMTP, "SMTP", false},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.Default()
			cfg.Mail.Provider = tt.provider

			sender, err := NewSender(context.Background(), cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, sender.Name())
		})
	}
}

func TestNewSender_GmailMissingCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Mail.Provider = config.ProviderGmail
	cfg.Mail.Gmail.CredentialsFile = "/nonexistent/credentials.json"

	_, err := NewSender(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to read credentials")
}

func TestAsSendError_Wrapped(t *testing.T) {
	base := &SendError{Provider: "SendGrid", Message: "Bad Request"}
	wrapped := fmt.Errorf("relay: %w", base)

	se, ok := AsSendError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, se)

	_, ok = AsSendError(errors.New("plain"))
	assert.False(t, ok)
}
