package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError is a client-side problem with a request. It maps to 400 and
// is never logged as a server fault.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrEmailAndBodyRequired = &ValidationError{
		Message: "Email and body are required",
	}
	ErrServiceCallFieldsRequired = &ValidationError{
		Message: "Email, serviceCallId, tokenId, and serviceCallInfo are required",
	}
)

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Text is a JSON scalar read as a string. Numbers keep their literal form,
// and null, false, 0 and "" all decode to the empty string, which the
// validators treat as absent.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*t = ""
	case bytes.Equal(data, []byte("true")):
		*t = "true"
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid number %s: %w", data, err)
		}
		if f == 0 {
			*t = ""
			return nil
		}
		*t = Text(formatNumber(f))
	default:
		return fmt.Errorf("expected a string or number, got %s", data)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// formatNumber renders f the way a browser stringifies numbers, so 1.0 and
// 1e3 become "1" and "1000".
func formatNumber(f float64) string {
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	s = strings.Replace(s, "e+0", "e+", 1)
	return strings.Replace(s, "e-0", "e-", 1)
}

type EmailRequest struct {
	Email   string `json:"email"`
	Subject Text   `json:"subject"`
	Body    Text   `json:"body"`
}

func (r *EmailRequest) Validate() error {
	if r.Email == "" || r.Body == "" {
		return ErrEmailAndBodyRequired
	}
	return nil
}

type ServiceCallRequest struct {
	Email           string           `json:"email"`
	ServiceCallID   Text             `json:"serviceCallId"`
	TokenID         Text             `json:"tokenId"`
	ServiceCallInfo *ServiceCallInfo `json:"serviceCallInfo"`
	ExpirationTime  *Expiration      `json:"expirationTime"`
}

func (r *ServiceCallRequest) Validate() error {
	if r.Email == "" || r.ServiceCallID == "" || r.TokenID == "" || r.ServiceCallInfo.missing() {
		return ErrServiceCallFieldsRequired
	}
	return nil
}

// ServiceCallInfo is the subset of a serialized service call the
// notification renders. Client fields may arrive nested or flattened.
type ServiceCallInfo struct {
	TicketNo       Text        `json:"ticket_no"`
	Client         *ClientInfo `json:"client"`
	ClientName     Text        `json:"client_name"`
	ClientLocation Text        `json:"client_location"`
	Status         Text        `json:"status"`

	falsy bool
}

// UnmarshalJSON accepts any JSON value. Non-objects carry no fields, and
// false, 0 and "" count as absent.
func (i *ServiceCallInfo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*i = ServiceCallInfo{}
	if len(data) > 0 && data[0] == '{' {
		type plain ServiceCallInfo
		return json.Unmarshal(data, (*plain)(i))
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		i.falsy = !v
	case float64:
		i.falsy = v == 0
	case string:
		i.falsy = v == ""
	}
	return nil
}

func (i *ServiceCallInfo) missing() bool {
	return i == nil || i.falsy
}

type ClientInfo struct {
	ClientName     Text `json:"client_name"`
	ClientLocation Text `json:"client_location"`
}

// UnmarshalJSON ignores a client that is not an object, such as a bare
// foreign key id.
func (c *ClientInfo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	type plain ClientInfo
	return json.Unmarshal(data, (*plain)(c))
}
