package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Expiration is the access-link expiry sent by the backend. It is kept
// unresolved until rendering because zone-less timestamps are read in the
// display location.
type Expiration struct {
	raw     string
	millis  int64
	numeric bool
	invalid bool
}

// maxEpochMillis bounds the instants a browser Date can hold.
const maxEpochMillis = 8.64e15

var floatingLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ExpirationAt returns an expiration holding t.
func ExpirationAt(t time.Time) *Expiration {
	return &Expiration{millis: t.UnixMilli(), numeric: true}
}

// ParseExpiration wraps a raw string value.
func ParseExpiration(raw string) *Expiration {
	return &Expiration{raw: strings.TrimSpace(raw)}
}

func (e *Expiration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*e = Expiration{}

	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.raw = strings.TrimSpace(s)
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil || math.IsNaN(f) || math.Abs(f) > maxEpochMillis {
			e.invalid = true
			return nil
		}
		e.millis = int64(f)
		e.numeric = f != 0
	default:
		e.invalid = true
	}
	return nil
}

// IsZero reports whether no usable expiration was supplied. Nil is zero.
func (e *Expiration) IsZero() bool {
	return e == nil || (!e.invalid && !e.numeric && e.raw == "")
}

// Resolve returns the instant in loc. ok is false for values that cannot be
// read as a timestamp.
func (e *Expiration) Resolve(loc *time.Location) (t time.Time, ok bool) {
	if e.IsZero() || e.invalid {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if e.numeric {
		return time.UnixMilli(e.millis).In(loc), true
	}

	if t, err := time.Parse(time.RFC3339Nano, e.raw); err == nil {
		return t.In(loc), true
	}
	for _, layout := range floatingLayouts {
		if t, err := time.ParseInLocation(layout, e.raw, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.DateOnly, e.raw); err == nil {
		return t.In(loc), true
	}
	return time.Time{}, false
}
