package service

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"bititec-mailer/models"
	"bititec-mailer/notification"
)

const (
	DefaultSubject = "Message from Bititec Systems"

	UnknownTicket = "Unknown Ticket"
	UnknownClient = "Unknown Client"
	UnknownStatus = "N/A"

	// DefaultExpiry is shown when the backend sends no expiration. It is a
	// fixed phrase, not a computed time.
	DefaultExpiry = "1 hour from now"
	InvalidDate   = "Invalid Date"

	expiryLayout = "1/2/2006, 3:04:05 PM"
)

//go:embed templates/*
var templateFS embed.FS

var (
	serviceCallHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/service_call.html"))
	serviceCallText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/service_call.txt"))
)

// Formatter builds outbound messages. It holds only startup configuration
// and never touches the network or the clock.
type Formatter struct {
	from     string
	linkBase string
	location *time.Location
}

func NewFormatter(from, linkBase string, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		from:     from,
		linkBase: strings.TrimRight(linkBase, "/"),
		location: loc,
	}
}

// EmailMessage builds the free-form message. The body is placed in the HTML
// paragraph as-is.
func (f *Formatter) EmailMessage(req *models.EmailRequest) *notification.Message {
	subject := req.Subject.String()
	if subject == "" {
		subject = DefaultSubject
	}

	return &notification.Message{
		To:      req.Email,
		From:    f.from,
		Subject: subject,
		Text:    req.Body.String(),
		HTML:    fmt.Sprintf("<p>%s</p>", req.Body),
	}
}

type serviceCallView struct {
	TicketNo       string
	ClientName     string
	ClientLocation string
	Status         string
	Link           string
	ExpiresAt      string
}

// ServiceCallMessage renders the service-call access notification.
func (f *Formatter) ServiceCallMessage(req *models.ServiceCallRequest) (*notification.Message, error) {
	info := req.ServiceCallInfo
	view := serviceCallView{
		TicketNo:       ResolveTicketNumber(info),
		ClientName:     ResolveClientName(info),
		ClientLocation: ResolveClientLocation(info),
		Status:         ResolveStatus(info),
		Link:           AccessLink(f.linkBase, req.ServiceCallID.String(), req.TokenID.String()),
		ExpiresAt:      ResolveExpiration(req.ExpirationTime, f.location),
	}

	var html, text bytes.Buffer
	if err := serviceCallHTML.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := serviceCallText.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	return &notification.Message{
		To:   req.Email,
		From: f.from,
		Subject: fmt.Sprintf("Service Call Details: %s for %s, %s",
			view.TicketNo, view.ClientName, view.ClientLocation),
		Text: text.String(),
		HTML: html.String(),
	}, nil
}

// firstPresent returns the first non-empty candidate, else fallback.
func firstPresent(fallback string, candidates ...models.Text) string {
	for _, c := range candidates {
		if c != "" {
			return c.String()
		}
	}
	return fallback
}

func ResolveTicketNumber(info *models.ServiceCallInfo) string {
	if info == nil {
		return UnknownTicket
	}
	return firstPresent(UnknownTicket, info.TicketNo)
}

// ResolveClientName prefers the nested client object over the flattened field.
func ResolveClientName(info *models.ServiceCallInfo) string {
	if info == nil {
		return UnknownClient
	}
	var nested models.Text
	if info.Client != nil {
		nested = info.Client.ClientName
	}
	return firstPresent(UnknownClient, nested, info.ClientName)
}

// ResolveClientLocation prefers the nested client object over the flattened
// field. It shares the "Unknown Client" fallback with the name.
func ResolveClientLocation(info *models.ServiceCallInfo) string {
	if info == nil {
		return UnknownClient
	}
	var nested models.Text
	if info.Client != nil {
		nested = info.Client.ClientLocation
	}
	return firstPresent(UnknownClient, nested, info.ClientLocation)
}

func ResolveStatus(info *models.ServiceCallInfo) string {
	if info == nil {
		return UnknownStatus
	}
	return firstPresent(UnknownStatus, info.Status)
}

// ResolveExpiration formats exp in loc, or returns DefaultExpiry when none
// was given.
func ResolveExpiration(exp *models.Expiration, loc *time.Location) string {
	if exp.IsZero() {
		return DefaultExpiry
	}
	t, ok := exp.Resolve(loc)
	if !ok {
		return InvalidDate
	}
	return t.Format(expiryLayout)
}

// AccessLink is the frontend URL granting view access to one service call.
func AccessLink(base, serviceCallID, token string) string {
	return fmt.Sprintf("%s/%s?token=%s",
		strings.TrimRight(base, "/"), url.PathEscape(serviceCallID), url.QueryEscape(token))
}
