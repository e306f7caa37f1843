// Package email models transactional email templates and the delivery log.
package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is a stored email template. Subject and bodies may contain {{ key }} placeholders.
type Template struct {
	ID        uuid.UUID
	Name      string
	Subject   string
	HTMLBody  string
	TextBody  string
	Active    bool
	UpdatedAt time.Time
}

// Message is a rendered email ready for delivery
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render replaces {{ key }} placeholders with values from data. Whitespace
// inside the braces is ignored. Placeholders without a value are left as is.
func Render(text string, data map[string]any) string {
	if text == "" || len(data) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := data[key]
		if !ok || v == nil {
			return m
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

// Placeholders lists the distinct keys referenced by text, in order of appearance
func Placeholders(text string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// Build renders tmpl for a recipient. subject overrides the template subject when not empty.
func (t *Template) Build(from, to, subject string, data map[string]any) Message {
	if strings.TrimSpace(subject) == "" {
		subject = t.Subject
	}
	return Message{
		From:     from,
		To:       to,
		Subject:  Render(subject, data),
		HTMLBody: Render(t.HTMLBody, data),
		TextBody: Render(t.TextBody, data),
	}
}

// LogStatus of a delivery attempt
type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
)

// Log is one delivery attempt
type Log struct {
	ID           uuid.UUID
	Recipient    string
	Subject      string
	TemplateName string
	Status       LogStatus
	MessageID    string
	Error        string
	CreatedAt    time.Time
}

// Sender delivers a message and returns the provider message ID
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// TemplateRepository looks up active templates by name
type TemplateRepository interface {
	FindActiveByName(ctx context.Context, name string) (*Template, error)
}

// LogRepository stores delivery attempts
type LogRepository interface {
	Create(ctx context.Context, l *Log) error
}
