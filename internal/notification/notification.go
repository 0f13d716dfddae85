// Package notification queues lifecycle emails for asynchronous delivery.
// Enqueue never blocks the caller; a full queue drops the message and the
// drop is logged and counted rather than failing the billing operation.
package notification

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"github.com/google/uuid"
)

type Template string

const (
	TemplateRenewalReminder Template = "renewal_reminder"
	TemplateRenewalSuccess  Template = "renewal_success"
	TemplateGracePeriod     Template = "grace_period"
	TemplateDowngrade       Template = "downgrade"
)

// Message is one queued notification. ID is assigned on enqueue.
type Message struct {
	ID       string
	To       string
	Template Template
	Data     map[string]any
}

var ErrUnknownTemplate = errors.New("unknown_template")

var subjects = map[Template]string{
	TemplateRenewalReminder: "Your subscription renews soon",
	TemplateRenewalSuccess:  "Your subscription has been renewed",
	TemplateGracePeriod:     "Your subscription has entered a grace period",
	TemplateDowngrade:       "Your account has moved to the free plan",
}

var bodies = template.Must(template.New("notification").Parse(`
{{define "renewal_reminder"}}<p>Hi {{.org_name}},</p><p>Your {{.plan_tier}} subscription renews in {{.days_left}} day(s), on {{.expiry_date}}.</p>{{end}}
{{define "renewal_success"}}<p>Hi {{.org_name}},</p><p>Your {{.plan_tier}} subscription was renewed. The next billing date is {{.expiry_date}}.</p>{{end}}
{{define "grace_period"}}<p>Hi {{.org_name}},</p><p>{{if .reason}}We could not charge your payment method ({{.reason}}). {{end}}Your subscription is in a grace period until {{.grace_end}}. Update your payment method to keep your {{.plan_tier}} plan.</p>{{end}}
{{define "downgrade"}}<p>Hi {{.org_name}},</p>{{if .over_limit}}<p>Your account has been moved to the free plan. Your current usage ({{.subjects_current}} subjects, {{.students_current}} students) exceeds the free plan limits ({{.subjects_limit}} subjects, {{.students_limit}} students). Existing data is preserved, but new additions are blocked until usage is back under the limits.</p>{{else}}<p>Your account has been moved to the free plan. Existing data is preserved, but new additions are limited.</p>{{end}}{{end}}
`))

// Render produces the subject and HTML body for a message.
func Render(msg Message) (subject, body string, err error) {
	subject, ok := subjects[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, msg.Template)
	}
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, string(msg.Template), msg.Data); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

// NewMessage stamps a fresh message with a delivery id.
func NewMessage(to string, tmpl Template, data map[string]any) Message {
	return Message{
		ID:       uuid.NewString(),
		To:       to,
		Template: tmpl,
		Data:     data,
	}
}
