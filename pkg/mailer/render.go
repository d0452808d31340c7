package mailer

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/txn2/solar-portal/pkg/notification"
)

// Content is the event data available to templates.
type Content struct {
	Type        notification.Type
	RecipientID string
	ProjectID   string
	ActorID     string
	Payload     map[string]any
}

// Renderer turns event content into an email subject and body.
type Renderer interface {
	Render(c Content) (subject, body string, err error)
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// TemplateRenderer renders per-type text templates. Types without a
// template fall back to a generic message.
type TemplateRenderer struct {
	templates map[notification.Type]messageTemplate
	fallback  messageTemplate
}

var defaultTemplates = map[notification.Type][2]string{
	notification.TypeCommentAdded: {
		"New comment on project {{.ProjectID}}",
		"A new comment was added to project {{.ProjectID}}.\n{{with .Payload.excerpt}}\n\"{{.}}\"\n{{end}}",
	},
	notification.TypeDocumentUploaded: {
		"New document for project {{.ProjectID}}",
		"A document{{with .Payload.file_name}} ({{.}}){{end}} was uploaded to project {{.ProjectID}}.\n",
	},
	notification.TypeStatusChanged: {
		"Project {{.ProjectID}} status updated",
		"Project {{.ProjectID}} is now {{with .Payload.status}}{{.}}{{else}}updated{{end}}.\n",
	},
	notification.TypeInvoiceIssued: {
		"New invoice for project {{.ProjectID}}",
		"An invoice{{with .Payload.invoice_number}} ({{.}}){{end}} was issued for project {{.ProjectID}}.\n",
	},
	notification.TypeMessageReceived: {
		"New message",
		"You have a new message{{with .ProjectID}} about project {{.}}{{end}}.\n",
	},
}

const (
	fallbackSubject = "Portal update"
	fallbackBody    = "There is new activity in your portal{{with .ProjectID}} for project {{.}}{{end}}.\n"
)

// NewTemplateRenderer builds a renderer from the default templates with
// overrides applied. Each override is a subject and a body template.
func NewTemplateRenderer(overrides map[notification.Type][2]string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[notification.Type]messageTemplate)}

	fb, err := parsePair("fallback", fallbackSubject, fallbackBody)
	if err != nil {
		return nil, err
	}
	r.fallback = fb

	sources := make(map[notification.Type][2]string, len(defaultTemplates)+len(overrides))
	for k, v := range defaultTemplates {
		sources[k] = v
	}
	for k, v := range overrides {
		sources[k] = v
	}
	for typ, src := range sources {
		mt, err := parsePair(string(typ), src[0], src[1])
		if err != nil {
			return nil, err
		}
		r.templates[typ] = mt
	}
	return r, nil
}

// Render executes the template for c.Type.
func (r *TemplateRenderer) Render(c Content) (string, string, error) {
	mt, ok := r.templates[c.Type]
	if !ok {
		mt = r.fallback
	}

	var subject, body bytes.Buffer
	if err := mt.subject.Execute(&subject, c); err != nil {
		return "", "", fmt.Errorf("rendering %s subject: %w", c.Type, err)
	}
	if err := mt.body.Execute(&body, c); err != nil {
		return "", "", fmt.Errorf("rendering %s body: %w", c.Type, err)
	}
	return sanitizeHeader(subject.String()), body.String(), nil
}

func parsePair(name, subject, body string) (messageTemplate, error) {
	s, err := template.New(name + "_subject").Parse(subject)
	if err != nil {
		return messageTemplate{}, fmt.Errorf("parsing %s subject template: %w", name, err)
	}
	b, err := template.New(name + "_body").Parse(body)
	if err != nil {
		return messageTemplate{}, fmt.Errorf("parsing %s body template: %w", name, err)
	}
	return messageTemplate{subject: s, body: b}, nil
}

// Verify interface compliance.
var _ Renderer = (*TemplateRenderer)(nil)
