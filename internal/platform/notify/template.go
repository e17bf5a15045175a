package notify

import (
	"fmt"
	"strings"
	"sync"
)

// Template defines a reusable notification template.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Built-in template IDs.
const (
	TemplateControlReminder  = "control-reminder"
	TemplateFollowupReminder = "followup-reminder"
	TemplateReviewRequest    = "review-request"
	TemplateReviewComment    = "review-comment"
)

// NewTemplateEngine creates a TemplateEngine with the committee's built-in
// templates pre-registered. Message wording follows the running system.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateControlReminder,
			Subject: "CONTROL MEDICO",
			Body:    "Recordatorio paciente {{patient_name}} (DNI: {{dni}}).\nControl medico con doctor: {{doctor_name}}",
		},
		{
			ID:      TemplateFollowupReminder,
			Subject: "CONTROL MEDICO",
			Body:    "Recordatorio paciente {{patient_name}} (DNI: {{dni}}).\nControl medico con doctor: {{doctor_name}}",
		},
		{
			ID:      TemplateReviewRequest,
			Subject: "Nueva revision - {{patient_name}}",
			Body:    "{{requester}} solicito revision del paciente: {{patient_name}}\nID de revision: {{review_id}}\n\nMensaje:\n{{message}}\n\nRevisa la solicitud aca: {{link}}",
		},
		{
			ID:      TemplateReviewComment,
			Subject: "Comentario en revision - {{patient_name}}",
			Body:    "Nuevo comentario en la revision del paciente: {{patient_name}}\nAutor: {{author}}\nComentario: {{comment}}\n\nVer revision: {{link}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
