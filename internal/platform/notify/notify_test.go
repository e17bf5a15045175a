package notify

import (
	"context"
	"strings"
	"testing"
)

func TestCollectRecipients(t *testing.T) {
	got := CollectRecipients(
		[]string{"patient@mail.com"},
		[]string{" extra@mail.com ", "patient@mail.com", ""},
		[]string{"creator@mail.com", "extra@mail.com"},
	)
	want := []string{"patient@mail.com", "extra@mail.com", "creator@mail.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient[%d] = %s, want %s (first-seen order)", i, got[i], want[i])
		}
	}
}

func TestCollectRecipientsEmpty(t *testing.T) {
	if got := CollectRecipients(nil, []string{"", "  "}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestDispatcherIndependentSends(t *testing.T) {
	sender := &MockEmailSender{FailFor: map[string]bool{"b@mail.com": true}}
	d := NewDispatcher(sender)

	outcomes := d.Send(context.Background(), []string{"a@mail.com", "b@mail.com", "c@mail.com"}, "subj", "body")
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("healthy recipients failed: %v %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil {
		t.Errorf("expected failure for b@mail.com")
	}
	if outcomes[1].Recipient != "b@mail.com" {
		t.Errorf("outcome recipient = %s", outcomes[1].Recipient)
	}
	if len(sender.Calls()) != 3 {
		t.Errorf("all recipients must be attempted")
	}
}

func TestTemplateRender(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateControlReminder, map[string]string{
		"patient_name": "Maria Lopez",
		"dni":          "12345678",
		"doctor_name":  "Dr. House",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "CONTROL MEDICO" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Maria Lopez") || !strings.Contains(body, "12345678") || !strings.Contains(body, "Dr. House") {
		t.Errorf("body missing data: %q", body)
	}
}

func TestTemplateRenderReviewRequest(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateReviewRequest, map[string]string{
		"requester":    "dr.perez",
		"patient_name": "Maria Lopez",
		"review_id":    "abc-123",
		"message":      "nodule follow-up",
		"link":         "http://comite.local/reviews",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Nueva revision - Maria Lopez" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "abc-123") || !strings.Contains(body, "http://comite.local/reviews") {
		t.Errorf("body missing data: %q", body)
	}
}

func TestTemplateRenderUnknownID(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestRegisterTemplateOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateControlReminder, Subject: "X", Body: "Y"})

	subject, body, err := e.Render(TemplateControlReminder, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "X" || body != "Y" {
		t.Errorf("override not applied: %q %q", subject, body)
	}
}
