package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"party-doorman/internal/intent"
	"party-doorman/internal/models"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		raw  string
		kind intent.Kind
		want intent.Result
	}{
		{`{"intent": "yes"}`, intent.KindYesNo, intent.Result{Intent: intent.IntentYes}},
		{"```json\n{\"intent\": \"NO\"}\n```", intent.KindYesNo, intent.Result{Intent: intent.IntentNo}},
		{`{"intent": "unclear"}`, intent.KindYesNo, intent.Result{}},
		{`{"intent": "contact", "phone": "202-555-1234"}`, intent.KindYesNo, intent.Result{}},
		{`{"intent": "contact", "phone": "202-555-1234"}`, intent.KindPlusOne,
			intent.Result{Intent: intent.IntentContact, Phone: "+12025551234"}},
		{`{"intent": "contact", "phone": "12"}`, intent.KindPlusOne, intent.Result{}},
		{`{"name": " Marcus "}`, intent.KindName, intent.Result{Name: "Marcus"}},
		{`{"name": null}`, intent.KindName, intent.Result{}},
		{`{"handle": "@Alice_NYC"}`, intent.KindHandle, intent.Result{Handle: "alice_nyc"}},
		{`{"skip": true}`, intent.KindHandle, intent.Result{Skip: true}},
	}
	for _, tt := range tests {
		got, err := parseResult(tt.raw, tt.kind, "US")
		if err != nil {
			t.Errorf("parseResult(%q) error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseResult(%q, %s) = %+v, want %+v", tt.raw, tt.kind, got, tt.want)
		}
	}

	if _, err := parseResult("sure thing!", intent.KindYesNo, "US"); err == nil {
		t.Error("parseResult(non-JSON) should fail")
	}
}

func TestParseAnswer(t *testing.T) {
	a := parseAnswer("[ESCALATE] Can they bring a dog?")
	if !a.Escalate || a.Text != "Can they bring a dog?" {
		t.Errorf("parseAnswer(escalate) = %+v", a)
	}
	a = parseAnswer("  Location drops day-of. ")
	if a.Escalate || a.Text != "Location drops day-of." {
		t.Errorf("parseAnswer(plain) = %+v", a)
	}
}

func TestDisabledClient(t *testing.T) {
	c := New(Config{Model: "m"}, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("client without key should be disabled")
	}
	ctx := context.Background()
	ev := &models.Event{Name: "Rooftop"}

	if _, err := c.Classify(ctx, "ya", intent.KindYesNo); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want ErrUnavailable", err)
	}
	if _, err := c.AnswerGuest(ctx, "parking?", ev, &models.Guest{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AnswerGuest() error = %v", err)
	}
	if _, err := c.AnswerHost(ctx, "hi", ev); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AnswerHost() error = %v", err)
	}
	if _, err := c.AnswerStranger(ctx, "hi"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AnswerStranger() error = %v", err)
	}
	if _, err := c.RewriteHostAnswer(ctx, "yes", "dogs ok?"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("RewriteHostAnswer() error = %v", err)
	}
}

func TestEventContext(t *testing.T) {
	ev := &models.Event{Name: "Rooftop", Date: "2026-03-21", TimeWindow: "9pm-late", LocationDropTime: "6pm",
		Rules: []string{"No photos"}}
	got := eventContext(ev, &models.Guest{Name: "Sam", Status: models.GuestConfirmed})
	for _, want := range []string{"Rooftop", "Saturday, March 21", "9pm-late", "- No photos", "talking to Sam", "confirmed"} {
		if !strings.Contains(got, want) {
			t.Errorf("eventContext() missing %q in:\n%s", want, got)
		}
	}
}

func TestPersona(t *testing.T) {
	c := New(Config{BotName: "Max"}, zerolog.Nop())
	if got := c.persona(rewriteSystemPrompt); !strings.HasPrefix(got, "You are Max,") {
		t.Errorf("persona() = %q", got)
	}
}
