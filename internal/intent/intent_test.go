package intent

import (
	"context"
	"testing"
)

func TestYesNo(t *testing.T) {
	tests := []struct {
		text string
		want Answer
	}{
		{"yeah I'm down", Yes},
		{"YES", Yes},
		{"count me in!", Yes},
		{"can't wait", Yes},
		{"say less", Yes},
		{"nah I'm good", No},
		{"no", No},
		{"can't make it sorry", No},
		{"not this time", No},
		{"what time does it start", Unclear},
		{"yes but no", Unclear},
		{"I'll come in late", Unclear},
	}
	for _, tt := range tests {
		if got := YesNo(tt.text); got != tt.want {
			t.Errorf("YesNo(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDetectFAQ(t *testing.T) {
	tests := []struct {
		text string
		want FAQ
	}{
		{"where is it?", FAQWhere},
		{"what's the address", FAQWhere},
		{"when does the location drop?", FAQDrop},
		{"what time should I show up", FAQWhen},
		{"can I bring my roommate", FAQPlusOne},
		{"thanks!", ""},
	}
	for _, tt := range tests {
		if got := DetectFAQ(tt.text); got != tt.want {
			t.Errorf("DetectFAQ(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"it's Sam", "Sam", true},
		{"Sam", "Sam", true},
		{"hey I'm sam lee", "Sam Lee", true},
		{"my name is José García", "José García", true},
		{"Will", "Will", true},
		{"where is it?", "", false},
		{"will there be food", "", false},
		{"yeah", "", false},
		{"hi", "", false},
		{"call me at 2025551234", "", false},
		{"one two three four five", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractName(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractName(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractHandle(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"@Sam.Lee", "sam.lee", true},
		{"it's @alex on insta", "alex", true},
		{"https://instagram.com/jo_k", "jo_k", true},
		{"my ig is sam_nyc", "sam_nyc", true},
		{"ig: sam", "sam", true},
		{"samlee", "samlee", true},
		{"where", "", false},
		{"I don't really use it much", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractHandle(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractHandle(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsSkip(t *testing.T) {
	for _, text := range []string{"skip", "Skip!", "nah", "I don't have one", "not on insta", "no social media"} {
		if !IsSkip(text) {
			t.Errorf("IsSkip(%q) = false", text)
		}
	}
	for _, text := range []string{"@sam", "sam_nyc"} {
		if IsSkip(text) {
			t.Errorf("IsSkip(%q) = true", text)
		}
	}
}

func TestDetectHostCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  HostCommand
		arg  string
		ok   bool
	}{
		{"list", CmdList, "", true},
		{"show me the guests", CmdList, "", true},
		{"stats", CmdStats, "", true},
		{"search sam", CmdSearch, "sam", true},
		{"drop location", CmdDrop, "", true},
		{"cancel the drop", CmdCancelDrop, "", true},
		{"ig graph", CmdGraph, "", true},
		{"what's up", "", "", false},
	}
	for _, tt := range tests {
		cmd, arg, ok := DetectHostCommand(tt.text)
		if cmd != tt.cmd || arg != tt.arg || ok != tt.ok {
			t.Errorf("DetectHostCommand(%q) = %q, %q, %v; want %q, %q, %v", tt.text, cmd, arg, ok, tt.cmd, tt.arg, tt.ok)
		}
	}
}

type stubClassifier struct {
	result Result
	err    error
	calls  int
}

func (s *stubClassifier) Classify(context.Context, string, Kind) (Result, error) {
	s.calls++
	return s.result, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	fallback := &stubClassifier{result: Result{Intent: IntentYes}}
	chain := Chain{Patterns{Region: "US"}, fallback}

	r, err := chain.Classify(ctx, "no", KindYesNo)
	if err != nil || r.Intent != IntentNo {
		t.Fatalf("Classify(no) = %+v, %v", r, err)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called for a conclusive pattern match")
	}

	r, _ = chain.Classify(ctx, "ya know it", KindYesNo)
	if r.Intent != IntentYes || fallback.calls != 1 {
		t.Errorf("fallback result = %+v, calls = %d", r, fallback.calls)
	}

	down := Chain{Patterns{Region: "US"}, &stubClassifier{err: ErrUnavailable}}
	r, err = down.Classify(ctx, "ya know it", KindYesNo)
	if err != nil || r.Conclusive(KindYesNo) {
		t.Errorf("unavailable fallback = %+v, %v; want inconclusive, nil", r, err)
	}
}

func TestPatternsPlusOne(t *testing.T) {
	r, _ := Patterns{Region: "US"}.Classify(context.Background(), "here: (202) 555-1234", KindPlusOne)
	if r.Intent != IntentContact || r.Phone != "+12025551234" {
		t.Errorf("Classify(phone) = %+v", r)
	}
}
