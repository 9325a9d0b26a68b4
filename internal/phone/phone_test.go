package phone

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(202) 555-1234", "+12025551234"},
		{"202-555-1234", "+12025551234"},
		{"2025551234", "+12025551234"},
		{"+1-202-555-1234", "+12025551234"},
		{"1-202-555-1234", "+12025551234"},
		{"+1 202 555 1234", "+12025551234"},
		{"+44 20 7946 0958", "+442079460958"},
		{"+33 1 23 45 67 89", "+33123456789"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in, "US")
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, in := range []string{"", "123", "abc-def-ghij"} {
		if _, err := Normalize(in, "US"); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"My number is (202) 555-1234", "+12025551234", true},
		{"Hey, can you call me at 202-555-1234 tomorrow?", "+12025551234", true},
		{"2025551234", "+12025551234", true},
		{"see you on 2026-03-21", "", false},
		{"nah I'm good", "", false},
	}
	for _, tt := range tests {
		got, ok := Extract(tt.text, "US")
		if ok != tt.ok || got != tt.want {
			t.Errorf("Extract(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractAll(t *testing.T) {
	got := ExtractAll("(202) 555-1234\n202 555 6789, 2025551234", "US")
	want := []string{"+12025551234", "+12025556789"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractAll() = %v, want %v", got, want)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+12025551234"); got != "+1202***1234" {
		t.Errorf("Mask() = %q", got)
	}
	if got := Mask("+44123"); got != "+44123" {
		t.Errorf("Mask(short) = %q", got)
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("+12025551234", "US"); got != "(202) 555-1234" {
		t.Errorf("Display(US) = %q", got)
	}
	if got := Display("+442079460958", "US"); got != "+44 20 7946 0958" {
		t.Errorf("Display(GB) = %q", got)
	}
	if got := Display("not a phone", "US"); got != "not a phone" {
		t.Errorf("Display(invalid) = %q", got)
	}
}

func TestParseVCard(t *testing.T) {
	card := ParseVCard("BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Alex Kim\r\nTEL;TYPE=HOME:202-555-6789\r\n"+
		"TEL;TYPE=CELL:+1 (202) 555-1234\r\nEMAIL:alex@example.com\r\nEND:VCARD\r\n", "US")
	want := Card{Name: "Alex Kim", Phone: "+12025551234", Email: "alex@example.com"}
	if card != want {
		t.Errorf("ParseVCard() = %+v, want %+v", card, want)
	}

	v4 := ParseVCard("BEGIN:VCARD\nVERSION:4.0\nFN:Jo\nTEL;VALUE=uri;TYPE=cell:tel:+12025556789\nEND:VCARD", "US")
	if v4.Phone != "+12025556789" || v4.Name != "Jo" {
		t.Errorf("ParseVCard(v4) = %+v", v4)
	}

	if none := ParseVCard("BEGIN:VCARD\nFN:Nobody\nEND:VCARD", "US"); none.Phone != "" {
		t.Errorf("ParseVCard(no tel) phone = %q", none.Phone)
	}
}
