// Package phone normalises, extracts and formats phone numbers.
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for input that is not a valid phone number.
var ErrInvalid = errors.New("invalid phone number")

// candidate matches phone-shaped runs: an optional +, digits and common separators.
var candidate = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{5,}\d`)

// Normalize parses raw in the context of region and returns it in E.164 form.
func Normalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalid, raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// IsValid reports whether raw parses to a valid number.
func IsValid(raw, region string) bool {
	_, err := Normalize(raw, region)
	return err == nil
}

// Extract returns the first valid phone number found in free text.
func Extract(text, region string) (string, bool) {
	all := ExtractAll(text, region)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// ExtractAll returns every distinct valid phone number in text, in order.
func ExtractAll(text, region string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, line := range strings.Split(text, "\n") {
		for _, m := range candidate.FindAllString(line, -1) {
			p, err := Normalize(m, region)
			if err != nil || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Mask hides the middle digits of an E.164 number: +12025551234 -> +1202***1234.
func Mask(p string) string {
	if len(p) <= 7 {
		return p
	}
	prefix := min(5, len(p)-4)
	return p[:prefix] + "***" + p[len(p)-4:]
}

// Display formats an E.164 number nationally when it belongs to region and
// internationally otherwise. Unparseable input is returned unchanged.
func Display(p, region string) string {
	num, err := phonenumbers.Parse(p, "")
	if err != nil {
		return p
	}
	if phonenumbers.GetRegionCodeForNumber(num) == region {
		return phonenumbers.Format(num, phonenumbers.NATIONAL)
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
