// Package intent turns guest replies into structured intents: deterministic
// pattern matching first, an optional external classifier second.
package intent

import (
	"context"
	"errors"

	"party-doorman/internal/phone"
)

// ErrUnavailable is returned by a classifier that cannot answer right now.
var ErrUnavailable = errors.New("classifier unavailable")

// Kind is what the conversation expects the reply to contain.
type Kind string

const (
	KindYesNo   Kind = "yes_or_no"
	KindName    Kind = "name"
	KindHandle  Kind = "instagram"
	KindPlusOne Kind = "plus_one_or_contact"
)

// Intent is the classified meaning of a yes/no or plus-one reply.
type Intent string

const (
	IntentUnknown Intent = ""
	IntentYes     Intent = "yes"
	IntentNo      Intent = "no"
	IntentContact Intent = "contact"
)

// Result is a classified reply.
type Result struct {
	Intent Intent `json:"intent,omitempty"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
	Skip   bool   `json:"skip,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Conclusive reports whether r answers what kind asked for.
func (r Result) Conclusive(kind Kind) bool {
	switch kind {
	case KindYesNo:
		return r.Intent == IntentYes || r.Intent == IntentNo
	case KindName:
		return r.Name != ""
	case KindHandle:
		return r.Handle != "" || r.Skip
	case KindPlusOne:
		return r.Intent == IntentYes || r.Intent == IntentNo || (r.Intent == IntentContact && r.Phone != "")
	}
	return false
}

// Classifier classifies a reply for the expected kind.
type Classifier interface {
	Classify(ctx context.Context, text string, kind Kind) (Result, error)
}

// Patterns is the deterministic classifier.
type Patterns struct {
	Region string
}

// Classify never fails; an inconclusive match comes back as an empty Result.
func (pt Patterns) Classify(_ context.Context, text string, kind Kind) (Result, error) {
	var r Result
	switch kind {
	case KindYesNo:
		r.Intent = answerIntent(YesNo(text))
	case KindName:
		r.Name, _ = ExtractName(text)
	case KindHandle:
		if IsSkip(text) {
			r.Skip = true
		} else {
			r.Handle, _ = ExtractHandle(text)
		}
	case KindPlusOne:
		if p, ok := phone.Extract(text, pt.Region); ok {
			r.Intent, r.Phone = IntentContact, p
		} else {
			r.Intent = answerIntent(YesNo(text))
		}
	}
	return r, nil
}

func answerIntent(a Answer) Intent {
	switch a {
	case Yes:
		return IntentYes
	case No:
		return IntentNo
	}
	return IntentUnknown
}

// Chain asks each classifier in order and returns the first conclusive
// result. Failing classifiers are skipped. When nothing is conclusive the
// zero Result is returned with a nil error, and callers re-prompt.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, text string, kind Kind) (Result, error) {
	for _, cl := range c {
		if cl == nil {
			continue
		}
		r, err := cl.Classify(ctx, text, kind)
		if err != nil {
			continue
		}
		if r.Conclusive(kind) {
			return r, nil
		}
	}
	return Result{}, nil
}
