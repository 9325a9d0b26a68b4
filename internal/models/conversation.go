package models

import "time"

// State is a conversation state value.
type State string

const (
	StateAwaitingRSVP      State = "awaiting_rsvp"
	StateCollectingName    State = "collecting_name"
	StateCollectingHandle  State = "collecting_handle"
	StateOfferingPlusOne   State = "offering_plus_one"
	StateCollectingContact State = "collecting_contact"
	StateIdle              State = "idle"
	StateDeclined          State = "declined"
	StateExpired           State = "expired"

	// StateAnsweringQuestion is only used for the host: a guest question is
	// waiting for the host's reply.
	StateAnsweringQuestion State = "answering_guest_question"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateDeclined || s == StateExpired
}

// Onboarding reports whether s is one of the post-acceptance steps that
// precede the plus-one offer.
func (s State) Onboarding() bool {
	return s == StateCollectingName || s == StateCollectingHandle
}

// Context keys stored in a ConversationState.
const (
	CtxInviteWarningSent  = "invite_warning_sent"
	CtxPlusOneWarningSent = "plus_one_warning_sent"
	CtxExpired            = "expired"
	CtxPlusOneExpired     = "plus_one_expired"
	CtxHandleSkipped      = "handle_skipped"
	CtxInvitedPlusOne     = "invited_plus_one"
	CtxRetryCount         = "retry_count"
	CtxGuestPhone         = "guest_phone"
	CtxGuestName          = "guest_name"
	CtxQuestion           = "question"
)

// StickyKeys survive ordinary state transitions. Only an explicit reset clears them.
var StickyKeys = []string{CtxInviteWarningSent, CtxPlusOneWarningSent}

// Context is the free-form per-conversation scratch space.
type Context map[string]any

// Bool returns the boolean stored at key, false when absent.
func (c Context) Bool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// String returns the string stored at key, empty when absent.
func (c Context) String(key string) string {
	v, _ := c[key].(string)
	return v
}

// Int returns the integer stored at key. JSON round-trips numbers as float64.
func (c Context) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ConversationState is the per (event, phone) conversation row.
type ConversationState struct {
	EventID       int64     `json:"event_id"`
	Phone         string    `json:"phone"`
	State         State     `json:"state"`
	Context       Context   `json:"context"`
	Version       int64     `json:"version"`
	LastMessageAt time.Time `json:"last_message_at"`
}
