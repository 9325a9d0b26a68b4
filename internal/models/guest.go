package models

import "time"

// QuotaCap is the number of plus-one invites a confirmed guest may extend.
const QuotaCap = 2

// Guest represents a phone number on the event's list
type Guest struct {
	ID             int64       `json:"id"`
	EventID        int64       `json:"event_id"`
	Phone          string      `json:"phone"`
	Name           string      `json:"name,omitempty"`
	Handle         string      `json:"handle,omitempty"`
	Status         GuestStatus `json:"status"`
	InvitedByPhone string      `json:"invited_by_phone,omitempty"`
	QuotaUsed      int         `json:"quota_used"`
	InvitedAt      time.Time   `json:"invited_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty"`
	// QuotaWindowAt anchors the plus-one spend window. Zero until confirmed.
	QuotaWindowAt *time.Time `json:"quota_window_at,omitempty"`
}

// GuestStatus represents the attendance status
type GuestStatus string

const (
	GuestPending   GuestStatus = "pending"
	GuestConfirmed GuestStatus = "confirmed"
	GuestDeclined  GuestStatus = "declined"
	GuestExpired   GuestStatus = "expired"
)

// Valid reports whether s is a known guest status.
func (s GuestStatus) Valid() bool {
	switch s {
	case GuestPending, GuestConfirmed, GuestDeclined, GuestExpired:
		return true
	}
	return false
}

// IsPlusOne reports whether the guest was invited by another guest.
func (g *Guest) IsPlusOne() bool {
	return g.InvitedByPhone != ""
}

// QuotaLeft returns the number of unused invite slots.
func (g *Guest) QuotaLeft() int {
	if left := QuotaCap - g.QuotaUsed; left > 0 {
		return left
	}
	return 0
}

// DisplayName returns the guest's name, or the fallback when unknown.
func (g *Guest) DisplayName(fallback string) string {
	if g.Name != "" {
		return g.Name
	}
	return fallback
}
