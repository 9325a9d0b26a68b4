package models

import "time"

// FollowResult is the outcome of a follow attempt, also the FollowStatus state.
type FollowResult string

const (
	FollowPending   FollowResult = "pending"
	FollowFollowed  FollowResult = "followed"
	FollowRequested FollowResult = "requested"
	FollowNotFound  FollowResult = "not_found"
	FollowError     FollowResult = "error"
)

// FollowStatus tracks the bot's follow of one guest's handle.
type FollowStatus struct {
	EventID        int64        `json:"event_id"`
	GuestID        int64        `json:"guest_id"`
	Handle         string       `json:"handle"`
	Status         FollowResult `json:"status"`
	FollowedAt     *time.Time   `json:"followed_at,omitempty"`
	ScrapedAt      *time.Time   `json:"scraped_at,omitempty"`
	FollowingCount int          `json:"following_count"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

// FollowingEdge is one discovered "guest follows handle" fact.
type FollowingEdge struct {
	EventID        int64  `json:"event_id"`
	GuestID        int64  `json:"guest_id"`
	GuestHandle    string `json:"guest_handle"`
	FollowedHandle string `json:"followed_handle"`
}

// Follower is a confirmed guest whose following list includes some handle.
type Follower struct {
	GuestID     int64
	Name        string
	Phone       string
	GuestHandle string
}

// NotificationRecord dedups mutual-connection notices per ordered pair.
type NotificationRecord struct {
	EventID         int64     `json:"event_id"`
	NotifiedGuestID int64     `json:"notified_guest_id"`
	AboutGuestID    int64     `json:"about_guest_id"`
	SentAt          time.Time `json:"sent_at"`
}

// Connection is an intra-event edge for the host graph view.
type Connection struct {
	GuestHandle    string `json:"guest_handle"`
	FollowerName   string `json:"follower_name,omitempty"`
	FollowedHandle string `json:"followed_handle"`
	FollowedName   string `json:"followed_name,omitempty"`
}

// SocialStats summarises social-graph progress for an event.
type SocialStats struct {
	WithHandle  int `json:"with_handle"`
	Scraped     int `json:"scraped"`
	Pending     int `json:"pending"`
	Connections int `json:"connections"`
}

// ScrapeTarget identifies a handle the worker should (re)process.
type ScrapeTarget struct {
	EventID int64
	GuestID int64
	Handle  string
}
