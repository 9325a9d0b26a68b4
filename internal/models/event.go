package models

import "time"

// Event is a single party. At most one is active at a time.
type Event struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Date             string      `json:"date"`
	TimeWindow       string      `json:"time_window"`
	LocationDropTime string      `json:"location_drop_time"`
	Rules            []string    `json:"rules"`
	HostPhone        string      `json:"host_phone"`
	Status           EventStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// FormattedDate renders an ISO date as "Saturday, March 15", or returns it unchanged.
func (e *Event) FormattedDate() string {
	d, err := time.Parse("2006-01-02", e.Date)
	if err != nil {
		return e.Date
	}
	return d.Format("Monday, January 2")
}

// EventStats holds guest counts for the host.
type EventStats struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Pending      int `json:"pending"`
	Declined     int `json:"declined"`
	Expired      int `json:"expired"`
	PlusOnesUsed int `json:"plus_ones_used"`
}

// MessageDirection marks a message log entry as inbound or outbound.
type MessageDirection string

const (
	Inbound  MessageDirection = "inbound"
	Outbound MessageDirection = "outbound"
)

// MessageLog is one audit-trail entry.
type MessageLog struct {
	ID        int64            `json:"id"`
	EventID   *int64           `json:"event_id,omitempty"`
	FromPhone string           `json:"from_phone"`
	ToPhone   string           `json:"to_phone"`
	Body      string           `json:"body"`
	Direction MessageDirection `json:"direction"`
	CreatedAt time.Time        `json:"created_at"`
}
