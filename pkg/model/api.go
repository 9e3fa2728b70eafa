package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}

// QueueStatus is the status API view of the scheduler.
type QueueStatus struct {
	Pending    []Pair    `json:"pending"`
	LastQueued VersionID `json:"last_queued"`
	InFlight   int       `json:"in_flight"`
	Jobs       int       `json:"jobs"`
	UpdatedAt  time.Time `json:"updated_at"`
}
