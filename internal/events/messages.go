// ABOUTME: Message types for NATS catalog eventing
// ABOUTME: Refresh commands, their replies, and catalog update announcements

package events

import "time"

// RefreshRequest asks for a forced catalog refresh. An empty data_type
// means gbfs.
type RefreshRequest struct {
	DataType string `json:"data_type"`

	// Optional request ID for correlation.
	RequestID string `json:"request_id,omitempty"`
}

// RefreshResponse reports the outcome of a refresh command.
type RefreshResponse struct {
	RequestID string `json:"request_id,omitempty"`

	// Status is "ok" or "error".
	Status string `json:"status"`

	// Count is the number of catalog records after a successful refresh.
	Count int `json:"count"`

	// Error message if status is "error".
	Error string `json:"error,omitempty"`
}

// CatalogUpdated announces a successful catalog refresh, forced or
// scheduled.
type CatalogUpdated struct {
	DataType    string    `json:"data_type"`
	Count       int       `json:"count"`
	DurationMS  int64     `json:"duration_ms"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
