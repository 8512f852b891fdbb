package model

import "time"

// ProcessingState tracks where an event is in the extraction lifecycle
type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateProcessing ProcessingState = "processing"
	StateCompleted  ProcessingState = "completed"
	StateFailed     ProcessingState = "failed"
)

// ProcessingRecord is the durable per-event extraction state. At most one
// record exists per event_id; attempts only increases. A record left in
// "processing" at restart means the prior run crashed mid-extraction and is
// retried exactly like a failed record, attempts preserved.
type ProcessingRecord struct {
	EventID         string          `json:"event_id"`
	SessionID       string          `json:"session_id"`
	State           ProcessingState `json:"state"`
	Attempts        int             `json:"attempts"`
	LastError       string          `json:"last_error,omitempty"`
	ClaimsExtracted int             `json:"claims_extracted"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Status is the operator-facing pipeline summary.
type Status struct {
	SessionsTracked int       `json:"sessions_tracked"`
	PendingCount    int       `json:"pending_count"`
	FailedCount     int       `json:"failed_count"`
	LastCycleTime   time.Time `json:"last_cycle_time"`
}
