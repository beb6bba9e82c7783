package audit

import "time"

// Event is an immutable, append-only record of something that happened to a
// call. Events are operator-facing; the call status remains the single
// user-facing signal.
//
// Storage (Postgres): table call_events, insert-only.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID string    `json:"callId" db:"call_id"`
	UserID string    `json:"userId,omitempty" db:"user_id"`
	Type   EventType `json:"type" db:"type"`

	// FromStatus/ToStatus are set for status transitions.
	FromStatus string `json:"fromStatus,omitempty" db:"from_status"`
	ToStatus   string `json:"toStatus,omitempty" db:"to_status"`

	// JobID is the transcription job the event relates to, if any.
	JobID string `json:"jobId,omitempty" db:"job_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventTypeStatusChanged   EventType = "status_changed"
	EventTypeIngestDecision  EventType = "ingest_decision"
	EventTypeAnalysisQueued  EventType = "analysis_queued"
	EventTypeAnalysisDropped EventType = "analysis_dropped"
	EventTypeCallDeleted     EventType = "call_deleted"
)
