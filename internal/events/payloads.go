// Package events defines the Kafka payloads consumed and produced by the
// analytics service and the publisher that writes them.
package events

import "time"

// Event types carried in the event_type header.
const (
	RunCreated              = "run.created"
	RunUpdated              = "run.updated"
	RunDeleted              = "run.deleted"
	ScoreResynchronizedType = "fitness_score.resynchronized"
)

// RunChanged is emitted by the activity log whenever a run is created,
// modified or removed.
type RunChanged struct {
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	RunDate    string    `json:"run_date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ScoreResynchronized reports that a user's score snapshots were rebuilt.
type ScoreResynchronized struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Points     int       `json:"points"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Pruned     int64     `json:"pruned"`
	Invalid    int       `json:"invalid_runs"`
	OccurredAt time.Time `json:"occurred_at"`
}
