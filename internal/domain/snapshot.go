package domain

import "time"

// ScoreSnapshot is the cumulative fitness score of a user as of a calendar day.
// At most one snapshot exists per (UserID, Date).
type ScoreSnapshot struct {
	UserID    string
	Date      time.Time
	Score     float64
	UpdatedAt time.Time
}

// SyncMode controls how stale snapshots are handled during a resync.
type SyncMode string

const (
	// SyncModeRebuild deletes a user's snapshots before rewriting them, so
	// dates no longer backed by any run disappear.
	SyncModeRebuild SyncMode = "rebuild"
	// SyncModeUpsert only overwrites or creates snapshots. Dates whose runs
	// were deleted keep their last score.
	SyncModeUpsert SyncMode = "upsert"
)

// ParseSyncMode returns the matching mode, defaulting to SyncModeRebuild.
func ParseSyncMode(value string) SyncMode {
	if SyncMode(value) == SyncModeUpsert {
		return SyncModeUpsert
	}
	return SyncModeRebuild
}

// SyncResult summarises one resynchronization.
type SyncResult struct {
	UserID  string `json:"user_id"`
	Points  int    `json:"points"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Pruned  int64  `json:"pruned"`
	Invalid int    `json:"invalid_runs"`
}
