package model

import "time"

// Run carries the state of one scrape from the first backer page to the
// final report. Pipeline steps read what earlier steps produced and add
// their own output.
type Run struct {
	Target    ProjectRef `json:"target"`
	StartedAt time.Time  `json:"started_at"`

	// Backers is the raw backer listing.
	Backers []BackerEntry `json:"-"`

	// Users holds the resolved profiles in backer order.
	Users []UserRecord `json:"-"`

	// DeletedUsers counts backers skipped because their account is inactive.
	DeletedUsers int `json:"deleted_users"`

	// SnapshotPath is where Users were written, empty until the snapshot step runs.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	// Report is filled by the aggregation step.
	Report *SimilarityReport `json:"report,omitempty"`

	// CompletedSteps lists the names of the steps that finished.
	CompletedSteps []string `json:"completed_steps"`

	// Error is the message of the step that aborted the run, if any.
	Error string `json:"error,omitempty"`
}

// NewRun returns a Run for target started now.
func NewRun(target ProjectRef) *Run {
	return &Run{
		Target:    target,
		StartedAt: time.Now(),
	}
}
