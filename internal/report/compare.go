package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/nao1215/kickscan/internal/model"
)

// ProjectChange is a project present in both reports with a different count.
type ProjectChange struct {
	ProjectID string `json:"project_id"`
	CreatorID string `json:"creator_id"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
	Delta     int    `json:"delta"`
}

// Diff describes how the projects in common changed between two runs.
// Only the listed (threshold-filtered) projects are compared.
type Diff struct {
	Target model.ProjectRef `json:"target"`

	PreviousAt    time.Time `json:"previous_at"`
	CurrentAt     time.Time `json:"current_at"`
	PreviousUsers int       `json:"previous_users"`
	CurrentUsers  int       `json:"current_users"`

	// Entered lists projects that appear only in the current report.
	Entered []model.ProjectStat `json:"entered"`

	// Left lists projects that appear only in the previous report.
	Left []model.ProjectStat `json:"left"`

	// Changed is sorted by absolute delta descending, then project id.
	Changed []ProjectChange `json:"changed"`

	// Unchanged counts projects with the same count in both reports.
	Unchanged int `json:"unchanged"`
}

// HasChanges reports whether the two reports differ in their project listing.
func (d *Diff) HasChanges() bool {
	return len(d.Entered) > 0 || len(d.Left) > 0 || len(d.Changed) > 0
}

// Compare diffs previous against current.
func Compare(previous, current *model.SimilarityReport) *Diff {
	diff := &Diff{
		Target:        current.Target,
		PreviousAt:    previous.GeneratedAt,
		CurrentAt:     current.GeneratedAt,
		PreviousUsers: previous.Users,
		CurrentUsers:  current.Users,
		Entered:       []model.ProjectStat{},
		Left:          []model.ProjectStat{},
		Changed:       []ProjectChange{},
	}

	before := make(map[string]model.ProjectStat, len(previous.Projects))
	for _, p := range previous.Projects {
		before[p.ProjectID] = p
	}
	seen := make(map[string]bool, len(current.Projects))

	for _, p := range current.Projects {
		seen[p.ProjectID] = true
		old, ok := before[p.ProjectID]
		switch {
		case !ok:
			diff.Entered = append(diff.Entered, p)
		case old.Count == p.Count:
			diff.Unchanged++
		default:
			diff.Changed = append(diff.Changed, ProjectChange{
				ProjectID: p.ProjectID,
				CreatorID: p.CreatorID,
				Previous:  old.Count,
				Current:   p.Count,
				Delta:     p.Count - old.Count,
			})
		}
	}
	for _, p := range previous.Projects {
		if !seen[p.ProjectID] {
			diff.Left = append(diff.Left, p)
		}
	}

	slices.SortFunc(diff.Changed, func(a, b ProjectChange) int {
		if c := cmp.Compare(abs(b.Delta), abs(a.Delta)); c != 0 {
			return c
		}
		return cmp.Compare(a.ProjectID, b.ProjectID)
	})
	return diff
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
