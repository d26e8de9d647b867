package model

import "time"

// ProjectStat is one row of the "projects in common" ranking.
type ProjectStat struct {
	ProjectID    string `json:"project_id"`
	CreatorID    string `json:"creator_id"`
	Count        int    `json:"count"`
	CategoryID   int    `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// CategoryStat is one row of the "favorite categories" ranking.
type CategoryStat struct {
	CategoryID   int     `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Count        int     `json:"count"`
	Share        float64 `json:"share"`
}

// Percent returns the share as a percentage rounded to one decimal place.
func (c CategoryStat) Percent() float64 {
	return roundTenth(c.Share * 100)
}

func roundTenth(v float64) float64 {
	if v < 0 {
		return -roundTenth(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}

// SimilarityReport is the ranked, threshold-filtered output of aggregation.
type SimilarityReport struct {
	// Target is the project whose backers were analysed.
	Target ProjectRef `json:"target"`

	// GeneratedAt is when aggregation finished.
	GeneratedAt time.Time `json:"generated_at"`

	// Users is the number of user records aggregated.
	Users int `json:"users"`

	// ProjectThreshold and CategoryThreshold are the inclusive filters applied.
	ProjectThreshold  int     `json:"project_threshold"`
	CategoryThreshold float64 `json:"category_threshold"`

	// DistinctProjects is the number of projects referenced before filtering.
	DistinctProjects int `json:"distinct_projects"`

	// CategoryTotal is the sum of all category counts; shares are relative to it.
	CategoryTotal int `json:"category_total"`

	// Projects is sorted by count descending, then project id ascending.
	Projects []ProjectStat `json:"projects"`

	// Categories is sorted by count descending, then category id ascending.
	Categories []CategoryStat `json:"categories"`
}
