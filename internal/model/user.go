package model

import "time"

// BackerEntry is one item from a project's backer listing.
type BackerEntry struct {
	// Cursor is the listing cursor attached to this entry. The next backer
	// page is requested with the cursor of the last entry seen.
	Cursor string `json:"cursor"`

	// ProfilePath is the href of the backer's profile link, e.g. "/profile/jdoe".
	ProfilePath string `json:"profile_path"`

	// Name is the display name shown in the listing, if any.
	Name string `json:"name,omitempty"`
}

// UserRecord is a resolved backer profile.
//
// JSON field names match the snapshot files written by earlier versions of
// the scraper so that old snapshots can still be aggregated.
type UserRecord struct {
	Slug           string       `json:"user_slug"`
	ProfileURL     string       `json:"user_profile_url"`
	Name           string       `json:"user_name"`
	Joined         string       `json:"user_joined"`
	ImageURL       string       `json:"user_image_large"`
	Timestamp      float64      `json:"timestamp"`
	BackedProjects []ProjectRef `json:"user_backed_projects"`
}

// FetchedAt converts the unix timestamp back to a time.Time.
func (u UserRecord) FetchedAt() time.Time {
	sec := int64(u.Timestamp)
	nsec := int64((u.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// UnixSeconds converts t to fractional unix seconds, the timestamp format
// used in UserRecord.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
