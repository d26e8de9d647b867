package kickstarter

import "errors"

var (
	// ErrDeletedUser is returned when a backer's profile says the account is
	// no longer active. Callers skip the backer and continue.
	ErrDeletedUser = errors.New("user is no longer active")

	// ErrMissingProjectData is returned when a project page has no embedded
	// metadata script, or the script cannot be decoded.
	ErrMissingProjectData = errors.New("project page has no embedded project data")

	// ErrInvalidProjectURL is returned when a URL is not of the form
	// /projects/<creator>/<project>.
	ErrInvalidProjectURL = errors.New("invalid project URL: expected /projects/<creator>/<project>")

	// ErrInvalidProfileLink is returned when a backer entry has no usable profile link.
	ErrInvalidProfileLink = errors.New("invalid profile link")
)
