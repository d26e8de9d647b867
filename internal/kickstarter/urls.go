package kickstarter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/kickscan/internal/model"
)

// ParseProjectURL extracts the creator and project from a project URL such as
// https://www.kickstarter.com/projects/acme/widget. They are the second and
// third path segments; anything after them (/backers, /description) is ignored.
func ParseProjectURL(raw string) (model.ProjectRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return model.ProjectRef{}, fmt.Errorf("%w: %w", ErrInvalidProjectURL, err)
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) < 4 || segments[1] != "projects" || segments[2] == "" || segments[3] == "" {
		return model.ProjectRef{}, fmt.Errorf("%w: %q", ErrInvalidProjectURL, raw)
	}
	return model.ProjectRef{CreatorID: segments[2], ProjectID: segments[3]}, nil
}

// ProjectPath is the project's landing page.
func ProjectPath(ref model.ProjectRef) string {
	return "/projects/" + url.PathEscape(ref.CreatorID) + "/" + url.PathEscape(ref.ProjectID)
}

// BackersPath is the project's backer listing.
func BackersPath(ref model.ProjectRef) string {
	return ProjectPath(ref) + "/backers"
}

// ManagePledgePath is the pledge management form for the logged-in backer.
func ManagePledgePath(ref model.ProjectRef) string {
	return ProjectPath(ref) + "/pledge/edit?ref=manage_pledge"
}

// ProfilePath is a user's public profile.
func ProfilePath(slug string) string {
	return "/profile/" + url.PathEscape(slug)
}

// SlugFromProfileLink returns the user slug from a profile href such as
// "/profile/jdoe" or "https://www.kickstarter.com/profile/jdoe?ref=backers".
func SlugFromProfileLink(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProfileLink, err)
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) < 3 || segments[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfileLink, href)
	}
	return segments[2], nil
}

// refFromProjectLink returns the last two path segments of a backed-project
// link as creator and project.
func refFromProjectLink(href string) (model.ProjectRef, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return model.ProjectRef{}, false
	}
	segments := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	if len(segments) < 2 {
		return model.ProjectRef{}, false
	}
	creator, project := segments[len(segments)-2], segments[len(segments)-1]
	if creator == "" || project == "" {
		return model.ProjectRef{}, false
	}
	return model.ProjectRef{CreatorID: creator, ProjectID: project}, true
}
