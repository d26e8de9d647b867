package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidProjectRef is returned when a project reference cannot be decoded.
var ErrInvalidProjectRef = errors.New("invalid project reference: expected [creator, project]")

// ProjectRef identifies a project by its creator slug and project slug.
// Both values come straight from the URL path:
//
//	/projects/<CreatorID>/<ProjectID>
//
// ProjectRef is encoded in JSON as a two-element array, which is the shape
// used in per-run snapshot files.
type ProjectRef struct {
	CreatorID string
	ProjectID string
}

// String returns "creator/project".
func (r ProjectRef) String() string {
	return r.CreatorID + "/" + r.ProjectID
}

// MarshalJSON encodes the reference as ["creator", "project"].
func (r ProjectRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.CreatorID, r.ProjectID})
}

// UnmarshalJSON decodes a reference from ["creator", "project"].
func (r *ProjectRef) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProjectRef, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: got %d elements", ErrInvalidProjectRef, len(pair))
	}
	r.CreatorID = pair[0]
	r.ProjectID = pair[1]
	return nil
}

// Category is the structured part of a project's metadata.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProjectRecord is one cached project.
//
// Only Category is interpreted. Document keeps the complete metadata object
// as fetched, so fields this tool does not know about survive a cache
// round-trip untouched.
type ProjectRecord struct {
	// Ref is the creator/project pair the record was fetched from.
	// The creator is needed to rebuild the project URL on refresh.
	Ref ProjectRef `json:"ref"`

	// Category is extracted from Document["category"] at fetch time.
	Category Category `json:"category"`

	// FetchedAt is when the project page was scraped.
	FetchedAt time.Time `json:"fetched_at"`

	// Document is the embedded project metadata object, unmodified.
	Document map[string]any `json:"document"`
}

// NewProjectRecord builds a record from a decoded metadata document.
// It fails when the document lacks a usable category.
func NewProjectRecord(ref ProjectRef, doc map[string]any, fetchedAt time.Time) (*ProjectRecord, error) {
	category, err := categoryFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", ref, err)
	}
	return &ProjectRecord{
		Ref:       ref,
		Category:  category,
		FetchedAt: fetchedAt,
		Document:  doc,
	}, nil
}

// ErrMissingCategory is returned when a metadata document has no category object.
var ErrMissingCategory = errors.New("project metadata has no category")

func categoryFromDocument(doc map[string]any) (Category, error) {
	raw, ok := doc["category"].(map[string]any)
	if !ok {
		return Category{}, ErrMissingCategory
	}

	var c Category
	switch id := raw["id"].(type) {
	case float64:
		c.ID = int(id)
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return Category{}, fmt.Errorf("category id %q: %w", id, err)
		}
		c.ID = int(n)
	default:
		return Category{}, fmt.Errorf("%w: category id has type %T", ErrMissingCategory, raw["id"])
	}

	name, ok := raw["name"].(string)
	if !ok {
		return Category{}, fmt.Errorf("%w: category name has type %T", ErrMissingCategory, raw["name"])
	}
	c.Name = name
	return c, nil
}
