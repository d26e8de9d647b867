package kickstarter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/kickscan/internal/model"
	"golang.org/x/net/html"
)

// projectScriptMarker identifies the head script that carries project metadata.
const projectScriptMarker = "window.current_project"

// ExtractProject decodes the project metadata object embedded in a project
// page. The page is expected to contain, inside <head>, a script of the form
//
//	window.current_project = "{&quot;id&quot;:1,&quot;category&quot;:{...}}";
//
// The value between the first pair of double quotes is HTML-entity encoded
// JSON in which quotes inside strings appear as \\" and are replaced by a
// single quote before decoding. Numbers are kept as json.Number.
func ExtractProject(doc *goquery.Document) (map[string]any, error) {
	var text string
	doc.Find("head script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), projectScriptMarker) {
			text = s.Text()
			return false
		}
		return true
	})
	if text == "" {
		return nil, ErrMissingProjectData
	}

	parts := strings.Split(text, `"`)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: no quoted payload", ErrMissingProjectData)
	}
	payload := html.UnescapeString(parts[1])
	payload = strings.ReplaceAll(payload, `\\"`, `'`)

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingProjectData, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMissingProjectData)
	}
	return out, nil
}

// ExtractProjectRecord is ExtractProject followed by model.NewProjectRecord.
func ExtractProjectRecord(doc *goquery.Document, ref model.ProjectRef, fetchedAt time.Time) (*model.ProjectRecord, error) {
	meta, err := ExtractProject(doc)
	if err != nil {
		return nil, err
	}
	rec, err := model.NewProjectRecord(ref, meta, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingProjectData, err)
	}
	return rec, nil
}
