package cache

import (
	"cmp"
	"slices"
)

// CategoryCount is the number of cached projects in one category.
type CategoryCount struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Projects int    `json:"projects"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Path       string          `json:"path"`
	Version    int             `json:"version"`
	Entries    int             `json:"entries"`
	Categories []CategoryCount `json:"categories"`
}

// Stats returns entry and per-category counts. Categories are sorted by
// project count descending, then id ascending.
func (c *ProjectCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byID := make(map[int]*CategoryCount)
	for _, rec := range c.projects {
		cc, ok := byID[rec.Category.ID]
		if !ok {
			cc = &CategoryCount{ID: rec.Category.ID, Name: rec.Category.Name}
			byID[rec.Category.ID] = cc
		}
		cc.Projects++
	}

	cats := make([]CategoryCount, 0, len(byID))
	for _, cc := range byID {
		cats = append(cats, *cc)
	}
	slices.SortFunc(cats, func(a, b CategoryCount) int {
		if a.Projects != b.Projects {
			return cmp.Compare(b.Projects, a.Projects)
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return Stats{
		Path:       c.path,
		Version:    Version,
		Entries:    len(c.projects),
		Categories: cats,
	}
}
