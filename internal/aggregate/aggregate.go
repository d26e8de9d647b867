package aggregate

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/nao1215/kickscan/internal/cache"
	"github.com/nao1215/kickscan/internal/model"
)

// ProjectSource provides project metadata, fetching what it does not have.
// *cache.ProjectCache implements it.
type ProjectSource interface {
	GetOrFetch(ctx context.Context, ref model.ProjectRef, fetch cache.FetchFunc, force bool) (*model.ProjectRecord, error)
}

// Thresholds are the inclusive report filters.
type Thresholds struct {
	// Projects is the minimum co-backer count for a project row.
	Projects int
	// Categories is the minimum share (0-1) for a category row.
	Categories float64
}

// Aggregator tallies co-backed projects and categories.
type Aggregator struct {
	source ProjectSource
	fetch  cache.FetchFunc
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithClock replaces time.Now for the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator that resolves projects through source, using
// fetch on cache misses.
func New(source ProjectSource, fetch cache.FetchFunc, opts ...Option) *Aggregator {
	a := &Aggregator{
		source: source,
		fetch:  fetch,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type projectTally struct {
	creatorID string
	count     int
	category  model.Category
}

type categoryTally struct {
	name  string
	count int
}

// Aggregate counts, for every project referenced by users, how many of them
// backed it, and sums those counts per category. Every referenced project is
// looked up in the source, which fetches it when missing.
//
// Projects are ranked by count descending, then project id ascending.
// Categories are ranked the same way by category id. Only rows meeting the
// thresholds are kept (count >= Projects, share >= Categories).
func (a *Aggregator) Aggregate(ctx context.Context, target model.ProjectRef, users []model.UserRecord, th Thresholds) (*model.SimilarityReport, error) {
	projects := make(map[string]*projectTally)
	for _, user := range users {
		for _, ref := range user.BackedProjects {
			rec, err := a.source.GetOrFetch(ctx, ref, a.fetch, false)
			if err != nil {
				return nil, err
			}
			t, ok := projects[ref.ProjectID]
			if !ok {
				t = &projectTally{creatorID: ref.CreatorID, category: rec.Category}
				projects[ref.ProjectID] = t
			}
			t.count++
		}
	}

	categories := make(map[int]*categoryTally)
	total := 0
	for _, t := range projects {
		c, ok := categories[t.category.ID]
		if !ok {
			c = &categoryTally{name: t.category.Name}
			categories[t.category.ID] = c
		}
		c.count += t.count
		total += t.count
	}

	report := &model.SimilarityReport{
		Target:            target,
		GeneratedAt:       a.now(),
		Users:             len(users),
		ProjectThreshold:  th.Projects,
		CategoryThreshold: th.Categories,
		DistinctProjects:  len(projects),
		CategoryTotal:     total,
		Projects:          rankProjects(projects, th.Projects),
		Categories:        rankCategories(categories, total, th.Categories),
	}
	a.logger.Info("aggregation finished",
		"users", len(users),
		"distinct_projects", len(projects),
		"reported_projects", len(report.Projects),
		"reported_categories", len(report.Categories),
	)
	return report, nil
}

func rankProjects(projects map[string]*projectTally, threshold int) []model.ProjectStat {
	out := make([]model.ProjectStat, 0, len(projects))
	for id, t := range projects {
		if t.count < threshold {
			continue
		}
		out = append(out, model.ProjectStat{
			ProjectID:    id,
			CreatorID:    t.creatorID,
			Count:        t.count,
			CategoryID:   t.category.ID,
			CategoryName: t.category.Name,
		})
	}
	slices.SortFunc(out, func(x, y model.ProjectStat) int {
		if x.Count != y.Count {
			return cmp.Compare(y.Count, x.Count)
		}
		return cmp.Compare(x.ProjectID, y.ProjectID)
	})
	return out
}

func rankCategories(categories map[int]*categoryTally, total int, threshold float64) []model.CategoryStat {
	out := make([]model.CategoryStat, 0, len(categories))
	if total == 0 {
		return out
	}
	for id, c := range categories {
		share := float64(c.count) / float64(total)
		if share < threshold {
			continue
		}
		out = append(out, model.CategoryStat{
			CategoryID:   id,
			CategoryName: c.name,
			Count:        c.count,
			Share:        share,
		})
	}
	slices.SortFunc(out, func(x, y model.CategoryStat) int {
		if x.Count != y.Count {
			return cmp.Compare(y.Count, x.Count)
		}
		return cmp.Compare(x.CategoryID, y.CategoryID)
	})
	return out
}
