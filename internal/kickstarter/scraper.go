package kickstarter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/kickscan/internal/fetch"
	"github.com/nao1215/kickscan/internal/model"
	"github.com/nao1215/kickscan/internal/pagination"
)

// DeletedUserPhrase appears on the profile page of an inactive account.
const DeletedUserPhrase = "This person is no longer active on Kickstarter."

// Profile metadata locations.
const (
	nameSelector   = "meta[property='kickstarter:name']"
	joinedSelector = "meta[property='kickstarter:joined']"
	imageSelector  = "meta[property='og:image']"
)

// Scraper reads backer listings, profiles and project pages.
type Scraper struct {
	fetcher   fetch.Fetcher
	paginator *pagination.Paginator
	baseURL   string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// NewScraper creates a Scraper. baseURL is only used to build the absolute
// profile URLs stored in user records; requests go through fetcher.
func NewScraper(fetcher fetch.Fetcher, paginator *pagination.Paginator, baseURL string, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:   fetcher,
		paginator: paginator,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backers returns every entry of the project's backer listing in page order.
func (s *Scraper) Backers(ctx context.Context, ref model.ProjectRef) ([]model.BackerEntry, error) {
	listing := pagination.Listing[model.BackerEntry]{
		Path:  BackersPath(ref),
		Items: backerItems,
		Next:  pagination.CursorParam(func(b model.BackerEntry) string { return b.Cursor }),
	}
	entries, err := pagination.Paginate(ctx, s.paginator, listing)
	if err != nil {
		return nil, fmt.Errorf("failed to list backers of %s: %w", ref, err)
	}
	s.logger.Info("backer listing scraped", "project", ref.String(), "backers", len(entries))
	return entries, nil
}

// backerItems turns each child of the marker into a BackerEntry.
func backerItems(page pagination.Page) ([]model.BackerEntry, error) {
	var entries []model.BackerEntry
	page.Marker.Children().Each(func(_ int, child *goquery.Selection) {
		link := child.Find("a").First()
		entries = append(entries, model.BackerEntry{
			Cursor:      child.AttrOr("data-cursor", ""),
			ProfilePath: link.AttrOr("href", ""),
			Name:        strings.TrimSpace(link.Text()),
		})
	})
	return entries, nil
}

// ResolveUser scrapes the profile of the backer behind entry. It returns
// ErrDeletedUser, and no record, when the account is inactive.
func (s *Scraper) ResolveUser(ctx context.Context, entry model.BackerEntry) (*model.UserRecord, error) {
	slug, err := SlugFromProfileLink(entry.ProfilePath)
	if err != nil {
		return nil, err
	}
	profilePath := ProfilePath(slug)
	user := &model.UserRecord{
		Slug:       slug,
		ProfileURL: s.baseURL + profilePath,
		Timestamp:  model.UnixSeconds(s.now()),
	}

	var lastDoc *goquery.Document
	listing := pagination.Listing[model.ProjectRef]{
		Path: profilePath,
		Inspect: func(doc *goquery.Document) error {
			if strings.Contains(doc.Text(), DeletedUserPhrase) {
				return fmt.Errorf("%w: %s", ErrDeletedUser, slug)
			}
			lastDoc = doc
			return nil
		},
		Items: func(page pagination.Page) ([]model.ProjectRef, error) {
			return s.backedProjects(slug, page), nil
		},
		Next: pagination.PageNumberParam[model.ProjectRef](),
	}

	backed, err := pagination.Paginate(ctx, s.paginator, listing)
	if err != nil {
		return nil, err
	}
	user.BackedProjects = backed
	if user.BackedProjects == nil {
		user.BackedProjects = []model.ProjectRef{}
	}

	user.Name = lastDoc.Find(nameSelector).AttrOr("content", "")
	user.Joined = lastDoc.Find(joinedSelector).AttrOr("content", "")
	user.ImageURL = lastDoc.Find(imageSelector).AttrOr("content", "")
	return user, nil
}

func (s *Scraper) backedProjects(slug string, page pagination.Page) []model.ProjectRef {
	var refs []model.ProjectRef
	page.Marker.ChildrenFiltered("a").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		ref, ok := refFromProjectLink(href)
		if !ok {
			s.logger.Warn("ignoring malformed project link", "user", slug, "href", href)
			return
		}
		refs = append(refs, ref)
	})
	return refs
}

// ResolveResult is the outcome of ResolveAll.
type ResolveResult struct {
	Users   []model.UserRecord
	Deleted []string
}

// ResolveAll resolves every entry in order. Deleted accounts are skipped and
// listed in Deleted; any other error aborts.
func (s *Scraper) ResolveAll(ctx context.Context, entries []model.BackerEntry) (*ResolveResult, error) {
	result := &ResolveResult{Users: make([]model.UserRecord, 0, len(entries))}
	for i, entry := range entries {
		user, err := s.ResolveUser(ctx, entry)
		if errors.Is(err, ErrDeletedUser) {
			result.Deleted = append(result.Deleted, entry.ProfilePath)
			s.logger.Info("deleted user skipped", "profile", entry.ProfilePath)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve backer %d (%s): %w", i+1, entry.ProfilePath, err)
		}
		result.Users = append(result.Users, *user)
		s.logger.Info("backer resolved", "user", user.Slug, "backed", len(user.BackedProjects), "done", i+1, "total", len(entries))
	}
	return result, nil
}

// FetchProject fetches a project page and extracts its metadata. It has the
// signature of cache.FetchFunc.
func (s *Scraper) FetchProject(ctx context.Context, ref model.ProjectRef) (*model.ProjectRecord, error) {
	doc, err := s.fetcher.Fetch(ctx, ProjectPath(ref), nil)
	if err != nil {
		return nil, err
	}
	rec, err := ExtractProjectRecord(doc, ref, s.now())
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", ref, err)
	}
	return rec, nil
}
