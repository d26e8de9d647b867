package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/kickscan/internal/fetch"
)

// ErrMissingPageElement is returned when a page lacks the pagination marker
// or one of its required attributes. The page format has changed or the
// listing does not exist; it is never retried.
var ErrMissingPageElement = errors.New("pagination marker element not found")

const (
	// MarkerSelector locates the element holding the current page's items
	// and the last-page flag.
	MarkerSelector = "li.page"

	lastPageAttr   = "data-last_page"
	pageNumberAttr = "data-page_number"
)

// Page is one fetched listing page.
type Page struct {
	// Doc is the whole parsed document.
	Doc *goquery.Document
	// Marker is the first element matching MarkerSelector.
	Marker *goquery.Selection
	// Last reports whether the marker flagged this as the final page.
	Last bool
}

// NextParam computes the query parameter for the request after page, given
// every item accumulated so far.
type NextParam[T any] func(page Page, acc []T) (key, value string, err error)

// Listing describes one paginated endpoint.
type Listing[T any] struct {
	// Path is the listing URL path, e.g. "/projects/acme/widget/backers".
	Path string

	// Inspect, when set, sees every fetched document before the marker is
	// looked up. Returning an error aborts pagination with that error.
	Inspect func(doc *goquery.Document) error

	// Items extracts the items of one page.
	Items func(page Page) ([]T, error)

	// Next derives the parameter for the following request.
	Next NextParam[T]
}

// Sleeper pauses between page fetches.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper waits on a timer and returns early when ctx is done.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
})

// Paginator fetches listing pages one at a time.
type Paginator struct {
	fetcher fetch.Fetcher
	delay   time.Duration
	spread  time.Duration
	sleeper Sleeper
	random  func() float64
	logger  *slog.Logger
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithDelay sets the fixed and random parts of the pause between pages.
func WithDelay(delay, spread time.Duration) Option {
	return func(p *Paginator) {
		p.delay = delay
		p.spread = spread
	}
}

// WithSleeper replaces TimerSleeper.
func WithSleeper(s Sleeper) Option {
	return func(p *Paginator) { p.sleeper = s }
}

// WithRandom replaces the uniform [0,1) source used for the delay spread.
func WithRandom(random func() float64) Option {
	return func(p *Paginator) { p.random = random }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Paginator) { p.logger = logger }
}

// New creates a Paginator using fetcher for every page.
func New(fetcher fetch.Fetcher, opts ...Option) *Paginator {
	p := &Paginator{
		fetcher: fetcher,
		delay:   200 * time.Millisecond,
		spread:  100 * time.Millisecond,
		sleeper: TimerSleeper,
		random:  rand.Float64,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pause returns delay + r*spread.
func (p *Paginator) Pause(r float64) time.Duration {
	return p.delay + time.Duration(r*float64(p.spread))
}

// Wait sleeps for one randomized pause. Callers that fetch single pages back
// to back use it to keep the same pace as a listing walk.
func (p *Paginator) Wait(ctx context.Context) error {
	return p.sleeper.Sleep(ctx, p.Pause(p.random()))
}

// Paginate fetches every page of l and returns the accumulated items in
// fetch order. It stops after the first page flagged as last.
func Paginate[T any](ctx context.Context, p *Paginator, l Listing[T]) ([]T, error) {
	var acc []T
	params := url.Values{}

	for n := 1; ; n++ {
		doc, err := p.fetcher.Fetch(ctx, l.Path, params)
		if err != nil {
			return nil, err
		}
		if l.Inspect != nil {
			if err := l.Inspect(doc); err != nil {
				return nil, err
			}
		}

		page, err := readPage(doc)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", l.Path, n, err)
		}

		items, err := l.Items(page)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", l.Path, n, err)
		}
		acc = append(acc, items...)
		p.logger.Debug("listing page fetched", "path", l.Path, "page", n, "items", len(items), "last", page.Last)

		if page.Last {
			return acc, nil
		}

		key, value, err := l.Next(page, acc)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", l.Path, n, err)
		}
		params.Set(key, value)

		if err := p.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

func readPage(doc *goquery.Document) (Page, error) {
	marker := doc.Find(MarkerSelector).First()
	if marker.Length() == 0 {
		return Page{}, ErrMissingPageElement
	}
	flag, ok := marker.Attr(lastPageAttr)
	if !ok {
		return Page{}, fmt.Errorf("%w: no %s attribute", ErrMissingPageElement, lastPageAttr)
	}
	var last bool
	switch flag {
	case "true":
		last = true
	case "false":
		last = false
	default:
		return Page{}, fmt.Errorf("%w: %s=%q", ErrMissingPageElement, lastPageAttr, flag)
	}
	return Page{Doc: doc, Marker: marker, Last: last}, nil
}

// CursorParam sets "cursor" to the cursor of the last accumulated item.
func CursorParam[T any](cursor func(T) string) NextParam[T] {
	return func(_ Page, acc []T) (string, string, error) {
		if len(acc) == 0 {
			return "", "", fmt.Errorf("%w: no item to take a cursor from", ErrMissingPageElement)
		}
		c := cursor(acc[len(acc)-1])
		if c == "" {
			return "", "", fmt.Errorf("%w: last item has no cursor", ErrMissingPageElement)
		}
		return "cursor", c, nil
	}
}

// PageNumberParam sets "page" to the marker's page number plus one.
func PageNumberParam[T any]() NextParam[T] {
	return func(page Page, _ []T) (string, string, error) {
		raw, ok := page.Marker.Attr(pageNumberAttr)
		if !ok {
			return "", "", fmt.Errorf("%w: no %s attribute", ErrMissingPageElement, pageNumberAttr)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", "", fmt.Errorf("%w: %s=%q", ErrMissingPageElement, pageNumberAttr, raw)
		}
		return "page", strconv.Itoa(n + 1), nil
	}
}
