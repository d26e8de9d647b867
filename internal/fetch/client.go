package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Fetcher retrieves a page and returns it as a parsed document.
// path is resolved against the site's base URL unless it is absolute.
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) (*goquery.Document, error)
}

// Client is the resty-backed Fetcher. It also posts forms, which the
// reward sniper needs for login and pledge submission.
type Client struct {
	http    *resty.Client
	baseURL *url.URL
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout          time.Duration
	userAgent        string
	cookie           string
	headers          map[string]string
	proxyAddress     string
	bypassCloudflare bool
	transport        http.RoundTripper
	logger           *slog.Logger
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithCookie sends a raw cookie string ("a=b; c=d") with every request.
func WithCookie(cookie string) Option {
	return func(o *clientOptions) { o.cookie = cookie }
}

// WithHeaders adds extra headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *clientOptions) { o.headers = headers }
}

// WithProxy routes all requests through a SOCKS5 proxy at "host:port".
func WithProxy(address string) Option {
	return func(o *clientOptions) { o.proxyAddress = address }
}

// WithCloudflareBypass toggles the browser-like transport wrapper.
func WithCloudflareBypass(enabled bool) Option {
	return func(o *clientOptions) { o.bypassCloudflare = enabled }
}

// WithTransport replaces the base transport. Mostly useful in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient creates a Client for the site at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing scheme or host", baseURL)
	}

	o := &clientOptions{
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(u.String(), "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	transport := o.transport
	if transport == nil && o.proxyAddress != "" {
		transport, err = NewSOCKS5Transport(o.proxyAddress)
		if err != nil {
			return nil, err
		}
	}
	if transport == nil {
		transport = client.GetClient().Transport
	}
	if o.bypassCloudflare {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}
	client.SetTransport(transport)

	if o.userAgent != "" {
		client.SetHeader("User-Agent", o.userAgent)
	}
	if o.cookie != "" {
		client.SetHeader("Cookie", o.cookie)
	}
	client.SetHeaders(o.headers)
	client.SetTimeout(o.timeout)

	return &Client{
		http:    client,
		baseURL: u,
		logger:  o.logger,
	}, nil
}

// BaseURL returns the site root all relative paths are resolved against.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Fetch performs a GET and parses the response body as HTML.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	c.logger.Debug("fetching page", "path", path, "query", query.Encode())
	res, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	return parseResponse(path, res)
}

// PostForm submits form as application/x-www-form-urlencoded and parses the
// page the site answers with (after redirects).
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*goquery.Document, error) {
	c.logger.Debug("posting form", "path", path)
	res, err := c.http.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to post %s: %w", path, err)
	}
	return parseResponse(path, res)
}

func parseResponse(path string, res *resty.Response) (*goquery.Document, error) {
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrHTTPStatus, path, res.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html from %s: %w", path, err)
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		doc.Url = res.RawResponse.Request.URL
	}
	return doc, nil
}
