package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultBaseURL is the crowdfunding site all paths are resolved against.
	DefaultBaseURL = "https://www.kickstarter.com"

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultPageDelay is the fixed part of the pause between listing pages.
	DefaultPageDelay = 200 * time.Millisecond

	// DefaultPageDelaySpread is the upper bound of the random part of the pause.
	// The actual pause is DefaultPageDelay + uniform(0, DefaultPageDelaySpread).
	DefaultPageDelaySpread = 100 * time.Millisecond

	// DefaultSnipeInterval is the pause between polls of the pledge page.
	DefaultSnipeInterval = 10 * time.Second

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	// AppName is the application name used for XDG directory paths.
	AppName = "kickscan"

	// CacheFileName is the project cache file inside the cache directory.
	// The "v1" matches the cache schema version.
	CacheFileName = "v1.json.gz"
)

// Config holds all options for a kickscan run. It is populated from CLI
// flags and the optional config file and then passed down explicitly.
type Config struct {
	// BaseURL is the scheme and host of the crowdfunding site.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// PageDelay and PageDelaySpread define the randomized pause between
	// consecutive page fetches of one listing.
	PageDelay       time.Duration
	PageDelaySpread time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Cookie and Headers are added to every request when set.
	Cookie  string
	Headers map[string]string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// BypassCloudflare wraps the transport with browser-like TLS and headers.
	BypassCloudflare bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output on stderr to JSON lines.
	LogJSON bool

	// ConfigFilePath is an explicit path to the YAML config file.
	ConfigFilePath string

	// CachePath is the gzip JSON project cache.
	CachePath string

	// SnapshotDir receives one JSON file of resolved users per run.
	SnapshotDir string

	// DBDir holds the SQLite run history. Empty disables history.
	DBDir string

	// ProjectURL is the project whose backers are analysed.
	ProjectURL string

	// ProjectThreshold is the minimum co-backer count for a project to be reported.
	ProjectThreshold int

	// CategoryThreshold is the minimum share (0-1) for a category to be reported.
	CategoryThreshold float64

	// FromSnapshot skips scraping and aggregates a previously written snapshot.
	FromSnapshot string

	// JSONReport and MarkdownReport select the output format. Both false means text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile redirects the report to a file instead of stdout.
	ReportFile string

	// Timestamps prefixes each text report line with the report time.
	Timestamps bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          DefaultTimeout,
		PageDelay:        DefaultPageDelay,
		PageDelaySpread:  DefaultPageDelaySpread,
		UserAgent:        DefaultUserAgent,
		BypassCloudflare: true,
		CachePath:        DefaultCachePath(),
		SnapshotDir:      DefaultSnapshotDir(),
		DBDir:            XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for kickscan.
// On Linux: ~/.local/share/kickscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for kickscan.
// On Linux: ~/.config/kickscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for kickscan.
// On Linux: ~/.cache/kickscan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultCachePath is the project cache location when --cache is not given.
func DefaultCachePath() string {
	return filepath.Join(XDGCacheDir(), "project_cache", CacheFileName)
}

// DefaultSnapshotDir is where per-run backer snapshots go by default.
func DefaultSnapshotDir() string {
	return filepath.Join(XDGDataDir(), "project_backers")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.ProjectURL == "" && c.FromSnapshot == "" {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PageDelay < 0 || c.PageDelaySpread < 0 {
		return ErrInvalidPageDelay
	}
	if c.ProjectThreshold < 0 {
		return ErrInvalidProjectThreshold
	}
	if c.CategoryThreshold < 0 || c.CategoryThreshold > 1 {
		return ErrInvalidCategoryThreshold
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CachePath == "" {
		return ErrNoCachePath
	}
	return nil
}

// ApplyFile merges file defaults into c. Only values still at their
// defaults are replaced, so apply the file to a fresh Config and set flags
// the user changed afterwards.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	d := f.Defaults
	if d.BaseURL != "" && c.BaseURL == DefaultBaseURL {
		c.BaseURL = d.BaseURL
	}
	if d.UserAgent != "" && c.UserAgent == DefaultUserAgent {
		c.UserAgent = d.UserAgent
	}
	if d.Cookie != "" && c.Cookie == "" {
		c.Cookie = d.Cookie
	}
	if d.Proxy != "" && c.ProxyAddress == "" {
		c.ProxyAddress = d.Proxy
	}
	if d.PageDelay > 0 && c.PageDelay == DefaultPageDelay {
		c.PageDelay = d.PageDelay
	}
	if d.PageDelaySpread > 0 && c.PageDelaySpread == DefaultPageDelaySpread {
		c.PageDelaySpread = d.PageDelaySpread
	}
	if len(d.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(d.Headers))
		}
		for k, v := range d.Headers {
			if _, ok := c.Headers[k]; !ok {
				c.Headers[k] = v
			}
		}
	}
}
