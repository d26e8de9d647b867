package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nao1215/kickscan/internal/model"
	"golang.org/x/sync/singleflight"
)

// Version is the schema version written to and expected in the cache file.
const Version = 1

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("project cache is closed")

	// ErrVersionMismatch is logged when the file was written by another schema version.
	ErrVersionMismatch = errors.New("project cache version mismatch")
)

// FetchFunc retrieves fresh metadata for a project.
type FetchFunc func(ctx context.Context, ref model.ProjectRef) (*model.ProjectRecord, error)

type fileFormat struct {
	Version  int                             `json:"version"`
	Projects map[string]*model.ProjectRecord `json:"projects"`
}

// ProjectCache maps project ids to their metadata.
type ProjectCache struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	projects map[string]*model.ProjectRecord
	closed   bool

	group singleflight.Group
}

// Option configures a ProjectCache.
type Option func(*ProjectCache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ProjectCache) { c.logger = logger }
}

// Open loads the cache at path. If the file cannot be read it starts empty
// and immediately writes an empty store, so a valid file exists on disk
// before anything else happens. Only a failure to write that empty store is
// returned as an error.
func Open(path string, opts ...Option) (*ProjectCache, error) {
	c := &ProjectCache{
		path:     path,
		logger:   slog.Default(),
		projects: make(map[string]*model.ProjectRecord),
	}
	for _, opt := range opts {
		opt(c)
	}

	projects, err := readFile(path)
	if err != nil {
		c.logger.Warn("unable to read project cache, regenerating", "path", path, "error", err)
		if err := writeFile(path, c.projects); err != nil {
			return nil, fmt.Errorf("failed to initialize project cache: %w", err)
		}
		return c, nil
	}
	c.projects = projects
	c.logger.Debug("project cache loaded", "path", path, "entries", len(projects))
	return c, nil
}

// Path returns the cache file location.
func (c *ProjectCache) Path() string {
	return c.path
}

// Len returns the number of cached projects.
func (c *ProjectCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.projects)
}

// Lookup returns the cached record for projectID without fetching.
func (c *ProjectCache) Lookup(projectID string) (*model.ProjectRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.projects[projectID]
	return rec, ok
}

// Keys returns the cached project ids in ascending order.
func (c *ProjectCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.projects))
	for k := range c.projects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetOrFetch returns the record for ref.ProjectID. A cached record is
// returned as is unless force is set; otherwise fetch is called and its
// result replaces the entry. Concurrent callers for the same project share
// one fetch.
func (c *ProjectCache) GetOrFetch(ctx context.Context, ref model.ProjectRef, fetch FetchFunc, force bool) (*model.ProjectRecord, error) {
	c.mu.RLock()
	rec, ok := c.projects[ref.ProjectID]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok && !force {
		return rec, nil
	}

	v, err, _ := c.group.Do(ref.ProjectID, func() (any, error) {
		if !force {
			if rec, ok := c.Lookup(ref.ProjectID); ok {
				return rec, nil
			}
		}
		rec, err := fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch project %s: %w", ref, err)
		}
		c.mu.Lock()
		c.projects[ref.ProjectID] = rec
		c.mu.Unlock()
		c.logger.Info("project cached", "project", ref.String(), "category", rec.Category.Name)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ProjectRecord), nil
}

// RefreshOption configures Refresh.
type RefreshOption func(*refreshOptions)

type refreshOptions struct {
	pause      func(ctx context.Context) error
	checkpoint int
}

// WithPause calls pause before every refetch except the first.
func WithPause(pause func(ctx context.Context) error) RefreshOption {
	return func(o *refreshOptions) { o.pause = pause }
}

// WithCheckpoint flushes the cache to disk after every n refreshed entries.
func WithCheckpoint(n int) RefreshOption {
	return func(o *refreshOptions) { o.checkpoint = n }
}

// Refresh refetches every cached project in key order and returns how many
// were updated. It stops at the first error; entries refreshed before it keep
// their new value.
func (c *ProjectCache) Refresh(ctx context.Context, fetch FetchFunc, opts ...RefreshOption) (int, error) {
	var o refreshOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := 0
	for i, key := range c.Keys() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if i > 0 && o.pause != nil {
			if err := o.pause(ctx); err != nil {
				return n, err
			}
		}
		rec, _ := c.Lookup(key)
		ref := rec.Ref
		if ref.ProjectID == "" {
			ref.ProjectID = key
		}
		if _, err := c.GetOrFetch(ctx, ref, fetch, true); err != nil {
			return n, err
		}
		n++
		if o.checkpoint > 0 && n%o.checkpoint == 0 {
			if err := c.Flush(); err != nil {
				return n, fmt.Errorf("failed to checkpoint project cache: %w", err)
			}
			c.logger.Debug("project cache checkpoint", "path", c.path, "refreshed", n)
		}
	}
	return n, nil
}

// Flush writes the current contents to disk without closing the cache.
func (c *ProjectCache) Flush() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return writeFile(c.path, c.projects)
}

// Close overwrites the cache file with the in-memory contents. Calling Close
// more than once is a no-op.
func (c *ProjectCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := writeFile(c.path, c.projects); err != nil {
		return fmt.Errorf("failed to write project cache: %w", err)
	}
	c.logger.Debug("project cache written", "path", c.path, "entries", len(c.projects))
	return nil
}

func readFile(path string) (map[string]*model.ProjectRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	dec.UseNumber()
	var ff fileFormat
	if err := dec.Decode(&ff); err != nil {
		return nil, err
	}
	if ff.Version != Version {
		return nil, fmt.Errorf("%w: file has %d, want %d", ErrVersionMismatch, ff.Version, Version)
	}
	projects := make(map[string]*model.ProjectRecord, len(ff.Projects))
	for k, rec := range ff.Projects {
		if rec != nil {
			projects[k] = rec
		}
	}
	return projects, nil
}

// writeFile replaces path atomically with a freshly encoded store.
func writeFile(path string, projects map[string]*model.ProjectRecord) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(fileFormat{Version: Version, Projects: projects}); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
