// Package snapshot writes and reads the per-run file of resolved backers.
//
// A snapshot is a JSON array of user records named
// <creator>_<project>_<unix seconds>.json. It is written once, after all
// backers are resolved, and never touched by the project cache.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/kickscan/internal/model"
)

// ErrInvalidName is returned when a file name does not follow the snapshot pattern.
var ErrInvalidName = errors.New("invalid snapshot file name: expected <creator>_<project>_<unix>.json")

// FileName returns the snapshot name for target taken at t.
func FileName(target model.ProjectRef, t time.Time) string {
	return fmt.Sprintf("%s_%s_%d.json", target.CreatorID, target.ProjectID, t.Unix())
}

// ParseFileName recovers the target and time from a snapshot file name.
// The creator is everything before the first underscore and the timestamp
// everything after the last one.
func ParseFileName(name string) (model.ProjectRef, time.Time, error) {
	base := filepath.Base(name)
	stem, ok := strings.CutSuffix(base, ".json")
	if !ok {
		return model.ProjectRef{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	creator, rest, ok := strings.Cut(stem, "_")
	if !ok {
		return model.ProjectRef{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 || creator == "" {
		return model.ProjectRef{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	sec, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return model.ProjectRef{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	return model.ProjectRef{CreatorID: creator, ProjectID: rest[:i]}, time.Unix(sec, 0), nil
}

// Write stores users under dir and returns the file path. dir is created if needed.
func Write(dir string, target model.ProjectRef, users []model.UserRecord, t time.Time) (string, error) {
	if users == nil {
		users = []model.UserRecord{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, FileName(target, t))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// Read loads the user records of a snapshot file.
func Read(path string) ([]model.UserRecord, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var users []model.UserRecord
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return users, nil
}
