// Package cache persists scraped project metadata between runs.
//
// The store is a single gzip-compressed JSON file:
//
//	{"version": 1, "projects": {"<project id>": {"ref": [...], "category": {...}, "fetched_at": "...", "document": {...}}}}
//
// It is read once by Open and written once by Close. A file that is missing,
// corrupt, or tagged with another version is replaced by an empty store on
// open. There is no file locking: only one process may hold a cache file.
package cache
