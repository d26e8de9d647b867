// Package database keeps the history of scrape runs in SQLite.
//
// Each completed run stores its target, counts, snapshot path and the full
// similarity report as JSON, so earlier results can be listed and compared
// without rescraping. The driver is modernc.org/sqlite, which needs no cgo.
package database
