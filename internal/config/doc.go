// Package config provides configuration structures and utilities for kickscan.
// It defines request settings (base URL, delays, proxy, headers), the
// on-disk locations of the project cache, snapshots and run history, and
// the thresholds used when reporting.
package config
