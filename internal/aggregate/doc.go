// Package aggregate turns resolved backer profiles into co-backing statistics.
package aggregate
