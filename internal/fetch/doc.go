// Package fetch retrieves HTML pages from the crowdfunding site and parses
// them into goquery documents.
//
// Client keeps one HTTP session (cookie jar, headers, optional SOCKS5 proxy)
// for a whole run. Every component that reads pages depends on the Fetcher
// interface, so tests can substitute canned documents.
package fetch
