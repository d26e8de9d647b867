// Package kickstarter knows the crowdfunding site's URLs and page markup.
//
// Every selector and path format lives here. Scraper walks a project's backer
// listing (cursor pagination), resolves each backer's profile into a
// UserRecord (page-number pagination) and fetches project pages for the
// project cache. ExtractProject is the only code that understands the
// metadata blob embedded in a project page's head script.
package kickstarter
