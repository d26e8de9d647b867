// Package model defines the data structures shared across kickscan.
//
// The types fall into three groups:
//   - Scraped entities: ProjectRef, ProjectRecord, BackerEntry, UserRecord
//   - Aggregation results: ProjectStat, CategoryStat, SimilarityReport
//   - Run bookkeeping: Run, which carries a single scrape through the pipeline
//
// Model types hold data only. Fetching, caching and ranking live in their own
// packages so that the JSON shapes written to disk stay in one place.
package model
