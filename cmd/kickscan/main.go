// Package main provides the entry point for the kickscan CLI.
//
// kickscan walks the backer list of a crowdfunding project, resolves every
// backer's public profile and reports which other projects and categories
// those backers have in common.
//
// Usage:
//
//	kickscan scrape <project-url> <backer-threshold> <category-threshold>
//	kickscan scrape --from-snapshot <file> <backer-threshold> <category-threshold>
//	kickscan history <project-url> --compare
//	kickscan snipe <project-url> <reward-id> <description>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
