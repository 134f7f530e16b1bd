// Package crawler defines the domain types shared by the brochure crawlers:
// brochure references, asset locators, crawl records, outcomes, and the small
// interfaces the pipeline depends on (fetcher, record store, blob store,
// resolver, pacer).
package crawler
