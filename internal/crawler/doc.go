// Package crawler defines the archive crawl engine: the job and date types,
// the link and image predicates applied to archive pages, and the discovery
// pass that walks the year and month pages and feeds image jobs to the work
// queue.
package crawler
