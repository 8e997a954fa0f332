// Package crawler holds the harvest domain: catalog partitions, item references,
// download targets and outcomes, plus the pure helpers (file naming, link
// extraction) and the item processor that ties a page fetcher to a downloader.
package crawler
