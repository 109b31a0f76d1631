// Package pagination provides parallel batch fetching for paged listing searches.
//
// A search reports its total match count, so the number of pages is known
// after the first page. This package implements a worker pool pattern to fetch
// the remaining pages with bounded concurrency.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher[catalog.Listing](pageSource, pagination.DefaultConfig())
//	listings, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - Fetches the first page to determine total pages
//   - Spawns a worker pool (default 4 workers)
//   - Distributes remaining pages across workers
//   - Returns items in page order
//   - Returns partial data together with the first worker error
package pagination
