package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// Buffer size for channels (default: estimated total pages)
	BufferSize int
	// Logger receives progress output; the global logger is used when nil
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration for listing exports
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		BufferSize:     100,
	}
}

// PageFetcher fetches a single one-based page and reports the total page count.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, page int) (items []T, totalPages int, err error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, page int) ([]T, int, error)

// FetchPage calls f.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, page int) ([]T, int, error) {
	return f(ctx, page)
}

// PageResult represents the result of fetching a single page
type PageResult[T any] struct {
	PageNumber int
	Items      []T
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}

	l := log.Logger
	if config.Logger != nil {
		l = *config.Logger
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
		logger:  l.With().Str("component", "batch-fetcher").Logger(),
	}
}

// FetchAll fetches page 1 to learn the page count, then the remaining pages
// through the worker pool. Items are returned in page order. When a page
// fails the pages fetched so far are returned together with the error.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context) ([]T, error) {
	pages, totalPages, err := bf.FetchAllPages(ctx)
	out := make([]T, 0)
	for page := 1; page <= totalPages; page++ {
		out = append(out, pages[page]...)
	}
	return out, err
}

// FetchAllPages fetches all pages in parallel using the worker pool.
// Returns a map of pageNumber -> items for successful pages and the total
// page count reported by page 1.
func (bf *BatchFetcher[T]) FetchAllPages(ctx context.Context) (map[int][]T, int, error) {
	start := time.Now()

	firstPage, totalPages, err := bf.fetcher.FetchPage(ctx, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch first page: %w", err)
	}
	if totalPages < 1 {
		totalPages = 1
	}

	bf.logger.Info().
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	results := map[int][]T{1: firstPage}

	// Single page optimization
	if totalPages == 1 {
		bf.logger.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, totalPages, nil
	}

	pageQueue := make(chan int, bf.config.BufferSize)
	pageResults := make(chan PageResult[T], bf.config.BufferSize)
	errs := make(chan error, bf.config.MaxConcurrency)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Fill page queue (skip page 1, already fetched)
	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(workerCtx, cancel, pageQueue, pageResults, errs, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
		close(errs)
	}()

	fetchedPages := 1
	for result := range pageResults {
		results[result.PageNumber] = result.Items
		fetchedPages++

		if fetchedPages%50 == 0 {
			bf.logger.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	if err := <-errs; err != nil {
		bf.logger.Warn().
			Err(err).
			Int("fetched_pages", fetchedPages).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, totalPages, fmt.Errorf("worker error (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}
	if err := ctx.Err(); err != nil && fetchedPages < totalPages {
		return results, totalPages, fmt.Errorf("fetch cancelled (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}

	bf.logger.Info().
		Int("pages", fetchedPages).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, totalPages, nil
}

// worker processes pages from the queue. The first failure stops the pool.
func (bf *BatchFetcher[T]) worker(ctx context.Context, stop context.CancelFunc, pageQueue <-chan int, results chan<- PageResult[T], errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		select {
		case <-ctx.Done():
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, _, err := bf.fetcher.FetchPage(pageCtx, pageNum)
		cancel()

		if err != nil {
			bf.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")

			select {
			case errs <- fmt.Errorf("page %d: %w", pageNum, err):
			default:
			}
			stop()
			return
		}

		select {
		case results <- PageResult[T]{PageNumber: pageNum, Items: items}:
		case <-ctx.Done():
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
