// Package download fetches batches of package files into the cache with a
// bounded number of parallel transfers.
package download

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/fetch"
)

// Item is one remote file to download.
type Item struct {
	ID       string // stable identifier, unique within a batch
	URL      string
	Dest     string // local path the file is stored at
	Checksum string // optional hex SHA-256; a cached file with this checksum is reused
}

// ItemError reports the failure of a single item.
type ItemError struct {
	ID  string
	URL string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Options control the behavior of FetchAll.
type Options struct {
	// Concurrency is the number of parallel downloads; if <=0, a default is used.
	Concurrency int
}

// Manager downloads batches of items through a fetch.Fetcher.
type Manager struct {
	fetcher fetch.Fetcher
}

// NewManager creates a download manager.
func NewManager(fetcher fetch.Fetcher) *Manager {
	return &Manager{fetcher: fetcher}
}

// DefaultConcurrency is the number of parallel downloads used when Options leaves it unset.
func DefaultConcurrency() int {
	return max(2, runtime.NumCPU()/2)
}

// FetchAll downloads every item. Items sharing a URL are downloaded once. It
// returns the local path of each item that succeeded, keyed by ID, and a
// *multierror.Error of *ItemError for those that did not.
func (m *Manager) FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}

	byURL := make(map[string][]int)
	var urls []string
	for i, it := range items {
		if _, ok := byURL[it.URL]; !ok {
			urls = append(urls, it.URL)
		}
		byURL[it.URL] = append(byURL[it.URL], i)
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		paths  = make(map[string]string, len(items))
		result *multierror.Error
	)
	tasks := make(chan string)
	for w := 0; w < min(opts.Concurrency, len(urls)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range tasks {
				first := items[byURL[u][0]]
				_, err := fetch.ToFile(ctx, m.fetcher, u, first.Dest, first.Checksum)
				mu.Lock()
				for _, i := range byURL[u] {
					if err != nil {
						result = multierror.Append(result, &ItemError{ID: items[i].ID, URL: u, Err: err})
						continue
					}
					paths[items[i].ID] = first.Dest
				}
				mu.Unlock()
				if err != nil {
					logger.Debug("download failed", logger.Fields{"url": u, "error": err.Error()})
				}
			}
		}()
	}

	for _, u := range urls {
		tasks <- u
	}
	close(tasks)
	wg.Wait()
	return paths, result.ErrorOrNil()
}

// Failures maps the item IDs in an error returned by FetchAll to their causes.
func Failures(err error) map[string]error {
	out := make(map[string]error)
	merr, ok := err.(*multierror.Error)
	if !ok {
		if err != nil {
			out[""] = err
		}
		return out
	}
	for _, e := range merr.Errors {
		if ie, ok := e.(*ItemError); ok {
			out[ie.ID] = ie.Err
		}
	}
	return out
}
