// Package parallel provides fan-out helpers for issuing batches of
// transfers concurrently.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls fan-out behavior.
type Config struct {
	Enabled      bool // Whether concurrent fan-out is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinBatchSize int  // Minimum items per batch before fanning out.
}

// DefaultConfig returns sensible defaults based on CPU count. Transfer
// items are heavyweight, so even small batches fan out.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinBatchSize: 2,
	}
}

// For executes f(i) for i in [0, n), fanning batches out across worker
// goroutines. Falls back to sequential execution if fan-out is disabled
// or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinBatchSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForGrid fans out over a rows*cols grid, the iteration pattern of a
// transfer sweep across device pairs.
func ForGrid(rows, cols int, f func(r, c int), cfg Config) {
	n := rows * cols
	For(n, func(k int) {
		f(k/cols, k%cols)
	}, cfg)
}
