package discovery

import (
	"context"
	"sync"

	"github.com/mrz1836/satchel/internal/wallet"
)

// scanJob is one chain to scan.
type scanJob struct {
	chain wallet.ChainType
	index int // Original index for result ordering
}

// scanResult is the outcome of a scan job.
type scanResult struct {
	result *chainResult
	err    error
	index  int // Original index for result ordering
}

// scanChainsParallel scans each chain in its own worker and returns the
// results in the order of chains. The first error to arrive cancels the
// remaining workers and is returned.
func (s *Scanner) scanChainsParallel(ctx context.Context, seed []byte, chains []wallet.ChainType) ([]*chainResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan scanJob, len(chains))
	results := make(chan scanResult, len(chains))

	var wg sync.WaitGroup
	for range chains {
		wg.Add(1)
		go s.worker(ctx, seed, jobs, results, &wg)
	}

	for i, ct := range chains {
		jobs <- scanJob{chain: ct, index: i}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*chainResult, len(chains))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		ordered[res.index] = res.result
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return ordered, nil
}

// worker processes scan jobs from the queue.
//
//nolint:funcorder // Worker method grouped with scanChainsParallel
func (s *Scanner) worker(ctx context.Context, seed []byte, jobs <-chan scanJob, results chan<- scanResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			results <- scanResult{err: scanCanceled(ctx), index: job.index}
			continue
		}

		cr, err := s.scanChain(ctx, seed, job.chain)
		results <- scanResult{result: cr, err: err, index: job.index}
	}
}
