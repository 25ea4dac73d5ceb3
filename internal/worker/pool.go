// Package worker runs network-status scans over the MRF sources of a plan.
// Each stream is scanned sequentially on its own worker; concurrency exists
// only across streams, never within one, because reference resolution
// depends on arrival order inside a stream.
package worker

import (
	"context"
	"sync"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/mrf"
	"github.com/gyeh/npi-match/internal/progress"
	"github.com/gyeh/npi-match/internal/source"
)

// Result holds the outcome of scanning a single MRF source.
type Result struct {
	Source string
	Table  *mrf.StatusTable
	Err    error
}

// Pool manages concurrent scanning of MRF sources.
type Pool struct {
	Workers    int
	Candidates *candidates.Set
	Config     mrf.Config
	Progress   progress.Manager
}

// Run scans all sources concurrently and returns one Result per source.
func (p *Pool) Run(ctx context.Context, sources []string) []Result {
	results := make([]Result, len(sources))

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, src string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = Result{Source: src, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			tracker := p.Progress.NewTracker(idx, len(sources), source.Name(src))
			table, err := scanSource(ctx, src, p.Candidates, p.Config, tracker)
			results[idx] = Result{Source: src, Table: table, Err: err}
			tracker.Done()
		}(i, src)
	}

	wg.Wait()
	return results
}

// Merge combines per-source tables into one frozen table. If any scan
// failed, Merge fails with that error and no table is produced: a partial
// determination must never reach ranking.
func Merge(results []Result, cfg mrf.Config) (*mrf.StatusTable, error) {
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
	}

	// In-network is monotone, so merging frozen tables is order-independent.
	merged := mrf.NewStatusTable()
	for _, r := range results {
		for _, npi := range r.Table.InNetworkNPIs() {
			merged.MarkInNetwork(npi)
		}
	}
	merged.Freeze(cfg.AbsentStatus)
	return merged, nil
}
