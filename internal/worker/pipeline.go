package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/mrf"
	"github.com/gyeh/npi-match/internal/progress"
	"github.com/gyeh/npi-match/internal/source"
)

// scanSource streams one MRF source end to end: open → decompress → scan,
// with zero intermediate files. Memory is bounded by nesting depth, the
// candidate set, and the reference-buffer caps.
func scanSource(
	ctx context.Context,
	src string,
	cands *candidates.Set,
	cfg mrf.Config,
	tracker progress.Tracker,
) (*mrf.StatusTable, error) {
	tracker.SetStage("Opening")

	stream, err := source.Open(ctx, src, func(read, total int64) {
		tracker.SetProgress(read, total)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source.Name(src), err)
	}
	defer stream.Close()

	var groupsScanned, entriesScanned, matches int64
	callbacks := mrf.ScanCallbacks{
		OnStage: func(stage string) {
			tracker.SetStage(stage)
		},
		OnGroupScanned: func() {
			tracker.SetCounter("groups_scanned", atomic.AddInt64(&groupsScanned, 1))
		},
		OnEntryScanned: func() {
			tracker.SetCounter("entries_scanned", atomic.AddInt64(&entriesScanned, 1))
		},
		OnObservation: func(mrf.NetworkObservation) {
			tracker.SetCounter("in_network_matches", atomic.AddInt64(&matches, 1))
		},
	}

	table, err := mrf.Scan(ctx, stream, cands, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", source.Name(src), err)
	}

	if err := stream.VerifyComplete(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", source.Name(src), err)
	}

	tracker.SetStage(fmt.Sprintf("Done (%d in-network)", table.InNetworkCount()))
	return table, nil
}
