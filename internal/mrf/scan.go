package mrf

import (
	"context"
	"fmt"
	"io"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/jsontok"
)

// Scan performs one forward pass over an MRF document from r and returns the
// frozen network-status table for the candidate set.
//
// The scan is strictly sequential: reference resolution depends on arrival
// order within the stream. Cancellation is observed at the next read; on any
// error (including cancellation) no table is returned — a partial
// determination is never exposed.
func Scan(ctx context.Context, r io.Reader, cands *candidates.Set, cfg Config, cb ScanCallbacks) (*StatusTable, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("scan config: %w", err)
	}

	table := NewStatusTable()
	res := NewResolver(cfg.MaxGroupEntries, cfg.MaxPendingCitations, func(id string, npi int64) {
		table.MarkInNetwork(npi)
		if cb.OnObservation != nil {
			cb.OnObservation(NetworkObservation{NPI: npi, ProviderGroup: id, FromReference: true})
		}
	})
	ex := NewExtractor(cands, res, table, cb)

	sc := jsontok.NewScanner(&ctxReader{ctx: ctx, r: r}, cfg.MaxDepth)
	for {
		ev, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := ex.Apply(ev); err != nil {
			return nil, err
		}
	}

	// Citations never joined are inconclusive: the cited entries contribute
	// no positive observation and their candidates keep their prior status.
	table.Freeze(cfg.AbsentStatus)
	return table, nil
}

// ctxReader aborts reads once the context is cancelled, making every blocking
// I/O boundary a cancellation point.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
