package mrf

import (
	"strconv"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/jsontok"
)

// The two provider-group shapes that carry network membership, plus the
// group-id linkage between them. Everything else in the document is walked
// and discarded.
var (
	patInNetEntry  = jsontok.MustPattern("in_network.#")
	patBillingCode = jsontok.MustPattern("in_network.#.billing_code")
	patEmbeddedNPI = jsontok.MustPattern("in_network.#.negotiated_rates.#.provider_groups.#.npi.#")
	patCitation    = jsontok.MustPattern("in_network.#.negotiated_rates.#.provider_references.#")
	patRefEntry    = jsontok.MustPattern("provider_references.#")
	patRefGroupID  = jsontok.MustPattern("provider_references.#.provider_group_id")
	patRefNPI      = jsontok.MustPattern("provider_references.#.provider_groups.#.npi.#")
)

// Extractor consumes tokenizer events and turns the recognized shapes into
// status-table observations, joining out-of-line groups through a Resolver.
// NPIs outside the candidate set are dropped the moment they are seen.
type Extractor struct {
	cands *candidates.Set
	res   *Resolver
	table *StatusTable
	cb    ScanCallbacks
	path  *jsontok.Path

	// state for the in_network element currently being streamed
	billingCode string

	// state for the provider_references element currently being streamed
	refHasID   bool
	refGroupID string
	refNPIs    []int64
}

// NewExtractor wires an extractor to its candidate set, resolver and table.
func NewExtractor(cands *candidates.Set, res *Resolver, table *StatusTable, cb ScanCallbacks) *Extractor {
	return &Extractor{
		cands: cands,
		res:   res,
		table: table,
		cb:    cb,
		path:  jsontok.NewPath(),
	}
}

// Apply processes one event.
func (e *Extractor) Apply(ev jsontok.Event) error {
	switch ev.Kind {
	case jsontok.KindObjectEnd, jsontok.KindArrayEnd:
		var err error
		if ev.Kind == jsontok.KindObjectEnd {
			switch {
			case e.path.MatchesContainer(patRefEntry):
				err = e.finishRefEntry()
			case e.path.MatchesContainer(patInNetEntry):
				e.billingCode = ""
				if e.cb.OnEntryScanned != nil {
					e.cb.OnEntryScanned()
				}
			}
		}
		e.path.Apply(ev)
		return err

	case jsontok.KindKey:
		e.path.Apply(ev)
		if e.path.Depth() == 1 && e.cb.OnStage != nil {
			switch ev.Str() {
			case "provider_references":
				e.cb.OnStage("streaming provider_references")
			case "in_network":
				e.cb.OnStage("streaming in_network")
			}
		}
		return nil

	case jsontok.KindNumber, jsontok.KindString:
		e.path.Apply(ev)
		return e.scalar(ev)

	default:
		e.path.Apply(ev)
		return nil
	}
}

func (e *Extractor) scalar(ev jsontok.Event) error {
	switch {
	case e.path.Matches(patBillingCode):
		if ev.Kind == jsontok.KindString {
			e.billingCode = ev.Str()
		}

	case e.path.Matches(patEmbeddedNPI):
		if npi, err := ev.Int64(); err == nil && e.cands.Contains(npi) {
			e.observe(npi)
		}

	case e.path.Matches(patCitation):
		if id, ok := groupKey(ev); ok {
			return e.res.Cite(id)
		}

	case e.path.Matches(patRefGroupID):
		if id, ok := groupKey(ev); ok {
			e.refGroupID = id
			e.refHasID = true
		}

	case e.path.Matches(patRefNPI):
		if npi, err := ev.Int64(); err == nil && e.cands.Contains(npi) {
			e.refNPIs = append(e.refNPIs, npi)
		}
	}
	return nil
}

// finishRefEntry hands the completed provider_references element to the
// resolver. Groups are registered even when no candidate NPI matched, so a
// later citation resolves conclusively instead of buffering forever.
func (e *Extractor) finishRefEntry() error {
	if e.cb.OnGroupScanned != nil {
		e.cb.OnGroupScanned()
	}
	var err error
	if e.refHasID {
		err = e.res.AddGroup(e.refGroupID, e.refNPIs)
	}
	e.refHasID = false
	e.refNPIs = e.refNPIs[:0]
	return err
}

// groupKey canonicalizes a provider_group_id scalar. Payers serialize group
// ids as numbers or strings; integral values normalize so a citation 1 joins
// a definition 1.0 and vice versa.
func groupKey(ev jsontok.Event) (string, bool) {
	switch ev.Kind {
	case jsontok.KindString:
		return ev.Str(), true
	case jsontok.KindNumber:
		if n, err := ev.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := ev.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64), true
		}
	}
	return "", false
}

func (e *Extractor) observe(npi int64) {
	e.table.MarkInNetwork(npi)
	if e.cb.OnObservation != nil {
		e.cb.OnObservation(NetworkObservation{NPI: npi, BillingContext: e.billingCode})
	}
}
