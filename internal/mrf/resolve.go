package mrf

// Resolver joins out-of-line provider-group definitions to the in-network
// entries that cite them, in either arrival order. It keeps two bounded
// tables: definitions (group id → candidate NPIs) and citations of groups
// not yet defined. A citation is joined and evicted the moment its
// definition arrives; definitions are retained within the cap because one
// group is routinely cited by many in_network entries.
type Resolver struct {
	maxGroups int
	maxCites  int
	groups    map[string][]int64
	cites     map[string]struct{}
	emit      func(id string, npi int64)
}

// NewResolver creates a resolver with the given buffer caps. Group ids are
// canonicalized strings (payers emit both numeric and string forms). emit
// receives each joined candidate NPI together with the group id that
// carried it.
func NewResolver(maxGroups, maxCites int, emit func(id string, npi int64)) *Resolver {
	return &Resolver{
		maxGroups: maxGroups,
		maxCites:  maxCites,
		groups:    make(map[string][]int64),
		cites:     make(map[string]struct{}),
		emit:      emit,
	}
}

// AddGroup records a provider-group definition. npis holds only candidate
// NPIs; the slice is copied, so callers may reuse their buffer. If the group
// was already cited, the join is forwarded immediately and the citation
// evicted.
func (r *Resolver) AddGroup(id string, npis []int64) error {
	if _, exists := r.groups[id]; !exists && len(r.groups) >= r.maxGroups {
		return &ReferenceOverflowError{Buffer: "provider_groups", Cap: r.maxGroups}
	}
	stored := make([]int64, len(npis))
	copy(stored, npis)
	r.groups[id] = stored

	if _, cited := r.cites[id]; cited {
		delete(r.cites, id)
		for _, npi := range stored {
			r.emit(id, npi)
		}
	}
	return nil
}

// Cite records that an in-network entry references group id. If the group is
// already defined the join is forwarded immediately; otherwise the citation
// is buffered until the definition streams past.
func (r *Resolver) Cite(id string) error {
	if npis, ok := r.groups[id]; ok {
		for _, npi := range npis {
			r.emit(id, npi)
		}
		return nil
	}
	if _, pending := r.cites[id]; pending {
		return nil
	}
	if len(r.cites) >= r.maxCites {
		return &ReferenceOverflowError{Buffer: "citations", Cap: r.maxCites}
	}
	r.cites[id] = struct{}{}
	return nil
}

// PendingCitations returns the number of citations never joined. At end of
// stream these are inconclusive: they contribute no positive observation.
func (r *Resolver) PendingCitations() int { return len(r.cites) }

// GroupCount returns the number of buffered group definitions.
func (r *Resolver) GroupCount() int { return len(r.groups) }
