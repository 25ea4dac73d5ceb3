package mrf

// StatusTable accumulates network observations for the candidate set.
// It has a single writer during the scan and becomes read-only once frozen.
// Its domain is always a subset of the candidate set; non-candidate NPIs are
// never recorded, which is what keeps memory independent of document size.
type StatusTable struct {
	statuses map[int64]Status
	absent   Status
	frozen   bool
}

// NewStatusTable returns an empty, unfrozen table.
func NewStatusTable() *StatusTable {
	return &StatusTable{statuses: make(map[int64]Status)}
}

// MarkInNetwork records a positive observation. Once a candidate is
// in-network it stays in-network for the rest of the run.
func (t *StatusTable) MarkInNetwork(npi int64) {
	if t.frozen {
		panic("mrf: write to frozen status table")
	}
	t.statuses[npi] = StatusInNetwork
}

// Freeze makes the table read-only. Candidates absent from the table report
// absentStatus from then on.
func (t *StatusTable) Freeze(absentStatus Status) {
	t.absent = absentStatus
	t.frozen = true
}

// Frozen reports whether the table has been frozen.
func (t *StatusTable) Frozen() bool { return t.frozen }

// Status returns the determination for npi. Before freeze, unobserved NPIs
// report StatusUnknown; after freeze they report the absent-status policy.
func (t *StatusTable) Status(npi int64) Status {
	if s, ok := t.statuses[npi]; ok {
		return s
	}
	if t.frozen {
		return t.absent
	}
	return StatusUnknown
}

// InNetworkNPIs returns the NPIs positively observed in-network.
func (t *StatusTable) InNetworkNPIs() []int64 {
	npis := make([]int64, 0, len(t.statuses))
	for npi, s := range t.statuses {
		if s == StatusInNetwork {
			npis = append(npis, npi)
		}
	}
	return npis
}

// InNetworkCount returns the number of in-network candidates.
func (t *StatusTable) InNetworkCount() int {
	n := 0
	for _, s := range t.statuses {
		if s == StatusInNetwork {
			n++
		}
	}
	return n
}

// Len returns the number of recorded observations.
func (t *StatusTable) Len() int { return len(t.statuses) }
