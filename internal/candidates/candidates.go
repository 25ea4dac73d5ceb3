// Package candidates holds the bounded set of providers under consideration
// for one matching run. The set is built once per request, immutable while a
// scan is in flight, and discarded after ranking.
package candidates

import (
	"fmt"
	"strings"
)

// Provider is one externally supplied candidate.
type Provider struct {
	NPI          int64  `json:"npi"`
	Name         string `json:"name"`
	Gender       string `json:"gender"` // "M" or "F", NPPES provider_gender_code
	Zip          string `json:"zip"`
	TaxonomyCode string `json:"taxonomy_code"`
}

// ValidNPI reports whether n is a 10-digit National Provider Identifier.
func ValidNPI(n int64) bool {
	return n >= 1000000000 && n <= 9999999999
}

// Set is an immutable candidate set with O(1) NPI membership.
type Set struct {
	providers []Provider
	index     map[int64]int
}

// NewSet builds a set, rejecting invalid or duplicate NPIs.
func NewSet(providers []Provider) (*Set, error) {
	s := &Set{
		providers: make([]Provider, 0, len(providers)),
		index:     make(map[int64]int, len(providers)),
	}
	for _, p := range providers {
		if !ValidNPI(p.NPI) {
			return nil, fmt.Errorf("NPI %d is not a valid 10-digit NPI", p.NPI)
		}
		if _, dup := s.index[p.NPI]; dup {
			return nil, fmt.Errorf("duplicate NPI %d in candidate set", p.NPI)
		}
		s.index[p.NPI] = len(s.providers)
		s.providers = append(s.providers, p)
	}
	return s, nil
}

// Contains reports whether npi belongs to the set.
func (s *Set) Contains(npi int64) bool {
	_, ok := s.index[npi]
	return ok
}

// Get returns the provider record for npi.
func (s *Set) Get(npi int64) (Provider, bool) {
	i, ok := s.index[npi]
	if !ok {
		return Provider{}, false
	}
	return s.providers[i], true
}

// Providers returns the records in insertion order. Callers must not mutate
// the returned slice.
func (s *Set) Providers() []Provider { return s.providers }

// Len returns the set size.
func (s *Set) Len() int { return len(s.providers) }

// FilterByTaxonomy returns the subset whose taxonomy code matches
// (case-insensitive). Registry dumps are fetched by location, so specialty
// narrowing happens client-side.
func (s *Set) FilterByTaxonomy(code string) *Set {
	filtered := &Set{index: make(map[int64]int)}
	for _, p := range s.providers {
		if strings.EqualFold(p.TaxonomyCode, code) {
			filtered.index[p.NPI] = len(filtered.providers)
			filtered.providers = append(filtered.providers, p)
		}
	}
	return filtered
}
