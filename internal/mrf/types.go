// Package mrf extracts in-network provider membership from CMS price
// transparency MRF documents in a single bounded-memory pass.
package mrf

import "fmt"

// Status is the network determination for one candidate NPI.
type Status int

const (
	// StatusUnknown is the default for any candidate never observed.
	StatusUnknown Status = iota
	StatusInNetwork
	StatusOutOfNetwork
)

func (s Status) String() string {
	switch s {
	case StatusInNetwork:
		return "in_network"
	case StatusOutOfNetwork:
		return "out_of_network"
	}
	return "unknown"
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the string form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"in_network"`:
		*s = StatusInNetwork
	case `"out_of_network"`:
		*s = StatusOutOfNetwork
	case `"unknown"`:
		*s = StatusUnknown
	default:
		return fmt.Errorf("invalid network status %s", b)
	}
	return nil
}

// NetworkObservation is one positive in-network sighting of a candidate NPI.
// Observations are transient; they exist only on the way into a StatusTable.
type NetworkObservation struct {
	NPI            int64
	ProviderGroup  string // group id for reference-resolved observations, empty for embedded
	FromReference  bool
	BillingContext string // billing code of the entry, embedded observations only
}

// ScanCallbacks holds optional progress hooks for Scan.
type ScanCallbacks struct {
	OnStage        func(stage string)           // called when entering a top-level section
	OnGroupScanned func()                       // called per provider_references element
	OnEntryScanned func()                       // called per in_network element
	OnObservation  func(obs NetworkObservation) // called per in-network observation of a candidate
}

// Config carries the per-scan limits and policies. It is passed by value so
// concurrent scans cannot interfere through shared configuration.
type Config struct {
	// MaxDepth caps document nesting; <= 0 selects the tokenizer default.
	MaxDepth int
	// MaxGroupEntries caps the buffered provider-group definitions.
	MaxGroupEntries int
	// MaxPendingCitations caps the buffered unresolved group citations.
	MaxPendingCitations int
	// AbsentStatus is assigned at freeze time to candidates never observed:
	// StatusUnknown or StatusOutOfNetwork. Either way the candidate is
	// ineligible for ranking.
	AbsentStatus Status
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxDepth:            32,
		MaxGroupEntries:     100_000,
		MaxPendingCitations: 100_000,
		AbsentStatus:        StatusUnknown,
	}
}

func (c Config) validate() error {
	if c.MaxGroupEntries <= 0 || c.MaxPendingCitations <= 0 {
		return fmt.Errorf("reference buffer caps must be positive (got %d, %d)",
			c.MaxGroupEntries, c.MaxPendingCitations)
	}
	if c.AbsentStatus == StatusInNetwork {
		return fmt.Errorf("absent-status policy cannot be in_network")
	}
	return nil
}
