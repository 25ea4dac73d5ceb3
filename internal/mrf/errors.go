package mrf

import "fmt"

// ReferenceOverflowError reports that a resolver buffer would exceed its
// configured cap. The scan fails rather than silently dropping entries,
// because a dropped group could misreport a provider's network status.
type ReferenceOverflowError struct {
	Buffer string // "provider_groups" or "citations"
	Cap    int
}

func (e *ReferenceOverflowError) Error() string {
	return fmt.Sprintf("reference buffer %q exceeded cap of %d entries", e.Buffer, e.Cap)
}
