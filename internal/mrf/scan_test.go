package mrf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/jsontok"
)

func testSet(t *testing.T, npis ...int64) *candidates.Set {
	t.Helper()
	providers := make([]candidates.Provider, len(npis))
	for i, n := range npis {
		providers[i] = candidates.Provider{NPI: n, Zip: "10001"}
	}
	set, err := candidates.NewSet(providers)
	if err != nil {
		t.Fatalf("building candidate set: %v", err)
	}
	return set
}

func scan(t *testing.T, doc string, cands *candidates.Set, cfg Config) (*StatusTable, error) {
	t.Helper()
	return Scan(context.Background(), strings.NewReader(doc), cands, cfg, ScanCallbacks{})
}

func TestScan_EmbeddedProviderGroups(t *testing.T) {
	doc := `{
	"reporting_entity_name": "Test Health Plan",
	"in_network": [
		{
			"billing_code_type": "CPT", "billing_code": "99213",
			"negotiated_rates": [{
				"provider_groups": [{"npi": [1234567890, 9999999999], "tin": {"type": "ein", "value": "12-3456789"}}],
				"negotiated_prices": [{"negotiated_rate": 125.50}]
			}]
		}
	]
	}`

	table, err := scan(t, doc, testSet(t, 1234567890, 5555555555), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if got := table.Status(1234567890); got != StatusInNetwork {
		t.Errorf("expected 1234567890 in_network, got %v", got)
	}
	// Candidate absent from the document stays unknown.
	if got := table.Status(5555555555); got != StatusUnknown {
		t.Errorf("expected 5555555555 unknown, got %v", got)
	}
	// Non-candidate NPIs are never recorded.
	if table.Len() != 1 {
		t.Errorf("expected 1 recorded status, got %d", table.Len())
	}
}

func TestScan_ReferenceBeforeInNetwork(t *testing.T) {
	doc := `{
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [1234567890]}]},
		{"provider_group_id": 2, "provider_groups": [{"npi": [9999999999]}]}
	],
	"in_network": [
		{"billing_code": "99213", "negotiated_rates": [{"provider_references": [1]}]}
	]
	}`

	table, err := scan(t, doc, testSet(t, 1234567890), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1234567890); got != StatusInNetwork {
		t.Errorf("expected in_network, got %v", got)
	}
}

func TestScan_InNetworkBeforeReference(t *testing.T) {
	// The in_network entry cites group G1 before the provider_references
	// section streams past. The resolver must join in reversed order.
	doc := `{
	"in_network": [
		{"billing_code": "99213", "negotiated_rates": [{"provider_references": [7]}]}
	],
	"provider_references": [
		{"provider_group_id": 7, "provider_groups": [{"npi": [2222222222]}]}
	]
	}`

	table, err := scan(t, doc, testSet(t, 2222222222), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(2222222222); got != StatusInNetwork {
		t.Errorf("expected in_network via reversed arrival, got %v", got)
	}
}

func TestScan_GroupIDAfterGroups(t *testing.T) {
	// provider_group_id may trail the provider_groups array inside an element.
	doc := `{
	"in_network": [
		{"negotiated_rates": [{"provider_references": [3]}]}
	],
	"provider_references": [
		{"provider_groups": [{"npi": [3333333333]}], "provider_group_id": 3}
	]
	}`

	table, err := scan(t, doc, testSet(t, 3333333333), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(3333333333); got != StatusInNetwork {
		t.Errorf("expected in_network, got %v", got)
	}
}

func TestScan_BothShapesEitherOrder(t *testing.T) {
	embedded := `{"in_network": [{"negotiated_rates": [{"provider_groups": [{"npi": [1234567890]}]}]}]}`
	viaRef := `{
	"provider_references": [{"provider_group_id": 1, "provider_groups": [{"npi": [1234567890]}]}],
	"in_network": [{"negotiated_rates": [{"provider_references": [1]}]}]
	}`

	for name, doc := range map[string]string{"embedded": embedded, "reference": viaRef} {
		table, err := scan(t, doc, testSet(t, 1234567890), DefaultConfig())
		if err != nil {
			t.Fatalf("%s: Scan failed: %v", name, err)
		}
		if got := table.Status(1234567890); got != StatusInNetwork {
			t.Errorf("%s: expected in_network, got %v", name, got)
		}
	}
}

func TestScan_UnresolvedCitationIsInconclusive(t *testing.T) {
	doc := `{
	"in_network": [{"negotiated_rates": [{"provider_references": [42]}]}]
	}`

	table, err := scan(t, doc, testSet(t, 1234567890), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1234567890); got != StatusUnknown {
		t.Errorf("expected unknown for unresolved citation, got %v", got)
	}
}

func TestScan_StringNPIs(t *testing.T) {
	doc := `{"in_network": [{"negotiated_rates": [{"provider_groups": [{"npi": ["1234567890"]}]}]}]}`

	table, err := scan(t, doc, testSet(t, 1234567890), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1234567890); got != StatusInNetwork {
		t.Errorf("expected in_network from string npi, got %v", got)
	}
}

func TestScan_FloatGroupIDs(t *testing.T) {
	doc := `{
	"provider_references": [
		{"provider_group_id": 42.125, "provider_groups": [{"npi": [1234567890]}]},
		{"provider_group_id": 42.875, "provider_groups": [{"npi": [9999999999]}]}
	],
	"in_network": [{"negotiated_rates": [{"provider_references": [42.125]}]}]
	}`

	table, err := scan(t, doc, testSet(t, 1234567890, 9999999999), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1234567890); got != StatusInNetwork {
		t.Errorf("expected in_network, got %v", got)
	}
	if got := table.Status(9999999999); got != StatusUnknown {
		t.Errorf("expected unknown for uncited group, got %v", got)
	}
}

func TestScan_StringGroupIDs(t *testing.T) {
	// Some payers serialize group ids as strings. The citation arrives before
	// the definition here, so the join must also work in reversed order.
	doc := `{
	"in_network": [
		{"negotiated_rates": [{"provider_references": ["G1"]}]}
	],
	"provider_references": [
		{"provider_group_id": "G1", "provider_groups": [{"npi": [4444444444]}]}
	]
	}`

	table, err := scan(t, doc, testSet(t, 4444444444), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(4444444444); got != StatusInNetwork {
		t.Errorf("string group id: expected in_network, got %v", got)
	}
}

func TestScan_MixedGroupIDForms(t *testing.T) {
	// Integral ids normalize across representations: a citation of 1 joins a
	// definition of 1.0, and a string "2" joins a numeric 2.
	doc := `{
	"provider_references": [
		{"provider_group_id": 1.0, "provider_groups": [{"npi": [1111111111]}]},
		{"provider_group_id": 2, "provider_groups": [{"npi": [2222222222]}]}
	],
	"in_network": [
		{"negotiated_rates": [{"provider_references": [1]}]},
		{"negotiated_rates": [{"provider_references": ["2"]}]}
	]
	}`

	table, err := scan(t, doc, testSet(t, 1111111111, 2222222222), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1111111111); got != StatusInNetwork {
		t.Errorf("citation 1 vs definition 1.0: expected in_network, got %v", got)
	}
	if got := table.Status(2222222222); got != StatusInNetwork {
		t.Errorf("citation \"2\" vs definition 2: expected in_network, got %v", got)
	}
}

func TestScan_ReferenceOverflow(t *testing.T) {
	// Cap of 1 with two unresolved citations: fail closed, no table.
	doc := `{
	"in_network": [
		{"negotiated_rates": [{"provider_references": [1]}]},
		{"negotiated_rates": [{"provider_references": [2]}]}
	]
	}`

	cfg := DefaultConfig()
	cfg.MaxPendingCitations = 1
	table, err := scan(t, doc, testSet(t, 1234567890), cfg)
	if table != nil {
		t.Error("expected no table on overflow")
	}
	var oerr *ReferenceOverflowError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected ReferenceOverflowError, got %v", err)
	}
	if oerr.Buffer != "citations" || oerr.Cap != 1 {
		t.Errorf("unexpected overflow detail: %+v", oerr)
	}
}

func TestScan_GroupOverflow(t *testing.T) {
	doc := `{
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [1111111111]}]},
		{"provider_group_id": 2, "provider_groups": [{"npi": [2222222222]}]}
	]
	}`

	cfg := DefaultConfig()
	cfg.MaxGroupEntries = 1
	_, err := scan(t, doc, testSet(t, 1111111111), cfg)
	var oerr *ReferenceOverflowError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected ReferenceOverflowError, got %v", err)
	}
	if oerr.Buffer != "provider_groups" {
		t.Errorf("unexpected buffer: %q", oerr.Buffer)
	}
}

func TestScan_MalformedAndIncomplete(t *testing.T) {
	cands := testSet(t, 1234567890)

	_, err := scan(t, `{"in_network": [}`, cands, DefaultConfig())
	var merr *jsontok.MalformedDocumentError
	if !errors.As(err, &merr) {
		t.Errorf("expected MalformedDocumentError, got %v", err)
	}

	_, err = scan(t, `{"in_network": [`, cands, DefaultConfig())
	var ierr *jsontok.IncompleteDocumentError
	if !errors.As(err, &ierr) {
		t.Errorf("expected IncompleteDocumentError, got %v", err)
	}
}

func TestScan_DepthExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 3
	_, err := scan(t, `{"a": [[[1]]]}`, testSet(t, 1234567890), cfg)
	var derr *jsontok.DepthExceededError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DepthExceededError, got %v", err)
	}
}

func TestScan_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := `{"in_network": [{"negotiated_rates": [{"provider_groups": [{"npi": [1234567890]}]}]}]}`
	table, err := Scan(ctx, strings.NewReader(doc), testSet(t, 1234567890), DefaultConfig(), ScanCallbacks{})
	if table != nil {
		t.Error("expected no table on cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScan_Idempotent(t *testing.T) {
	doc := `{
	"provider_references": [{"provider_group_id": 1, "provider_groups": [{"npi": [1111111111]}]}],
	"in_network": [
		{"negotiated_rates": [{"provider_references": [1]}]},
		{"negotiated_rates": [{"provider_groups": [{"npi": [2222222222]}]}]}
	]
	}`
	cands := testSet(t, 1111111111, 2222222222, 3333333333)

	first, err := scan(t, doc, cands, DefaultConfig())
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := scan(t, doc, cands, DefaultConfig())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	for _, p := range cands.Providers() {
		if first.Status(p.NPI) != second.Status(p.NPI) {
			t.Errorf("NPI %d: status differs across runs (%v vs %v)",
				p.NPI, first.Status(p.NPI), second.Status(p.NPI))
		}
	}
}

func TestScan_AbsentStatusPolicy(t *testing.T) {
	doc := `{"in_network": []}`
	cfg := DefaultConfig()
	cfg.AbsentStatus = StatusOutOfNetwork

	table, err := scan(t, doc, testSet(t, 1234567890), cfg)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := table.Status(1234567890); got != StatusOutOfNetwork {
		t.Errorf("expected out_of_network per policy, got %v", got)
	}
}

func TestScan_Callbacks(t *testing.T) {
	doc := `{
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [1111111111]}]},
		{"provider_group_id": 2, "provider_groups": [{"npi": [9999999999]}]}
	],
	"in_network": [
		{"negotiated_rates": [{"provider_references": [1]}]},
		{"negotiated_rates": [{"provider_groups": [{"npi": [9999999998]}]}]}
	]
	}`

	var groups, entries, observations int
	var stages []string
	cb := ScanCallbacks{
		OnStage:        func(s string) { stages = append(stages, s) },
		OnGroupScanned: func() { groups++ },
		OnEntryScanned: func() { entries++ },
		OnObservation:  func(NetworkObservation) { observations++ },
	}
	_, err := Scan(context.Background(), strings.NewReader(doc), testSet(t, 1111111111), DefaultConfig(), cb)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if groups != 2 {
		t.Errorf("expected 2 groups scanned, got %d", groups)
	}
	if entries != 2 {
		t.Errorf("expected 2 entries scanned, got %d", entries)
	}
	if observations != 1 {
		t.Errorf("expected 1 observation, got %d", observations)
	}
	if len(stages) != 2 {
		t.Errorf("expected 2 stage changes, got %v", stages)
	}
}

func TestScan_ObservationDetails(t *testing.T) {
	doc := `{
	"provider_references": [{"provider_group_id": 12, "provider_groups": [{"npi": [1111111111]}]}],
	"in_network": [
		{"billing_code": "99213", "negotiated_rates": [{"provider_groups": [{"npi": [2222222222]}]}]},
		{"negotiated_rates": [{"provider_references": [12]}]}
	]
	}`

	var got []NetworkObservation
	cb := ScanCallbacks{OnObservation: func(obs NetworkObservation) { got = append(got, obs) }}
	_, err := Scan(context.Background(), strings.NewReader(doc), testSet(t, 1111111111, 2222222222), DefaultConfig(), cb)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %+v", got)
	}

	embedded, viaRef := got[0], got[1]
	if embedded.NPI != 2222222222 || embedded.FromReference || embedded.BillingContext != "99213" {
		t.Errorf("unexpected embedded observation: %+v", embedded)
	}
	if viaRef.NPI != 1111111111 || !viaRef.FromReference || viaRef.ProviderGroup != "12" {
		t.Errorf("unexpected reference observation: %+v", viaRef)
	}
}

// TestScan_BoundedByCandidateSet grows the document while holding the
// candidate set fixed: recorded state must stay bounded by the candidates
// and the resolver caps, not the record count.
func TestScan_BoundedByCandidateSet(t *testing.T) {
	cands := testSet(t, 1234567890, 2222222222)

	for _, entries := range []int{100, 1000, 5000} {
		var b strings.Builder
		b.WriteString(`{"in_network": [`)
		for i := 0; i < entries; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			// Every entry carries a unique non-candidate NPI.
			fmt.Fprintf(&b, `{"negotiated_rates": [{"provider_groups": [{"npi": [%d]}]}]}`, 9000000000+int64(i))
		}
		b.WriteString(`, {"negotiated_rates": [{"provider_groups": [{"npi": [1234567890]}]}]}]}`)

		table, err := scan(t, b.String(), cands, DefaultConfig())
		if err != nil {
			t.Fatalf("entries=%d: %v", entries, err)
		}
		if table.Len() != 1 {
			t.Errorf("entries=%d: table size %d, want 1 (independent of document size)", entries, table.Len())
		}
		if got := table.Status(1234567890); got != StatusInNetwork {
			t.Errorf("entries=%d: expected in_network, got %v", entries, got)
		}
	}
}

func TestScan_SkipsUnknownKeys(t *testing.T) {
	doc := `{
	"reporting_entity_name": "Test Health Plan",
	"reporting_entity_type": "health_insurance_issuer",
	"last_updated_on": "2025-01-15",
	"version": "1.0",
	"provider_references": [],
	"in_network": []
	}`

	table, err := scan(t, doc, testSet(t, 1234567890), DefaultConfig())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d entries", table.Len())
	}
}
