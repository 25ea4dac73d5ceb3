package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gyeh/npi-match/internal/rank"
)

// MatchParams holds metadata about one matching run.
type MatchParams struct {
	PatientGender   string   `json:"patient_gender"`
	PatientZip      string   `json:"patient_zip"`
	TaxonomyCode    string   `json:"taxonomy_code,omitempty"`
	Candidates      int      `json:"candidates"`
	ScannedSources  []string `json:"scanned_sources"`
	InNetwork       int      `json:"in_network"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// MatchOutput is the top-level output JSON structure.
type MatchOutput struct {
	MatchParams MatchParams           `json:"match_params"`
	Results     []rank.RankedProvider `json:"results"`
}

// WriteResults writes the final JSON output to the specified file.
// An empty result list is a valid outcome and serializes as [].
func WriteResults(outputPath string, params MatchParams, results []rank.RankedProvider) error {
	if results == nil {
		results = []rank.RankedProvider{}
	}

	output := MatchOutput{
		MatchParams: params,
		Results:     results,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}

	if outputPath == "-" {
		_, err = os.Stdout.Write(data)
		fmt.Fprintln(os.Stdout)
		return err
	}

	return os.WriteFile(outputPath, data, 0o644)
}
