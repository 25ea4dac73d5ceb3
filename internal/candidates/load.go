package candidates

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	simdjson "github.com/minio/simdjson-go"
)

// Load reads candidate provider records from NDJSON (one JSON object per
// line). Blank lines are skipped; a malformed line is an error, since a
// silently dropped candidate could exclude a provider from ranking.
func Load(r io.Reader) ([]Provider, error) {
	if simdjson.SupportedCPU() {
		return loadSimd(r)
	}
	return loadStd(r)
}

// LoadFile reads candidate records from an NDJSON file.
func LoadFile(path string) ([]Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	providers, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading candidates from %s: %w", path, err)
	}
	return providers, nil
}

func loadStd(r io.Reader) ([]Provider, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var providers []Provider
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec providerRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		providers = append(providers, rec.provider())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return providers, nil
}

// providerRecord tolerates NPIs serialized as either a number or a string,
// which registry exports do inconsistently.
type providerRecord struct {
	NPI          npiValue `json:"npi"`
	Name         string   `json:"name"`
	Gender       string   `json:"gender"`
	Zip          string   `json:"zip"`
	TaxonomyCode string   `json:"taxonomy_code"`
}

func (r providerRecord) provider() Provider {
	return Provider{
		NPI:          int64(r.NPI),
		Name:         r.Name,
		Gender:       r.Gender,
		Zip:          r.Zip,
		TaxonomyCode: r.TaxonomyCode,
	}
}

type npiValue int64

func (n *npiValue) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid npi %s", b)
	}
	*n = npiValue(v)
	return nil
}
