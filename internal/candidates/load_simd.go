package candidates

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	simdjson "github.com/minio/simdjson-go"
)

// loadSimd parses candidate NDJSON with simdjson. Full native extraction —
// no json.Unmarshal needed.
func loadSimd(r io.Reader) ([]Provider, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var providers []Provider
	var pj *simdjson.ParsedJson
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var err error
		pj, err = simdjson.Parse(line, pj)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		var parseErr error
		pj.ForEach(func(i simdjson.Iter) error {
			p, err := extractProvider(i)
			if err != nil {
				parseErr = fmt.Errorf("line %d: %w", lineNum, err)
				return nil
			}
			providers = append(providers, p)
			return nil
		})
		if parseErr != nil {
			return nil, parseErr
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return providers, nil
}

// extractProvider pulls the candidate fields from one record iterator.
// FindElement resets position each call.
func extractProvider(i simdjson.Iter) (Provider, error) {
	var p Provider

	npiElem, err := i.FindElement(nil, "npi")
	if err != nil {
		return p, fmt.Errorf("missing npi field")
	}
	if n, err := npiElem.Iter.Int(); err == nil {
		p.NPI = n
	} else if s, err := npiElem.Iter.String(); err == nil {
		n, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return p, fmt.Errorf("invalid npi %q", s)
		}
		p.NPI = n
	} else {
		return p, fmt.Errorf("invalid npi field")
	}

	if e, err := i.FindElement(nil, "name"); err == nil {
		p.Name, _ = e.Iter.String()
	}
	if e, err := i.FindElement(nil, "gender"); err == nil {
		p.Gender, _ = e.Iter.String()
	}
	if e, err := i.FindElement(nil, "zip"); err == nil {
		p.Zip, _ = e.Iter.String()
	}
	if e, err := i.FindElement(nil, "taxonomy_code"); err == nil {
		p.TaxonomyCode, _ = e.Iter.String()
	}
	return p, nil
}
