package rank

import (
	"strings"

	"github.com/gyeh/npi-match/internal/candidates"
)

// ZipDistance is the default distance model: a coarse zip-code heuristic.
// Same zip is treated as 1 mile, same 3-digit prefix (one sectional center)
// as 10, anything else as 100. Callers with real geo-coordinates should
// supply their own DistanceFunc.
func ZipDistance(patient Patient, p candidates.Provider) float64 {
	pz := strings.TrimSpace(patient.Zip)
	cz := strings.TrimSpace(p.Zip)
	switch {
	case pz == "" || cz == "":
		return 100.0
	case pz == cz:
		return 1.0
	case len(pz) >= 3 && len(cz) >= 3 && pz[:3] == cz[:3]:
		return 10.0
	default:
		return 100.0
	}
}
