// Package rank scores and orders the in-network candidate subset by patient
// affinity.
package rank

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/mrf"
)

// Weights of the affinity formula. The network term is constant post-filter;
// it is kept in the formula so reported scores stay comparable with the
// historical scale (max 1.0).
const (
	genderWeight   = 0.2
	distanceWeight = 0.3
	networkWeight  = 0.5

	// minDistance floors the distance before inversion so a zero-distance
	// provider cannot blow up the score.
	minDistance = 0.1
)

// Patient is the reference point providers are scored against.
type Patient struct {
	Gender string
	Zip    string
}

// RankedProvider is one scored, ordered result.
type RankedProvider struct {
	Provider      candidates.Provider `json:"provider"`
	Score         float64             `json:"score"`
	DistanceMiles float64             `json:"distance_miles"`
	NetworkStatus mrf.Status          `json:"network_status"`
}

// DistanceFunc estimates the patient-provider distance in miles. Scores stay
// within [0, 1] only while distances are >= 1; a sub-mile distance (floored
// at 0.1) pushes the inverse-distance term, and with it the score, past the
// nominal 1.0 ceiling. The default zip model never returns less than 1.
type DistanceFunc func(patient Patient, p candidates.Provider) float64

// Engine ranks candidates against a frozen status table. Scoring reads only
// immutable state, so it fans out across workers without locking.
type Engine struct {
	// Distance defaults to ZipDistance when nil.
	Distance DistanceFunc
	// Workers caps scoring concurrency; <= 0 selects GOMAXPROCS.
	Workers int
}

// Rank returns the in-network candidates ordered by score descending, ties
// broken by ascending distance, then ascending NPI, so the order is a strict
// total order. An empty result is a valid outcome, not an error.
//
// Candidates whose status is out-of-network or unknown are excluded
// unconditionally before scoring. This is a correctness requirement: an
// unconfirmed provider must never be ranked.
func (e *Engine) Rank(table *mrf.StatusTable, cands *candidates.Set, patient Patient) []RankedProvider {
	if !table.Frozen() {
		panic("rank: status table must be frozen before ranking")
	}

	distance := e.Distance
	if distance == nil {
		distance = ZipDistance
	}

	var eligible []candidates.Provider
	for _, p := range cands.Providers() {
		if table.Status(p.NPI) == mrf.StatusInNetwork {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return []RankedProvider{}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(eligible) {
		workers = len(eligible)
	}

	ranked := make([]RankedProvider, len(eligible))
	idxCh := make(chan int, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				p := eligible[i]
				d := distance(patient, p)
				ranked[i] = RankedProvider{
					Provider:      p,
					Score:         affinity(patient, p, d),
					DistanceMiles: d,
					NetworkStatus: mrf.StatusInNetwork,
				}
			}
		}()
	}
	for i := range eligible {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].DistanceMiles != ranked[j].DistanceMiles {
			return ranked[i].DistanceMiles < ranked[j].DistanceMiles
		}
		return ranked[i].Provider.NPI < ranked[j].Provider.NPI
	})
	return ranked
}

// affinity computes the weighted score, rounded to 4 decimal places.
func affinity(patient Patient, p candidates.Provider, distance float64) float64 {
	genderMatch := 0.0
	if patient.Gender != "" && strings.EqualFold(patient.Gender, p.Gender) {
		genderMatch = 1.0
	}
	if distance < minDistance {
		distance = minDistance
	}
	score := genderWeight*genderMatch + distanceWeight*(1.0/distance) + networkWeight*1.0
	return math.Round(score*10000) / 10000
}
