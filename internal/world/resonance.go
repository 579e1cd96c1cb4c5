package world

import (
	"sort"

	"github.com/echoarena/server/internal/data"
)

// ResonanceActive is one granted tier for a board.
type ResonanceActive struct {
	Kind  data.Resonance `json:"kind"`
	Count int            `json:"count"`
	Tier  int            `json:"tier"`
}

// ResonanceCalc derives active resonances from a board. Prism units count
// toward every other kind.
type ResonanceCalc struct {
	catalog    *data.Catalog
	thresholds []int // ascending; index i grants tier i+1
}

func NewResonanceCalc(catalog *data.Catalog, thresholds []int) *ResonanceCalc {
	return &ResonanceCalc{catalog: catalog, thresholds: thresholds}
}

// Active computes the granted resonances for the occupied board slots,
// sorted by kind name for deterministic output.
func (rc *ResonanceCalc) Active(board []Slot) []ResonanceActive {
	counts := make(map[data.Resonance]int)
	prism := 0
	for _, s := range board {
		if s.Empty() {
			continue
		}
		def := rc.catalog.ByInstance(s.InstanceID)
		if def == nil {
			continue
		}
		if def.Resonance == data.ResonancePrism {
			prism++
			continue
		}
		counts[def.Resonance]++
	}

	var out []ResonanceActive
	for _, kind := range data.Resonances() {
		effective := counts[kind]
		if effective == 0 {
			continue
		}
		effective += prism
		tier := 0
		for i, th := range rc.thresholds {
			if effective >= th {
				tier = i + 1
			}
		}
		if tier == 0 {
			continue
		}
		out = append(out, ResonanceActive{Kind: kind, Count: effective, Tier: tier})
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Kind.String() < out[b].Kind.String()
	})
	return out
}
