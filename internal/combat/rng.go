package combat

import "math/rand"

// seedMix spreads consecutive pair indexes across the seed space.
const seedMix = 0x9E3779B9

// NewRNG builds the per-combat generator. Nothing else may draw from it:
// determinism depends on every combat consuming its own sequence.
func NewRNG(globalSeed int64, pairIndex int) *rand.Rand {
	return rand.New(rand.NewSource(globalSeed ^ (int64(pairIndex) * seedMix)))
}
