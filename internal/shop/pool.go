package shop

import "github.com/echoarena/server/internal/data"

// Pool is the shared per-session multiset of purchasable copies. Accessed
// only from the orchestrator goroutine, so no locks.
type Pool struct {
	counts map[int32]int
}

// NewPool seeds every catalog definition with the configured number of
// copies for its rarity.
func NewPool(catalog *data.Catalog, copies map[data.Rarity]int) *Pool {
	p := &Pool{counts: make(map[int32]int)}
	for _, r := range data.Rarities() {
		n := copies[r]
		for _, id := range catalog.IDsByRarity(r) {
			p.counts[id] = n
		}
	}
	return p
}

// Take removes one copy if available.
func (p *Pool) Take(id int32) bool {
	if p.counts[id] <= 0 {
		return false
	}
	p.counts[id]--
	return true
}

// Return puts one copy back.
func (p *Pool) Return(id int32) {
	p.counts[id]++
}

// Count reports the copies left for a definition.
func (p *Pool) Count(id int32) int {
	return p.counts[id]
}

// Total sums the copies left across all definitions.
func (p *Pool) Total() int {
	n := 0
	for _, c := range p.counts {
		n += c
	}
	return n
}
