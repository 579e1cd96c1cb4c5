package match

import (
	"sort"

	"github.com/echoarena/server/internal/world"
)

// GhostState is the board snapshot a ghost opponent fights with.
type GhostState struct {
	SourceID int32        `json:"source_id"`
	Board    []world.Slot `json:"board"`
}

// Pair is one scheduled combat. A ghost pair carries OpponentID equal to
// the configured sentinel and a non-nil Ghost.
type Pair struct {
	PlayerID   int32
	OpponentID int32
	Ghost      *GhostState
}

// FeaturedReason explains why a pair was promoted to the featured slot.
type FeaturedReason string

const (
	FeaturedAtRisk FeaturedReason = "AtRisk"
	FeaturedHighHP FeaturedReason = "HighHP"
)

// Featured is the round's highlighted pair, if any.
type Featured struct {
	Pair   Pair
	Reason FeaturedReason
}

// Matchmaker pairs the surviving seats each round, avoiding repeats where
// it can and backfilling odd counts with ghost boards. Owned by the
// orchestrator goroutine; no internal locking.
type Matchmaker struct {
	ghostID      int32
	atRiskHP     int
	lastOpponent map[int32]int32
	ghostBank    map[int32]GhostState // keyed by the beaten player's id
}

func New(ghostID int32, atRiskHP int) *Matchmaker {
	return &Matchmaker{
		ghostID:      ghostID,
		atRiskHP:     atRiskHP,
		lastOpponent: make(map[int32]int32),
		ghostBank:    make(map[int32]GhostState),
	}
}

// GhostID reports the sentinel opponent id.
func (m *Matchmaker) GhostID() int32 { return m.ghostID }

// RecordResult updates last-opponent tracking and banks the winner's board
// under the loser's id, so the loser's next ghost is the board that beat
// them.
func (m *Matchmaker) RecordResult(winnerID, loserID int32, winnerBoard []world.Slot) {
	m.lastOpponent[winnerID] = loserID
	m.lastOpponent[loserID] = winnerID
	m.ghostBank[loserID] = GhostState{
		SourceID: winnerID,
		Board:    append([]world.Slot(nil), winnerBoard...),
	}
}

// PairRound builds the round's pairs from the alive seats plus the
// featured pick. Walk order is nexus hp descending, id ascending, so the
// strongest unpaired player always chooses next.
func (m *Matchmaker) PairRound(alive []*world.PlayerRuntime) ([]Pair, *Featured) {
	seats := append([]*world.PlayerRuntime(nil), alive...)
	sort.Slice(seats, func(a, b int) bool {
		if seats[a].Nexus != seats[b].Nexus {
			return seats[a].Nexus > seats[b].Nexus
		}
		return seats[a].ID < seats[b].ID
	})

	paired := make(map[int32]bool, len(seats))
	var pairs []Pair

	for _, p := range seats {
		if paired[p.ID] {
			continue
		}
		opp := m.pickOpponent(p, seats, paired)
		if opp == nil {
			pairs = append(pairs, m.ghostPair(p))
			paired[p.ID] = true
			continue
		}
		paired[p.ID] = true
		paired[opp.ID] = true
		pairs = append(pairs, Pair{PlayerID: p.ID, OpponentID: opp.ID})
	}

	return pairs, m.pickFeatured(pairs, seats)
}

// pickOpponent prefers candidates the player did not just fight; when
// everyone left is a repeat, the avoidance relaxes. Among the preferred
// set the smallest hp gap wins, ties to the lower id.
func (m *Matchmaker) pickOpponent(p *world.PlayerRuntime, seats []*world.PlayerRuntime, paired map[int32]bool) *world.PlayerRuntime {
	var fresh, any []*world.PlayerRuntime
	for _, cand := range seats {
		if cand.ID == p.ID || paired[cand.ID] {
			continue
		}
		any = append(any, cand)
		if m.lastOpponent[p.ID] != cand.ID {
			fresh = append(fresh, cand)
		}
	}
	pool := fresh
	if len(pool) == 0 {
		pool = any
	}

	var best *world.PlayerRuntime
	bestGap := 0
	for _, cand := range pool {
		gap := p.Nexus - cand.Nexus
		if gap < 0 {
			gap = -gap
		}
		if best == nil || gap < bestGap || (gap == bestGap && cand.ID < best.ID) {
			best = cand
			bestGap = gap
		}
	}
	return best
}

// ghostPair builds the fallback opponent: the board that last beat this
// player, or a mirror of their own when nobody has yet.
func (m *Matchmaker) ghostPair(p *world.PlayerRuntime) Pair {
	ghost, ok := m.ghostBank[p.ID]
	if !ok {
		ghost = GhostState{
			SourceID: p.ID,
			Board:    append([]world.Slot(nil), p.Board...),
		}
	}
	return Pair{PlayerID: p.ID, OpponentID: m.ghostID, Ghost: &ghost}
}

// pickFeatured promotes an at-risk pair first, then the strongest
// non-ghost pair by combined hp.
func (m *Matchmaker) pickFeatured(pairs []Pair, seats []*world.PlayerRuntime) *Featured {
	hp := make(map[int32]int, len(seats))
	for _, p := range seats {
		hp[p.ID] = p.Nexus
	}

	for _, pair := range pairs {
		if hp[pair.PlayerID] < m.atRiskHP || (pair.Ghost == nil && hp[pair.OpponentID] < m.atRiskHP) {
			f := &Featured{Pair: pair, Reason: FeaturedAtRisk}
			return f
		}
	}

	var best *Pair
	bestHP := 0
	for i := range pairs {
		pair := &pairs[i]
		if pair.Ghost != nil {
			continue
		}
		combined := hp[pair.PlayerID] + hp[pair.OpponentID]
		if best == nil || combined > bestHP {
			best = pair
			bestHP = combined
		}
	}
	if best == nil {
		return nil
	}
	return &Featured{Pair: *best, Reason: FeaturedHighHP}
}
