package shop

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/echoarena/server/internal/config"
	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/world"
)

// Settings carries the shop's tuned numbers with rarity names resolved.
type Settings struct {
	Size          int
	RefreshCost   int
	PityRare      int
	PityEpic      int
	PityLegendary int
	Costs         []int // indexed by data.Rarity
	Buckets       []Bucket
}

// Bucket is one row of the level-keyed probability table. Rows are matched
// in order; the first with MaxLevel >= the player's level wins.
type Bucket struct {
	MaxLevel int
	Weights  []int // indexed by data.Rarity
}

// SettingsFromConfig resolves the name-keyed config maps into rarity-indexed
// tables.
func SettingsFromConfig(cfg config.ShopConfig) (Settings, error) {
	set := Settings{
		Size:          cfg.Size,
		RefreshCost:   cfg.RefreshCost,
		PityRare:      cfg.PityRare,
		PityEpic:      cfg.PityEpic,
		PityLegendary: cfg.PityLegendary,
		Costs:         make([]int, len(data.Rarities())),
	}
	for name, cost := range cfg.Costs {
		r, err := data.ParseRarity(name)
		if err != nil {
			return Settings{}, fmt.Errorf("shop costs: %w", err)
		}
		set.Costs[r] = cost
	}
	for _, b := range cfg.Buckets {
		row := Bucket{MaxLevel: b.MaxLevel, Weights: make([]int, len(data.Rarities()))}
		for name, w := range b.Weights {
			r, err := data.ParseRarity(name)
			if err != nil {
				return Settings{}, fmt.Errorf("shop bucket %d: %w", b.MaxLevel, err)
			}
			row.Weights[r] = w
		}
		set.Buckets = append(set.Buckets, row)
	}
	return set, nil
}

// Manager composes the catalog, the session pool, and the player store into
// the shop operations. Orchestrator goroutine only: the pool and the rng
// are unsynchronized, and serials must not burn on CAS retries.
type Manager struct {
	catalog *data.Catalog
	pool    *Pool
	store   *world.Store
	set     Settings
	rng     *rand.Rand
	log     *zap.Logger

	serial int64
}

func NewManager(catalog *data.Catalog, pool *Pool, store *world.Store, set Settings, rng *rand.Rand, log *zap.Logger) *Manager {
	return &Manager{
		catalog: catalog,
		pool:    pool,
		store:   store,
		set:     set,
		rng:     rng,
		log:     log,
	}
}

// Cost returns the buy/sell price of a definition.
func (m *Manager) Cost(defID int32) (int, error) {
	def := m.catalog.Get(defID)
	if def == nil {
		return 0, fmt.Errorf("unknown definition %d", defID)
	}
	return m.set.Costs[def.Rarity], nil
}

// Buy purchases the echo in a shop slot onto the bench. The whole purchase
// is one transform: on any rejection no gold moves, no slot clears, and no
// unit appears.
func (m *Manager) Buy(playerID int32, slot int) (*world.PlayerRuntime, []world.FusionEvent, error) {
	cur, ok := m.store.Get(playerID)
	if !ok {
		return nil, nil, fmt.Errorf("player %d not seated", playerID)
	}
	if slot < 0 || slot >= len(cur.Shop) {
		return nil, nil, world.Reject(world.ReasonBadPosition)
	}
	defID := cur.Shop[slot]
	if defID == world.EmptySlot {
		return nil, nil, world.Reject(world.ReasonEmptyShopSlot)
	}
	cost, err := m.Cost(defID)
	if err != nil {
		return nil, nil, err
	}

	// The serial is allocated outside the transform so a CAS retry reuses
	// the same instance id. A rejected buy burns one serial, which is fine.
	// The per-definition id space wraps every 1000 serials, so skip any id
	// a seated player still holds.
	m.serial++
	instanceID := data.InstanceID(defID, m.serial)
	for m.instanceInUse(instanceID) {
		m.serial++
		instanceID = data.InstanceID(defID, m.serial)
	}

	var events []world.FusionEvent
	snap, err := m.store.Apply(playerID, func(p *world.PlayerRuntime) error {
		events = nil // transform may rerun
		if slot >= len(p.Shop) || p.Shop[slot] != defID {
			return world.Reject(world.ReasonEmptyShopSlot)
		}
		bi := p.FirstFreeBench()
		if bi < 0 {
			return world.Reject(world.ReasonBenchFull)
		}
		if p.Gold < cost {
			return world.Reject(world.ReasonNoGold)
		}
		p.Gold -= cost
		p.Shop[slot] = world.EmptySlot
		p.Bench[bi] = world.Slot{InstanceID: instanceID, Star: 1}
		events = world.CompressFusionEvents(world.RunFusion(p.Board, p.Bench))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, events, nil
}

func (m *Manager) instanceInUse(id int32) bool {
	for _, p := range m.store.All() {
		if p.FindBench(id) >= 0 || p.FindBoard(id) >= 0 {
			return true
		}
	}
	return false
}

// Sell removes an owned instance and refunds its rarity cost. The copy goes
// back to the pool after the commit.
func (m *Manager) Sell(playerID int32, instanceID int32) (*world.PlayerRuntime, error) {
	defID := data.DefinitionIDOf(instanceID)
	refund, err := m.Cost(defID)
	if err != nil {
		return nil, world.Reject(world.ReasonUnitNotFound)
	}

	maxGold := m.store.Rules().MaxGold
	snap, err := m.store.Apply(playerID, func(p *world.PlayerRuntime) error {
		if _, _, found := p.RemoveInstance(instanceID); !found {
			return world.Reject(world.ReasonUnitNotFound)
		}
		p.Gold = min(p.Gold+refund, maxGold)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.pool.Return(defID)
	return snap, nil
}

// Refresh charges the refresh cost, advances the pity counters, and deals a
// fresh shop. The old shop's copies go back to the pool before the draw.
func (m *Manager) Refresh(playerID int32) (*world.PlayerRuntime, error) {
	cost := m.set.RefreshCost
	snap, err := m.store.Apply(playerID, func(p *world.PlayerRuntime) error {
		if p.Gold < cost {
			return world.Reject(world.ReasonNoGold)
		}
		p.Gold -= cost
		p.PityNoRare++
		p.PityNoEpic++
		p.PityNoLegendary++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.deal(playerID, snap)
}

// Deal replaces a player's shop for free, the round-start path. Only paid
// refreshes advance the pity counters; a dealt shop can still consume them
// through the gate or a lucky natural draw.
func (m *Manager) Deal(playerID int32) (*world.PlayerRuntime, error) {
	snap, ok := m.store.Get(playerID)
	if !ok {
		return nil, fmt.Errorf("player %d not seated", playerID)
	}
	return m.deal(playerID, snap)
}

// deal returns the committed shop to the pool, generates the replacement
// from the committed pity counters, and commits shop + counters together.
// Pool traffic stays outside the transform so a CAS retry cannot double
// draw.
func (m *Manager) deal(playerID int32, snap *world.PlayerRuntime) (*world.PlayerRuntime, error) {
	for _, id := range snap.Shop {
		if id != world.EmptySlot {
			m.pool.Return(id)
		}
	}

	g := m.generate(snap.Level, snap.PityNoRare, snap.PityNoEpic, snap.PityNoLegendary)

	return m.store.Apply(playerID, func(p *world.PlayerRuntime) error {
		p.Shop = append([]int32(nil), g.shop...)
		p.PityNoRare = g.pityRare
		p.PityNoEpic = g.pityEpic
		p.PityNoLegendary = g.pityLegendary
		return nil
	})
}

type generated struct {
	shop          []int32
	pityRare      int
	pityEpic      int
	pityLegendary int
}

// generate fills the shop slot by slot. Each slot runs the pity gate, draws
// from the pool at the target rarity, cascades downward on exhaustion, and
// applies the natural pity reset for unforced Rare+ draws.
func (m *Manager) generate(level, pityRare, pityEpic, pityLegendary int) generated {
	g := generated{
		shop:          make([]int32, m.set.Size),
		pityRare:      pityRare,
		pityEpic:      pityEpic,
		pityLegendary: pityLegendary,
	}
	for i := range g.shop {
		g.shop[i] = world.EmptySlot

		target, forced := m.pityGate(&g, level)

		id, drawn, ok := m.draw(target)
		if !ok {
			continue // every rarity exhausted, slot stays empty
		}
		g.shop[i] = id

		if !forced {
			switch {
			case drawn >= data.RarityLegendary:
				g.pityLegendary, g.pityEpic, g.pityRare = 0, 0, 0
			case drawn >= data.RarityEpic:
				g.pityEpic, g.pityRare = 0, 0
			case drawn >= data.RarityRare:
				g.pityRare = 0
			}
		}
	}
	return g
}

// pityGate picks the slot's target rarity. A hit forces the guaranteed tier
// and consumes the counters, so at most one slot per generation is forced
// by each tier.
func (m *Manager) pityGate(g *generated, level int) (data.Rarity, bool) {
	switch {
	case g.pityLegendary >= m.set.PityLegendary:
		g.pityLegendary, g.pityEpic, g.pityRare = 0, 0, 0
		return data.RarityLegendary, true
	case g.pityEpic >= m.set.PityEpic:
		g.pityEpic, g.pityRare = 0, 0
		return data.RarityEpic, true
	case g.pityRare >= m.set.PityRare:
		g.pityRare = 0
		return data.RarityRare, true
	}
	return m.rollRarity(level), false
}

// rollRarity samples the player's level bucket. A missing bucket or an
// all-zero row falls back to Common.
func (m *Manager) rollRarity(level int) data.Rarity {
	var weights []int
	for _, b := range m.set.Buckets {
		if level <= b.MaxLevel {
			weights = b.Weights
			break
		}
	}
	if weights == nil && len(m.set.Buckets) > 0 {
		weights = m.set.Buckets[len(m.set.Buckets)-1].Weights
	}

	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return data.RarityCommon
	}
	roll := m.rng.Intn(total)
	for r, w := range weights {
		if roll < w {
			return data.Rarity(r)
		}
		roll -= w
	}
	return data.RarityCommon
}

// draw takes one pool copy at the target rarity, walking candidates in a
// shuffled order, then cascades down a tier at a time until something is
// in stock.
func (m *Manager) draw(target data.Rarity) (int32, data.Rarity, bool) {
	for r := target; r >= data.RarityCommon; r-- {
		ids := m.catalog.IDsByRarity(r)
		if len(ids) == 0 {
			continue
		}
		shuffled := append([]int32(nil), ids...)
		m.rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		for _, id := range shuffled {
			if m.pool.Take(id) {
				return id, r, true
			}
		}
	}
	return world.EmptySlot, 0, false
}
