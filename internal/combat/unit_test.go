package combat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/world"
)

const loadTestCatalogYAML = `
echoes:
  - { id: 1, name: Emberling, rarity: common, class: striker, resonance: ember,
      stats: { hp: 500, attack: 50, defense: 5, crit_chance: 10, crit_damage: 150, mana_max: 60, mana_start: 10 },
      abilities: [2001] }
  - { id: 2, name: Prismkin, rarity: rare, class: arcanist, resonance: prism,
      stats: { hp: 700, attack: 70, attack_speed_pct: 140, range: 4, mana_max: 80 } }
`

func loadTestCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echoes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loadTestCatalogYAML), 0o644))
	catalog, err := data.LoadCatalog(path)
	require.NoError(t, err)
	return catalog
}

func boardPlayer(slots map[int]world.Slot) *world.PlayerRuntime {
	p := &world.PlayerRuntime{Board: make([]world.Slot, 16)}
	for i := range p.Board {
		p.Board[i] = world.Slot{InstanceID: world.EmptySlot}
	}
	for i, s := range slots {
		p.Board[i] = s
	}
	return p
}

func TestLoadUnitsBakesStarsResonancesAndMutations(t *testing.T) {
	set := testSet()
	catalog := loadTestCatalog(t)
	p := boardPlayer(map[int]world.Slot{
		0: {InstanceID: 1005, Star: 2},
		5: {InstanceID: 2003, Star: 1},
	})
	p.Resonances = []world.ResonanceActive{{Kind: data.ResonanceEmber, Count: 2, Tier: 1}}

	units, err := LoadUnits(set, catalog, p, 0, MutationBonus{HPPct: 10})
	require.NoError(t, err)
	require.Len(t, units, 2)

	ember := units[0]
	assert.Equal(t, int32(1005), ember.InstanceID)
	assert.Equal(t, int32(1), ember.DefinitionID)
	assert.Equal(t, 0, ember.Col)
	assert.Equal(t, 0, ember.Row)
	// 500 hp at 2 stars is 950, plus the 10% mutation.
	assert.Equal(t, 1045, ember.HP)
	assert.Equal(t, 1045, ember.MaxHP)
	// 50 attack at 2 stars is 87, plus 10 from ember tier 1.
	assert.Equal(t, 97, ember.Attack)
	assert.Equal(t, 24, ember.CooldownBase) // striker baseline, speed 100
	assert.Equal(t, 1, ember.Range)         // class default
	assert.Equal(t, 10, ember.Mana)
	assert.Equal(t, TargetNearest, ember.Strategy)
	assert.Equal(t, []int32{2001}, ember.Abilities)

	prism := units[1]
	assert.Equal(t, 1, prism.Col) // index 5 on a 4-wide board
	assert.Equal(t, 1, prism.Row)
	// Prism units share every active resonance: 70 base + ember 10.
	assert.Equal(t, 80, prism.Attack)
	assert.Equal(t, 30, prism.CooldownBase)                 // 42 * 100 / 140
	assert.Equal(t, 4, prism.Range)
	assert.Equal(t, TargetFarthest, prism.Strategy)
}

func TestLoadUnitsMirrorsTeamOne(t *testing.T) {
	set := testSet()
	catalog := loadTestCatalog(t)
	p := boardPlayer(map[int]world.Slot{
		2: {InstanceID: 1001, Star: 1},
	})

	units, err := LoadUnits(set, catalog, p, 1, MutationBonus{})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, set.Width-1-2, units[0].Col)
	assert.Equal(t, 0, units[0].Row)
}

func TestLoadUnitsStarsClampToTable(t *testing.T) {
	set := testSet()
	catalog := loadTestCatalog(t)
	p := boardPlayer(map[int]world.Slot{
		0: {InstanceID: 1001, Star: 9},
	})

	units, err := LoadUnits(set, catalog, p, 0, MutationBonus{})
	require.NoError(t, err)
	assert.Equal(t, 500*360/100, units[0].MaxHP)
}

func TestLoadUnitsRejectsUnknownInstance(t *testing.T) {
	set := testSet()
	catalog := loadTestCatalog(t)
	p := boardPlayer(map[int]world.Slot{
		0: {InstanceID: 99001, Star: 1},
	})

	_, err := LoadUnits(set, catalog, p, 0, MutationBonus{})
	assert.Error(t, err)
}
