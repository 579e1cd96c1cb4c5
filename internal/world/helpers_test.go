package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echoarena/server/internal/data"
)

const testCatalogYAML = `
echoes:
  - { id: 1, name: Emberling, rarity: common, class: striker, resonance: ember, stats: { hp: 500, attack: 50 } }
  - { id: 2, name: Tideguard, rarity: common, class: vanguard, resonance: tide, stats: { hp: 550, attack: 45 } }
  - { id: 3, name: Terrapin, rarity: common, class: warden, resonance: terra, stats: { hp: 520, attack: 48 } }
  - { id: 4, name: Galewisp, rarity: uncommon, class: trickster, resonance: gale, stats: { hp: 600, attack: 60 } }
  - { id: 5, name: Prismkin, rarity: rare, class: arcanist, resonance: prism, stats: { hp: 700, attack: 70 } }
  - { id: 6, name: Embermage, rarity: uncommon, class: arcanist, resonance: ember, stats: { hp: 580, attack: 62 } }
`

func newTestCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echoes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o644))
	c, err := data.LoadCatalog(path)
	require.NoError(t, err)
	return c
}

func testRules() Rules {
	return Rules{
		StartingNexus: 100,
		MaxNexus:      100,
		StartingGold:  5,
		MaxGold:       100,
		BenchSize:     9,
		BoardCols:     4,
		BoardRows:     4,
		ShopSize:      5,
		LevelCap:      10,
		XPThresholds:  []int{2, 2, 6, 10, 20, 36, 56, 80, 100},
		XPBuyCost:     4,
		XPBuyAmount:   4,
		AutoXP:        2,
		BaseIncome:    5,
		InterestPer:   10,
		InterestCap:   5,
		StreakTiers:   []StreakTier{{Min: 2, Bonus: 1}, {Min: 4, Bonus: 2}, {Min: 6, Bonus: 3}},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	catalog := newTestCatalog(t)
	return NewStore(testRules(), NewResonanceCalc(catalog, []int{2, 4, 6}))
}

func seatPlayer(t *testing.T, s *Store, id int32, name string) *PlayerRuntime {
	t.Helper()
	p, err := s.AddSeat(id, name)
	require.NoError(t, err)
	return p
}
