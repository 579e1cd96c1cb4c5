package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	require.Positive(t, c.Count())

	// every rarity tier must be purchasable
	for _, r := range Rarities() {
		assert.NotEmpty(t, c.IDsByRarity(r), "no echoes of rarity %s", r)
	}
	// ids by rarity come back sorted
	for _, r := range Rarities() {
		ids := c.IDsByRarity(r)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i])
		}
	}
}

func TestCatalogLookups(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	def := c.Get(1)
	require.NotNil(t, def)
	assert.Equal(t, "Cinder Whelp", def.Name)
	assert.Equal(t, RarityCommon, def.Rarity)
	assert.Nil(t, c.Get(9999))

	inst := InstanceID(def.ID, 7)
	assert.Equal(t, int32(1007), inst)
	assert.Equal(t, def.ID, DefinitionIDOf(inst))
	assert.Same(t, def, c.ByInstance(inst))
}

func TestInstanceIDWrapsSerial(t *testing.T) {
	assert.Equal(t, int32(5001), InstanceID(5, 1))
	assert.Equal(t, int32(5001), InstanceID(5, 1001))
	assert.Equal(t, int32(5), DefinitionIDOf(InstanceID(5, 999)))
}

func TestLoadCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echoes.yaml")
	body := `
echoes:
  - id: 41
    name: Test Unit
    rarity: rare
    class: warden
    resonance: gale
    stats: { hp: 100, attack: 10 }
    abilities: [2001]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())

	def := c.Get(41)
	require.NotNil(t, def)
	assert.Equal(t, ClassWarden, def.Class)
	assert.Equal(t, ResonanceGale, def.Resonance)
	assert.Equal(t, 100, def.Stats.HP)
}

func TestLoadCatalogRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"duplicate id", `
echoes:
  - { id: 1, name: A, rarity: common, class: striker, resonance: ember }
  - { id: 1, name: B, rarity: common, class: striker, resonance: ember }
`},
		{"zero id", `
echoes:
  - { id: 0, name: A, rarity: common, class: striker, resonance: ember }
`},
		{"unknown rarity", `
echoes:
  - { id: 1, name: A, rarity: mythic, class: striker, resonance: ember }
`},
		{"unknown class", `
echoes:
  - { id: 1, name: A, rarity: common, class: bard, resonance: ember }
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "echoes.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadCatalog(path)
			require.Error(t, err)
		})
	}
}

func TestTuneVisitsAllDefinitions(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	visited := 0
	prev := int32(0)
	err = c.Tune(func(def *EchoDefinition) error {
		visited++
		assert.Greater(t, def.ID, prev, "tune order must be ascending")
		prev = def.ID
		def.Stats.HP += 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, c.Count(), visited)
	assert.Equal(t, 485, c.Get(1).Stats.HP)
}
