package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// instanceStride is the instance-id encoding: an instance id divided by this
// yields its definition id. Serials wrap within the stride.
const instanceStride = 1000

// DefinitionIDOf extracts the catalog id from a unit instance id.
func DefinitionIDOf(instanceID int32) int32 {
	return instanceID / instanceStride
}

// InstanceID builds a unit instance id from a definition id and a serial.
func InstanceID(definitionID int32, serial int64) int32 {
	return definitionID*instanceStride + int32(serial%instanceStride)
}

// EchoStats is the definition-level stat bundle. AttackSpeedPct scales the
// class attack cooldown (100 = baseline). Range 0 means the class default.
type EchoStats struct {
	HP             int `yaml:"hp"`
	Attack         int `yaml:"attack"`
	Defense        int `yaml:"defense"`
	MagicResist    int `yaml:"magic_resist"`
	AttackSpeedPct int `yaml:"attack_speed_pct"`
	CritChance     int `yaml:"crit_chance"` // percent
	CritDamage     int `yaml:"crit_damage"` // percent of base, 150 = +50%
	Range          int `yaml:"range"`
	ManaMax        int `yaml:"mana_max"`
	ManaStart      int `yaml:"mana_start"`
}

// EchoDefinition holds the static data for one unit type.
type EchoDefinition struct {
	ID        int32     `yaml:"id"`
	Name      string    `yaml:"name"`
	Rarity    Rarity    `yaml:"rarity"`
	Class     Class     `yaml:"class"`
	Resonance Resonance `yaml:"resonance"`
	Stats     EchoStats `yaml:"stats"`
	Abilities []int32   `yaml:"abilities"`
}

type echoListFile struct {
	Echoes []EchoDefinition `yaml:"echoes"`
}

// Catalog holds all echo definitions indexed by id. Immutable after boot
// and safe to share across goroutines.
type Catalog struct {
	defs     map[int32]*EchoDefinition
	byRarity map[Rarity][]int32
}

// LoadCatalog loads echo definitions from a YAML file. An empty path loads
// the embedded default set.
func LoadCatalog(path string) (*Catalog, error) {
	var (
		raw []byte
		err error
	)
	if path == "" {
		raw = defaultEchoList
	} else {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read echo_list: %w", err)
		}
	}
	var f echoListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse echo_list: %w", err)
	}
	c := &Catalog{
		defs:     make(map[int32]*EchoDefinition, len(f.Echoes)),
		byRarity: make(map[Rarity][]int32),
	}
	for i := range f.Echoes {
		def := &f.Echoes[i]
		if def.ID <= 0 {
			return nil, fmt.Errorf("echo %q has invalid id %d", def.Name, def.ID)
		}
		if _, dup := c.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate echo id %d", def.ID)
		}
		c.defs[def.ID] = def
		c.byRarity[def.Rarity] = append(c.byRarity[def.Rarity], def.ID)
	}
	for _, ids := range c.byRarity {
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	}
	return c, nil
}

// Get returns a definition by id, or nil if not found.
func (c *Catalog) Get(id int32) *EchoDefinition {
	return c.defs[id]
}

// ByInstance resolves a unit instance id to its definition, or nil.
func (c *Catalog) ByInstance(instanceID int32) *EchoDefinition {
	return c.defs[DefinitionIDOf(instanceID)]
}

// IDsByRarity returns the definition ids of a tier in ascending order.
// The returned slice is shared; callers must not mutate it.
func (c *Catalog) IDsByRarity(r Rarity) []int32 {
	return c.byRarity[r]
}

// Count returns the number of loaded definitions.
func (c *Catalog) Count() int {
	return len(c.defs)
}

// Tune runs fn over every definition in ascending id order. Meant for the
// balance script at boot, before the catalog is shared.
func (c *Catalog) Tune(fn func(*EchoDefinition) error) error {
	ids := make([]int32, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		if err := fn(c.defs[id]); err != nil {
			return fmt.Errorf("tune echo %d: %w", id, err)
		}
	}
	return nil
}
