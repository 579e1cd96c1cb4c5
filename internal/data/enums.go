package data

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rarity orders the shop tiers from cheapest to rarest. The numeric order
// matters: pity cascades walk it downward.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary

	rarityCount
)

var rarityNames = [rarityCount]string{"common", "uncommon", "rare", "epic", "legendary"}

func (r Rarity) String() string {
	if r < 0 || r >= rarityCount {
		return fmt.Sprintf("rarity(%d)", int(r))
	}
	return rarityNames[r]
}

func ParseRarity(s string) (Rarity, error) {
	for i, n := range rarityNames {
		if n == s {
			return Rarity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rarity %q", s)
}

// Rarities returns all tiers in ascending order.
func Rarities() []Rarity {
	out := make([]Rarity, rarityCount)
	for i := range out {
		out[i] = Rarity(i)
	}
	return out
}

func (r *Rarity) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseRarity(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Rarity) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *Rarity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRarity(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Class selects the per-class combat table (attack cooldown and range).
type Class int

const (
	ClassVanguard Class = iota
	ClassStriker
	ClassWarden
	ClassArcanist
	ClassTrickster

	classCount
)

var classNames = [classCount]string{"vanguard", "striker", "warden", "arcanist", "trickster"}

func (c Class) String() string {
	if c < 0 || c >= classCount {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

func ParseClass(s string) (Class, error) {
	for i, n := range classNames {
		if n == s {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown class %q", s)
}

func (c *Class) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseClass(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Class) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Class) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClass(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Resonance is the categorical tag counted for team bonuses. Prism is the
// wildcard: it counts toward every other kind and never forms its own.
type Resonance int

const (
	ResonancePrism Resonance = iota
	ResonanceEmber
	ResonanceTide
	ResonanceGale
	ResonanceTerra
	ResonanceUmbra
	ResonanceLumen

	resonanceCount
)

var resonanceNames = [resonanceCount]string{"prism", "ember", "tide", "gale", "terra", "umbra", "lumen"}

func (r Resonance) String() string {
	if r < 0 || r >= resonanceCount {
		return fmt.Sprintf("resonance(%d)", int(r))
	}
	return resonanceNames[r]
}

func ParseResonance(s string) (Resonance, error) {
	for i, n := range resonanceNames {
		if n == s {
			return Resonance(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resonance %q", s)
}

// Resonances returns every kind except Prism, in declaration order.
func Resonances() []Resonance {
	out := make([]Resonance, 0, resonanceCount-1)
	for i := Resonance(1); i < resonanceCount; i++ {
		out = append(out, i)
	}
	return out
}

func (r *Resonance) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseResonance(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Resonance) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *Resonance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseResonance(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
