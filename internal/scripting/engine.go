package scripting

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/echoarena/server/internal/data"
)

//go:embed balance.lua
var defaultBalanceScript string

// Mutation is one entry of the scripted mutation table. Percent bonuses
// apply at combat unit load; gold and xp are granted instantly.
type Mutation struct {
	ID        int32
	Name      string
	HPPct     int
	AttackPct int
	Gold      int
	XP        int
}

// Engine wraps a single gopher-lua VM for balance hooks. All calls happen
// at boot, before the catalog is shared; single-goroutine access only.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates the VM and runs the embedded balance script, then any
// .lua files from scriptsDir on top (empty dir means embedded only).
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if err := vm.DoString(defaultBalanceScript); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load embedded balance script: %w", err)
	}
	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load balance scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// TuneEcho calls Lua tune_echo(def) and writes the returned stats back into
// the definition. Identity fields (id, rarity, class, resonance) are fixed;
// only stats are adjustable. A missing hook is a no-op.
func (e *Engine) TuneEcho(def *data.EchoDefinition) error {
	fn := e.vm.GetGlobal("tune_echo")
	if fn == lua.LNil {
		return nil
	}

	t := e.vm.NewTable()
	t.RawSetString("id", lua.LNumber(def.ID))
	t.RawSetString("name", lua.LString(def.Name))
	t.RawSetString("rarity", lua.LString(def.Rarity.String()))
	t.RawSetString("class", lua.LString(def.Class.String()))
	t.RawSetString("resonance", lua.LString(def.Resonance.String()))

	st := e.vm.NewTable()
	st.RawSetString("hp", lua.LNumber(def.Stats.HP))
	st.RawSetString("attack", lua.LNumber(def.Stats.Attack))
	st.RawSetString("defense", lua.LNumber(def.Stats.Defense))
	st.RawSetString("magic_resist", lua.LNumber(def.Stats.MagicResist))
	st.RawSetString("attack_speed_pct", lua.LNumber(def.Stats.AttackSpeedPct))
	st.RawSetString("crit_chance", lua.LNumber(def.Stats.CritChance))
	st.RawSetString("crit_damage", lua.LNumber(def.Stats.CritDamage))
	st.RawSetString("range", lua.LNumber(def.Stats.Range))
	st.RawSetString("mana_max", lua.LNumber(def.Stats.ManaMax))
	st.RawSetString("mana_start", lua.LNumber(def.Stats.ManaStart))
	t.RawSetString("stats", st)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return fmt.Errorf("tune_echo(%d): %w", def.ID, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return fmt.Errorf("tune_echo(%d) returned non-table", def.ID)
	}
	stats, ok := rt.RawGetString("stats").(*lua.LTable)
	if !ok {
		return fmt.Errorf("tune_echo(%d) returned no stats table", def.ID)
	}

	def.Stats.HP = lInt(stats, "hp")
	def.Stats.Attack = lInt(stats, "attack")
	def.Stats.Defense = lInt(stats, "defense")
	def.Stats.MagicResist = lInt(stats, "magic_resist")
	def.Stats.AttackSpeedPct = lInt(stats, "attack_speed_pct")
	def.Stats.CritChance = lInt(stats, "crit_chance")
	def.Stats.CritDamage = lInt(stats, "crit_damage")
	def.Stats.Range = lInt(stats, "range")
	def.Stats.ManaMax = lInt(stats, "mana_max")
	def.Stats.ManaStart = lInt(stats, "mana_start")
	return nil
}

// Mutations calls Lua mutations() and returns the parsed table. A missing
// hook yields an empty set.
func (e *Engine) Mutations() ([]Mutation, error) {
	fn := e.vm.GetGlobal("mutations")
	if fn == lua.LNil {
		return nil, nil
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return nil, fmt.Errorf("mutations(): %w", err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("mutations() returned non-table")
	}

	var out []Mutation
	var rowErr error
	rt.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		m := Mutation{
			ID:        int32(lInt(row, "id")),
			Name:      lStr(row, "name"),
			HPPct:     lInt(row, "hp_pct"),
			AttackPct: lInt(row, "attack_pct"),
			Gold:      lInt(row, "gold"),
			XP:        lInt(row, "xp"),
		}
		if m.ID <= 0 && rowErr == nil {
			rowErr = fmt.Errorf("mutation row without id")
			return
		}
		out = append(out, m)
	})
	return out, rowErr
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
