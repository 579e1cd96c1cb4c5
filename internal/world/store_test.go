package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoarena/server/internal/data"
)

func TestAddSeatDefaults(t *testing.T) {
	s := newTestStore(t)

	var changed []*PlayerRuntime
	s.OnChanged = func(p *PlayerRuntime) { changed = append(changed, p) }

	p := seatPlayer(t, s, 1, "Alba")
	assert.Equal(t, 100, p.Nexus)
	assert.Equal(t, 5, p.Gold)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, StatusPreparing, p.Status)
	assert.Len(t, p.Bench, 9)
	assert.Len(t, p.Board, 16)
	assert.Len(t, p.Shop, 5)
	for _, id := range p.Shop {
		assert.Equal(t, EmptySlot, id)
	}
	require.Len(t, changed, 1)

	_, err := s.AddSeat(1, "Alba")
	require.Error(t, err)
}

func TestGoldTransforms(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	_, err := s.DeductGold(1, 6)
	rej, ok := AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "Oro insufficiente", rej.Reason)

	p, _ := s.Get(1)
	assert.Equal(t, 5, p.Gold, "rejected transform must leave state untouched")

	p, err = s.DeductGold(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Gold)

	p, err = s.AddGold(1, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Gold, "gold is capped")
}

func TestModifyNexusClampsAndEliminates(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	var eliminated []int32
	s.OnEliminated = func(id int32) { eliminated = append(eliminated, id) }

	p, err := s.ModifyNexus(1, -30)
	require.NoError(t, err)
	assert.Equal(t, 70, p.Nexus)
	assert.Empty(t, eliminated)

	p, err = s.ModifyNexus(1, +500)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Nexus)

	p, err = s.ModifyNexus(1, -150)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Nexus)
	assert.Equal(t, StatusEliminated, p.Status)
	assert.Equal(t, []int32{1}, eliminated)

	// already at zero: no second elimination event
	_, err = s.ModifyNexus(1, -10)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, eliminated)
}

func TestGrantXPLevelling(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	// thresholds 2,2,6: +5 xp crosses two levels with 1 left over
	p, err := s.GrantXP(1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 1, p.XP)

	// drive to cap: xp pins to zero
	p, err = s.GrantXP(1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Level)
	assert.Equal(t, 0, p.XP)

	_, err = s.BuyXP(1)
	rej, ok := AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "Livello massimo raggiunto", rej.Reason)
}

func TestBuyXPAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	p, err := s.BuyXP(1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Gold)
	assert.Equal(t, 2, p.Level) // 4 xp over threshold 2 -> level 2, 2 left
	assert.Equal(t, 2, p.XP)

	_, err = s.BuyXP(1)
	rej, ok := AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "Oro insufficiente", rej.Reason)

	p, _ = s.Get(1)
	assert.Equal(t, 1, p.Gold)
	assert.Equal(t, 2, p.XP)
}

func TestAddToBenchRunsFusionAndResonance(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	var last *PlayerRuntime
	var err error
	for i := 0; i < 2; i++ {
		last, _, err = s.AddToBench(1, data.InstanceID(1, int64(i)))
		require.NoError(t, err)
	}
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Bench[0].Star)

	_, events, err := s.AddToBench(1, data.InstanceID(1, 9))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].NewStar)

	p, _ := s.Get(1)
	assert.Equal(t, 2, p.Bench[0].Star)
	assert.True(t, p.Bench[1].Empty())
	assert.True(t, p.Bench[2].Empty())
}

func TestAddToBenchFullRejects(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	// distinct definitions so nothing fuses
	defs := []int32{1, 2, 3, 4, 5, 6}
	serial := int64(0)
	for i := 0; i < 9; i++ {
		def := defs[i%len(defs)]
		star := 1 + i/len(defs) // avoid triples of (def, star)
		_, err := s.Apply(1, func(p *PlayerRuntime) error {
			free := p.FirstFreeBench()
			require.GreaterOrEqual(t, free, 0)
			p.Bench[free] = Slot{InstanceID: data.InstanceID(def, serial), Star: star}
			return nil
		})
		require.NoError(t, err)
		serial++
	}

	_, _, err := s.AddToBench(1, data.InstanceID(1, 99))
	rej, ok := AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "Panchina piena", rej.Reason)
}

func TestMoveToBoardRules(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	inst := data.InstanceID(1, 1)
	_, _, err := s.AddToBench(1, inst)
	require.NoError(t, err)

	_, err = s.MoveToBoard(1, inst, 99)
	rej, _ := AsReject(err)
	require.NotNil(t, rej)
	assert.Equal(t, "Posizione non valida", rej.Reason)

	_, err = s.MoveToBoard(1, data.InstanceID(1, 55), 0)
	rej, _ = AsReject(err)
	require.NotNil(t, rej)
	assert.Equal(t, "Unità non trovata", rej.Reason)

	p, err := s.MoveToBoard(1, inst, 0)
	require.NoError(t, err)
	assert.True(t, p.Bench[0].Empty())
	assert.Equal(t, inst, p.Board[0].InstanceID)

	// level 1: a second unit on the board is over the limit
	inst2 := data.InstanceID(2, 1)
	_, _, err = s.AddToBench(1, inst2)
	require.NoError(t, err)
	_, err = s.MoveToBoard(1, inst2, 0)
	rej, _ = AsReject(err)
	require.NotNil(t, rej)
	assert.Equal(t, "Posizione occupata", rej.Reason)

	_, err = s.MoveToBoard(1, inst2, 1)
	rej, _ = AsReject(err)
	require.NotNil(t, rej)
	assert.Equal(t, "Limite unità raggiunto", rej.Reason)
}

func TestMoveRoundTripPreservesUnits(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")
	_, err := s.GrantXP(1, 4) // level 3: room for the unit
	require.NoError(t, err)

	inst := data.InstanceID(1, 1)
	_, _, err = s.AddToBench(1, inst)
	require.NoError(t, err)

	before, _ := s.Get(1)
	resoBefore := append([]ResonanceActive(nil), before.Resonances...)

	_, err = s.MoveToBoard(1, inst, 5)
	require.NoError(t, err)
	p, err := s.MoveToBench(1, inst)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, p.FindBench(inst), 0)
	assert.Equal(t, -1, p.FindBoard(inst))
	assert.Equal(t, resoBefore, p.Resonances)
}

func TestStreakAndIncome(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	for i := 0; i < 3; i++ {
		_, err := s.UpdateStreak(1, true)
		require.NoError(t, err)
	}
	p, err := s.UpdateStreak(1, false)
	require.NoError(t, err)
	assert.Equal(t, 0, p.WinStreak)
	assert.Equal(t, 1, p.LossStreak)

	// gold 5: income = base 5 + interest 0 + no streak bonus
	p, err = s.GrantRoundIncome(1)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Gold)

	// gold 10: base 5 + interest 1
	p, err = s.GrantRoundIncome(1)
	require.NoError(t, err)
	assert.Equal(t, 16, p.Gold)

	// push streak to 2: +1 bonus, interest 1 on 16
	_, err = s.UpdateStreak(1, false)
	require.NoError(t, err)
	p, err = s.GrantRoundIncome(1)
	require.NoError(t, err)
	assert.Equal(t, 16+5+1+1, p.Gold)
}

func TestApplyConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.Apply(1, func(p *PlayerRuntime) error {
					p.XP++ // raw field bump; no level resolution
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	p, _ := s.Get(1)
	// xp may have been consumed by nothing here: levels untouched
	assert.Equal(t, workers*perWorker, p.XP)
}

func TestSnapshotImmutability(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 1, "Alba")

	before, _ := s.Get(1)
	_, err := s.AddGold(1, 10)
	require.NoError(t, err)

	assert.Equal(t, 5, before.Gold, "old snapshots must not change")
	after, _ := s.Get(1)
	assert.Equal(t, 15, after.Gold)
	assert.NotSame(t, before, after)
}

func TestAliveExcludesEliminated(t *testing.T) {
	s := newTestStore(t)
	seatPlayer(t, s, 2, "B")
	seatPlayer(t, s, 1, "A")
	seatPlayer(t, s, 3, "C")

	_, err := s.ModifyNexus(2, -999)
	require.NoError(t, err)

	alive := s.Alive()
	require.Len(t, alive, 2)
	assert.Equal(t, int32(1), alive[0].ID)
	assert.Equal(t, int32(3), alive[1].ID)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, int32(1), all[0].ID)
	assert.Equal(t, int32(2), all[1].ID)
	assert.Equal(t, int32(3), all[2].ID)
}
