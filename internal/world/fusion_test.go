package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoarena/server/internal/data"
)

func slotOf(def int32, serial int64, star int) Slot {
	return Slot{InstanceID: data.InstanceID(def, serial), Star: star}
}

func TestRunFusionSimpleTriple(t *testing.T) {
	board := emptySlots(4)
	bench := emptySlots(4)
	bench[0] = slotOf(7, 1, 1)
	bench[1] = slotOf(7, 2, 1)
	bench[2] = slotOf(7, 3, 1)

	events := RunFusion(board, bench)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, int32(7), ev.DefinitionID)
	assert.Equal(t, 2, ev.NewStar)
	assert.False(t, ev.OnBoard)
	assert.Equal(t, 0, ev.SlotIndex)

	assert.Equal(t, 2, bench[0].Star)
	assert.True(t, bench[1].Empty())
	assert.True(t, bench[2].Empty())
}

func TestRunFusionSurvivorPrefersBoard(t *testing.T) {
	board := emptySlots(4)
	bench := emptySlots(4)
	bench[0] = slotOf(7, 1, 1)
	board[2] = slotOf(7, 2, 1)
	bench[3] = slotOf(7, 3, 1)

	events := RunFusion(board, bench)
	require.Len(t, events, 1)
	assert.True(t, events[0].OnBoard)
	assert.Equal(t, 2, events[0].SlotIndex)
	assert.Equal(t, 2, board[2].Star)
	assert.True(t, bench[0].Empty())
	assert.True(t, bench[3].Empty())
}

func TestRunFusionIgnoresMixedStarsAndMaxStar(t *testing.T) {
	board := emptySlots(4)
	bench := emptySlots(6)
	// two 1-star and one 2-star of the same definition: no triple
	bench[0] = slotOf(7, 1, 1)
	bench[1] = slotOf(7, 2, 1)
	bench[2] = slotOf(7, 3, 2)
	// three 3-star units are already at the ceiling
	bench[3] = slotOf(9, 1, 3)
	bench[4] = slotOf(9, 2, 3)
	bench[5] = slotOf(9, 3, 3)

	events := RunFusion(board, bench)
	assert.Empty(t, events)
}

func TestRunFusionNineCopyCascade(t *testing.T) {
	// one copy on the board, eight more on the bench
	board := emptySlots(4)
	bench := emptySlots(9)
	board[0] = slotOf(5, 0, 1)
	for i := 0; i < 8; i++ {
		bench[i] = slotOf(5, int64(i+1), 1)
	}

	events := RunFusion(board, bench)

	// the cascade runs to a single three-star survivor on the board
	assert.Equal(t, 3, board[0].Star)
	assert.Equal(t, data.InstanceID(5, 0), board[0].InstanceID)
	for _, s := range bench {
		assert.True(t, s.Empty())
	}

	// externally only the final promotion is visible
	visible := CompressFusionEvents(events)
	require.Len(t, visible, 1)
	assert.Equal(t, 3, visible[0].NewStar)
	assert.Equal(t, int32(5), visible[0].DefinitionID)
	assert.True(t, visible[0].OnBoard)
	assert.Equal(t, 0, visible[0].SlotIndex)
}

func TestRunFusionSixAtSameStar(t *testing.T) {
	board := emptySlots(2)
	bench := emptySlots(8)
	for i := 0; i < 6; i++ {
		bench[i] = slotOf(3, int64(i), 1)
	}

	events := RunFusion(board, bench)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].NewStar)
	assert.Equal(t, 2, events[1].NewStar)

	stars := 0
	for _, s := range bench {
		if !s.Empty() {
			stars++
			assert.Equal(t, 2, s.Star)
		}
	}
	assert.Equal(t, 2, stars)
}

func TestCompressFusionEventsKeepsIndependentFusions(t *testing.T) {
	board := emptySlots(2)
	bench := emptySlots(8)
	for i := 0; i < 3; i++ {
		bench[i] = slotOf(3, int64(i), 1)
	}
	for i := 3; i < 6; i++ {
		bench[i] = slotOf(4, int64(i), 1)
	}

	events := CompressFusionEvents(RunFusion(board, bench))
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].DefinitionID, events[1].DefinitionID)
}
