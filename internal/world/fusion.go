package world

import "github.com/echoarena/server/internal/data"

// MaxStar is the fusion ceiling; three identical MaxStar-1 units make one
// MaxStar unit and no further.
const MaxStar = 3

// FusionEvent records one promotion. Consumed ids are kept so a cascade can
// be compressed to its externally visible tail; they are not sent to
// clients.
type FusionEvent struct {
	ResultInstanceID int32 `json:"result_instance_id"`
	DefinitionID     int32 `json:"definition_id"`
	NewStar          int   `json:"new_star_level"`
	OnBoard          bool  `json:"is_on_board"`
	SlotIndex        int   `json:"slot_index"`

	consumed [2]int32
}

// fusionKey groups identical units.
type fusionKey struct {
	def  int32
	star int
}

type fusionMember struct {
	onBoard bool
	index   int
}

// RunFusion collapses triples of identical (definition, star) units across
// board and bench, repeating until no triple remains. Both slices are
// mutated in place. Board slots are scanned before bench slots, so a fused
// unit prefers to survive on the board.
func RunFusion(board, bench []Slot) []FusionEvent {
	var events []FusionEvent
	for {
		ev, ok := fuseOnce(board, bench)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func fuseOnce(board, bench []Slot) (FusionEvent, bool) {
	groups := make(map[fusionKey][]fusionMember)
	order := make([]fusionKey, 0, 8)

	scan := func(slots []Slot, onBoard bool) {
		for i, s := range slots {
			if s.Empty() || s.Star >= MaxStar {
				continue
			}
			k := fusionKey{def: data.DefinitionIDOf(s.InstanceID), star: s.Star}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], fusionMember{onBoard: onBoard, index: i})
		}
	}
	scan(board, true)
	scan(bench, false)

	for _, k := range order {
		members := groups[k]
		if len(members) < 3 {
			continue
		}
		// board members were appended first and each list is in ascending
		// slot order, so members[0] is the survivor
		survivor, eaten := members[0], members[1:3]

		slotOf := func(m fusionMember) *Slot {
			if m.onBoard {
				return &board[m.index]
			}
			return &bench[m.index]
		}

		sv := slotOf(survivor)
		sv.Star++
		ev := FusionEvent{
			ResultInstanceID: sv.InstanceID,
			DefinitionID:     k.def,
			NewStar:          sv.Star,
			OnBoard:          survivor.onBoard,
			SlotIndex:        survivor.index,
		}
		for i, m := range eaten {
			s := slotOf(m)
			ev.consumed[i] = s.InstanceID
			*s = Slot{InstanceID: EmptySlot}
		}
		return ev, true
	}
	return FusionEvent{}, false
}

// CompressFusionEvents drops events whose result was later re-fused or
// consumed, leaving only the promotions a client should see. A nine-copy
// cascade therefore surfaces as a single three-star event.
func CompressFusionEvents(events []FusionEvent) []FusionEvent {
	if len(events) <= 1 {
		return events
	}
	out := make([]FusionEvent, 0, len(events))
	for i, ev := range events {
		final := true
		for _, later := range events[i+1:] {
			if later.ResultInstanceID == ev.ResultInstanceID ||
				later.consumed[0] == ev.ResultInstanceID ||
				later.consumed[1] == ev.ResultInstanceID {
				final = false
				break
			}
		}
		if final {
			out = append(out, ev)
		}
	}
	return out
}
