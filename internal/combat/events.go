package combat

// Event kinds carried in combat snapshots. Clients render from these plus
// the unit states; the server never interprets them after emission.
const (
	EventAttack       = "attack"
	EventCrit         = "crit"
	EventDeath        = "death"
	EventAbility      = "ability"
	EventEffect       = "effect_applied"
	EventIntervention = "intervention"
	EventHeal         = "heal"
)

// Event is one thing that happened during a batch.
type Event struct {
	Tick    int    `json:"tick"`
	Kind    string `json:"kind"`
	Source  int32  `json:"source,omitempty"`
	Target  int32  `json:"target,omitempty"`
	Amount  int    `json:"amount,omitempty"`
	Ability int32  `json:"ability,omitempty"`
	Effect  string `json:"effect,omitempty"`
	Card    string `json:"card,omitempty"`
}

// eventSink accumulates a batch's events, stamping the current tick.
type eventSink struct {
	tick   int
	events []Event
}

func (s *eventSink) add(e Event) {
	e.Tick = s.tick
	s.events = append(s.events, e)
}

func (s *eventSink) drain() []Event {
	out := s.events
	s.events = nil
	return out
}
