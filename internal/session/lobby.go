package session

import (
	"time"

	"github.com/echoarena/server/internal/net/protocol"
	"github.com/echoarena/server/internal/world"
)

// minPlayers is the smallest viable match.
const minPlayers = 2

// Lobby tracks the pre-match roster and the all-ready countdown. Owned by
// the orchestrator goroutine.
type Lobby struct {
	countdown  time.Duration
	maxPlayers int

	order     []int32
	names     map[int32]string
	ready     map[int32]bool
	remaining time.Duration
	counting  bool
	started   bool
}

func NewLobby(countdown time.Duration, maxPlayers int) *Lobby {
	return &Lobby{
		countdown:  countdown,
		maxPlayers: maxPlayers,
		names:      make(map[int32]string),
		ready:      make(map[int32]bool),
	}
}

// Join seats a player in the lobby.
func (l *Lobby) Join(id int32, name string) error {
	if l.started {
		return world.Reject(world.ReasonGameStarted)
	}
	if len(l.order) >= l.maxPlayers {
		return world.Reject(world.ReasonLobbyFull)
	}
	if _, dup := l.names[id]; dup {
		return world.Reject(world.ReasonGameStarted)
	}
	l.order = append(l.order, id)
	l.names[id] = name
	return nil
}

// SetReady flips a player's flag. Readying everyone arms the countdown;
// any un-ready cancels it.
func (l *Lobby) SetReady(id int32, ready bool) {
	if _, known := l.names[id]; !known {
		return
	}
	l.ready[id] = ready
	if l.AllReady() {
		if !l.counting {
			l.counting = true
			l.remaining = l.countdown
		}
	} else {
		l.counting = false
	}
}

// Leave removes a player; the countdown re-evaluates.
func (l *Lobby) Leave(id int32) {
	if _, known := l.names[id]; !known {
		return
	}
	delete(l.names, id)
	delete(l.ready, id)
	for i, other := range l.order {
		if other == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if !l.AllReady() {
		l.counting = false
	}
}

// AllReady needs a viable roster with every seat readied.
func (l *Lobby) AllReady() bool {
	if len(l.order) < minPlayers {
		return false
	}
	for _, id := range l.order {
		if !l.ready[id] {
			return false
		}
	}
	return true
}

// Tick burns countdown time; true means the match starts now.
func (l *Lobby) Tick(dt time.Duration) bool {
	if l.started || !l.counting {
		return false
	}
	l.remaining -= dt
	if l.remaining > 0 {
		return false
	}
	l.started = true
	return true
}

// Players lists the seated ids in join order.
func (l *Lobby) Players() []int32 {
	return append([]int32(nil), l.order...)
}

// State builds the broadcastable roster document.
func (l *Lobby) State() protocol.LobbyState {
	st := protocol.LobbyState{
		Players:  make([]protocol.LobbyPlayer, 0, len(l.order)),
		AllReady: l.AllReady(),
	}
	for _, id := range l.order {
		st.Players = append(st.Players, protocol.LobbyPlayer{
			ID:      id,
			Name:    l.names[id],
			IsReady: l.ready[id],
		})
	}
	if l.counting {
		st.CountdownRemaining = l.remaining.Seconds()
	}
	return st
}
