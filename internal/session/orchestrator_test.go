package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/echoarena/server/internal/config"
	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/metrics"
	gamenet "github.com/echoarena/server/internal/net"
	"github.com/echoarena/server/internal/net/protocol"
	"github.com/echoarena/server/internal/scripting"
	"github.com/echoarena/server/internal/world"
)

// fakeTransport records every outbound message in order.
type fakeTransport struct {
	inbound chan gamenet.Inbound
	dead    chan int32
	sent    []sentMsg
}

type sentMsg struct {
	To       int32 // -1 for broadcast
	Kind     protocol.Kind
	Payload  any
	Reliable bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan gamenet.Inbound, 64),
		dead:    make(chan int32, 8),
	}
}

func (f *fakeTransport) SendTo(id int32, kind protocol.Kind, payload any, reliable bool) error {
	f.sent = append(f.sent, sentMsg{To: id, Kind: kind, Payload: payload, Reliable: reliable})
	return nil
}

func (f *fakeTransport) Broadcast(kind protocol.Kind, payload any, reliable bool, exclude ...int32) error {
	f.sent = append(f.sent, sentMsg{To: -1, Kind: kind, Payload: payload, Reliable: reliable})
	return nil
}

func (f *fakeTransport) FlushAll()                       {}
func (f *fakeTransport) Inbound() <-chan gamenet.Inbound { return f.inbound }
func (f *fakeTransport) DeadClients() <-chan int32       { return f.dead }
func (f *fakeTransport) Disconnect(int32)                {}

func (f *fakeTransport) ofKind(kind protocol.Kind) []sentMsg {
	var out []sentMsg
	for _, m := range f.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) lastOfKind(kind protocol.Kind) (sentMsg, bool) {
	msgs := f.ofKind(kind)
	if len(msgs) == 0 {
		return sentMsg{}, false
	}
	return msgs[len(msgs)-1], true
}

func testMutations() []scripting.Mutation {
	return []scripting.Mutation{
		{ID: 1, Name: "Vigore", HPPct: 10},
		{ID: 3, Name: "Avidita", Gold: 3},
	}
}

func newTestOrchestrator(t *testing.T, mod func(*config.Config)) (*Orchestrator, *fakeTransport) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Seed = 42
	cfg.Phases.LobbyCountdown = 10 * time.Millisecond
	if mod != nil {
		mod(cfg)
	}
	catalog, err := data.LoadCatalog("")
	require.NoError(t, err)

	tr := newFakeTransport()
	o, err := New(cfg, catalog, testMutations(), tr, metrics.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return o, tr
}

func inject(t *testing.T, o *Orchestrator, clientID int32, kind protocol.Kind, payload any) {
	t.Helper()
	env, err := protocol.Encode(kind, payload)
	require.NoError(t, err)
	o.dispatch(gamenet.Inbound{ClientID: clientID, Env: env})
}

// startTwoPlayerMatch joins, readies, and burns the lobby countdown.
func startTwoPlayerMatch(t *testing.T, o *Orchestrator) {
	t.Helper()
	inject(t, o, 1, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Ada"})
	inject(t, o, 2, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Bo"})
	inject(t, o, 1, protocol.KindReadyUp, protocol.ReadyUp{IsReady: true})
	inject(t, o, 2, protocol.KindReadyUp, protocol.ReadyUp{IsReady: true})
	o.Tick(20 * time.Millisecond)
	require.Equal(t, PhasePreparation, o.Phase())
}

func TestLobbyFlowStartsMatchAndDealsShops(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)

	start, ok := tr.lastOfKind(protocol.KindStartRound)
	require.True(t, ok)
	assert.Equal(t, 1, start.Payload.(protocol.StartRound).RoundNumber)
	assert.True(t, start.Reliable)

	phase, ok := tr.lastOfKind(protocol.KindPhaseChanged)
	require.True(t, ok)
	assert.Equal(t, "Preparation", phase.Payload.(protocol.PhaseChanged).NewPhase)

	// Both seats got income, xp drip, and a dealt shop.
	for _, id := range []int32{1, 2} {
		p, ok := o.Store().Get(id)
		require.True(t, ok)
		assert.Greater(t, p.Gold, 0)
		filled := 0
		for _, def := range p.Shop {
			if def != world.EmptySlot {
				filled++
			}
		}
		assert.Greater(t, filled, 0, "player %d shop empty", id)
	}
	assert.NotEmpty(t, tr.ofKind(protocol.KindShopRefreshed))
}

func TestWrongPhaseMessageIsRejected(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	inject(t, o, 1, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Ada"})

	inject(t, o, 1, protocol.KindBuyEcho, protocol.BuyEcho{ShopSlot: 0})

	rej, ok := tr.lastOfKind(protocol.KindActionRejected)
	require.True(t, ok)
	assert.Equal(t, int32(1), rej.To)
	p := rej.Payload.(protocol.ActionRejected)
	assert.Equal(t, "BuyEcho", p.Action)
	assert.Equal(t, world.ReasonWrongPhase, p.Reason)
}

func TestBuyRejectionReachesOnlyTheOffender(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)

	inject(t, o, 1, protocol.KindBuyEcho, protocol.BuyEcho{ShopSlot: 99})

	rej, ok := tr.lastOfKind(protocol.KindActionRejected)
	require.True(t, ok)
	assert.Equal(t, int32(1), rej.To)
	assert.Equal(t, world.ReasonBadPosition, rej.Payload.(protocol.ActionRejected).Reason)
}

func TestInterventionOutsideCombatRejected(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)

	inject(t, o, 1, protocol.KindUseIntervention, protocol.UseIntervention{CardID: "barrier", TargetID: 1001})

	rej, ok := tr.lastOfKind(protocol.KindActionRejected)
	require.True(t, ok)
	assert.Equal(t, world.ReasonWrongPhase, rej.Payload.(protocol.ActionRejected).Reason)
}

func placeUnit(t *testing.T, o *Orchestrator, playerID, instanceID int32) {
	t.Helper()
	_, err := o.Store().Apply(playerID, func(p *world.PlayerRuntime) error {
		p.Board[0] = world.Slot{InstanceID: instanceID, Star: 1}
		return nil
	})
	require.NoError(t, err)
}

func runCombatToEnd(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.Tick(o.cfg.Phases.Preparation)
	require.Equal(t, PhaseCombat, o.Phase())
	for i := 0; i < 3000 && o.Phase() == PhaseCombat; i++ {
		o.Tick(o.snapEvery)
	}
	require.NotEqual(t, PhaseCombat, o.Phase(), "combat never resolved")
}

func TestCombatRoundDamagesLoserAndUpdatesStreaks(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)
	placeUnit(t, o, 1, data.InstanceID(1, 1))
	placeUnit(t, o, 2, data.InstanceID(1, 2))

	runCombatToEnd(t, o)

	ended := tr.ofKind(protocol.KindCombatEnded)
	require.NotEmpty(t, ended)
	result := ended[0].Payload.(protocol.CombatEnded)

	winner, ok := o.Store().Get(result.WinnerID)
	require.True(t, ok)
	assert.Equal(t, 1, winner.WinStreak)
	assert.Equal(t, 0, winner.LossStreak)

	var loserID int32 = 1
	if result.WinnerID == 1 {
		loserID = 2
	}
	loser, ok := o.Store().Get(loserID)
	require.True(t, ok)
	assert.Equal(t, 1, loser.LossStreak)
	assert.Equal(t, 100-result.DamageDealt, loser.Nexus)
	assert.Greater(t, result.DamageDealt, 0)

	assert.NotEmpty(t, tr.ofKind(protocol.KindCombatStarted))
	assert.NotEmpty(t, tr.ofKind(protocol.KindCombatUpdate))
}

func TestOddRosterFightsAGhost(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	inject(t, o, 1, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Ada"})
	inject(t, o, 2, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Bo"})
	inject(t, o, 3, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Cy"})
	for _, id := range []int32{1, 2, 3} {
		inject(t, o, id, protocol.KindReadyUp, protocol.ReadyUp{IsReady: true})
	}
	o.Tick(20 * time.Millisecond)
	require.Equal(t, PhasePreparation, o.Phase())
	for _, id := range []int32{1, 2, 3} {
		placeUnit(t, o, id, data.InstanceID(1, int64(id)))
	}

	o.Tick(o.cfg.Phases.Preparation)
	require.Equal(t, PhaseCombat, o.Phase())

	ghostSeen := false
	for _, m := range tr.ofKind(protocol.KindCombatStarted) {
		if m.Payload.(protocol.CombatStarted).OpponentID == o.cfg.Matchmaker.GhostID {
			ghostSeen = true
		}
	}
	assert.True(t, ghostSeen)
}

func TestEliminationEndsGameWithPlacements(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)

	_, err := o.Store().ModifyNexus(2, -100)
	require.NoError(t, err)

	assert.Equal(t, PhaseGameOver, o.Phase())

	elim, ok := tr.lastOfKind(protocol.KindPlayerEliminated)
	require.True(t, ok)
	p := elim.Payload.(protocol.PlayerEliminated)
	assert.Equal(t, int32(2), p.PlayerID)
	assert.Equal(t, 2, p.FinalPlacement)

	ended, ok := tr.lastOfKind(protocol.KindGameEnded)
	require.True(t, ok)
	g := ended.Payload.(protocol.GameEnded)
	assert.Equal(t, int32(1), g.WinnerID)
	assert.Equal(t, []int32{1, 2}, g.Placements)

	// Mutating messages are refused after game over.
	inject(t, o, 1, protocol.KindBuyEcho, protocol.BuyEcho{ShopSlot: 0})
	rej, ok := tr.lastOfKind(protocol.KindActionRejected)
	require.True(t, ok)
	assert.Equal(t, world.ReasonWrongPhase, rej.Payload.(protocol.ActionRejected).Reason)
}

func TestLobbyDisconnectUpdatesRoster(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	inject(t, o, 1, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Ada"})
	inject(t, o, 2, protocol.KindJoinLobby, protocol.JoinLobby{PlayerName: "Bo"})

	tr.dead <- 2
	o.Tick(time.Millisecond)

	st, ok := tr.lastOfKind(protocol.KindLobbyState)
	require.True(t, ok)
	players := st.Payload.(protocol.LobbyState).Players
	require.Len(t, players, 1)
	assert.Equal(t, int32(1), players[0].ID)
	assert.Equal(t, 1, o.Store().Count())
}

func TestMidMatchDisconnectIsSilentRemoval(t *testing.T) {
	o, tr := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)
	before := len(tr.ofKind(protocol.KindLobbyState))

	tr.dead <- 2
	o.Tick(time.Millisecond)

	assert.Equal(t, before, len(tr.ofKind(protocol.KindLobbyState)))
	_, seated := o.Store().Get(2)
	assert.False(t, seated)
	// One seat left ends the match.
	assert.Equal(t, PhaseGameOver, o.Phase())
}

func TestMutationGrantAppliesInstantEffects(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	startTwoPlayerMatch(t, o)

	goldBefore := map[int32]int{}
	for _, p := range o.Store().Alive() {
		goldBefore[p.ID] = p.Gold
	}

	o.grantMutations()

	for _, p := range o.Store().Alive() {
		require.Len(t, p.Mutations, 1)
		mu := o.mutByID[p.Mutations[0]]
		if mu.Gold > 0 {
			assert.Equal(t, goldBefore[p.ID]+mu.Gold, p.Gold)
		}
	}
}
