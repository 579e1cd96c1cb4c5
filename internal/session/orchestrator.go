package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echoarena/server/internal/combat"
	"github.com/echoarena/server/internal/config"
	"github.com/echoarena/server/internal/data"
	"github.com/echoarena/server/internal/match"
	"github.com/echoarena/server/internal/metrics"
	gamenet "github.com/echoarena/server/internal/net"
	"github.com/echoarena/server/internal/net/protocol"
	"github.com/echoarena/server/internal/scripting"
	"github.com/echoarena/server/internal/shop"
	"github.com/echoarena/server/internal/tick"
	"github.com/echoarena/server/internal/world"
)

// Transport is the slice of the network server the orchestrator drives.
// Satisfied by *net.Server; tests substitute a recorder.
type Transport interface {
	SendTo(id int32, kind protocol.Kind, payload any, reliable bool) error
	Broadcast(kind protocol.Kind, payload any, reliable bool, exclude ...int32) error
	FlushAll()
	Inbound() <-chan gamenet.Inbound
	DeadClients() <-chan int32
	Disconnect(id int32)
}

// activeCombat is one running pair. sides holds the player id per team;
// a ghost side carries the matchmaker sentinel.
type activeCombat struct {
	pairIndex  int
	sides      [2]int32
	sim        *combat.Simulator
	engine     *combat.InterventionEngine
	transcript combat.Transcript
	snapTimer  time.Duration
	lastEnergy [2]int
	resolved   bool
}

// Orchestrator owns the whole session: store, shop, matchmaker, scheduler,
// combats, and the transport fanout. All game state is mutated on the
// goroutine calling Tick; I/O goroutines only touch the channels.
type Orchestrator struct {
	log     *zap.Logger
	cfg     *config.Config
	metrics *metrics.Metrics
	tr      Transport

	catalog   *data.Catalog
	store     *world.Store
	pool      *shop.Pool
	shop      *shop.Manager
	reso      *world.ResonanceCalc
	mm        *match.Matchmaker
	sched     *Scheduler
	lobby     *Lobby
	combatSet combat.Settings
	mutations []scripting.Mutation
	mutByID   map[int]scripting.Mutation
	rng       *rand.Rand
	seed      int64
	runner    *tick.Runner

	combats    []*activeCombat
	snapEvery  time.Duration
	totalSeats int
	eliminated []int32 // earliest first
}

// New wires the session from configuration. mutations comes from the boot
// script; seed zero derives one from the clock.
func New(cfg *config.Config, catalog *data.Catalog, mutations []scripting.Mutation, tr Transport, m *metrics.Metrics, log *zap.Logger) (*Orchestrator, error) {
	seed := cfg.Server.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rules, err := rulesFromConfig(cfg.Player, cfg.Shop.Size)
	if err != nil {
		return nil, err
	}
	reso := world.NewResonanceCalc(catalog, cfg.Combat.ResonanceThresholds)
	store := world.NewStore(rules, reso)

	copies, err := copiesFromConfig(cfg.Pool)
	if err != nil {
		return nil, err
	}
	pool := shop.NewPool(catalog, copies)

	shopSet, err := shop.SettingsFromConfig(cfg.Shop)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	mgr := shop.NewManager(catalog, pool, store, shopSet, rng, log)

	combatSet, err := combat.SettingsFromConfig(cfg.Combat, cfg.Intervention, cfg.Player.BoardCols, cfg.Player.BoardRows)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:       log.With(zap.String("match", uuid.NewString())),
		cfg:       cfg,
		metrics:   m,
		tr:        tr,
		catalog:   catalog,
		store:     store,
		pool:      pool,
		shop:      mgr,
		reso:      reso,
		mm:        match.New(cfg.Matchmaker.GhostID, cfg.Matchmaker.AtRiskHP),
		sched:     NewScheduler(cfg.Phases),
		lobby:     NewLobby(cfg.Phases.LobbyCountdown, cfg.Network.MaxClients),
		combatSet: combatSet,
		mutations: mutations,
		mutByID:   make(map[int]scripting.Mutation, len(mutations)),
		rng:       rng,
		seed:      seed,
		runner:    tick.NewRunner(),
		snapEvery: time.Duration(cfg.Combat.SnapshotInterval) * time.Second / time.Duration(cfg.Combat.TicksPerSecond),
	}
	for _, mu := range mutations {
		o.mutByID[int(mu.ID)] = mu
	}

	store.OnChanged = o.onPlayerChanged
	store.OnEliminated = o.onPlayerEliminated

	o.runner.Register(tick.Func{P: tick.PhaseInput, Fn: o.drainInbound})
	o.runner.Register(tick.Func{P: tick.PhaseUpdate, Fn: o.update})
	o.runner.Register(tick.Func{P: tick.PhaseOutput, Fn: func(time.Duration) { o.tr.FlushAll() }})
	o.runner.Register(tick.Func{P: tick.PhaseCleanup, Fn: o.drainDead})
	return o, nil
}

func rulesFromConfig(pc config.PlayerConfig, shopSize int) (world.Rules, error) {
	if pc.BoardCols <= 0 || pc.BoardRows <= 0 {
		return world.Rules{}, fmt.Errorf("player board dimensions must be positive")
	}
	tiers := make([]world.StreakTier, len(pc.StreakTiers))
	for i, t := range pc.StreakTiers {
		tiers[i] = world.StreakTier{Min: t.Min, Bonus: t.Bonus}
	}
	return world.Rules{
		StartingNexus: pc.StartingNexus,
		MaxNexus:      pc.StartingNexus,
		StartingGold:  pc.StartingGold,
		MaxGold:       pc.MaxGold,
		BenchSize:     pc.BenchSize,
		BoardCols:     pc.BoardCols,
		BoardRows:     pc.BoardRows,
		ShopSize:      shopSize,
		LevelCap:      pc.LevelCap,
		XPThresholds:  pc.XPThresholds,
		XPBuyCost:     pc.XPBuyCost,
		XPBuyAmount:   pc.XPBuyAmount,
		AutoXP:        pc.AutoXPPerRound,
		BaseIncome:    pc.BaseIncome,
		InterestPer:   pc.InterestPer,
		InterestCap:   pc.InterestCap,
		StreakTiers:   tiers,
	}, nil
}

func copiesFromConfig(pc config.PoolConfig) (map[data.Rarity]int, error) {
	out := make(map[data.Rarity]int, len(pc.Copies))
	for name, n := range pc.Copies {
		r, err := data.ParseRarity(name)
		if err != nil {
			return nil, fmt.Errorf("pool copies: %w", err)
		}
		out[r] = n
	}
	return out, nil
}

// Store exposes the player table for composition and tests.
func (o *Orchestrator) Store() *world.Store { return o.store }

// Phase reports the current lifecycle state.
func (o *Orchestrator) Phase() Phase { return o.sched.Phase() }

// Tick runs one orchestrator frame. Never blocks: an empty inbound queue
// still advances the scheduler.
func (o *Orchestrator) Tick(dt time.Duration) {
	start := time.Now()
	o.runner.Tick(dt)
	o.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) drainInbound(time.Duration) {
	budget := o.cfg.Network.MaxMessagesPerTick
	for budget > 0 {
		select {
		case in := <-o.tr.Inbound():
			o.dispatch(in)
			budget--
		default:
			return
		}
	}
}

func (o *Orchestrator) drainDead(time.Duration) {
	for {
		select {
		case id := <-o.tr.DeadClients():
			o.handleDisconnect(id)
		default:
			return
		}
	}
}

func (o *Orchestrator) update(dt time.Duration) {
	if o.sched.Phase() == PhaseWaiting && o.lobby.Tick(dt) {
		if tr, ok := o.sched.StartMatch(); ok {
			o.enterPhase(tr)
		}
	}
	if o.sched.Phase() == PhaseCombat {
		o.stepCombats(dt)
	}
	if tr, ok := o.sched.Advance(dt); ok {
		o.enterPhase(tr)
	}
}

// enterPhase broadcasts the transition and runs the entry work.
func (o *Orchestrator) enterPhase(tr Transition) {
	o.broadcast(protocol.KindPhaseChanged, protocol.PhaseChanged{
		NewPhase:          tr.To.String(),
		PhaseDurationSecs: tr.Duration.Seconds(),
	}, true)
	o.log.Info("phase changed",
		zap.Stringer("phase", tr.To),
		zap.Int("round", o.sched.Round()),
		zap.Duration("duration", tr.Duration))

	switch tr.To {
	case PhasePreparation:
		o.enterPreparation()
	case PhaseCombat:
		o.enterCombat()
	case PhaseReward:
		o.finishCombats()
	case PhaseMutationChoice:
		o.grantMutations()
	}
}

func (o *Orchestrator) enterPreparation() {
	o.broadcast(protocol.KindStartRound, protocol.StartRound{RoundNumber: o.sched.Round()}, true)
	if o.totalSeats == 0 {
		o.totalSeats = o.store.Count()
	}
	for _, p := range o.store.Alive() {
		id := p.ID
		if _, err := o.store.SetStatus(id, world.StatusPreparing); err != nil {
			continue
		}
		if _, err := o.store.GrantRoundIncome(id); err != nil {
			o.log.Error("round income failed", zap.Int32("player", id), zap.Error(err))
		}
		if _, err := o.store.GrantAutoXP(id); err != nil {
			o.log.Error("auto xp failed", zap.Int32("player", id), zap.Error(err))
		}
		snap, err := o.shop.Deal(id)
		if err != nil {
			o.log.Error("shop deal failed", zap.Int32("player", id), zap.Error(err))
			continue
		}
		o.send(id, protocol.KindShopRefreshed, protocol.ShopRefreshed{EchoDefinitionIDs: shopIDs(snap.Shop)}, true)
	}
}

func (o *Orchestrator) enterCombat() {
	alive := o.store.Alive()
	pairs, featured := o.mm.PairRound(alive)
	if featured != nil {
		o.broadcast(protocol.KindFeaturedMatch, protocol.FeaturedMatch{
			Player1ID: featured.Pair.PlayerID,
			Player2ID: featured.Pair.OpponentID,
			Reason:    string(featured.Reason),
		}, false)
	}

	o.combats = o.combats[:0]
	for i, pair := range pairs {
		ac, err := o.buildCombat(i, pair)
		if err != nil {
			o.log.Error("combat setup failed",
				zap.Int32("player", pair.PlayerID),
				zap.Int32("opponent", pair.OpponentID),
				zap.Error(err))
			continue
		}
		o.combats = append(o.combats, ac)
	}
	o.metrics.ActiveCombats.Set(float64(len(o.combats)))

	if len(o.combats) == 0 {
		if tr, ok := o.sched.CombatsResolved(); ok {
			o.enterPhase(tr)
		}
	}
}

func (o *Orchestrator) buildCombat(pairIndex int, pair match.Pair) (*activeCombat, error) {
	p0, ok := o.store.Get(pair.PlayerID)
	if !ok {
		return nil, fmt.Errorf("player %d not seated", pair.PlayerID)
	}
	var p1 *world.PlayerRuntime
	if pair.Ghost != nil {
		p1 = o.ghostRuntime(pair.Ghost)
	} else {
		p1, ok = o.store.Get(pair.OpponentID)
		if !ok {
			return nil, fmt.Errorf("opponent %d not seated", pair.OpponentID)
		}
	}

	units0, err := combat.LoadUnits(o.combatSet, o.catalog, p0, 0, o.mutationBonus(p0))
	if err != nil {
		return nil, err
	}
	bonus1 := combat.MutationBonus{}
	if pair.Ghost == nil {
		bonus1 = o.mutationBonus(p1)
	}
	units1, err := combat.LoadUnits(o.combatSet, o.catalog, p1, 1, bonus1)
	if err != nil {
		return nil, err
	}

	round := o.sched.Round()
	sim := combat.NewSimulator(o.combatSet, combat.NewRNG(o.seed+int64(round), pairIndex), units0, units1, round)
	ac := &activeCombat{
		pairIndex: pairIndex,
		sides:     [2]int32{pair.PlayerID, oppID(pair, o.mm.GhostID())},
		sim:       sim,
		engine:    combat.NewInterventionEngine(o.combatSet.Intervention, sim),
		snapTimer: o.snapEvery,
	}

	for team, pid := range ac.sides {
		if pid == o.mm.GhostID() {
			continue
		}
		opponent := p1
		if team == 1 {
			opponent = p0
		}
		raw, err := opponent.Snapshot()
		if err != nil {
			return nil, err
		}
		if _, err := o.store.SetStatus(pid, world.StatusInCombat); err != nil {
			o.log.Warn("seat status flip failed", zap.Int32("player", pid), zap.Error(err))
		}
		o.send(pid, protocol.KindCombatStarted, protocol.CombatStarted{
			OpponentID:    ac.sides[1-team],
			OpponentState: raw,
		}, true)
	}
	return ac, nil
}

func oppID(pair match.Pair, ghostID int32) int32 {
	if pair.Ghost != nil {
		return ghostID
	}
	return pair.OpponentID
}

// ghostRuntime rebuilds a fighting seat from a banked board.
func (o *Orchestrator) ghostRuntime(g *match.GhostState) *world.PlayerRuntime {
	board := append([]world.Slot(nil), g.Board...)
	return &world.PlayerRuntime{
		ID:         o.mm.GhostID(),
		Name:       "Eco",
		Board:      board,
		Resonances: o.reso.Active(board),
	}
}

func (o *Orchestrator) stepCombats(dt time.Duration) {
	for _, c := range o.combats {
		if c.resolved || o.sched.Phase() != PhaseCombat {
			continue
		}
		c.engine.CooldownTick(dt)
		c.snapTimer -= dt
		if c.snapTimer > 0 {
			continue
		}
		c.snapTimer += o.snapEvery

		snap := c.sim.StepBatch(c.engine.Drain())
		if err := c.transcript.Append(snap); err != nil {
			o.log.Error("snapshot marshal failed", zap.Error(err))
			continue
		}
		frames := c.transcript.Frames()
		body := string(frames[len(frames)-1])
		for _, pid := range c.sides {
			if pid != o.mm.GhostID() {
				o.send(pid, protocol.KindCombatUpdate, protocol.CombatUpdate{EventJSON: body}, false)
			}
		}

		c.engine.Accrue()
		for team, pid := range c.sides {
			if pid == o.mm.GhostID() {
				continue
			}
			if e := c.engine.Energy(team); e != c.lastEnergy[team] {
				c.lastEnergy[team] = e
				o.send(pid, protocol.KindEnergyUpdate, protocol.EnergyUpdate{
					Energy:    e,
					MaxEnergy: o.combatSet.Intervention.MaxEnergy,
				}, false)
			}
		}

		if snap.Done {
			o.resolveCombat(c)
		}
	}

	if o.sched.Phase() != PhaseCombat {
		return
	}
	for _, c := range o.combats {
		if !c.resolved {
			return
		}
	}
	if len(o.combats) > 0 {
		if tr, ok := o.sched.CombatsResolved(); ok {
			o.enterPhase(tr)
		}
	}
}

func (o *Orchestrator) resolveCombat(c *activeCombat) {
	c.resolved = true
	r := c.sim.Result()
	winnerID := c.sides[r.WinnerTeam]
	loserID := c.sides[r.LoserTeam]
	ghost := o.mm.GhostID()

	o.log.Info("combat resolved",
		zap.Int32("winner", winnerID),
		zap.Int32("loser", loserID),
		zap.Int("damage", r.Damage),
		zap.Int("ticks", c.sim.Tick()),
		zap.Int("transcript_frames", c.transcript.Size()))

	if winnerID != ghost {
		if _, err := o.store.UpdateStreak(winnerID, true); err != nil {
			o.log.Warn("streak update failed", zap.Int32("player", winnerID), zap.Error(err))
		}
	}
	if loserID != ghost {
		if _, err := o.store.UpdateStreak(loserID, false); err != nil {
			o.log.Warn("streak update failed", zap.Int32("player", loserID), zap.Error(err))
		}
		if _, err := o.store.ModifyNexus(loserID, -r.Damage); err != nil {
			o.log.Warn("nexus damage failed", zap.Int32("player", loserID), zap.Error(err))
		}
	}
	if winnerID != ghost && loserID != ghost {
		if winner, ok := o.store.Get(winnerID); ok {
			o.mm.RecordResult(winnerID, loserID, winner.Board)
		}
	}

	for _, pid := range c.sides {
		if pid != ghost {
			o.send(pid, protocol.KindCombatEnded, protocol.CombatEnded{
				WinnerID:    winnerID,
				DamageDealt: r.Damage,
			}, true)
		}
	}
	o.metrics.ActiveCombats.Dec()
}

// finishCombats force-resolves anything still running when the wall-clock
// combat cap fires, then drops the round's pairs.
func (o *Orchestrator) finishCombats() {
	for _, c := range o.combats {
		if !c.resolved {
			c.sim.ForceEnd()
			o.resolveCombat(c)
		}
	}
	o.combats = o.combats[:0]
	o.metrics.ActiveCombats.Set(0)
}

func (o *Orchestrator) grantMutations() {
	if len(o.mutations) == 0 {
		return
	}
	for _, p := range o.store.Alive() {
		mu := o.mutations[o.rng.Intn(len(o.mutations))]
		if _, err := o.store.GrantMutation(p.ID, int(mu.ID), mu.Gold, mu.XP); err != nil {
			o.log.Warn("mutation grant failed", zap.Int32("player", p.ID), zap.Error(err))
			continue
		}
		o.log.Info("mutation granted", zap.Int32("player", p.ID), zap.String("mutation", mu.Name))
	}
}

// mutationBonus folds a player's tokens into the per-combat stat bonus.
func (o *Orchestrator) mutationBonus(p *world.PlayerRuntime) combat.MutationBonus {
	var b combat.MutationBonus
	for _, token := range p.Mutations {
		mu, ok := o.mutByID[token]
		if !ok {
			continue
		}
		b.HPPct += mu.HPPct
		b.AttackPct += mu.AttackPct
	}
	return b
}

// onPlayerChanged fans a committed snapshot out: the full state to its
// owner, the public summary to everyone else.
func (o *Orchestrator) onPlayerChanged(p *world.PlayerRuntime) {
	raw, err := p.Snapshot()
	if err != nil {
		o.log.Error("snapshot marshal failed", zap.Int32("player", p.ID), zap.Error(err))
		return
	}
	o.send(p.ID, protocol.KindPlayerStateUpdate, protocol.PlayerStateUpdate{State: raw}, true)
	o.broadcastExcept(p.ID, protocol.KindOtherPlayerInfo, protocol.OtherPlayerInfo{
		PlayerID:    p.ID,
		NexusHealth: p.Nexus,
		Level:       p.Level,
		WinStreak:   p.WinStreak,
		LossStreak:  p.LossStreak,
	}, false)
}

func (o *Orchestrator) onPlayerEliminated(id int32) {
	o.eliminated = append(o.eliminated, id)
	placement := o.totalSeats - len(o.eliminated) + 1
	o.broadcast(protocol.KindPlayerEliminated, protocol.PlayerEliminated{
		PlayerID:       id,
		FinalPlacement: placement,
	}, true)
	o.log.Info("player eliminated", zap.Int32("player", id), zap.Int("placement", placement))
	o.checkGameOver()
}

func (o *Orchestrator) checkGameOver() {
	if o.sched.Phase() == PhaseWaiting || o.sched.Phase() == PhaseGameOver {
		return
	}
	alive := o.store.Alive()
	if len(alive) > 1 {
		return
	}
	tr, ok := o.sched.EndMatch()
	if !ok {
		return
	}
	o.enterPhase(tr)

	var winnerID int32 = -1
	if len(alive) == 1 {
		winnerID = alive[0].ID
	}
	placements := make([]int32, 0, len(o.eliminated)+1)
	if winnerID >= 0 {
		placements = append(placements, winnerID)
	}
	for i := len(o.eliminated) - 1; i >= 0; i-- {
		placements = append(placements, o.eliminated[i])
	}
	o.broadcast(protocol.KindGameEnded, protocol.GameEnded{
		WinnerID:   winnerID,
		Placements: placements,
	}, true)
	o.log.Info("game ended", zap.Int32("winner", winnerID))
}

func (o *Orchestrator) handleDisconnect(id int32) {
	if o.sched.Phase() == PhaseWaiting {
		o.lobby.Leave(id)
		o.store.Remove(id)
		o.broadcast(protocol.KindLobbyState, o.lobby.State(), false)
		o.log.Info("player left lobby", zap.Int32("player", id))
		return
	}
	if o.store.Remove(id) {
		o.log.Info("player disconnected mid-match", zap.Int32("player", id))
		o.checkGameOver()
	}
}

// send swallows per-client transport errors; a failed direct send means
// the client is gone and the disconnect path will surface it.
func (o *Orchestrator) send(id int32, kind protocol.Kind, payload any, reliable bool) {
	if err := o.tr.SendTo(id, kind, payload, reliable); err != nil {
		o.log.Debug("send skipped", zap.Int32("client", id), zap.Stringer("kind", kind))
	}
}

func (o *Orchestrator) broadcast(kind protocol.Kind, payload any, reliable bool) {
	if err := o.tr.Broadcast(kind, payload, reliable); err != nil {
		o.log.Warn("broadcast failed", zap.Stringer("kind", kind), zap.Error(err))
	}
}

func (o *Orchestrator) broadcastExcept(exclude int32, kind protocol.Kind, payload any, reliable bool) {
	if err := o.tr.Broadcast(kind, payload, reliable, exclude); err != nil {
		o.log.Warn("broadcast failed", zap.Stringer("kind", kind), zap.Error(err))
	}
}

func shopIDs(shop []int32) []int32 {
	return append([]int32(nil), shop...)
}
