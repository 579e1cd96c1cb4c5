package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/echoarena/server/internal/combat"
	gamenet "github.com/echoarena/server/internal/net"
	"github.com/echoarena/server/internal/net/protocol"
	"github.com/echoarena/server/internal/world"
)

// handler processes one decoded inbound message. A RejectError goes back
// to the sender as ActionRejected; any other error is internal and only
// logged.
type handler func(o *Orchestrator, clientID int32, env protocol.Envelope) error

var handlers = map[protocol.Kind]handler{
	protocol.KindJoinLobby:       handleJoinLobby,
	protocol.KindReadyUp:         handleReadyUp,
	protocol.KindBuyEcho:         handleBuyEcho,
	protocol.KindSellEcho:        handleSellEcho,
	protocol.KindRefreshShop:     handleRefreshShop,
	protocol.KindBuyXP:           handleBuyXP,
	protocol.KindPositionEcho:    handlePositionEcho,
	protocol.KindRemoveFromBoard: handleRemoveFromBoard,
	protocol.KindUseIntervention: handleUseIntervention,
}

// allowedPhases gates each client kind to the lifecycle states where it is
// meaningful. Anything else answers with a wrong-phase rejection.
var allowedPhases = map[protocol.Kind]map[Phase]bool{
	protocol.KindJoinLobby:       {PhaseWaiting: true},
	protocol.KindReadyUp:         {PhaseWaiting: true},
	protocol.KindBuyEcho:         {PhasePreparation: true},
	protocol.KindSellEcho:        {PhasePreparation: true},
	protocol.KindRefreshShop:     {PhasePreparation: true},
	protocol.KindBuyXP:           {PhasePreparation: true},
	protocol.KindPositionEcho:    {PhasePreparation: true},
	protocol.KindRemoveFromBoard: {PhasePreparation: true},
	protocol.KindUseIntervention: {PhaseCombat: true},
}

// dispatch routes one inbound envelope. Panics in a handler are contained
// so one bad message cannot take down the tick loop.
func (o *Orchestrator) dispatch(in gamenet.Inbound) {
	kind := in.Env.Type
	h, ok := handlers[kind]
	if !ok {
		o.log.Warn("unhandled message kind",
			zap.Int32("client", in.ClientID),
			zap.Stringer("kind", kind))
		return
	}
	o.metrics.Dispatched.WithLabelValues(kind.String()).Inc()

	if !allowedPhases[kind][o.sched.Phase()] {
		o.rejectAction(in.ClientID, kind, world.ReasonWrongPhase)
		return
	}

	err := o.safeCall(h, in)
	if err == nil {
		return
	}
	if rej, isReject := world.AsReject(err); isReject {
		o.rejectAction(in.ClientID, kind, rej.Reason)
		return
	}
	o.log.Error("handler failed",
		zap.Int32("client", in.ClientID),
		zap.Stringer("kind", kind),
		zap.Error(err))
}

func (o *Orchestrator) safeCall(h handler, in gamenet.Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", in.Env.Type, r)
		}
	}()
	return h(o, in.ClientID, in.Env)
}

func (o *Orchestrator) rejectAction(clientID int32, kind protocol.Kind, reason string) {
	o.metrics.Rejected.Inc()
	o.send(clientID, protocol.KindActionRejected, protocol.ActionRejected{
		Action: kind.String(),
		Reason: reason,
	}, false)
}

func handleJoinLobby(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.JoinLobby](env)
	if err != nil {
		return err
	}
	if err := o.lobby.Join(clientID, p.PlayerName); err != nil {
		return err
	}
	if _, err := o.store.AddSeat(clientID, p.PlayerName); err != nil {
		o.lobby.Leave(clientID)
		return err
	}
	o.log.Info("player joined", zap.Int32("player", clientID), zap.String("name", p.PlayerName))
	o.send(clientID, protocol.KindJoinLobbyResponse, protocol.JoinLobbyResponse{PlayerName: p.PlayerName}, false)
	o.broadcast(protocol.KindLobbyState, o.lobby.State(), false)
	return nil
}

func handleReadyUp(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.ReadyUp](env)
	if err != nil {
		return err
	}
	o.lobby.SetReady(clientID, p.IsReady)
	o.broadcast(protocol.KindLobbyState, o.lobby.State(), false)
	return nil
}

func handleBuyEcho(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.BuyEcho](env)
	if err != nil {
		return err
	}
	snap, events, err := o.shop.Buy(clientID, p.ShopSlot)
	if err != nil {
		return err
	}
	for _, ev := range events {
		o.send(clientID, protocol.KindEchoFused, protocol.EchoFused{
			ResultInstanceID: ev.ResultInstanceID,
			NewStarLevel:     ev.NewStar,
			DefinitionID:     ev.DefinitionID,
			IsOnBoard:        ev.OnBoard,
			SlotIndex:        ev.SlotIndex,
		}, true)
	}
	o.send(clientID, protocol.KindShopRefreshed, protocol.ShopRefreshed{EchoDefinitionIDs: shopIDs(snap.Shop)}, true)
	return nil
}

func handleSellEcho(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.SellEcho](env)
	if err != nil {
		return err
	}
	_, err = o.shop.Sell(clientID, p.EchoInstanceID)
	return err
}

func handleRefreshShop(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	snap, err := o.shop.Refresh(clientID)
	if err != nil {
		return err
	}
	o.send(clientID, protocol.KindShopRefreshed, protocol.ShopRefreshed{EchoDefinitionIDs: shopIDs(snap.Shop)}, true)
	return nil
}

func handleBuyXP(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	_, err := o.store.BuyXP(clientID)
	return err
}

func handlePositionEcho(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.PositionEcho](env)
	if err != nil {
		return err
	}
	cols := o.store.Rules().BoardCols
	rows := o.store.Rules().BoardRows
	if p.BoardX < 0 || p.BoardX >= cols || p.BoardY < 0 || p.BoardY >= rows {
		return world.Reject(world.ReasonBadPosition)
	}
	_, err = o.store.MoveToBoard(clientID, p.EchoInstanceID, p.BoardY*cols+p.BoardX)
	return err
}

func handleRemoveFromBoard(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.RemoveFromBoard](env)
	if err != nil {
		return err
	}
	_, err = o.store.MoveToBench(clientID, p.EchoInstanceID)
	return err
}

func handleUseIntervention(o *Orchestrator, clientID int32, env protocol.Envelope) error {
	p, err := protocol.Decode[protocol.UseIntervention](env)
	if err != nil {
		return err
	}
	kind, err := combat.ParseInterventionKind(p.CardID)
	if err != nil {
		return world.Reject(world.ReasonUnitNotFound)
	}

	c, team := o.combatFor(clientID)
	if c == nil {
		return world.Reject(world.ReasonNoCombat)
	}
	if err := c.engine.Submit(team, kind, p.TargetID); err != nil {
		return err
	}
	o.broadcast(protocol.KindInterventionActivated, protocol.InterventionActivated{
		PlayerID:         clientID,
		InterventionType: kind.String(),
		TargetUnitID:     p.TargetID,
	}, false)
	return nil
}

// combatFor finds the unresolved combat a player is fighting in.
func (o *Orchestrator) combatFor(playerID int32) (*activeCombat, int) {
	for _, c := range o.combats {
		if c.resolved {
			continue
		}
		for team, pid := range c.sides {
			if pid == playerID {
				return c, team
			}
		}
	}
	return nil, 0
}
