package protocol

import "fmt"

// Kind identifies a message type on the wire. The numeric values are part
// of the client contract and must not be reordered.
type Kind uint8

const (
	KindJoinLobby Kind = iota
	KindJoinLobbyResponse
	KindLobbyState
	KindReadyUp
	KindStartRound
	KindPhaseChanged
	KindPlayerStateUpdate
	KindOtherPlayerInfo
	KindShopRefreshed
	KindBuyEcho
	KindSellEcho
	KindRefreshShop
	KindBuyXP
	KindPositionEcho
	KindRemoveFromBoard
	KindEchoFused
	KindCombatStarted
	KindCombatUpdate
	KindCombatEnded
	KindUseIntervention
	KindInterventionActivated
	KindEnergyUpdate
	KindFeaturedMatch
	KindPlayerEliminated
	KindGameEnded
	KindActionRejected
	KindPing
	KindPong
	KindAck

	kindCount
)

var kindNames = [kindCount]string{
	"JoinLobby",
	"JoinLobbyResponse",
	"LobbyState",
	"ReadyUp",
	"StartRound",
	"PhaseChanged",
	"PlayerStateUpdate",
	"OtherPlayerInfo",
	"ShopRefreshed",
	"BuyEcho",
	"SellEcho",
	"RefreshShop",
	"BuyXP",
	"PositionEcho",
	"RemoveFromBoard",
	"EchoFused",
	"CombatStarted",
	"CombatUpdate",
	"CombatEnded",
	"UseIntervention",
	"InterventionActivated",
	"EnergyUpdate",
	"FeaturedMatch",
	"PlayerEliminated",
	"GameEnded",
	"ActionRejected",
	"Ping",
	"Pong",
	"Ack",
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a kind this server knows.
func (k Kind) Valid() bool { return k < kindCount }
