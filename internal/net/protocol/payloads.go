package protocol

import "encoding/json"

// Payload schemas, one struct per kind. Directions and reliability are
// enforced by the dispatch tables in the session package, not here.

type JoinLobby struct {
	PlayerName string `json:"player_name"`
}

type JoinLobbyResponse struct {
	PlayerName string `json:"player_name"`
}

type LobbyPlayer struct {
	ID      int32  `json:"id"`
	Name    string `json:"name"`
	IsReady bool   `json:"is_ready"`
}

type LobbyState struct {
	Players            []LobbyPlayer `json:"players"`
	AllReady           bool          `json:"all_ready"`
	CountdownRemaining float64       `json:"countdown_remaining"`
}

type ReadyUp struct {
	IsReady bool `json:"is_ready"`
}

type StartRound struct {
	RoundNumber int `json:"round_number"`
}

type PhaseChanged struct {
	NewPhase          string  `json:"new_phase"`
	PhaseDurationSecs float64 `json:"phase_duration_secs"`
}

// PlayerStateUpdate carries the full runtime snapshot of the receiving
// player. The state document is produced by the world package; the raw
// form keeps this package free of that dependency.
type PlayerStateUpdate struct {
	State json.RawMessage `json:"state"`
}

type OtherPlayerInfo struct {
	PlayerID    int32 `json:"player_id"`
	NexusHealth int   `json:"nexus_health"`
	Level       int   `json:"level"`
	WinStreak   int   `json:"win_streak"`
	LossStreak  int   `json:"loss_streak"`
}

type ShopRefreshed struct {
	EchoDefinitionIDs []int32 `json:"echo_definition_ids"`
}

type BuyEcho struct {
	ShopSlot int `json:"shop_slot"`
}

type SellEcho struct {
	EchoInstanceID int32 `json:"echo_instance_id"`
}

type RefreshShop struct{}

type BuyXP struct{}

type PositionEcho struct {
	EchoInstanceID int32 `json:"echo_instance_id"`
	BoardX         int   `json:"board_x"`
	BoardY         int   `json:"board_y"`
}

type RemoveFromBoard struct {
	EchoInstanceID int32 `json:"echo_instance_id"`
}

type EchoFused struct {
	ResultInstanceID int32 `json:"result_instance_id"`
	NewStarLevel     int   `json:"new_star_level"`
	DefinitionID     int32 `json:"definition_id"`
	IsOnBoard        bool  `json:"is_on_board"`
	SlotIndex        int   `json:"slot_index"`
}

type CombatStarted struct {
	OpponentID    int32           `json:"opponent_id"`
	OpponentState json.RawMessage `json:"opponent_state"`
}

// CombatUpdate nests the snapshot-batch document as a string, mirroring
// the envelope's own payload convention.
type CombatUpdate struct {
	EventJSON string `json:"event_json"`
}

type CombatEnded struct {
	WinnerID    int32 `json:"winner_id"`
	DamageDealt int   `json:"damage_dealt"`
}

type UseIntervention struct {
	CardID   string `json:"card_id"`
	TargetID int32  `json:"target_id"`
}

type InterventionActivated struct {
	PlayerID         int32  `json:"player_id"`
	InterventionType string `json:"intervention_type"`
	TargetUnitID     int32  `json:"target_unit_id"`
}

type EnergyUpdate struct {
	Energy    int `json:"energy"`
	MaxEnergy int `json:"max_energy"`
}

type FeaturedMatch struct {
	Player1ID int32  `json:"player1_id"`
	Player2ID int32  `json:"player2_id"`
	Reason    string `json:"reason"`
}

type PlayerEliminated struct {
	PlayerID       int32 `json:"player_id"`
	FinalPlacement int   `json:"final_placement"`
}

type GameEnded struct {
	WinnerID   int32   `json:"winner_id"`
	Placements []int32 `json:"placements"`
}

type ActionRejected struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	OriginalTimestamp int64 `json:"original_timestamp"`
	ServerReceivedAt  int64 `json:"server_received_at"`
}

type Ack struct {
	AcknowledgedSequenceID uint32 `json:"acknowledged_sequence_id"`
}
