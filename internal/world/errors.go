package world

import (
	"errors"
	"fmt"
)

// Rejection reasons shown to clients. The wording is part of the client
// contract; do not translate.
const (
	ReasonBenchFull     = "Panchina piena"
	ReasonNoGold        = "Oro insufficiente"
	ReasonEmptyShopSlot = "Slot vuoto"
	ReasonNoCombat      = "Nessun combattimento attivo"
	ReasonUnitNotFound  = "Unità non trovata"
	ReasonBadPosition   = "Posizione non valida"
	ReasonPositionTaken = "Posizione occupata"
	ReasonUnitLimit     = "Limite unità raggiunto"
	ReasonLevelCap      = "Livello massimo raggiunto"
	ReasonLobbyFull     = "Lobby piena"
	ReasonGameStarted   = "Partita già iniziata"
	ReasonWrongPhase    = "Non in questa fase"
)

// RejectError marks a semantic rejection: the action was understood but
// refused, state is untouched, and Reason goes back to the client verbatim.
// Anything else returned by a transform is an internal error.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

// Reject builds a RejectError; args are formatted into reason when present.
func Reject(reason string, args ...any) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &RejectError{Reason: reason}
}

// AsReject unwraps a RejectError if err is one.
func AsReject(err error) (*RejectError, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
