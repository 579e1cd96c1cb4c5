package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer JSON object of every wire message. The payload is
// itself a JSON document carried as a string, so the envelope can be parsed
// without knowing the kind up front. Field names are the client contract.
type Envelope struct {
	Type        Kind   `json:"Type"`
	PayloadJSON string `json:"PayloadJson"`
	SequenceID  uint32 `json:"SequenceId"`
	RequiresAck bool   `json:"RequiresAck"`
}

// Encode wraps a payload struct in an envelope of the given kind. The
// sequence id is left zero; the sender stamps it.
func Encode(kind Kind, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{Type: kind, PayloadJSON: string(body)}, nil
}

// Decode parses the nested payload into the kind's schema struct.
func Decode[T any](env Envelope) (T, error) {
	var p T
	if err := json.Unmarshal([]byte(env.PayloadJSON), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return p, nil
}

// Marshal renders the envelope as the frame body bytes.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.Type, err)
	}
	return data, nil
}

// Unmarshal parses a frame body into an envelope. Unknown kinds are an
// error: the set is closed.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if !env.Type.Valid() {
		return Envelope{}, fmt.Errorf("unknown message kind %d", uint8(env.Type))
	}
	return env, nil
}
