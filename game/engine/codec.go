package engine

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON form of an event: its kind plus the variant payload.
type Envelope struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvent encodes an event into its envelope form
func MarshalEvent(ev Event) ([]byte, error) {
	env, err := ToEnvelope(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ToEnvelope wraps an event payload with its kind
func ToEnvelope(ev Event) (Envelope, error) {
	if ev == nil {
		return Envelope{}, fmt.Errorf("event cannot be nil")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}
	return Envelope{Kind: ev.Kind(), Data: data}, nil
}

// UnmarshalEvent decodes an envelope produced by MarshalEvent
func UnmarshalEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}
	return env.Event()
}

// Event decodes the envelope payload into its concrete variant
func (env Envelope) Event() (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case KindMove:
		ev, err = decodeAs[Move](env.Data)
	case KindEndTurn:
		ev, err = decodeAs[EndTurn](env.Data)
	case KindCreateUnit:
		ev, err = decodeAs[CreateUnit](env.Data)
	case KindAttackUnit:
		ev, err = decodeAs[AttackUnit](env.Data)
	case KindShowUnit:
		ev, err = decodeAs[ShowUnit](env.Data)
	case KindHideUnit:
		ev, err = decodeAs[HideUnit](env.Data)
	case KindLoadUnit:
		ev, err = decodeAs[LoadUnit](env.Data)
	case KindUnloadUnit:
		ev, err = decodeAs[UnloadUnit](env.Data)
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s event: %w", env.Kind, err)
	}
	return ev, nil
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if len(data) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
