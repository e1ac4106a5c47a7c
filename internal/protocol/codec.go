package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownMessage = errors.New("protocol: unknown message type")

// Envelope is the wire form of a command or an event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func EncodeCommand(cmd Command) ([]byte, error) {
	return encode(string(cmd.CommandType()), cmd)
}

func EncodeEvent(ev Event) ([]byte, error) {
	return encode(string(ev.EventType()), ev)
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}

func DecodeCommand(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode command: %w", err)
	}
	var cmd Command
	switch CommandType(env.Type) {
	case CmdStartSelection:
		cmd = &StartSelection{}
	case CmdStopSelection:
		cmd = &StopSelection{}
	case CmdFindUniqueSelector:
		cmd = &FindUniqueSelector{}
	case CmdStartRecording:
		cmd = &StartRecording{}
	case CmdStopRecording:
		cmd = &StopRecording{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err := unmarshalData(env.Data, cmd); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return deref(cmd).(Command), nil
}

func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode event: %w", err)
	}
	var ev Event
	switch EventType(env.Type) {
	case EvtSelectionUpdated:
		ev = &SelectionUpdated{}
	case EvtUniqueSelectorResolved:
		ev = &UniqueSelectorResolved{}
	case EvtInteractionRecorded:
		ev = &InteractionRecorded{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err := unmarshalData(env.Data, ev); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return deref(ev).(Event), nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// deref turns the decode target back into the value type callers switch on.
func deref(v any) any {
	switch m := v.(type) {
	case *StartSelection:
		return *m
	case *StopSelection:
		return *m
	case *FindUniqueSelector:
		return *m
	case *StartRecording:
		return *m
	case *StopRecording:
		return *m
	case *SelectionUpdated:
		return *m
	case *UniqueSelectorResolved:
		return *m
	case *InteractionRecorded:
		return *m
	}
	return v
}
