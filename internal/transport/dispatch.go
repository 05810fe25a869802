package transport

import (
	"encoding/json"
	"fmt"
)

// EventKind classifies an inbound JSON control message by its "type"
// field, per spec.md §4.6.
type EventKind string

const (
	EventTTS     EventKind = "tts"
	EventSTT     EventKind = "stt"
	EventLLM     EventKind = "llm"
	EventIoT     EventKind = "iot"
	EventMCP     EventKind = "mcp"
	EventSystem  EventKind = "system"
	EventAlert   EventKind = "alert"
	EventControl EventKind = "control"
)

// ControlCode is the numeric remote-actuation type space of spec.md
// §4.6. 2 is intentionally absent — the original protocol never assigns
// it.
type ControlCode int

const (
	ControlVolume    ControlCode = 0
	ControlShutdown  ControlCode = 1
	ControlIdle      ControlCode = 3
	ControlSuck      ControlCode = 4
	ControlVibration ControlCode = 5
	ControlHeater    ControlCode = 6
)

// Event is the parsed form of one inbound JSON message.
type Event struct {
	Kind     EventKind
	TTSState string // sub-state for EventTTS: start, stop, sentence_start
	Emotion  string // carried by EventLLM
	Control  ControlCode
	Raw      map[string]any
}

// ParseEvent implements the inbound JSON dispatch of spec.md §4.6. A
// malformed payload or unrecognized type/type-code is a ProtocolViolation
// (spec.md §7): logged and ignored by the caller, never fatal.
func ParseEvent(payload []byte) (Event, error) {
	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return Event{}, newError(ErrorKindProtocolViolation, err)
	}

	typeVal, ok := generic["type"]
	if !ok {
		return Event{}, newError(ErrorKindProtocolViolation, fmt.Errorf("missing type field"))
	}

	switch t := typeVal.(type) {
	case string:
		return parseNamedEvent(t, generic)
	case float64:
		return parseControlEvent(ControlCode(int(t)), generic)
	default:
		return Event{}, newError(ErrorKindProtocolViolation, fmt.Errorf("type field has unexpected shape %T", typeVal))
	}
}

func parseNamedEvent(t string, generic map[string]any) (Event, error) {
	ev := Event{Raw: generic}
	switch EventKind(t) {
	case EventTTS:
		ev.Kind = EventTTS
		ev.TTSState, _ = generic["state"].(string)
	case EventSTT:
		ev.Kind = EventSTT
	case EventLLM:
		ev.Kind = EventLLM
		ev.Emotion, _ = generic["emotion"].(string)
	case EventIoT:
		ev.Kind = EventIoT
	case EventMCP:
		ev.Kind = EventMCP
	case EventSystem:
		ev.Kind = EventSystem
	case EventAlert:
		ev.Kind = EventAlert
	default:
		return Event{}, newError(ErrorKindProtocolViolation, fmt.Errorf("unknown message type %q", t))
	}
	return ev, nil
}

func parseControlEvent(code ControlCode, generic map[string]any) (Event, error) {
	switch code {
	case ControlVolume, ControlShutdown, ControlIdle, ControlSuck, ControlVibration, ControlHeater:
		return Event{Kind: EventControl, Control: code, Raw: generic}, nil
	default:
		return Event{}, newError(ErrorKindProtocolViolation, fmt.Errorf("unknown control type %d", int(code)))
	}
}
