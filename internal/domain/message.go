package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType is the discriminator carried in the "type" field of every
// inbound frame.
type MessageType string

const (
	MessageTypeSuccess MessageType = "success"
	MessageTypeError   MessageType = "error"
	MessageTypeEvent   MessageType = "event"
)

// CommandEnvelope is an outgoing command: id, method and params, plus any
// extra top-level fields for forward compatibility. It is immutable once
// built and is serialized exactly once.
type CommandEnvelope struct {
	ID      uint64
	Command Command
	Extra   map[string]any
}

// reserved envelope keys that Extra may not override.
var reservedEnvelopeKeys = map[string]bool{"id": true, "method": true, "params": true}

// MarshalJSON flattens the command into {"id","method","params", ...extra}.
func (e CommandEnvelope) MarshalJSON() ([]byte, error) {
	if e.Command == nil {
		return nil, fmt.Errorf("marshal command %d: %w: nil command", e.ID, ErrInvalidInput)
	}
	params, err := json.Marshal(e.Command)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", e.Command.Method(), err)
	}
	if string(params) == "null" {
		params = []byte("{}")
	}

	fields := make(map[string]json.RawMessage, len(e.Extra)+3)
	for k, v := range e.Extra {
		if reservedEnvelopeKeys[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal extra field %q: %w", k, err)
		}
		fields[k] = raw
	}
	fields["id"], _ = json.Marshal(e.ID)
	fields["method"], _ = json.Marshal(e.Command.Method())
	fields["params"] = params
	return json.Marshal(fields)
}

// Message is an inbound frame. It is a closed sum type: the concrete value
// is always one of *SuccessMessage, *ErrorMessage or *EventMessage.
type Message interface {
	Type() MessageType
	isMessage()
}

// CommandOutcome is the subset of Message that resolves a pending command.
// Only *SuccessMessage and *ErrorMessage implement it.
type CommandOutcome interface {
	Message
	// CommandID returns the correlated id; ok is false when the remote end
	// could not attribute the outcome to a command.
	CommandID() (id uint64, ok bool)
}

// SuccessMessage carries the result of a command.
type SuccessMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
}

func (*SuccessMessage) Type() MessageType           { return MessageTypeSuccess }
func (*SuccessMessage) isMessage()                  {}
func (m *SuccessMessage) CommandID() (uint64, bool) { return m.ID, true }

// ErrorMessage carries a remote failure. ID is nil when the remote end could
// not parse the command it is replying to.
type ErrorMessage struct {
	ID         *uint64   `json:"id"`
	Code       ErrorCode `json:"error"`
	Message    string    `json:"message"`
	Stacktrace string    `json:"stacktrace,omitempty"`
}

func (*ErrorMessage) Type() MessageType { return MessageTypeError }
func (*ErrorMessage) isMessage()        {}

func (m *ErrorMessage) CommandID() (uint64, bool) {
	if m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

// Err converts the message into a *RemoteError.
func (m *ErrorMessage) Err() *RemoteError {
	return &RemoteError{Code: m.Code, Message: m.Message, Stacktrace: m.Stacktrace}
}

// EventMessage is an unsolicited notification.
type EventMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (*EventMessage) Type() MessageType { return MessageTypeEvent }
func (*EventMessage) isMessage()        {}

// Context returns the browsing context the event refers to, read from
// params.context. It is empty when the event does not name one.
func (m *EventMessage) Context() string {
	if len(m.Params) == 0 {
		return ""
	}
	var head struct {
		Context string `json:"context"`
	}
	if err := json.Unmarshal(m.Params, &head); err != nil {
		return ""
	}
	return head.Context
}

// Decode unmarshals the event params into v.
func (m *EventMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("decode %s params: %w: %v", m.Method, ErrUnexpectedResult, err)
	}
	return nil
}

// rawMessage is the union of all inbound fields, used once per frame to
// read the discriminator before picking a concrete shape.
type rawMessage struct {
	Type       MessageType     `json:"type"`
	ID         json.RawMessage `json:"id"`
	Result     json.RawMessage `json:"result"`
	Error      *ErrorCode      `json:"error"`
	Message    string          `json:"message"`
	Stacktrace string          `json:"stacktrace"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
}

// ParseMessage decodes one inbound frame. It returns an error wrapping
// ErrMalformedMessage for invalid JSON or missing required fields, and
// ErrUnknownMessageType for an unrecognised discriminator.
func ParseMessage(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch raw.Type {
	case MessageTypeSuccess:
		id, present, err := parseID(raw.ID)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, fmt.Errorf("%w: success without id", ErrMalformedMessage)
		}
		if len(raw.Result) == 0 {
			return nil, fmt.Errorf("%w: success %d without result", ErrMalformedMessage, id)
		}
		return &SuccessMessage{ID: id, Result: raw.Result}, nil

	case MessageTypeError:
		if raw.Error == nil {
			return nil, fmt.Errorf("%w: error without code", ErrMalformedMessage)
		}
		msg := &ErrorMessage{Code: *raw.Error, Message: raw.Message, Stacktrace: raw.Stacktrace}
		id, present, err := parseID(raw.ID)
		if err != nil {
			return nil, err
		}
		if present {
			msg.ID = &id
		}
		return msg, nil

	case MessageTypeEvent:
		if raw.Method == "" {
			return nil, fmt.Errorf("%w: event without method", ErrMalformedMessage)
		}
		params := raw.Params
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		return &EventMessage{Method: raw.Method, Params: params}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, raw.Type)
	}
}

// parseID accepts an absent or null id as "not present".
func parseID(raw json.RawMessage) (uint64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false, fmt.Errorf("%w: id: %v", ErrMalformedMessage, err)
	}
	return id, true, nil
}
