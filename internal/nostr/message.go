package nostr

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON flattens tag filters into the wire form, where a filter on
// tag "d" appears as a "#d" key next to the regular fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	return json.Marshal(m)
}

// EncodeEventMessage builds the client ["EVENT", event] frame.
func EncodeEventMessage(ev *Event) ([]byte, error) {
	return json.Marshal([]any{"EVENT", ev})
}

// EncodeReqMessage builds the client ["REQ", subID, filter...] frame.
func EncodeReqMessage(subID string, filters ...Filter) ([]byte, error) {
	arr := make([]any, 0, 2+len(filters))
	arr = append(arr, "REQ", subID)
	for _, f := range filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// EncodeCloseMessage builds the client ["CLOSE", subID] frame.
func EncodeCloseMessage(subID string) ([]byte, error) {
	return json.Marshal([]any{"CLOSE", subID})
}

// Relay-to-client messages.
type (
	// EventMessage delivers a stored event for a subscription.
	EventMessage struct {
		SubID string
		Event *Event
	}
	// OKMessage acknowledges (or rejects) a published event.
	OKMessage struct {
		EventID string
		OK      bool
		Reason  string
	}
	// EOSEMessage marks the end of stored events for a subscription.
	EOSEMessage struct {
		SubID string
	}
	// NoticeMessage carries a human-readable relay notice.
	NoticeMessage struct {
		Message string
	}
)

// ParseRelayMessage decodes one frame received from a relay. The returned
// value is one of EventMessage, OKMessage, EOSEMessage or NoticeMessage.
func ParseRelayMessage(data []byte) (any, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("malformed relay message: %w", err)
	}
	if len(arr) < 2 {
		return nil, fmt.Errorf("relay message too short")
	}

	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return nil, fmt.Errorf("malformed message label: %w", err)
	}

	switch label {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT message too short")
		}
		var msg EventMessage
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, err
		}
		msg.Event = &Event{}
		if err := json.Unmarshal(arr[2], msg.Event); err != nil {
			return nil, err
		}
		return msg, nil

	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK message too short")
		}
		var msg OKMessage
		if err := json.Unmarshal(arr[1], &msg.EventID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(arr[2], &msg.OK); err != nil {
			return nil, err
		}
		if len(arr) > 3 {
			_ = json.Unmarshal(arr[3], &msg.Reason)
		}
		return msg, nil

	case "EOSE":
		var msg EOSEMessage
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, err
		}
		return msg, nil

	case "NOTICE":
		var msg NoticeMessage
		if err := json.Unmarshal(arr[1], &msg.Message); err != nil {
			return nil, err
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("unknown relay message %q", label)
	}
}
