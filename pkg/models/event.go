package models

import "encoding/json"

// EventType identifies an outgoing stream event.
type EventType string

const (
	// EventToken carries a fragment of model output.
	EventToken EventType = "token"
	// EventPing is a keepalive with no semantic content.
	EventPing EventType = "ping"
	// EventError carries a human-readable failure description. At most one
	// per request, only on the error path.
	EventError EventType = "error"
	// EventDone terminates the stream. Exactly one per request, always last.
	EventDone EventType = "done"
)

// Event is one entry in the ordered outgoing stream for a request.
type Event struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
}

// TokenEvent builds a token event carrying a text fragment.
func TokenEvent(text string) Event {
	return Event{Type: EventToken, Text: text}
}

// PingEvent builds a keepalive event.
func PingEvent() Event {
	return Event{Type: EventPing}
}

// ErrorEvent builds an error event with a human-readable cause.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// DoneEvent builds the terminal event.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

// Payload returns the JSON object sent as the SSE data line. Token events
// carry {"text": ...}, error events {"message": ...}, ping and done carry {}.
func (e Event) Payload() []byte {
	var v any
	switch e.Type {
	case EventToken:
		v = struct {
			Text string `json:"text"`
		}{e.Text}
	case EventError:
		v = struct {
			Message string `json:"message"`
		}{e.Message}
	default:
		v = struct{}{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
