package models

import "testing"

func TestEventPayload(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"token", TokenEvent("SELECT 1"), `{"text":"SELECT 1"}`},
		{"token with newline", TokenEvent("a\nb"), `{"text":"a\nb"}`},
		{"ping", PingEvent(), `{}`},
		{"error", ErrorEvent("model call failed"), `{"message":"model call failed"}`},
		{"done", DoneEvent(), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(tt.event.Payload())
			if got != tt.want {
				t.Errorf("Payload() = %s, want %s", got, tt.want)
			}
		})
	}
}
