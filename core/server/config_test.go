package server_test

import (
	"testing"

	"story-pipeline/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_IsValidEventSource(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
		listen bool
	}{
		{"Webhook", server.EventSourceWebhook, true, false},
		{"Listen", server.EventSourceListen, true, true},
		{"Both", server.EventSourceBoth, true, true},
		{"Invalid", "invalid", false, false},
		{"Empty", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{EventSource: tt.source}
			assert.Equal(t, tt.want, c.IsValidEventSource())
			assert.Equal(t, tt.listen, c.Listens())
		})
	}
}
