package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required on webhook and admin routes.
	ApiKey string `mapstructure:"api_key" default:""`
	// EventSource selects how object-finalize events arrive (webhook, listen, both).
	EventSource string `mapstructure:"event_source" default:"both"`
	// WatchDocuments subscribes to the document store change feed for create/update events.
	WatchDocuments bool `mapstructure:"watch_documents" default:"true"`
}

const (
	EventSourceWebhook = "webhook"
	EventSourceListen  = "listen"
	EventSourceBoth    = "both"
)

// IsValidEventSource checks if the configured event source is valid.
func (c Config) IsValidEventSource() bool {
	switch c.EventSource {
	case EventSourceWebhook, EventSourceListen, EventSourceBoth:
		return true
	default:
		return false
	}
}

// Listens reports whether the bucket notification listener should run.
func (c Config) Listens() bool {
	return c.EventSource == EventSourceListen || c.EventSource == EventSourceBoth
}
