package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventAccountAdded         EventType = "account_added"
	EventAccountRemoved       EventType = "account_removed"
	EventAccountStatusChanged EventType = "account_status_changed"
	EventAgentStatusChanged   EventType = "agent_status_changed"
	EventAuthProgress         EventType = "auth_progress"
	EventMetricsUpdated       EventType = "metrics_updated"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus. Observers must tolerate being
// notified more often than state actually changed.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
