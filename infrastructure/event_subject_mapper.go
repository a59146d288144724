package infrastructure

import (
	"fmt"

	"grainflow/events"
)

// StreamName is the JetStream stream carrying ledger events
const StreamName = "circulation_events"

// EventSubjectMapper maps ledger events to NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts an event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeWalletBalanceChanged:
		return "circulation.wallet.balance_changed"
	case events.EventTypeWalletCreated:
		return "circulation.wallet.created"
	case events.EventTypeCycleCompleted:
		return "circulation.cycle.completed"
	default:
		return fmt.Sprintf("circulation.unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"circulation.wallet.balance_changed",
		"circulation.wallet.created",
		"circulation.cycle.completed",
	}
}
