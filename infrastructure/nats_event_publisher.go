package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grainflow/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const sourceService = "grainflow"

// eventNamespace scopes the name-based UUIDs derived for event ids
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:grainflow:events"))

// EventEnvelope wraps every exported event
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventPublisher forwards committed ledger events to the message bus
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	now           func() time.Time
	onPublished   func(eventType events.EventType)
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper) *NATSEventPublisher {
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		now:           time.Now,
	}
}

// OnPublished registers a callback run after each successful publish
func (p *NATSEventPublisher) OnPublished(fn func(eventType events.EventType)) {
	p.onPublished = fn
}

// Publish wraps an event in an envelope and publishes it on its subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := &EventEnvelope{
		EventID:       eventID(event),
		EventType:     string(event.Type()),
		Timestamp:     p.now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.publisher.Publish(ctx, subject, data, envelope.EventID); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.onPublished != nil {
		p.onPublished(event.Type())
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}

// eventID derives the id from the ledger row behind the event, so a re-published event
// carries the same JetStream Msg-Id and is dropped inside the stream's duplicate window.
func eventID(event events.Event) string {
	var key string
	switch e := event.(type) {
	case events.WalletBalanceChangedEvent:
		key = fmt.Sprintf("%s:transaction:%d", e.Type(), e.TransactionID)
	case events.WalletCreatedEvent:
		key = fmt.Sprintf("%s:wallet:%d", e.Type(), e.WalletID)
	case events.CycleCompletedEvent:
		key = fmt.Sprintf("%s:cycle_log:%d", e.Type(), e.CycleLogID)
	default:
		return uuid.New().String()
	}
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

// Handler adapts the publisher to the in-process bus. Export failures are logged and
// never reach the ledger write that produced the event.
func (p *NATSEventPublisher) Handler() events.Handler {
	return func(ctx context.Context, event events.Event) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to export event")
		}
	}
}

// EnsureStream makes sure the stream for every published subject exists
func EnsureStream(client *NATSClient, mapper *EventSubjectMapper) error {
	return client.EnsureStream(StreamName, mapper.GetAllSubjects())
}
