package events

import (
	"context"
	"sync"
	"time"

	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeWalletBalanceChanged EventType = "wallet_balance_changed"
	EventTypeWalletCreated        EventType = "wallet_created"
	EventTypeCycleCompleted       EventType = "cycle_completed"
)

// AllEventTypes lists every event type the ledger emits
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeWalletBalanceChanged,
		EventTypeWalletCreated,
		EventTypeCycleCompleted,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// WalletBalanceChangedEvent is emitted once per committed journal entry.
// Snapshot is the wallet's balance view as committed by that entry.
type WalletBalanceChangedEvent struct {
	UserID        int64              `json:"user_id"`
	WalletID      int64              `json:"wallet_id"`
	TransactionID int64              `json:"transaction_id"`
	OldBalance    int64              `json:"old_balance"`
	NewBalance    int64              `json:"new_balance"`
	Amount        int64              `json:"amount"`
	Direction     models.Direction   `json:"direction"`
	Reason        models.Reason      `json:"reason"`
	Snapshot      models.BalanceView `json:"snapshot"`
}

func (e WalletBalanceChangedEvent) Type() EventType {
	return EventTypeWalletBalanceChanged
}

// WalletCreatedEvent is emitted when a wallet is created lazily
type WalletCreatedEvent struct {
	UserID   int64 `json:"user_id"`
	WalletID int64 `json:"wallet_id"`
}

func (e WalletCreatedEvent) Type() EventType {
	return EventTypeWalletCreated
}

// CycleCompletedEvent is emitted after a compost or redistribution run has written its cycle log
type CycleCompletedEvent struct {
	CycleLogID       int64            `json:"cycle_log_id"`
	Kind             models.CycleKind `json:"kind"`
	WalletsAffected  int              `json:"wallets_affected"`
	TotalAmountMoved int64            `json:"total_amount_moved"`
	DryRun           bool             `json:"dry_run"`
	Completed        bool             `json:"completed"`
	Duration         time.Duration    `json:"duration"`
}

func (e CycleCompletedEvent) Type() EventType {
	return EventTypeCycleCompleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching. Sync handlers run inline in Emit,
// before Emit returns; the others run on their own goroutine.
type Bus struct {
	mu           sync.RWMutex
	handlers     map[EventType][]Handler
	syncHandlers map[EventType][]Handler
	inflight     sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers:     make(map[EventType][]Handler),
		syncHandlers: make(map[EventType][]Handler),
	}
}

// SubscribeSync adds a handler that runs inline when the event is emitted. Use it for
// state that must be consistent by the time the emitting write returns to its caller.
func (b *Bus) SubscribeSync(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.syncHandlers[eventType] = append(b.syncHandlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.syncHandlers[eventType]),
	}).Debug("Subscribed sync handler to event type")
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type the ledger emits
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit runs the sync handlers for the event, then starts the async ones
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	syncHandlers := append([]Handler(nil), b.syncHandlers[event.Type()]...)
	handlers := append([]Handler(nil), b.handlers[event.Type()]...)
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":        event.Type(),
		"syncHandlerCount": len(syncHandlers),
		"handlerCount":     len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range syncHandlers {
		runHandler(ctx, event, handler, i)
	}

	b.inflight.Add(len(handlers))
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer b.inflight.Done()
			runHandler(ctx, event, h, handlerIndex)
		}(handler, i)
	}
}

// Wait blocks until every async handler started so far has returned, or ctx is done
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runHandler(ctx context.Context, event Event, h Handler, handlerIndex int) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"eventType":    event.Type(),
				"handlerIndex": handlerIndex,
				"panic":        r,
			}).Error("Event handler panicked")
		}
	}()
	h(ctx, event)
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus after commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the number of events waiting for commit
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Handlers outlive the request that committed the write
	eventCtx := context.WithoutCancel(ctx)

	if b.real != nil {
		for _, ev := range b.pending {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
	return nil
}

// Discard is called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
