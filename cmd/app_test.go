package cmd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"grainflow/events"

	"github.com/stretchr/testify/assert"
)

func TestWaitForEvents(t *testing.T) {
	t.Run("waits for slow handlers", func(t *testing.T) {
		bus := events.NewBus()
		var exported atomic.Bool
		bus.Subscribe(events.EventTypeWalletBalanceChanged, func(ctx context.Context, event events.Event) {
			time.Sleep(50 * time.Millisecond)
			exported.Store(true)
		})

		bus.Emit(context.Background(), events.WalletBalanceChangedEvent{UserID: 1, TransactionID: 1})
		waitForEvents(context.Background(), bus, 2*time.Second)

		assert.True(t, exported.Load())
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		bus := events.NewBus()
		release := make(chan struct{})
		defer close(release)
		bus.Subscribe(events.EventTypeCycleCompleted, func(ctx context.Context, event events.Event) {
			<-release
		})

		bus.Emit(context.Background(), events.CycleCompletedEvent{CycleLogID: 1})

		start := time.Now()
		waitForEvents(context.Background(), bus, 50*time.Millisecond)
		assert.Less(t, time.Since(start), time.Second)
	})
}
