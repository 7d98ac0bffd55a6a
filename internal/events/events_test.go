package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	first, stopFirst := bus.Subscribe(4)
	defer stopFirst()
	second, stopSecond := bus.Subscribe(4)
	defer stopSecond()

	bus.Publish(&RunFailedData{RunID: "r1", Stage: "search", Error: "boom"})

	for _, ch := range []<-chan Event{first, second} {
		event := <-ch
		assert.Equal(t, RunFailed, event.Type)
		data, ok := event.Data.(*RunFailedData)
		require.True(t, ok)
		assert.Equal(t, "r1", data.RunID)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestBus_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()

	ch, stop := bus.Subscribe(1)
	defer stop()

	// Second publish overflows the buffer and must be dropped, not block
	bus.Publish(&IterationCompletedData{Iteration: 1})
	bus.Publish(&IterationCompletedData{Iteration: 2})

	event := <-ch
	data := event.Data.(*IterationCompletedData)
	assert.Equal(t, 1, data.Iteration)
	assert.Empty(t, ch)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, stop := bus.Subscribe(1)
	stop()

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is safe, and publishing after has no receivers
	stop()
	bus.Publish(&RunCompletedData{RunID: "r2"})
}
