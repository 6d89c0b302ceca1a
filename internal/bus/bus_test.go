package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishSync(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var received []Event
	b.Subscribe(EventTypeTranscript, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})

	b.PublishSync(Event{
		Type: EventTypeTranscript,
		Data: map[string]any{"text": "hello"},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Data["text"])
}

func TestEventBus_OnlyMatchingTypeDelivered(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	count := 0
	b.Subscribe(EventTypeBargeIn, func(Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	b.PublishSync(Event{Type: EventTypeSpeechDetected})
	b.PublishSync(Event{Type: EventTypeBargeIn})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestEventBus_SubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var types []EventType
	b.SubscribeMultiple([]EventType{
		EventTypeSessionStarted,
		EventTypeSessionStopped,
	}, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})

	b.PublishSync(Event{Type: EventTypeSessionStarted})
	b.PublishSync(Event{Type: EventTypeSessionStopped})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []EventType{EventTypeSessionStarted, EventTypeSessionStopped}, types)
}

func TestEventBus_PublishAsync(t *testing.T) {
	b := NewEventBus()

	done := make(chan struct{})
	b.Subscribe(EventTypeConnected, func(Event) {
		close(done)
	})

	b.Publish(Event{Type: EventTypeConnected})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestEventBus_Clear(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	count := 0
	b.Subscribe(EventTypeConnected, func(Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	b.Clear()
	b.PublishSync(Event{Type: EventTypeConnected})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestEventBus_PublishWithNoSubscribers(t *testing.T) {
	b := NewEventBus()
	assert.NotPanics(t, func() {
		b.PublishSync(Event{Type: EventTypeGenerationError})
	})
}
