package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronousHandlersSeeOrderedEvents(t *testing.T) {
	b := NewBroker()
	defer func() { _ = b.Stop() }()

	var first, second []EventType
	b.RegisterHandler(func(ev *Event) { first = append(first, ev.Type) })
	b.RegisterHandler(func(ev *Event) { second = append(second, ev.Type) })

	sequence := []EventType{EventJobSubmitted, EventActionStarted, EventActionCompleted, EventJobCompleted}
	for _, typ := range sequence {
		b.Publish(&Event{Type: typ, Job: "j"})
	}

	assert.Equal(t, sequence, first)
	assert.Equal(t, sequence, second)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	b := NewBroker()
	defer func() { _ = b.Stop() }()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventJobCompleted, Job: "j", VirtualTime: 42})

	select {
	case ev := <-sub:
		assert.Equal(t, EventJobCompleted, ev.Type)
		assert.Equal(t, 42.0, ev.VirtualTime)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the event")
	}

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	defer func() { _ = b.Stop() }()

	sub := b.Subscribe()
	_ = sub
	done := make(chan struct{})
	go func() {
		// More events than any buffer in the path.
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventActionStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestStopTerminatesFanout(t *testing.T) {
	b := NewBroker()
	require.NoError(t, b.Stop())
	// Publishing after stop still reaches synchronous handlers.
	var seen int
	b.RegisterHandler(func(ev *Event) { seen++ })
	b.Publish(&Event{Type: EventJobFailed})
	assert.Equal(t, 1, seen)
}
