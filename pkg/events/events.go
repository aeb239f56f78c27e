package events

import (
	"sync"

	"gopkg.in/tomb.v2"
)

// EventType represents the type of simulation event
type EventType string

const (
	EventJobSubmitted      EventType = "job.submitted"
	EventJobCompleted      EventType = "job.completed"
	EventJobFailed         EventType = "job.failed"
	EventJobKilled         EventType = "job.killed"
	EventActionStarted     EventType = "action.started"
	EventActionCompleted   EventType = "action.completed"
	EventActionFailed      EventType = "action.failed"
	EventActionKilled      EventType = "action.killed"
	EventServiceStarted    EventType = "service.started"
	EventServiceStopped    EventType = "service.stopped"
	EventHostTurnedOff     EventType = "host.off"
	EventHostTurnedOn      EventType = "host.on"
	EventFileCopyCompleted EventType = "filecopy.completed"
)

// Event is one simulation occurrence, stamped with virtual time.
type Event struct {
	Type        EventType
	VirtualTime float64
	Job         string
	Action      string
	Service     string
	Host        string
	Message     string
	Cause       string
}

// Handler observes events synchronously, in registration order. Handlers
// run on the publisher's goroutine and see every event in the exact order
// it was published, which keeps observers deterministic.
type Handler func(*Event)

// Subscriber is a channel that receives events asynchronously.
type Subscriber chan *Event

// Broker distributes simulation events: synchronously to handlers (the
// trace recorder), asynchronously to channel subscribers (external
// observers with no determinism claim).
type Broker struct {
	handlers []Handler

	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	t           tomb.Tomb
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	b := &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
	}
	b.t.Go(b.run)
	return b
}

// Stop terminates the asynchronous distribution loop and waits for it.
func (b *Broker) Stop() error {
	b.t.Kill(nil)
	return b.t.Wait()
}

// RegisterHandler adds a synchronous handler. Handlers must be registered
// before the simulation launches; registration order is delivery order.
func (b *Broker) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish delivers an event: handlers first, synchronously and in order,
// then the asynchronous channel fan-out.
func (b *Broker) Publish(event *Event) {
	for _, h := range b.handlers {
		h(event)
	}

	select {
	case b.eventCh <- event:
	case <-b.t.Dying():
	}
}

func (b *Broker) run() error {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.t.Dying():
			return nil
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
