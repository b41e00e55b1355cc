package game

import "time"

// EventType represents a game event type with type safety
type EventType string

const (
	EventTypeStateChanged EventType = "state_changed"
	EventTypeHandComplete EventType = "hand_complete"
	EventTypeSessionEnded EventType = "session_ended"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// GameEvent represents any event published by the engine
type GameEvent interface {
	EventType() EventType
	Timestamp() time.Time
}

// StateChangedEvent is published after every successful mutation and carries
// the sanitized public snapshot.
type StateChangedEvent struct {
	State     PublicState
	timestamp time.Time
}

func (e StateChangedEvent) EventType() EventType { return EventTypeStateChanged }
func (e StateChangedEvent) Timestamp() time.Time { return e.timestamp }

// HandCompleteEvent summarizes a resolved hand for persistence and display.
type HandCompleteEvent struct {
	SessionID   string      `json:"sessionId"`
	SessionName string      `json:"sessionName"`
	HandID      string      `json:"handId"`
	Round       int         `json:"round"`
	WinnerID    string      `json:"winnerId"`
	WinnerName  string      `json:"winnerName"`
	Pot         int         `json:"pot"`
	NetChanges  []NetChange `json:"netChanges"`
	NextRound   int         `json:"nextRound"`
	SessionOver bool        `json:"isSessionOver"`
	Log         []string    `json:"log"`
	timestamp   time.Time
}

func (e HandCompleteEvent) EventType() EventType { return EventTypeHandComplete }
func (e HandCompleteEvent) Timestamp() time.Time { return e.timestamp }

// SessionEndedEvent is published once when the session stops accepting rounds.
type SessionEndedEvent struct {
	SessionID   string    `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	Reason      EndReason `json:"reason"`
	FinalRound  int       `json:"finalRound"`
	timestamp   time.Time
}

func (e SessionEndedEvent) EventType() EventType { return EventTypeSessionEnded }
func (e SessionEndedEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event GameEvent)
}

// SubscriberFunc adapts a function to EventSubscriber.
type SubscriberFunc func(event GameEvent)

// OnEvent calls f(event).
func (f SubscriberFunc) OnEvent(event GameEvent) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event GameEvent)
}

// SimpleEventBus delivers events synchronously, in subscription order, on the
// publishing goroutine.
type SimpleEventBus struct {
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber. SubscriberFunc values are not comparable
// and cannot be unsubscribed.
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	if _, ok := subscriber.(SubscriberFunc); ok {
		return
	}
	for i, sub := range bus.subscribers {
		if _, ok := sub.(SubscriberFunc); ok {
			continue
		}
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event GameEvent) {
	for _, subscriber := range bus.subscribers {
		subscriber.OnEvent(event)
	}
}
