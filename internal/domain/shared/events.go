// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one describes a transition of the learner's ledger
// or of a curator relationship.
const (
	// Progress events
	EventXPAwarded         EventType = "progress.xp_awarded"
	EventLevelUp           EventType = "progress.level_up"
	EventLessonCompleted   EventType = "progress.lesson_completed"
	EventStreakExtended    EventType = "progress.streak_extended"
	EventStreakProtected   EventType = "progress.streak_protected"
	EventStreakReset       EventType = "progress.streak_reset"
	EventAchievementUnlock EventType = "progress.achievement_unlocked"
	EventQuestCompleted    EventType = "progress.quest_completed"
	EventQuestsReset       EventType = "progress.quests_reset"
	EventBalanceRecorded   EventType = "progress.balance_recorded"

	// Economy events
	EventCurrencyGranted EventType = "economy.currency_granted"
	EventCurrencySpent   EventType = "economy.currency_spent"
	EventItemPurchased   EventType = "economy.item_purchased"
	EventItemUsed        EventType = "economy.item_used"

	// Curator events
	EventStudentLinked EventType = "curator.student_linked"

	// System events
	EventProgressSynced EventType = "system.progress_synced"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return NewBaseEventAt(eventType, aggregateID, time.Now())
}

// NewBaseEventAt creates a new base event with an explicit timestamp.
func NewBaseEventAt(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// PublishAll publishes events in order and returns the first error.
// A nil publisher drops the events.
func PublishAll(p EventPublisher, events []Event) error {
	if p == nil {
		return nil
	}
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			return err
		}
	}
	return nil
}
