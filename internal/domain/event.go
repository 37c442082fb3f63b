package domain

import (
	"encoding/json"
	"time"
)

// EventID is a unique identifier for an event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventName identifies which snapshot or notice an event carries.
type EventName string

const (
	EventScheduleUpdate     EventName = "scheduleUpdate"
	EventFinishedUpdate     EventName = "finishedUpdate"
	EventIgnoreListUpdate   EventName = "ignoreListUpdate"
	EventSettingsUpdate     EventName = "settingsUpdate"
	EventCatalogUpdate      EventName = "catalogUpdate"
	EventProgressUpdate     EventName = "downloadProgressUpdate"
	EventBanner             EventName = "bannerNotification"
	EventNextCatalogRefresh EventName = "nextCatalogRefresh"
)

// EventSeverity represents the severity level of a banner event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// Event is one change notification delivered to presentation subscribers.
type Event struct {
	ID        EventID         `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Name      EventName       `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Banner is the payload of a bannerNotification event.
type Banner struct {
	Severity EventSeverity `json:"severity"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
}

// ListPayload is the payload of list change events. A failed deletion is
// carried in Error next to the refreshed snapshot.
type ListPayload[T any] struct {
	Items []T    `json:"items"`
	Error string `json:"error,omitempty"`
}

// EventFilter specifies criteria for querying recent events.
type EventFilter struct {
	Name      *EventName `json:"name,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
}

// Publisher is implemented by the event hub.
type Publisher interface {
	// Publish delivers payload, encoded as JSON, to all subscribers under name.
	Publish(name EventName, payload any)
}
