package service

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// EventServiceConfig configures the event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 200
	RingBufferSize int

	// SubscriberBuffer is the channel capacity of each subscriber.
	// Default: 100
	SubscriberBuffer int
}

// DefaultEventServiceConfig returns sensible defaults.
func DefaultEventServiceConfig() EventServiceConfig {
	return EventServiceConfig{
		RingBufferSize:   200,
		SubscriberBuffer: 100,
	}
}

// EventService is the hub that fans change events out to subscribers. Recent
// events are kept in a ring buffer so that a client connecting late can
// catch up. Progress snapshots are delivered but not buffered.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	mu     sync.RWMutex
	events []domain.Event
	head   int // Next write position
	count  int // Number of events in buffer

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) *EventService {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 200
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 100
	}

	return &EventService{
		cfg:         cfg,
		logger:      logger,
		events:      make([]domain.Event, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Event),
	}
}

// Publish encodes payload and delivers it as an event named name.
func (s *EventService) Publish(name domain.EventName, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("encode event payload", "event", name, "error", err)
			return
		}
		raw = data
	}
	s.Emit(domain.Event{Name: name, Payload: raw})
}

// Emit records an event and notifies subscribers.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		event.ID = domain.EventID(uuid.NewString())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Name != domain.EventProgressUpdate {
		s.mu.Lock()
		s.events[s.head] = event
		s.head = (s.head + 1) % s.cfg.RingBufferSize
		if s.count < s.cfg.RingBufferSize {
			s.count++
		}
		s.mu.Unlock()

		s.logger.Debug("event emitted", "event_id", event.ID, "event", event.Name)
	}

	s.notifySubscribers(event)
}

// GetRecent returns the most recent n buffered events, newest first.
func (s *EventService) GetRecent(n int) []domain.Event {
	return s.Query(domain.EventFilter{}, n)
}

// Query returns up to limit buffered events matching filter, newest first.
func (s *EventService) Query(filter domain.EventFilter, limit int) []domain.Event {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Event, 0, min(limit, s.count))
	for i := 0; i < s.count && len(result) < limit; i++ {
		// Read backwards from head-1
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event domain.Event, filter domain.EventFilter) bool {
	if filter.Name != nil && event.Name != *filter.Name {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	return true
}

// Subscribe creates a new subscriber and returns a channel for events.
// The caller must call Unsubscribe when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, s.cfg.SubscriberBuffer)
	s.subscribers[id] = ch

	s.logger.Info("event subscriber added", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
		s.logger.Info("event subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	}
}

// notifySubscribers sends an event to all subscribers without blocking.
func (s *EventService) notifySubscribers(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("event subscriber buffer full, dropping event", "subscriber_id", id, "event", event.Name)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// EventStats describes the state of the event service.
type EventStats struct {
	BufferSize  int `json:"buffer_size"`
	BufferUsed  int `json:"buffer_used"`
	Subscribers int `json:"subscribers"`
}

// Stats returns statistics about the event service.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	bufferUsed := s.count
	s.mu.RUnlock()

	return EventStats{
		BufferSize:  s.cfg.RingBufferSize,
		BufferUsed:  bufferUsed,
		Subscribers: s.SubscriberCount(),
	}
}
