package notification

import (
	"sync"
	"time"

	"github.com/privata-io/consent-service/pkg/logger"
)

// Event is a single best-effort delivery to a recipient.
type Event struct {
	Recipient string
	Type      string
	Payload   map[string]interface{}
	At        time.Time
}

// Sink receives events for delivery to subscribers. Publish is fire and
// forget: failures are the sink's problem, never the caller's.
type Sink interface {
	Publish(recipient, eventType string, payload map[string]interface{}) error
}

// MemorySink collects published events; used in wiring without a real
// transport and in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(recipient, eventType string, payload map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		Recipient: recipient,
		Type:      eventType,
		Payload:   payload,
		At:        time.Now(),
	})
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType filters published events on their type.
func (s *MemorySink) ByType(eventType string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// LogSink writes every event to the service log.
type LogSink struct{}

func (LogSink) Publish(recipient, eventType string, payload map[string]interface{}) error {
	logger.Logger().WithField("recipient", recipient).WithField("event", eventType).Info("notification published")
	return nil
}
