package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/persona/backend/internal/domain/shared"
)

// Upcaster rewrites a stored payload from one schema version to the next.
// Stored events are never modified; upcasting happens on read.
type Upcaster func(payload []byte) ([]byte, error)

type registration struct {
	typ           reflect.Type
	schemaVersion int
	upcasters     map[int]Upcaster // from version -> upcaster to version+1
}

// EventSerializer handles JSON serialization/deserialization of domain
// events. Every type stored in the event store must be registered.
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]*registration
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{registry: make(map[string]*registration)}
}

// Register registers an event type at schema version 1
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = &registration{typ: t, schemaVersion: 1, upcasters: map[int]Upcaster{}}
}

// RegisterUpcaster makes payloads of eventType stored at version from
// readable as version from+1. The registered schema version becomes the
// highest version reachable.
func (s *EventSerializer) RegisterUpcaster(eventType string, from int, up Upcaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registry[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	if from < 1 {
		return fmt.Errorf("upcaster source version must be at least 1, got %d", from)
	}
	reg.upcasters[from] = up
	for {
		if _, ok := reg.upcasters[reg.schemaVersion]; !ok {
			break
		}
		reg.schemaVersion++
	}
	return nil
}

// SchemaVersion returns the current schema version of eventType
func (s *EventSerializer) SchemaVersion(eventType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reg, ok := s.registry[eventType]; ok {
		return reg.schemaVersion
	}
	return 0
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into the registered type for eventType,
// upcasting older payloads first.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	reg, ok := s.registry[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	payload := data
	for v := extractSchemaVersion(data); v < reg.schemaVersion; v++ {
		up, ok := reg.upcasters[v]
		if !ok {
			return nil, fmt.Errorf("no upcaster for %s from version %d", eventType, v)
		}
		next, err := up(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to upcast %s from version %d: %w", eventType, v, err)
		}
		payload = next
	}

	eventPtr := reflect.New(reg.typ).Interface()
	if err := json.Unmarshal(payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// extractSchemaVersion reads schema_version from a payload, defaulting to 1
func extractSchemaVersion(data []byte) int {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.SchemaVersion < 1 {
		return 1
	}
	return probe.SchemaVersion
}
