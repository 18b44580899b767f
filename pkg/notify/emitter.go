package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

// Emitter delivers ledger notifications to external observers.
type Emitter interface {
	Emit(ctx context.Context, eventType EventType, payload any) error
}

// LogEmitter writes every notification to the structured log. Dev default.
type LogEmitter struct {
	Logg *logger.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, eventType EventType, payload any) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	if e.Logg != nil {
		ctx = e.Logg.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"event_id":   event.EventID,
			"event_data": json.RawMessage(event.Data),
		})
		e.Logg.Info(ctx, "ledger.event")
	}
	return nil
}

// MemoryEmitter captures notifications for assertions in tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *MemoryEmitter) Emit(ctx context.Context, eventType EventType, payload any) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// OfType returns the captured events matching the given type, in order.
func (e *MemoryEmitter) OfType(eventType EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
