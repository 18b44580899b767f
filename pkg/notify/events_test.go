package notify

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewEventEnvelope(t *testing.T) {
	event, err := NewEvent(EventPriceUpdated, PriceUpdatedEvent{OrderID: 7, OldPrice: 10, NewPrice: 9})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if event.Version != 1 {
		t.Fatalf("version = %d, want 1", event.Version)
	}
	if event.EventID == "" {
		t.Fatal("event id should be set")
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("occurred-at should be set")
	}

	var payload PriceUpdatedEvent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != 7 || payload.NewPrice != 9 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestMemoryEmitterCapturesInOrder(t *testing.T) {
	emitter := &MemoryEmitter{}
	ctx := context.Background()

	if err := emitter.Emit(ctx, EventOrderCreated, OrderCreatedEvent{OrderID: 1}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := emitter.Emit(ctx, EventPriceUpdated, PriceUpdatedEvent{OrderID: 1}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := emitter.Emit(ctx, EventPriceUpdated, PriceUpdatedEvent{OrderID: 1}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if got := len(emitter.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	if got := len(emitter.OfType(EventPriceUpdated)); got != 2 {
		t.Fatalf("expected 2 price updates, got %d", got)
	}
}
