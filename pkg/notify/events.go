// Package notify carries the ledger's observable notifications: a stable
// envelope plus one typed payload per event. Events are the sole
// observability surface, emitted exactly once per triggering occurrence
// (PriceUpdated and OrderReadyForProcessing may legitimately repeat across
// joins; the ledger does not deduplicate them).
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderCreated            EventType = "order.created"
	EventRetailerJoined          EventType = "order.retailer_joined"
	EventPriceUpdated            EventType = "order.price_updated"
	EventOrderReadyForProcessing EventType = "order.ready_for_processing"
	EventOrderProcessed          EventType = "order.processed"
	EventStakeReturned           EventType = "order.stake_returned"
	EventOrderCancelled          EventType = "order.cancelled"
	EventRewardsRecorded         EventType = "rewards.recorded"
	EventRewardClaimed           EventType = "rewards.claimed"
)

// Event is the stable envelope published to observers.
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent wraps a payload in a fresh envelope. The payload must marshal
// cleanly; the ledger only passes the types defined below.
func NewEvent(eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Version:    1,
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// OrderCreatedEvent announces a new manufacturer offering.
type OrderCreatedEvent struct {
	OrderID        uint64    `json:"order_id"`
	ManufacturerID uuid.UUID `json:"manufacturer_id"`
	ProductID      string    `json:"product_id"`
	MinUnits       int64     `json:"min_units"`
	InitialPrice   int64     `json:"initial_price"`
	StakeAmount    int64     `json:"stake_amount"`
	Deadline       time.Time `json:"deadline"`
}

// RetailerJoinedEvent reports a new contribution.
type RetailerJoinedEvent struct {
	OrderID    uint64    `json:"order_id"`
	RetailerID uuid.UUID `json:"retailer_id"`
	Units      int64     `json:"units"`
	AmountPaid int64     `json:"amount_paid"`
}

// PriceUpdatedEvent reports a running price change after a join.
type PriceUpdatedEvent struct {
	OrderID  uint64 `json:"order_id"`
	OldPrice int64  `json:"old_price"`
	NewPrice int64  `json:"new_price"`
}

// OrderReadyForProcessingEvent reports that committed units reached the minimum.
type OrderReadyForProcessingEvent struct {
	OrderID        uint64 `json:"order_id"`
	UnitsCommitted int64  `json:"units_committed"`
	MinUnits       int64  `json:"min_units"`
}

// OrderProcessedEvent surfaces the settlement figures.
type OrderProcessedEvent struct {
	OrderID           uint64 `json:"order_id"`
	FinalPricePerUnit int64  `json:"final_price_per_unit"`
	NetToManufacturer int64  `json:"net_to_manufacturer"`
	PlatformFee       int64  `json:"platform_fee"`
	RefundsTotal      int64  `json:"refunds_total"`
	RewardPool        int64  `json:"reward_pool"`
}

// StakeReturnedEvent reports the manufacturer stake going back.
type StakeReturnedEvent struct {
	OrderID        uint64    `json:"order_id"`
	ManufacturerID uuid.UUID `json:"manufacturer_id"`
	Amount         int64     `json:"amount"`
}

// OrderCancelledEvent reports a terminal cancellation.
type OrderCancelledEvent struct {
	OrderID       uint64    `json:"order_id"`
	CancelledBy   uuid.UUID `json:"cancelled_by"`
	RefundedUnits int64     `json:"refunded_units"`
	RefundedValue int64     `json:"refunded_value"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// RewardsRecordedEvent reports a retailer's reward being recorded at settlement.
type RewardsRecordedEvent struct {
	OrderID    uint64    `json:"order_id"`
	RetailerID uuid.UUID `json:"retailer_id"`
	Amount     int64     `json:"amount"`
}

// RewardClaimedEvent reports a successful individual claim.
type RewardClaimedEvent struct {
	OrderID    uint64    `json:"order_id"`
	RetailerID uuid.UUID `json:"retailer_id"`
	Amount     int64     `json:"amount"`
}
