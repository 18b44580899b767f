package groupbuy

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
)

// Order is one manufacturer offering. Owned exclusively by the ledger;
// callers only ever see copies.
type Order struct {
	ID                  uint64         `json:"id"`
	ManufacturerID      uuid.UUID      `json:"manufacturer_id"`
	ProductID           string         `json:"product_id"`
	MinUnits            int64          `json:"min_units"`
	InitialPrice        int64          `json:"initial_price"`
	CurrentPrice        int64          `json:"current_price"`
	TotalUnitsCommitted int64          `json:"total_units_committed"`
	TotalValueCollected int64          `json:"total_value_collected"`
	StakeAmount         int64          `json:"stake_amount"`
	Tiers               []pricing.Tier `json:"tiers"`
	CreatedAt           time.Time      `json:"created_at"`
	Deadline            time.Time      `json:"deadline"`
	Active              bool           `json:"active"`
	Fulfilled           bool           `json:"fulfilled"`
}

// Contribution is one retailer's commitment to an order. One per
// (order, retailer); appended at join, never mutated afterward.
type Contribution struct {
	RetailerID   uuid.UUID `json:"retailer_id"`
	UnitsOrdered int64     `json:"units_ordered"`
	AmountPaid   int64     `json:"amount_paid"`
}

type orderState struct {
	order         Order
	contributions []Contribution
	contributors  map[uuid.UUID]struct{}
}

func (s *orderState) hasContribution(retailerID uuid.UUID) bool {
	_, ok := s.contributors[retailerID]
	return ok
}

// snapshot copies the fields an operation may need to restore when a
// downstream transfer fails mid-flight.
func (s *orderState) snapshot() Order {
	return s.order
}

func (s *orderState) restore(o Order) {
	s.order = o
}
