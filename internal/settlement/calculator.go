// Package settlement computes the terminal money split for a completed
// group-buy order. Pure functions; the ledger owns all state and effects.
package settlement

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
)

// OrderSnapshot is the slice of order state the calculator needs.
type OrderSnapshot struct {
	InitialPrice        int64
	TotalUnitsCommitted int64
	Tiers               []pricing.Tier
}

// ContributionSnapshot is one retailer's commitment as recorded at join time.
type ContributionSnapshot struct {
	RetailerID   uuid.UUID
	UnitsOrdered int64
	AmountPaid   int64
}

// Refund is one retailer's overpayment relative to the final price.
type Refund struct {
	RetailerID uuid.UUID
	Amount     int64
}

// FulfillmentResult is the settlement outcome. Transient; never persisted.
type FulfillmentResult struct {
	FinalPricePerUnit       int64
	NetPaymentToManufacturer int64
	PlatformFeeCollected    int64
	Refunds                 []Refund
	TotalValueForRewardCalc int64
}

// RefundsTotal sums the refund entries.
func (r FulfillmentResult) RefundsTotal() int64 {
	var total int64
	for _, refund := range r.Refunds {
		total += refund.Amount
	}
	return total
}

// Compute resolves the final price against the committed units and splits the
// gross value into manufacturer payment, platform fee and per-retailer
// refunds. Division truncates throughout; truncation residue stays with the
// payer side and is never collected back. Refund entries follow contribution
// order, and a retailer who locked in at or below the final price gets no
// entry — the ledger never collects additional payment after join.
func Compute(order OrderSnapshot, contributions []ContributionSnapshot, platformFeeBps int64) FulfillmentResult {
	if len(contributions) == 0 {
		return FulfillmentResult{}
	}

	finalPrice := pricing.CurrentPrice(order.Tiers, order.InitialPrice, order.TotalUnitsCommitted)
	grossValue := order.TotalUnitsCommitted * finalPrice
	platformFee := grossValue * platformFeeBps / pricing.BasisPointDenominator

	result := FulfillmentResult{
		FinalPricePerUnit:        finalPrice,
		NetPaymentToManufacturer: grossValue - platformFee,
		PlatformFeeCollected:     platformFee,
		TotalValueForRewardCalc:  grossValue,
	}

	for _, c := range contributions {
		ideal := c.UnitsOrdered * finalPrice
		if c.AmountPaid > ideal {
			result.Refunds = append(result.Refunds, Refund{
				RetailerID: c.RetailerID,
				Amount:     c.AmountPaid - ideal,
			})
		}
	}
	return result
}

// RewardPool derives the reward pool from the gross settlement value.
func RewardPool(totalValueForRewardCalc, rewardPoolBps int64) int64 {
	return totalValueForRewardCalc * rewardPoolBps / pricing.BasisPointDenominator
}
