package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
)

func tenPercentAtHundred() []pricing.Tier {
	return []pricing.Tier{
		{UnitsThreshold: 50, DiscountBps: 500},
		{UnitsThreshold: 100, DiscountBps: 1000},
	}
}

func TestComputeSettlementExample(t *testing.T) {
	// 100 units at initial price 10, 10% discount unlocked, 1% platform fee.
	early := uuid.New()
	late := uuid.New()
	order := OrderSnapshot{
		InitialPrice:        10,
		TotalUnitsCommitted: 100,
		Tiers:               tenPercentAtHundred(),
	}
	contributions := []ContributionSnapshot{
		{RetailerID: early, UnitsOrdered: 10, AmountPaid: 100}, // joined at 10
		{RetailerID: late, UnitsOrdered: 90, AmountPaid: 810},  // joined at 9
	}

	result := Compute(order, contributions, 100)

	assert.Equal(t, int64(9), result.FinalPricePerUnit)
	assert.Equal(t, int64(9), result.PlatformFeeCollected)
	assert.Equal(t, int64(891), result.NetPaymentToManufacturer)
	assert.Equal(t, int64(900), result.TotalValueForRewardCalc)

	require.Len(t, result.Refunds, 1)
	assert.Equal(t, early, result.Refunds[0].RetailerID)
	assert.Equal(t, int64(10), result.Refunds[0].Amount)

	assert.Equal(t, int64(4), RewardPool(result.TotalValueForRewardCalc, 50))
}

func TestComputeConservation(t *testing.T) {
	// Everything paid in equals refunds plus manufacturer payment plus fee,
	// with no rounding loss inside the settlement itself.
	order := OrderSnapshot{
		InitialPrice:        37,
		TotalUnitsCommitted: 0,
		Tiers: []pricing.Tier{
			{UnitsThreshold: 7, DiscountBps: 137},
			{UnitsThreshold: 23, DiscountBps: 641},
			{UnitsThreshold: 61, DiscountBps: 1999},
		},
	}

	// Simulate joins at the running price, accumulating contributions.
	var contributions []ContributionSnapshot
	var collected int64
	for _, units := range []int64{3, 9, 14, 20, 31} {
		price := pricing.CurrentPrice(order.Tiers, order.InitialPrice, order.TotalUnitsCommitted)
		paid := units * price
		contributions = append(contributions, ContributionSnapshot{
			RetailerID:   uuid.New(),
			UnitsOrdered: units,
			AmountPaid:   paid,
		})
		order.TotalUnitsCommitted += units
		collected += paid
	}

	for _, feeBps := range []int64{0, 1, 100, 955, 10000} {
		result := Compute(order, contributions, feeBps)
		total := result.RefundsTotal() + result.NetPaymentToManufacturer + result.PlatformFeeCollected
		if total != collected {
			t.Fatalf("feeBps=%d: refunds+net+fee = %d, collected = %d", feeBps, total, collected)
		}
		if result.NetPaymentToManufacturer+result.PlatformFeeCollected != order.TotalUnitsCommitted*result.FinalPricePerUnit {
			t.Fatalf("feeBps=%d: net+fee should equal units*finalPrice exactly", feeBps)
		}
	}
}

func TestComputeEmptyContributions(t *testing.T) {
	order := OrderSnapshot{InitialPrice: 10, TotalUnitsCommitted: 0, Tiers: tenPercentAtHundred()}

	result := Compute(order, nil, 100)

	assert.Zero(t, result.FinalPricePerUnit)
	assert.Zero(t, result.NetPaymentToManufacturer)
	assert.Zero(t, result.PlatformFeeCollected)
	assert.Zero(t, result.TotalValueForRewardCalc)
	assert.Empty(t, result.Refunds)
}

func TestComputeNoRefundWhenPaidAtOrBelowFinal(t *testing.T) {
	// A retailer who locked in below the final price owes nothing further
	// and gets no refund entry.
	order := OrderSnapshot{
		InitialPrice:        10,
		TotalUnitsCommitted: 100,
		Tiers:               tenPercentAtHundred(),
	}
	contributions := []ContributionSnapshot{
		{RetailerID: uuid.New(), UnitsOrdered: 50, AmountPaid: 450}, // exactly final
		{RetailerID: uuid.New(), UnitsOrdered: 50, AmountPaid: 400}, // below final
	}

	result := Compute(order, contributions, 100)
	assert.Empty(t, result.Refunds)
}

func TestComputeRefundOrderFollowsContributionOrder(t *testing.T) {
	order := OrderSnapshot{
		InitialPrice:        10,
		TotalUnitsCommitted: 100,
		Tiers:               tenPercentAtHundred(),
	}
	first := uuid.New()
	second := uuid.New()
	contributions := []ContributionSnapshot{
		{RetailerID: first, UnitsOrdered: 20, AmountPaid: 200},
		{RetailerID: uuid.New(), UnitsOrdered: 40, AmountPaid: 360}, // no overpayment
		{RetailerID: second, UnitsOrdered: 40, AmountPaid: 400},
	}

	result := Compute(order, contributions, 0)

	require.Len(t, result.Refunds, 2)
	assert.Equal(t, first, result.Refunds[0].RetailerID)
	assert.Equal(t, int64(20), result.Refunds[0].Amount)
	assert.Equal(t, second, result.Refunds[1].RetailerID)
	assert.Equal(t, int64(40), result.Refunds[1].Amount)
}
