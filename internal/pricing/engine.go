// Package pricing resolves volume discounts for group-buy orders. Pure
// functions only; tier well-formedness (bps within [0,10000]) is validated
// once at order creation and not re-checked here.
package pricing

// BasisPointDenominator is the integer base for discount/fee percentages.
const BasisPointDenominator = 10000

// Tier pairs a unit threshold with the discount that unlocks at it.
type Tier struct {
	UnitsThreshold int64 `json:"units_threshold"`
	DiscountBps    int64 `json:"discount_bps"`
}

// ResolveDiscount returns the maximum discount among tiers whose threshold
// the committed units meet. Tier order is irrelevant; ties resolve to the
// larger discount. Returns 0 when no tier qualifies.
func ResolveDiscount(tiers []Tier, unitsCommitted int64) int64 {
	var best int64
	for _, tier := range tiers {
		if unitsCommitted >= tier.UnitsThreshold && tier.DiscountBps > best {
			best = tier.DiscountBps
		}
	}
	return best
}

// ApplyDiscount returns price reduced by discountBps, truncating toward zero.
func ApplyDiscount(price, discountBps int64) int64 {
	return price - price*discountBps/BasisPointDenominator
}

// CurrentPrice resolves the discount for the committed units and applies it
// to the initial price.
func CurrentPrice(tiers []Tier, initialPrice, unitsCommitted int64) int64 {
	return ApplyDiscount(initialPrice, ResolveDiscount(tiers, unitsCommitted))
}
