package pricing

import "github.com/shopspring/decimal"

// Rejection reasons returned alongside a nil price. The engine logs them at
// debug level; tests assert on them.
const (
	ReasonOK                = "ok"
	ReasonMissingPrices     = "missing_prices"
	ReasonInvalidPrices     = "invalid_prices"
	ReasonCrafted           = "crafted"
	ReasonAskBelowMin       = "ask_below_min"
	ReasonAskAboveMax       = "ask_above_max"
	ReasonFloorBelowMin     = "floor_below_min"
	ReasonFloorAboveMax     = "floor_above_max"
	ReasonAskFarFromFloor   = "ask_far_from_floor"
	ReasonMaxAllowedLteZero = "max_allowed_lte_zero"
	ReasonBelowMinOffer     = "below_min_offer"
	ReasonCandidateLteZero  = "candidate_lte_zero"
	ReasonMissingFloor      = "missing_floor"
	ReasonMissingFloorBuy   = "missing_floor_and_buy"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

func applyDiscountBounds(price, floor decimal.Decimal, minDiscountPct, maxDiscountPct *decimal.Decimal) decimal.Decimal {
	out := price
	if minDiscountPct != nil {
		cap := floor.Mul(one.Sub(minDiscountPct.Div(hundred)))
		if out.GreaterThan(cap) {
			out = cap
		}
	}
	if maxDiscountPct != nil {
		min := floor.Mul(one.Sub(maxDiscountPct.Div(hundred)))
		if out.LessThan(min) {
			out = min
		}
	}
	return out
}

// EvaluateOfferPrice computes the bid for a single listing, or nil with a
// rejection reason. The result, when non-nil, is quantized and satisfies
// min_offer <= p <= ask - outbid_step and p <= max_offer when set.
func EvaluateOfferPrice(listing MarketListing, rule OfferOrderRule) (*decimal.Decimal, string) {
	ask := listing.AskPrice
	floor := listing.FloorPrice
	if floor == nil {
		floor = ask
	}
	if ask == nil || floor == nil {
		return nil, ReasonMissingPrices
	}
	if !ask.IsPositive() || !floor.IsPositive() {
		return nil, ReasonInvalidPrices
	}
	if rule.SkipCrafted && listing.IsCrafted {
		return nil, ReasonCrafted
	}
	if rule.MinAsk != nil && ask.LessThan(*rule.MinAsk) {
		return nil, ReasonAskBelowMin
	}
	if rule.MaxAsk != nil && ask.GreaterThan(*rule.MaxAsk) {
		return nil, ReasonAskAboveMax
	}
	if rule.MinFloor != nil && floor.LessThan(*rule.MinFloor) {
		return nil, ReasonFloorBelowMin
	}
	if rule.MaxFloor != nil && floor.GreaterThan(*rule.MaxFloor) {
		return nil, ReasonFloorAboveMax
	}
	if ask.GreaterThan(floor.Mul(rule.MaxListingToFloor)) {
		return nil, ReasonAskFarFromFloor
	}

	candidate := Quantize2(floor.Mul(rule.OfferFactor))
	candidate = Quantize2(applyDiscountBounds(candidate, *floor, rule.MinDiscountPct, rule.MaxDiscountPct))

	maxAllowed := Quantize2(ask.Sub(rule.OutbidStep))
	if !maxAllowed.IsPositive() {
		return nil, ReasonMaxAllowedLteZero
	}
	if candidate.GreaterThan(maxAllowed) {
		candidate = maxAllowed
	}
	if rule.MaxOffer != nil && candidate.GreaterThan(*rule.MaxOffer) {
		candidate = Quantize2(*rule.MaxOffer)
	}
	if candidate.LessThan(rule.MinOffer) {
		return nil, ReasonBelowMinOffer
	}
	if !candidate.IsPositive() {
		return nil, ReasonCandidateLteZero
	}
	return &candidate, ReasonOK
}

// EvaluateOrderPrice computes the collection-wide bid for a derived floor.
// There is no ask and no crafted signal for orders; floor gates still apply.
func EvaluateOrderPrice(floor *decimal.Decimal, rule OfferOrderRule) (*decimal.Decimal, string) {
	if floor == nil || !floor.IsPositive() {
		return nil, ReasonMissingFloor
	}
	if rule.MinFloor != nil && floor.LessThan(*rule.MinFloor) {
		return nil, ReasonFloorBelowMin
	}
	if rule.MaxFloor != nil && floor.GreaterThan(*rule.MaxFloor) {
		return nil, ReasonFloorAboveMax
	}

	candidate := Quantize2(floor.Mul(rule.OfferFactor))
	candidate = Quantize2(applyDiscountBounds(candidate, *floor, rule.MinDiscountPct, rule.MaxDiscountPct))
	if rule.MaxOffer != nil && candidate.GreaterThan(*rule.MaxOffer) {
		candidate = Quantize2(*rule.MaxOffer)
	}
	if candidate.LessThan(rule.MinOffer) {
		return nil, ReasonBelowMinOffer
	}
	if !candidate.IsPositive() {
		return nil, ReasonCandidateLteZero
	}
	return &candidate, ReasonOK
}

// PassLiquidity applies the demand gate: enough recent sales, enough
// sell-through against the active page, and a floor not too far above the
// last sale.
func PassLiquidity(listing MarketListing, liq LiquiditySettings, recentSales, activeListings int, lastSale *decimal.Decimal) bool {
	if !liq.Enabled {
		return true
	}
	if recentSales < liq.MinRecentSales {
		return false
	}
	if activeListings > 0 {
		sellThrough := decimal.NewFromInt(int64(recentSales)).Div(decimal.NewFromInt(int64(activeListings)))
		if sellThrough.LessThan(liq.MinSellThrough) {
			return false
		}
	}
	if liq.MaxFloorToLastSale != nil && lastSale != nil &&
		listing.FloorPrice != nil && lastSale.IsPositive() {
		ratio := listing.FloorPrice.Div(*lastSale)
		if ratio.GreaterThan(*liq.MaxFloorToLastSale) {
			return false
		}
	}
	return true
}

// ComputeBumpPrice returns the re-placed price after an outbid: competitor
// plus step, or nil when there is no competitor above us or the bump would
// exceed the cap.
func ComputeBumpPrice(own decimal.Decimal, competitor *decimal.Decimal, step decimal.Decimal, cap *decimal.Decimal) *decimal.Decimal {
	if competitor == nil {
		return nil
	}
	if competitor.LessThan(own) {
		return nil
	}
	bumped := Quantize2(competitor.Add(step))
	if !bumped.GreaterThan(own) {
		return nil
	}
	if cap != nil && bumped.GreaterThan(*cap) {
		return nil
	}
	return &bumped
}

// ComputeSellPrice derives the listing price for an owned gift: floor plus
// markup when a floor is known, otherwise the buy price, clamped to the
// rule's min/max.
func ComputeSellPrice(floor, buy *decimal.Decimal, rule SellRule) (*decimal.Decimal, string) {
	if floor == nil && buy == nil {
		return nil, ReasonMissingFloorBuy
	}

	var candidate decimal.Decimal
	if floor != nil && floor.IsPositive() {
		candidate = floor.Mul(one.Add(rule.MarkupPct.Div(hundred)))
	} else if buy != nil {
		candidate = *buy
	}
	candidate = Quantize2(candidate)

	if rule.MinSellPrice != nil && candidate.LessThan(*rule.MinSellPrice) {
		candidate = Quantize2(*rule.MinSellPrice)
	}
	if rule.MaxSellPrice != nil && candidate.GreaterThan(*rule.MaxSellPrice) {
		candidate = Quantize2(*rule.MaxSellPrice)
	}
	if !candidate.IsPositive() {
		return nil, ReasonCandidateLteZero
	}
	return &candidate, ReasonOK
}

// ComputeRepriceBelowFloor returns the undercut target when a competitor
// floor dropped below our current listing price, or nil when no reprice is
// warranted.
func ComputeRepriceBelowFloor(competitorFloor *decimal.Decimal, current, step decimal.Decimal, min *decimal.Decimal) *decimal.Decimal {
	if competitorFloor == nil {
		return nil
	}
	target := Quantize2(competitorFloor.Sub(step))
	if !target.IsPositive() {
		return nil
	}
	if !target.LessThan(current) {
		return nil
	}
	if min != nil && target.LessThan(*min) {
		return nil
	}
	return &target
}
