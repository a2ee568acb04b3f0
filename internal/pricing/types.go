package pricing

import "github.com/shopspring/decimal"

// RuleMode distinguishes per-listing offers from collection-wide orders.
type RuleMode string

const (
	ModeOffer RuleMode = "offer"
	ModeOrder RuleMode = "order"
)

// OfferOrderRule drives the buy side. In mode "offer" it is evaluated against
// individual listings; in mode "order" against the selector's page floor.
type OfferOrderRule struct {
	Name              string
	Enabled           bool
	Mode              RuleMode
	Selector          Selector
	OfferFactor       decimal.Decimal  // fraction of floor to bid, default 0.85
	MinOffer          decimal.Decimal  // default 0.10
	MaxOffer          *decimal.Decimal
	MinAsk            *decimal.Decimal
	MaxAsk            *decimal.Decimal
	MinFloor          *decimal.Decimal
	MaxFloor          *decimal.Decimal
	MaxListingToFloor decimal.Decimal // reject asks further than this from floor, default 1.25
	MinDiscountPct    *decimal.Decimal
	MaxDiscountPct    *decimal.Decimal
	OutbidStep        decimal.Decimal
	BumpIfOutbid      bool
	SkipCrafted       bool
	ExpirationDays    int // clamped to [1,30]
	ExpirationSeconds int64
	MaxActionsPerCycle int
}

// SellRule drives the sell side: listing owned gifts and repricing them under
// the floor.
type SellRule struct {
	Name                  string
	Enabled               bool
	Selector              Selector
	MarkupPct             decimal.Decimal
	FloorUndercutStep     decimal.Decimal
	MinSellPrice          *decimal.Decimal
	MaxSellPrice          *decimal.Decimal
	AutoRepriceBelowFloor bool
	RepriceStep           decimal.Decimal
	ExpirationDays        int
	ExpirationSeconds     int64
}

// LiquiditySettings gate offers on how actively a trait combination trades.
type LiquiditySettings struct {
	Enabled            bool
	MinRecentSales     int
	MinSellThrough     decimal.Decimal
	MaxFloorToLastSale *decimal.Decimal
}

// MarketListing is a parsed marketplace listing. AskPrice and FloorPrice are
// nil when the server omitted or garbled them; FloorPrice falls back to ask
// at parse time.
type MarketListing struct {
	NFTID        string
	Name         string
	CollectionID string
	TgID         string
	AskPrice     *decimal.Decimal
	FloorPrice   *decimal.Decimal
	ListedAtTs   int64
	Model        string
	Background   string
	IsCrafted    bool
	Raw          map[string]any
}

// TraitKey returns the floor/liquidity aggregation key for this listing.
func (l MarketListing) TraitKey() string {
	return TraitKey(l.CollectionID, l.Model, l.Background)
}

// InventoryGift is an owned item, candidate for the sell path.
type InventoryGift struct {
	NFTID        string
	Name         string
	CollectionID string
	Model        string
	Background   string
	Listed       bool
	Raw          map[string]any
}

// TraitKey returns the floor aggregation key for this gift.
func (g InventoryGift) TraitKey() string {
	return TraitKey(g.CollectionID, g.Model, g.Background)
}

// TradeEventKind is the direction of a ledger event.
type TradeEventKind string

const (
	TradeBuy  TradeEventKind = "buy"
	TradeSell TradeEventKind = "sell"
)

// TradeEvent is one buy or sell extracted from the marketplace activity feed.
// (Account, EventID) is the idempotency key in the ledger.
type TradeEvent struct {
	Account    string
	EventID    string
	Kind       TradeEventKind
	NFTID      string
	GiftName   string
	Model      string
	Background string
	Price      decimal.Decimal
	Fee        decimal.Decimal
	Ts         int64
	Raw        map[string]any
}
