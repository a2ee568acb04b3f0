// Package config loads the sniper configuration: the strategy document
// (offer/order/sell rules, runtime and liquidity settings, API routes,
// telegram), the accounts file and the authorization source. The result is an
// immutable AppConfig handed to the engine.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/pricing"
)

// Defaults, overridable by flags and environment.
const (
	APIBaseDefault      = "https://portal-market.com/api"
	AuthFileDefault     = "auth.txt"
	StrategyFileDefault = "configs/strategy.json"
	AccountsFileDefault = "configs/portal_accounts.json"
	StateDBDefault      = "data/portal_trader.db"
)

// Routes are the marketplace endpoint templates. Placeholders like
// {offer_id} are filled by the client.
type Routes struct {
	SearchListings string
	CreateOffer    string
	MyOffers       string
	CancelOffer    string
	CreateOrder    string
	MyOrders       string
	CancelOrder    string
	Inventory      string
	CreateListing  string
	MyListings     string
	UpdateListing  string
	CancelListing  string
	RecentSales    string
	Activity       string
}

func defaultRoutes() Routes {
	return Routes{
		SearchListings: "/nfts/search",
		CreateOffer:    "/offers/",
		MyOffers:       "/offers/my",
		CancelOffer:    "/offers/{offer_id}",
		CreateOrder:    "/orders/",
		MyOrders:       "/orders/my",
		CancelOrder:    "/orders/{order_id}",
		Inventory:      "/users/me/nfts",
		CreateListing:  "/listings/",
		MyListings:     "/listings/my",
		UpdateListing:  "/listings/{listing_id}",
		CancelListing:  "/listings/{listing_id}",
		RecentSales:    "/sales/recent",
		Activity:       "/activity/me",
	}
}

// RuntimeSettings pace the polling loop of every worker. Intervals are in
// seconds.
type RuntimeSettings struct {
	DryRun                bool
	IdlePollInterval      float64
	HotPollInterval       float64
	HotCycles             int
	RequestTimeout        float64
	SearchLimit           int
	WarmStart             bool
	SeenCacheSize         int
	SeenBreakStreak       int
	MaxNewPerCycle        int
	MaxOffersPerCycle     int
	ActivityPollEverySec  float64
	InventoryPollEverySec float64
	OrdersPollEverySec    float64
	ListingsPollEverySec  float64
}

func defaultRuntime() RuntimeSettings {
	return RuntimeSettings{
		DryRun:                true,
		IdlePollInterval:      0.9,
		HotPollInterval:       0.25,
		HotCycles:             6,
		RequestTimeout:        6.0,
		SearchLimit:           60,
		WarmStart:             true,
		SeenCacheSize:         10000,
		SeenBreakStreak:       2,
		MaxNewPerCycle:        40,
		MaxOffersPerCycle:     8,
		ActivityPollEverySec:  20.0,
		InventoryPollEverySec: 15.0,
		OrdersPollEverySec:    12.0,
		ListingsPollEverySec:  12.0,
	}
}

func defaultLiquidity() pricing.LiquiditySettings {
	ratio := decimal.NewFromFloat(1.8)
	return pricing.LiquiditySettings{
		Enabled:            true,
		MinRecentSales:     2,
		MinSellThrough:     decimal.NewFromFloat(0.02),
		MaxFloorToLastSale: &ratio,
	}
}

// TelegramSettings configure the chat collaborator.
type TelegramSettings struct {
	Enabled bool
	Token   string
	ChatIDs []int64
}

// Account is one marketplace account the engine trades.
type Account struct {
	Name string
	Auth string
}

// AppConfig is the full, validated configuration of one engine process.
type AppConfig struct {
	APIBase      string
	Routes       Routes
	Accounts     []Account
	Runtime      RuntimeSettings
	Liquidity    pricing.LiquiditySettings
	OfferRules   []pricing.OfferOrderRule
	OrderRules   []pricing.OfferOrderRule
	SellRules    []pricing.SellRule
	StateDBPath  string
	Telegram     TelegramSettings
	StrategyFile string
}

// Options carry the CLI surface into the loader.
type Options struct {
	StrategyFile string
	AccountsFile string
	AuthFile     string
	APIBase      string
	StateDBPath  string
	Live         bool
	NoWarmStart  bool
}

// Load reads, bridges and validates the full configuration. Any error it
// returns is a configuration error and terminates the process with exit 1.
func Load(opts Options) (*AppConfig, error) {
	if _, err := os.Getwd(); err != nil {
		return nil, fmt.Errorf("working directory unavailable: %w", err)
	}

	raw, err := readJSONFile(opts.StrategyFile)
	if err != nil {
		return nil, err
	}
	raw = legacyStrategyBridge(raw)

	runtime, err := parseRuntime(raw)
	if err != nil {
		return nil, err
	}
	if opts.Live {
		runtime.DryRun = false
	}
	if opts.NoWarmStart {
		runtime.WarmStart = false
	}

	offerRules, err := parseOfferRules(raw, "offer_rules", pricing.ModeOffer)
	if err != nil {
		return nil, err
	}
	orderRules, err := parseOfferRules(raw, "order_rules", pricing.ModeOrder)
	if err != nil {
		return nil, err
	}
	sellRules, err := parseSellRules(raw)
	if err != nil {
		return nil, err
	}

	liquidity, err := parseLiquidity(raw)
	if err != nil {
		return nil, err
	}
	routes := parseRoutes(raw)
	telegram := parseTelegram(raw)

	apiBase := opts.APIBase
	if apiBase == "" {
		if api, ok := raw["api"].(map[string]any); ok {
			apiBase, _ = api["base"].(string)
		}
	}
	if apiBase == "" {
		apiBase = APIBaseDefault
	}

	accounts, err := parseAccounts(opts.AccountsFile, opts.AuthFile)
	if err != nil {
		return nil, err
	}

	if len(offerRules) == 0 {
		offerRules = []pricing.OfferOrderRule{
			defaultOfferRule("default_offer_rule", pricing.ModeOffer),
		}
	}

	stateDB := opts.StateDBPath
	if stateDB == "" {
		stateDB = StateDBDefault
	}

	cfg := &AppConfig{
		APIBase:      apiBase,
		Routes:       routes,
		Accounts:     accounts,
		Runtime:      runtime,
		Liquidity:    liquidity,
		OfferRules:   offerRules,
		OrderRules:   orderRules,
		SellRules:    sellRules,
		StateDBPath:  stateDB,
		Telegram:     telegram,
		StrategyFile: opts.StrategyFile,
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *AppConfig) error {
	rules := make([]pricing.OfferOrderRule, 0, len(cfg.OfferRules)+len(cfg.OrderRules))
	rules = append(rules, cfg.OfferRules...)
	rules = append(rules, cfg.OrderRules...)
	for _, rule := range rules {
		if !rule.OfferFactor.IsPositive() {
			return fmt.Errorf("rule %s: offer_factor must be positive", rule.Name)
		}
		if !rule.MaxListingToFloor.IsPositive() {
			return fmt.Errorf("rule %s: max_listing_to_floor must be positive", rule.Name)
		}
		if !rule.OutbidStep.IsPositive() {
			return fmt.Errorf("rule %s: outbid_step must be positive", rule.Name)
		}
		if rule.MaxOffer != nil && rule.MinOffer.GreaterThan(*rule.MaxOffer) {
			return fmt.Errorf("rule %s: min_offer > max_offer", rule.Name)
		}
		if err := checkPair(rule.Name, "ask", rule.MinAsk, rule.MaxAsk); err != nil {
			return err
		}
		if err := checkPair(rule.Name, "floor", rule.MinFloor, rule.MaxFloor); err != nil {
			return err
		}
	}
	for _, rule := range cfg.SellRules {
		if err := checkPair(rule.Name, "sell_price", rule.MinSellPrice, rule.MaxSellPrice); err != nil {
			return err
		}
	}
	return nil
}

func checkPair(ruleName, field string, min, max *decimal.Decimal) error {
	if min != nil && max != nil && min.GreaterThan(*max) {
		return fmt.Errorf("rule %s: min_%s > max_%s", ruleName, field, field)
	}
	return nil
}
