package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/pricing"
)

// readJSONFile parses a JSON document into a raw map. A missing file yields
// an empty map; numbers are kept as json.Number so prices never round-trip
// through float64.
func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("JSON root must be object: %s", path)
	}
	return obj, nil
}

// legacyStrategyBridge accepts the old single-policy document shape:
// rules[] merged under global_offer/global_filters/defaults. Each legacy rule
// becomes one offer_rule; when there are no rules but defaults exist, a
// single default_offer_rule is synthesized.
func legacyStrategyBridge(raw map[string]any) map[string]any {
	if _, ok := raw["offer_rules"]; ok {
		return raw
	}
	if _, ok := raw["order_rules"]; ok {
		return raw
	}
	if _, ok := raw["sell_rules"]; ok {
		return raw
	}

	bridged := make(map[string]any, len(raw)+3)
	for k, v := range raw {
		bridged[k] = v
	}

	defaults := map[string]any{}
	for _, key := range []string{"global_offer", "global_filters", "defaults"} {
		if sec, ok := raw[key].(map[string]any); ok {
			for k, v := range sec {
				defaults[k] = v
			}
		}
	}

	var offerRules []any
	if list, ok := raw["rules"].([]any); ok {
		for idx, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			merged := map[string]any{"name": fmt.Sprintf("rule_%d", idx+1)}
			for k, v := range defaults {
				merged[k] = v
			}
			for k, v := range obj {
				merged[k] = v
			}
			offerRules = append(offerRules, merged)
		}
	}
	if len(offerRules) == 0 && len(defaults) > 0 {
		merged := map[string]any{"name": "default_offer_rule"}
		for k, v := range defaults {
			merged[k] = v
		}
		offerRules = append(offerRules, merged)
	}

	bridged["offer_rules"] = offerRules
	if _, ok := bridged["order_rules"]; !ok {
		bridged["order_rules"] = []any{}
	}
	if _, ok := bridged["sell_rules"]; !ok {
		bridged["sell_rules"] = []any{}
	}
	return bridged
}

// Field coercion helpers. Strategy documents come from hand-edited JSON, so
// bools and numbers arrive in whatever shape the author typed.

func toBool(v any, def bool) bool {
	switch x := v.(type) {
	case nil:
		return def
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return def
		}
		return f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func toDecimal(v any, field string) (decimal.Decimal, error) {
	d := pricing.ParseDecimal(v)
	if d == nil {
		return decimal.Zero, fmt.Errorf("bad decimal for %s: %v", field, v)
	}
	return *d, nil
}

func toDecimalDefault(v any, def string, field string) (decimal.Decimal, error) {
	if v == nil {
		return decimal.RequireFromString(def), nil
	}
	return toDecimal(v, field)
}

func toOptionalDecimal(v any, field string) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := toDecimal(v, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toInt(v any, def int) int {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return i
		}
	case float64:
		return int(x)
	}
	return def
}

func toFloat(v any, def float64) float64 {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	case float64:
		return x
	}
	return def
}

// normalizeList lowercases, trims, dedups and sorts a filter list. Accepts
// both JSON arrays and comma-separated strings.
func normalizeList(v any) []string {
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			seen[s] = true
		}
	}
	switch x := v.(type) {
	case string:
		for _, part := range strings.Split(x, ",") {
			add(part)
		}
	case []any:
		for _, item := range x {
			add(fmt.Sprint(item))
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(v, lo float64) float64 {
	if v < lo {
		return lo
	}
	return v
}

func parseSelector(raw map[string]any) pricing.Selector {
	m := raw
	if match, ok := raw["match"].(map[string]any); ok {
		// match section takes precedence, top level is the fallback
		m = map[string]any{}
		for k, v := range raw {
			m[k] = v
		}
		for k, v := range match {
			m[k] = v
		}
	}
	return pricing.Selector{
		CollectionIDs:     normalizeList(m["collection_ids"]),
		GiftNames:         normalizeList(m["gift_names"]),
		NameContains:      normalizeList(m["name_contains"]),
		Models:            normalizeList(m["models"]),
		Backgrounds:       normalizeList(m["backgrounds"]),
		OnlyRecentSeconds: int64(toInt(m["only_recent_seconds"], 0)),
	}
}

func defaultOfferRule(name string, mode pricing.RuleMode) pricing.OfferOrderRule {
	return pricing.OfferOrderRule{
		Name:               name,
		Enabled:            true,
		Mode:               mode,
		OfferFactor:        decimal.RequireFromString("0.85"),
		MinOffer:           decimal.RequireFromString("0.10"),
		MaxListingToFloor:  decimal.RequireFromString("1.25"),
		OutbidStep:         pricing.PriceStep,
		BumpIfOutbid:       true,
		SkipCrafted:        true,
		ExpirationDays:     7,
		MaxActionsPerCycle: 4,
	}
}

func parseOfferRule(raw map[string]any, nameFallback string, mode pricing.RuleMode) (pricing.OfferOrderRule, error) {
	name := strings.TrimSpace(str(raw, "name"))
	if name == "" {
		name = nameFallback
	}

	// legacy rules nest pricing under "offer" and gates under "filters";
	// flat keys win over both
	merged := map[string]any{}
	if sec, ok := raw["filters"].(map[string]any); ok {
		for k, v := range sec {
			merged[k] = v
		}
	}
	if sec, ok := raw["offer"].(map[string]any); ok {
		for k, v := range sec {
			merged[k] = v
		}
	}
	for k, v := range raw {
		if k == "offer" || k == "filters" || k == "match" {
			continue
		}
		merged[k] = v
	}

	rule := defaultOfferRule(name, mode)
	rule.Enabled = toBool(raw["enabled"], true)
	if m := strings.ToLower(strings.TrimSpace(str(raw, "mode"))); m != "" {
		rule.Mode = pricing.RuleMode(m)
	}
	rule.Selector = parseSelector(raw)

	var err error
	if rule.OfferFactor, err = toDecimalDefault(merged["offer_factor"], "0.85", name+".offer_factor"); err != nil {
		return rule, err
	}
	if rule.MinOffer, err = toDecimalDefault(merged["min_offer"], "0.10", name+".min_offer"); err != nil {
		return rule, err
	}
	if rule.MaxOffer, err = toOptionalDecimal(merged["max_offer"], name+".max_offer"); err != nil {
		return rule, err
	}
	if rule.MinAsk, err = toOptionalDecimal(merged["min_ask"], name+".min_ask"); err != nil {
		return rule, err
	}
	if rule.MaxAsk, err = toOptionalDecimal(merged["max_ask"], name+".max_ask"); err != nil {
		return rule, err
	}
	if rule.MinFloor, err = toOptionalDecimal(merged["min_floor"], name+".min_floor"); err != nil {
		return rule, err
	}
	if rule.MaxFloor, err = toOptionalDecimal(merged["max_floor"], name+".max_floor"); err != nil {
		return rule, err
	}
	if rule.MaxListingToFloor, err = toDecimalDefault(merged["max_listing_to_floor"], "1.25", name+".max_listing_to_floor"); err != nil {
		return rule, err
	}
	if rule.MinDiscountPct, err = toOptionalDecimal(merged["min_discount_pct"], name+".min_discount_pct"); err != nil {
		return rule, err
	}
	if rule.MaxDiscountPct, err = toOptionalDecimal(merged["max_discount_pct"], name+".max_discount_pct"); err != nil {
		return rule, err
	}
	if rule.OutbidStep, err = toDecimalDefault(merged["outbid_step"], "0.01", name+".outbid_step"); err != nil {
		return rule, err
	}
	rule.BumpIfOutbid = toBool(merged["bump_if_outbid"], true)
	rule.SkipCrafted = toBool(merged["skip_crafted"], true)
	rule.ExpirationDays = clampInt(toInt(merged["expiration_days"], 7), 1, 30)
	rule.ExpirationSeconds = int64(toInt(merged["expiration_seconds"], 0))
	rule.MaxActionsPerCycle = toInt(merged["max_actions_per_cycle"], 4)
	if rule.MaxActionsPerCycle < 1 {
		rule.MaxActionsPerCycle = 1
	}
	return rule, nil
}

func parseOfferRules(raw map[string]any, key string, mode pricing.RuleMode) ([]pricing.OfferOrderRule, error) {
	list, _ := raw[key].([]any)
	out := make([]pricing.OfferOrderRule, 0, len(list))
	prefix := strings.TrimSuffix(key, "s")
	for idx, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule, err := parseOfferRule(obj, fmt.Sprintf("%s_%d", prefix, idx+1), mode)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func parseSellRule(raw map[string]any, nameFallback string) (pricing.SellRule, error) {
	name := strings.TrimSpace(str(raw, "name"))
	if name == "" {
		name = nameFallback
	}
	rule := pricing.SellRule{
		Name:                  name,
		Enabled:               toBool(raw["enabled"], true),
		Selector:              parseSelector(raw),
		AutoRepriceBelowFloor: toBool(raw["auto_reprice_below_floor"], true),
		ExpirationDays:        clampInt(toInt(raw["expiration_days"], 7), 1, 30),
		ExpirationSeconds:     int64(toInt(raw["expiration_seconds"], 0)),
	}
	var err error
	if rule.MarkupPct, err = toDecimalDefault(raw["markup_pct"], "0", name+".markup_pct"); err != nil {
		return rule, err
	}
	if rule.FloorUndercutStep, err = toDecimalDefault(raw["floor_undercut_step"], "0.01", name+".floor_undercut_step"); err != nil {
		return rule, err
	}
	if rule.MinSellPrice, err = toOptionalDecimal(raw["min_sell_price"], name+".min_sell_price"); err != nil {
		return rule, err
	}
	if rule.MaxSellPrice, err = toOptionalDecimal(raw["max_sell_price"], name+".max_sell_price"); err != nil {
		return rule, err
	}
	if rule.RepriceStep, err = toDecimalDefault(raw["reprice_step"], "0.01", name+".reprice_step"); err != nil {
		return rule, err
	}
	return rule, nil
}

func parseSellRules(raw map[string]any) ([]pricing.SellRule, error) {
	list, _ := raw["sell_rules"].([]any)
	out := make([]pricing.SellRule, 0, len(list))
	for idx, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule, err := parseSellRule(obj, fmt.Sprintf("sell_rule_%d", idx+1))
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func parseRuntime(raw map[string]any) (RuntimeSettings, error) {
	rt := defaultRuntime()
	sec, ok := raw["runtime"].(map[string]any)
	if !ok {
		return rt, nil
	}
	rt.DryRun = toBool(sec["dry_run"], rt.DryRun)
	rt.IdlePollInterval = maxFloat(toFloat(sec["idle_poll_interval"], rt.IdlePollInterval), 0.05)
	rt.HotPollInterval = maxFloat(toFloat(sec["hot_poll_interval"], rt.HotPollInterval), 0.05)
	rt.HotCycles = toInt(sec["hot_cycles"], rt.HotCycles)
	if rt.HotCycles < 0 {
		rt.HotCycles = 0
	}
	rt.RequestTimeout = maxFloat(toFloat(sec["request_timeout"], rt.RequestTimeout), 1.0)
	rt.SearchLimit = clampInt(toInt(sec["search_limit"], rt.SearchLimit), 1, 200)
	rt.WarmStart = toBool(sec["warm_start"], rt.WarmStart)
	rt.SeenCacheSize = toInt(sec["seen_cache_size"], rt.SeenCacheSize)
	if rt.SeenCacheSize < 100 {
		rt.SeenCacheSize = 100
	}
	rt.SeenBreakStreak = toInt(sec["seen_break_streak"], rt.SeenBreakStreak)
	if rt.SeenBreakStreak < 0 {
		rt.SeenBreakStreak = 0
	}
	rt.MaxNewPerCycle = toInt(sec["max_new_per_cycle"], rt.MaxNewPerCycle)
	if rt.MaxNewPerCycle < 1 {
		rt.MaxNewPerCycle = 1
	}
	rt.MaxOffersPerCycle = toInt(sec["max_offers_per_cycle"], rt.MaxOffersPerCycle)
	if rt.MaxOffersPerCycle < 1 {
		rt.MaxOffersPerCycle = 1
	}
	rt.ActivityPollEverySec = maxFloat(toFloat(sec["activity_poll_every_sec"], rt.ActivityPollEverySec), 3.0)
	rt.InventoryPollEverySec = maxFloat(toFloat(sec["inventory_poll_every_sec"], rt.InventoryPollEverySec), 3.0)
	rt.OrdersPollEverySec = maxFloat(toFloat(sec["orders_poll_every_sec"], rt.OrdersPollEverySec), 3.0)
	rt.ListingsPollEverySec = maxFloat(toFloat(sec["listings_poll_every_sec"], rt.ListingsPollEverySec), 3.0)
	return rt, nil
}

func parseLiquidity(raw map[string]any) (pricing.LiquiditySettings, error) {
	liq := defaultLiquidity()
	sec, ok := raw["liquidity"].(map[string]any)
	if !ok {
		return liq, nil
	}
	liq.Enabled = toBool(sec["enabled"], liq.Enabled)
	liq.MinRecentSales = toInt(sec["min_recent_sales"], liq.MinRecentSales)
	if liq.MinRecentSales < 0 {
		liq.MinRecentSales = 0
	}
	if v, ok := sec["min_sell_through"]; ok {
		d, err := toDecimal(v, "liquidity.min_sell_through")
		if err != nil {
			return liq, err
		}
		liq.MinSellThrough = d
	}
	// an explicit null disables the ratio check; an absent key keeps the default
	if v, present := sec["max_floor_to_last_sale"]; present {
		d, err := toOptionalDecimal(v, "liquidity.max_floor_to_last_sale")
		if err != nil {
			return liq, err
		}
		liq.MaxFloorToLastSale = d
	}
	return liq, nil
}

func parseRoutes(raw map[string]any) Routes {
	routes := defaultRoutes()
	api, ok := raw["api"].(map[string]any)
	if !ok {
		return routes
	}
	sec, ok := api["routes"].(map[string]any)
	if !ok {
		return routes
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(str(sec, key)); v != "" {
			*dst = v
		}
	}
	set(&routes.SearchListings, "search_listings")
	set(&routes.CreateOffer, "create_offer")
	set(&routes.MyOffers, "my_offers")
	set(&routes.CancelOffer, "cancel_offer")
	set(&routes.CreateOrder, "create_order")
	set(&routes.MyOrders, "my_orders")
	set(&routes.CancelOrder, "cancel_order")
	set(&routes.Inventory, "inventory")
	set(&routes.CreateListing, "create_listing")
	set(&routes.MyListings, "my_listings")
	set(&routes.UpdateListing, "update_listing")
	set(&routes.CancelListing, "cancel_listing")
	set(&routes.RecentSales, "recent_sales")
	set(&routes.Activity, "activity")
	return routes
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
