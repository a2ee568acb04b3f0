package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/web3guy0/portal-sniper/internal/pricing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadWith(t *testing.T, strategyJSON string) (*AppConfig, error) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		StrategyFile: writeFile(t, dir, "strategy.json", strategyJSON),
		AccountsFile: filepath.Join(dir, "accounts.json"),
		AuthFile:     filepath.Join(dir, "auth.txt"),
	}
	t.Setenv("PORTAL_AUTH", "tma test-token")
	return Load(opts)
}

func TestLoadDefaultsFromMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_AUTH", "tma test-token")
	cfg, err := Load(Options{
		StrategyFile: filepath.Join(dir, "nope.json"),
		AccountsFile: filepath.Join(dir, "accounts.json"),
		AuthFile:     filepath.Join(dir, "auth.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.APIBase != APIBaseDefault {
		t.Errorf("api base = %q", cfg.APIBase)
	}
	if !cfg.Runtime.DryRun {
		t.Error("default mode must be dry-run")
	}
	if len(cfg.OfferRules) != 1 || cfg.OfferRules[0].Name != "default_offer_rule" {
		t.Fatalf("offer rules = %+v, want one synthesized default", cfg.OfferRules)
	}
	rule := cfg.OfferRules[0]
	if rule.OfferFactor.String() != "0.85" || rule.MinOffer.String() != "0.1" {
		t.Errorf("default pricing: factor=%s min=%s", rule.OfferFactor, rule.MinOffer)
	}
	if !rule.SkipCrafted || !rule.BumpIfOutbid {
		t.Error("default gates lost")
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Name != "main" {
		t.Fatalf("accounts = %+v, want synthesized main", cfg.Accounts)
	}
	if cfg.Accounts[0].Auth != "tma test-token" {
		t.Errorf("auth = %q", cfg.Accounts[0].Auth)
	}
	if cfg.StateDBPath != StateDBDefault {
		t.Errorf("state db = %q", cfg.StateDBPath)
	}
}

func TestAuthMissingIsError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_AUTH", "")
	_, err := Load(Options{
		StrategyFile: filepath.Join(dir, "strategy.json"),
		AccountsFile: filepath.Join(dir, "accounts.json"),
		AuthFile:     filepath.Join(dir, "auth.txt"),
	})
	if err == nil || !strings.Contains(err.Error(), "authorization not found") {
		t.Fatalf("err = %v, want authorization not found", err)
	}
}

func TestAuthFileFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_AUTH", "")
	authFile := writeFile(t, dir, "auth.txt", "  tma file-token\n")
	cfg, err := Load(Options{
		StrategyFile: filepath.Join(dir, "strategy.json"),
		AccountsFile: filepath.Join(dir, "accounts.json"),
		AuthFile:     authFile,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Accounts[0].Auth != "tma file-token" {
		t.Errorf("auth = %q, want trimmed file contents", cfg.Accounts[0].Auth)
	}
}

func TestLegacyStrategyBridge(t *testing.T) {
	cfg, err := loadWith(t, `{
		"global_offer": {"offer_factor": "0.7", "min_offer": "0.2"},
		"global_filters": {"skip_crafted": false},
		"rules": [
			{"collection_ids": ["c1"], "max_offer": "3.00"},
			{"name": "special", "offer_factor": "0.9"}
		]
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.OfferRules) != 2 {
		t.Fatalf("got %d offer rules, want 2", len(cfg.OfferRules))
	}

	first := cfg.OfferRules[0]
	if first.Name != "rule_1" {
		t.Errorf("name = %q, want rule_1", first.Name)
	}
	if first.OfferFactor.String() != "0.7" || first.MinOffer.String() != "0.2" {
		t.Errorf("globals not merged: factor=%s min=%s", first.OfferFactor, first.MinOffer)
	}
	if first.SkipCrafted {
		t.Error("global_filters.skip_crafted=false not applied")
	}
	if first.MaxOffer == nil || first.MaxOffer.String() != "3" {
		t.Errorf("max_offer = %v", first.MaxOffer)
	}
	if got := first.Selector.CollectionIDs; len(got) != 1 || got[0] != "c1" {
		t.Errorf("collection ids = %v", got)
	}

	second := cfg.OfferRules[1]
	if second.Name != "special" || second.OfferFactor.String() != "0.9" {
		t.Errorf("rule override lost: %+v", second)
	}
}

func TestLegacyBridgeDefaultsOnly(t *testing.T) {
	cfg, err := loadWith(t, `{"defaults": {"offer_factor": "0.6"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.OfferRules) != 1 || cfg.OfferRules[0].Name != "default_offer_rule" {
		t.Fatalf("rules = %+v", cfg.OfferRules)
	}
	if cfg.OfferRules[0].OfferFactor.String() != "0.6" {
		t.Errorf("factor = %s", cfg.OfferRules[0].OfferFactor)
	}
}

func TestModernDocumentBypassesBridge(t *testing.T) {
	cfg, err := loadWith(t, `{
		"offer_rules": [{"name": "o1", "offer": {"offer_factor": "0.75"}}],
		"order_rules": [{"name": "ord1", "mode": "order", "collection_ids": "c9", "offer_factor": "0.5"}],
		"sell_rules": [{"name": "s1", "markup_pct": "12", "min_sell_price": "1.00"}],
		"rules": [{"name": "should_be_ignored"}]
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.OfferRules) != 1 || cfg.OfferRules[0].Name != "o1" {
		t.Fatalf("offer rules = %+v", cfg.OfferRules)
	}
	if cfg.OfferRules[0].OfferFactor.String() != "0.75" {
		t.Errorf("nested offer section not merged: %s", cfg.OfferRules[0].OfferFactor)
	}
	if len(cfg.OrderRules) != 1 || cfg.OrderRules[0].Mode != pricing.ModeOrder {
		t.Fatalf("order rules = %+v", cfg.OrderRules)
	}
	if got := cfg.OrderRules[0].Selector.CollectionIDs; len(got) != 1 || got[0] != "c9" {
		t.Errorf("comma-string collection list = %v", got)
	}
	if len(cfg.SellRules) != 1 || cfg.SellRules[0].MarkupPct.String() != "12" {
		t.Fatalf("sell rules = %+v", cfg.SellRules)
	}
}

func TestValidationRejectsInvertedPairs(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			"min_offer above max_offer",
			`{"offer_rules": [{"name": "r", "min_offer": "5", "max_offer": "1"}]}`,
		},
		{
			"min_ask above max_ask",
			`{"offer_rules": [{"name": "r", "min_ask": "5", "max_ask": "1"}]}`,
		},
		{
			"min_floor above max_floor",
			`{"offer_rules": [{"name": "r", "min_floor": "5", "max_floor": "1"}]}`,
		},
		{
			"zero offer_factor",
			`{"offer_rules": [{"name": "r", "offer_factor": "0"}]}`,
		},
		{
			"sell min above max",
			`{"sell_rules": [{"name": "s", "min_sell_price": "9", "max_sell_price": "2"}], "offer_rules": []}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadWith(t, tc.doc); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRuntimeClamps(t *testing.T) {
	cfg, err := loadWith(t, `{
		"runtime": {
			"idle_poll_interval": 0.001,
			"hot_poll_interval": "0.01",
			"request_timeout": 0.1,
			"search_limit": 9999,
			"seen_cache_size": 5,
			"max_offers_per_cycle": 0,
			"dry_run": false
		}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	rt := cfg.Runtime
	if rt.IdlePollInterval != 0.05 || rt.HotPollInterval != 0.05 {
		t.Errorf("poll intervals not clamped: %v %v", rt.IdlePollInterval, rt.HotPollInterval)
	}
	if rt.RequestTimeout != 1.0 {
		t.Errorf("timeout = %v, want clamp to 1.0", rt.RequestTimeout)
	}
	if rt.SearchLimit != 200 {
		t.Errorf("search limit = %d, want 200", rt.SearchLimit)
	}
	if rt.SeenCacheSize != 100 {
		t.Errorf("seen cache = %d, want floor 100", rt.SeenCacheSize)
	}
	if rt.MaxOffersPerCycle != 1 {
		t.Errorf("max offers = %d, want floor 1", rt.MaxOffersPerCycle)
	}
	if rt.DryRun {
		t.Error("dry_run=false from file ignored")
	}
}

func TestLiveFlagOverridesDryRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_AUTH", "tma x")
	cfg, err := Load(Options{
		StrategyFile: filepath.Join(dir, "strategy.json"),
		AccountsFile: filepath.Join(dir, "accounts.json"),
		AuthFile:     filepath.Join(dir, "auth.txt"),
		Live:         true,
		NoWarmStart:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.DryRun {
		t.Error("--live did not disable dry-run")
	}
	if cfg.Runtime.WarmStart {
		t.Error("--no-warm-start did not disable warm start")
	}
}

func TestLiquidityExplicitNullVersusAbsent(t *testing.T) {
	cfg, err := loadWith(t, `{"liquidity": {"max_floor_to_last_sale": null}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Liquidity.MaxFloorToLastSale != nil {
		t.Errorf("explicit null: ratio = %v, want disabled", cfg.Liquidity.MaxFloorToLastSale)
	}

	cfg, err = loadWith(t, `{"liquidity": {"min_recent_sales": 3}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Liquidity.MaxFloorToLastSale == nil || cfg.Liquidity.MaxFloorToLastSale.String() != "1.8" {
		t.Errorf("absent key: ratio = %v, want default 1.8", cfg.Liquidity.MaxFloorToLastSale)
	}
	if cfg.Liquidity.MinRecentSales != 3 {
		t.Errorf("min_recent_sales = %d", cfg.Liquidity.MinRecentSales)
	}
}

func TestAccountsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_AUTH", "tma fallback")
	t.Setenv("ACC2_AUTH", "tma from-env")
	accounts := writeFile(t, dir, "accounts.json", `{
		"accounts": [
			{"name": "alpha", "auth": "tma inline"},
			{"name": "beta", "auth_env": "ACC2_AUTH"},
			{"name": "ghost", "auth_env": "UNSET_VAR"}
		]
	}`)
	cfg, err := Load(Options{
		StrategyFile: filepath.Join(dir, "strategy.json"),
		AccountsFile: accounts,
		AuthFile:     filepath.Join(dir, "auth.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Accounts) != 2 {
		t.Fatalf("accounts = %+v, want 2 (ghost skipped)", cfg.Accounts)
	}
	if cfg.Accounts[0].Name != "alpha" || cfg.Accounts[0].Auth != "tma inline" {
		t.Errorf("alpha = %+v", cfg.Accounts[0])
	}
	if cfg.Accounts[1].Name != "beta" || cfg.Accounts[1].Auth != "tma from-env" {
		t.Errorf("beta = %+v", cfg.Accounts[1])
	}
}

func TestTelegramSettings(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_IDS", "")
	t.Setenv("TELEGRAM_ENABLED", "")

	cfg, err := loadWith(t, `{
		"telegram": {"enabled": true, "token": "123:abc", "chat_ids": [5, 5, 1]}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	tg := cfg.Telegram
	if !tg.Enabled || tg.Token != "123:abc" {
		t.Fatalf("telegram = %+v", tg)
	}
	if len(tg.ChatIDs) != 2 || tg.ChatIDs[0] != 1 || tg.ChatIDs[1] != 5 {
		t.Errorf("chat ids = %v, want deduped sorted [1 5]", tg.ChatIDs)
	}

	// enabled without a token stays disabled
	cfg, err = loadWith(t, `{"telegram": {"enabled": true}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Enabled {
		t.Error("telegram enabled without token")
	}
}

func TestRouteOverrides(t *testing.T) {
	cfg, err := loadWith(t, `{
		"api": {
			"base": "https://example.test/api",
			"routes": {"search_listings": "/v2/search", "cancel_offer": "/v2/offers/{offer_id}/cancel"}
		}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBase != "https://example.test/api" {
		t.Errorf("api base = %q", cfg.APIBase)
	}
	if cfg.Routes.SearchListings != "/v2/search" {
		t.Errorf("search route = %q", cfg.Routes.SearchListings)
	}
	if cfg.Routes.CancelOffer != "/v2/offers/{offer_id}/cancel" {
		t.Errorf("cancel route = %q", cfg.Routes.CancelOffer)
	}
	if cfg.Routes.CreateOrder != "/orders/" {
		t.Errorf("untouched route changed: %q", cfg.Routes.CreateOrder)
	}
}
