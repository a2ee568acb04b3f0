// Package engine runs the per-account sniper loops and the supervisor that
// owns them. Each account gets one Worker: a sequential poll cycle that
// discovers fresh listings, places offers and orders, keeps them competitive,
// lists owned gifts and ingests trade activity into the shared ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/config"
	"github.com/web3guy0/portal-sniper/internal/ledger"
	"github.com/web3guy0/portal-sniper/internal/portal"
	"github.com/web3guy0/portal-sniper/internal/pricing"
)

const liquidityCacheTTL = 45 * time.Second

// Notifier receives human-readable trade notifications. Notify must never
// block the caller.
type Notifier interface {
	Notify(text string)
}

type liquiditySnapshot struct {
	recentCount int
	activeCount int
	lastSale    *decimal.Decimal
	at          time.Time
}

// Worker is the trading loop of one account. All state is owned by the
// single Run goroutine; only the status string is shared.
type Worker struct {
	cfg      *config.AppConfig
	runtime  config.RuntimeSettings
	account  string
	client   *portal.Client
	ledger   *ledger.Ledger
	notifier Notifier
	log      zerolog.Logger

	seen      *seenCache
	actions   map[string]*ManagedAction
	liquidity map[string]liquiditySnapshot

	lastActivityPoll  time.Time
	lastInventoryPoll time.Time
	lastOrdersPoll    time.Time
	lastListingsPoll  time.Time
	burstLeft         int

	statusMu sync.Mutex
	status   string
}

// NewWorker wires one account's client against the shared ledger and
// notifier.
func NewWorker(cfg *config.AppConfig, account config.Account, lg *ledger.Ledger, notifier Notifier, logger zerolog.Logger) *Worker {
	timeout := time.Duration(cfg.Runtime.RequestTimeout * float64(time.Second))
	return &Worker{
		cfg:       cfg,
		runtime:   cfg.Runtime,
		account:   account.Name,
		client:    portal.NewClient(cfg.APIBase, account.Auth, cfg.Routes, timeout),
		ledger:    lg,
		notifier:  notifier,
		log:       logger.With().Str("account", account.Name).Logger(),
		seen:      newSeenCache(cfg.Runtime.SeenCacheSize),
		actions:   make(map[string]*ManagedAction),
		liquidity: make(map[string]liquiditySnapshot),
		status:    "booting",
	}
}

// Status is the last reported lifecycle state, safe to read from any
// goroutine.
func (w *Worker) Status() string {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

func (w *Worker) setStatus(s string) {
	w.statusMu.Lock()
	w.status = s
	w.statusMu.Unlock()
}

// Run executes the worker until the context is cancelled or a terminal
// failure (bad auth, unreachable marketplace at startup) ends the account.
func (w *Worker) Run(ctx context.Context) {
	w.setStatus("auth")
	if err := w.client.CheckAuth(ctx); err != nil {
		w.setStatus("auth_fail:" + err.Error())
		w.log.Error().Err(err).Msg("auth failed")
		return
	}

	w.setStatus("warm_start")
	initial, err := w.client.FetchLatestListings(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.setStatus("initial_fail:" + err.Error())
		w.log.Error().Err(err).Msg("initial fetch failed")
		return
	}

	if w.runtime.WarmStart {
		for _, raw := range initial {
			if listing := pricing.ParseListing(raw); listing.NFTID != "" {
				w.seen.Add(listing.NFTID)
			}
		}
		w.log.Info().Int("skipped", len(initial)).Msg("warm start: current page marked seen")
	} else {
		w.log.Info().Msg("warm start disabled: processing current items")
	}

	w.setStatus("running")
	for {
		if ctx.Err() != nil {
			w.setStatus("stopped")
			return
		}
		cycleStart := time.Now()

		err := w.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.setStatus("stopped")
				return
			}
			if isNetworkError(err) {
				w.setStatus("net_err:" + err.Error())
				w.log.Warn().Err(err).Msg("network error")
			} else {
				w.setStatus("loop_err:" + err.Error())
				w.log.Error().Err(err).Msg("loop error")
			}
			if !w.sleep(ctx, maxDuration(time.Second, secondsDur(w.runtime.IdlePollInterval))) {
				w.setStatus("stopped")
				return
			}
			continue
		}

		target := secondsDur(w.runtime.IdlePollInterval)
		if w.burstLeft > 0 {
			target = secondsDur(w.runtime.HotPollInterval)
		}
		if wait := target - time.Since(cycleStart); wait > 0 {
			if !w.sleep(ctx, wait) {
				w.setStatus("stopped")
				return
			}
		}
		w.setStatus(fmt.Sprintf("running seen=%d actions=%d burst=%d",
			w.seen.Len(), len(w.actions), w.burstLeft))
	}
}

func (w *Worker) runCycle(ctx context.Context) error {
	rows, err := w.client.FetchLatestListings(ctx, w.runtime.SearchLimit)
	if err != nil {
		return err
	}

	listings := make([]pricing.MarketListing, 0, len(rows))
	for _, raw := range rows {
		if listing := pricing.ParseListing(raw); listing.NFTID != "" {
			listings = append(listings, listing)
		}
	}
	floorByTraits, activeCountIndex := buildFloorIndex(listings)

	var newListings []pricing.MarketListing
	seenStreak := 0
	for _, listing := range listings {
		if w.seen.Has(listing.NFTID) {
			seenStreak++
			if w.runtime.SeenBreakStreak > 0 && seenStreak >= w.runtime.SeenBreakStreak {
				break
			}
			continue
		}
		seenStreak = 0
		w.seen.Add(listing.NFTID)
		newListings = append(newListings, listing)
		if len(newListings) >= w.runtime.MaxNewPerCycle {
			break
		}
	}

	offers := 0
	if len(newListings) > 0 {
		offers, err = w.processNewListings(ctx, newListings, activeCountIndex)
		if err != nil {
			return err
		}
	}

	w.placeOrRefreshOrders(ctx, listings)
	w.syncOfferOutbids(ctx)
	w.syncOrderOutbids(ctx)
	w.autoCancelExpired(ctx)
	w.autoSell(ctx, floorByTraits)
	w.repriceListings(ctx, floorByTraits)
	w.ingestActivity(ctx)

	if len(newListings) > 0 || offers > 0 {
		w.burstLeft = w.runtime.HotCycles
	} else if w.burstLeft > 0 {
		w.burstLeft--
	}
	return nil
}

// buildFloorIndex derives the per-trait observed floor (lowest ask on the
// page) and the active listing count per trait combination.
func buildFloorIndex(listings []pricing.MarketListing) (map[string]decimal.Decimal, map[string]int) {
	floorByTraits := make(map[string]decimal.Decimal)
	countByTraits := make(map[string]int)
	for _, listing := range listings {
		key := listing.TraitKey()
		countByTraits[key]++
		if listing.AskPrice == nil || !listing.AskPrice.IsPositive() {
			continue
		}
		prev, ok := floorByTraits[key]
		if !ok || listing.AskPrice.LessThan(prev) {
			floorByTraits[key] = *listing.AskPrice
		}
	}
	return floorByTraits, countByTraits
}

func (w *Worker) liquiditySnapshot(ctx context.Context, listing pricing.MarketListing, activeCount int) (int, *decimal.Decimal, error) {
	key := listing.TraitKey()
	if cached, ok := w.liquidity[key]; ok && time.Since(cached.at) < liquidityCacheTTL {
		return cached.recentCount, cached.lastSale, nil
	}

	recent, err := w.client.FetchRecentSales(ctx, listing.CollectionID, listing.Model, listing.Background, 20)
	if err != nil {
		return 0, nil, err
	}
	var lastSale *decimal.Decimal
	if len(recent) > 0 {
		lastSale = pricing.FirstDecimal(recent[0], "price", "sale_price", "amount")
	}
	w.liquidity[key] = liquiditySnapshot{
		recentCount: len(recent),
		activeCount: activeCount,
		lastSale:    lastSale,
		at:          time.Now(),
	}
	return len(recent), lastSale, nil
}

// processNewListings runs every enabled offer rule over the fresh listings,
// first rule to fire wins per listing, stopping at the per-cycle offer cap.
func (w *Worker) processNewListings(ctx context.Context, newListings []pricing.MarketListing, activeCountIndex map[string]int) (int, error) {
	offerActions := 0
	for _, listing := range newListings {
		if offerActions >= w.runtime.MaxOffersPerCycle {
			break
		}
		for _, rule := range w.cfg.OfferRules {
			if !rule.Enabled || rule.Mode != pricing.ModeOffer {
				continue
			}
			if !rule.Selector.MatchesListing(listing) {
				continue
			}

			price, _ := pricing.EvaluateOfferPrice(listing, rule)
			if price == nil {
				continue
			}

			activeCount := activeCountIndex[listing.TraitKey()]
			recentSales, lastSale, err := w.liquiditySnapshot(ctx, listing, activeCount)
			if err != nil {
				return offerActions, err
			}
			if activeCount < 1 {
				activeCount = 1
			}
			if !pricing.PassLiquidity(listing, w.cfg.Liquidity, recentSales, activeCount, lastSale) {
				continue
			}

			var capPrice *decimal.Decimal
			if listing.AskPrice != nil {
				c := pricing.Quantize2(listing.AskPrice.Sub(rule.OutbidStep))
				capPrice = &c
			}
			if rule.MaxOffer != nil {
				if capPrice == nil || rule.MaxOffer.LessThan(*capPrice) {
					c := *rule.MaxOffer
					capPrice = &c
				}
			}

			if err := w.placeOffer(ctx, listing, rule, *price, capPrice); err != nil {
				w.log.Warn().Err(err).
					Str("rule", rule.Name).
					Str("nft", listing.NFTID).
					Msg("offer failed")
				continue
			}
			offerActions++
			break
		}
	}
	return offerActions, nil
}

func (w *Worker) placeOffer(ctx context.Context, listing pricing.MarketListing, rule pricing.OfferOrderRule, offerPrice decimal.Decimal, capPrice *decimal.Decimal) error {
	key := offerActionKey(listing.NFTID, rule)
	if _, exists := w.actions[key]; exists {
		return nil
	}

	var expiresTs int64
	if rule.ExpirationSeconds > 0 {
		expiresTs = pricing.NowTs() + rule.ExpirationSeconds
	}

	if w.runtime.DryRun {
		w.log.Info().
			Str("gift", listing.Name).
			Str("tg_id", listing.TgID).
			Str("rule", rule.Name).
			Str("price", pricing.FormatPrice(offerPrice)).
			Msg("DRY offer")
		w.actions[key] = &ManagedAction{
			Key:         key,
			Kind:        ActionOffer,
			RuleName:    rule.Name,
			RemoteID:    "dry-" + key,
			NFTID:       listing.NFTID,
			SelectorKey: rule.Selector.Fingerprint(),
			Price:       offerPrice,
			CapPrice:    capPrice,
			CreatedTs:   pricing.NowTs(),
			ExpiresTs:   expiresTs,
			Extra:       map[string]any{"tg_id": listing.TgID},
		}
		return nil
	}

	payload, err := w.client.PlaceOffer(ctx, listing.NFTID, offerPrice, rule.ExpirationDays)
	if err != nil {
		return err
	}
	w.actions[key] = &ManagedAction{
		Key:         key,
		Kind:        ActionOffer,
		RuleName:    rule.Name,
		RemoteID:    pricing.InferRemoteID(payload, "id", "offer_id"),
		NFTID:       listing.NFTID,
		SelectorKey: rule.Selector.Fingerprint(),
		Price:       offerPrice,
		CapPrice:    capPrice,
		CreatedTs:   pricing.NowTs(),
		ExpiresTs:   expiresTs,
		Extra:       map[string]any{"tg_id": listing.TgID},
	}
	w.log.Info().
		Str("gift", listing.Name).
		Str("tg_id", listing.TgID).
		Str("rule", rule.Name).
		Str("price", pricing.FormatPrice(offerPrice)).
		Msg("offer sent")
	return nil
}

func (w *Worker) findRule(name string) *pricing.OfferOrderRule {
	for i := range w.cfg.OfferRules {
		if w.cfg.OfferRules[i].Name == name {
			return &w.cfg.OfferRules[i]
		}
	}
	for i := range w.cfg.OrderRules {
		if w.cfg.OrderRules[i].Name == name {
			return &w.cfg.OrderRules[i]
		}
	}
	return nil
}

func floorForRule(rule pricing.OfferOrderRule, listings []pricing.MarketListing) *decimal.Decimal {
	var floor *decimal.Decimal
	for _, listing := range listings {
		if !rule.Selector.MatchesListing(listing) {
			continue
		}
		candidate := listing.FloorPrice
		if candidate == nil {
			candidate = listing.AskPrice
		}
		if candidate == nil || !candidate.IsPositive() {
			continue
		}
		if floor == nil || candidate.LessThan(*floor) {
			c := *candidate
			floor = &c
		}
	}
	return floor
}

func (w *Worker) placeOrRefreshOrders(ctx context.Context, listings []pricing.MarketListing) {
	for _, rule := range w.cfg.OrderRules {
		if !rule.Enabled {
			continue
		}
		floor := floorForRule(rule, listings)
		orderPrice, _ := pricing.EvaluateOrderPrice(floor, rule)
		if orderPrice == nil {
			continue
		}

		capPrice := floor
		if capPrice != nil && rule.MaxOffer != nil && rule.MaxOffer.LessThan(*capPrice) {
			capPrice = rule.MaxOffer
		}
		if capPrice == nil {
			capPrice = rule.MaxOffer
		}

		key := orderActionKey(rule)
		if action, exists := w.actions[key]; exists {
			if action.Price.GreaterThanOrEqual(*orderPrice) {
				continue
			}
			if err := w.replaceOrder(ctx, action, rule, *orderPrice, capPrice); err != nil {
				w.log.Warn().Err(err).Str("rule", rule.Name).Msg("order update failed")
			}
			continue
		}
		if err := w.createOrder(ctx, rule, *orderPrice, capPrice); err != nil {
			w.log.Warn().Err(err).Str("rule", rule.Name).Msg("order failed")
		}
	}
}

func (w *Worker) createOrder(ctx context.Context, rule pricing.OfferOrderRule, price decimal.Decimal, capPrice *decimal.Decimal) error {
	key := orderActionKey(rule)
	selectorPayload := rule.Selector.OrderPayload()

	var expiresTs int64
	if rule.ExpirationSeconds > 0 {
		expiresTs = pricing.NowTs() + rule.ExpirationSeconds
	}

	if w.runtime.DryRun {
		w.log.Info().
			Str("rule", rule.Name).
			Str("price", pricing.FormatPrice(price)).
			Interface("selector", selectorPayload).
			Msg("DRY order")
		w.actions[key] = &ManagedAction{
			Key:         key,
			Kind:        ActionOrder,
			RuleName:    rule.Name,
			RemoteID:    "dry-" + key,
			SelectorKey: rule.Selector.Fingerprint(),
			Price:       price,
			CapPrice:    capPrice,
			CreatedTs:   pricing.NowTs(),
			ExpiresTs:   expiresTs,
			Extra:       selectorPayload,
		}
		return nil
	}

	payload, err := w.client.PlaceOrder(ctx, selectorPayload, price, rule.ExpirationDays)
	if err != nil {
		return err
	}
	w.actions[key] = &ManagedAction{
		Key:         key,
		Kind:        ActionOrder,
		RuleName:    rule.Name,
		RemoteID:    pricing.InferRemoteID(payload, "id", "order_id"),
		SelectorKey: rule.Selector.Fingerprint(),
		Price:       price,
		CapPrice:    capPrice,
		CreatedTs:   pricing.NowTs(),
		ExpiresTs:   expiresTs,
		Extra:       selectorPayload,
	}
	w.log.Info().
		Str("rule", rule.Name).
		Str("price", pricing.FormatPrice(price)).
		Msg("order placed")
	return nil
}

// replaceOrder is cancel-then-create: the marketplace has no order update
// endpoint.
func (w *Worker) replaceOrder(ctx context.Context, action *ManagedAction, rule pricing.OfferOrderRule, newPrice decimal.Decimal, capPrice *decimal.Decimal) error {
	if w.runtime.DryRun {
		w.log.Info().
			Str("rule", rule.Name).
			Str("from", pricing.FormatPrice(action.Price)).
			Str("to", pricing.FormatPrice(newPrice)).
			Msg("DRY order update")
		action.Price = newPrice
		action.CapPrice = capPrice
		return nil
	}

	if action.RemoteID != "" {
		if _, err := w.client.CancelOrder(ctx, action.RemoteID); err != nil {
			return err
		}
	}
	delete(w.actions, action.Key)
	return w.createOrder(ctx, rule, newPrice, capPrice)
}

func (w *Worker) cancelAction(ctx context.Context, action *ManagedAction) error {
	if w.runtime.DryRun {
		w.log.Info().Str("kind", string(action.Kind)).Str("key", action.Key).Msg("DRY cancel")
		delete(w.actions, action.Key)
		return nil
	}
	if action.RemoteID == "" {
		delete(w.actions, action.Key)
		return nil
	}
	var err error
	switch action.Kind {
	case ActionOffer:
		_, err = w.client.CancelOffer(ctx, action.RemoteID)
	case ActionOrder:
		_, err = w.client.CancelOrder(ctx, action.RemoteID)
	case ActionListing:
		_, err = w.client.CancelListing(ctx, action.RemoteID)
	}
	if err != nil {
		return err
	}
	delete(w.actions, action.Key)
	w.log.Info().Str("kind", string(action.Kind)).Str("key", action.Key).Msg("cancelled")
	return nil
}

func (w *Worker) autoCancelExpired(ctx context.Context) {
	ts := pricing.NowTs()
	var expired []*ManagedAction
	for _, action := range w.actions {
		if action.ExpiresTs > 0 && ts >= action.ExpiresTs {
			expired = append(expired, action)
		}
	}
	for _, action := range expired {
		if err := w.cancelAction(ctx, action); err != nil {
			w.log.Warn().Err(err).Str("key", action.Key).Msg("cancel failed")
		}
	}
}

// syncOfferOutbids refreshes our offers against competing bids. Gated by the
// orders poll interval since it needs a full my-offers fetch.
func (w *Worker) syncOfferOutbids(ctx context.Context) {
	if time.Since(w.lastOrdersPoll) < secondsDur(w.runtime.OrdersPollEverySec) {
		return
	}
	w.lastOrdersPoll = time.Now()

	myOffers, err := w.client.FetchMyOffers(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("my offers fetch failed")
		return
	}

	offersByNft := make(map[string]map[string]any, len(myOffers))
	for _, item := range myOffers {
		nftID := pricing.FirstString(item, "nft_id", "id")
		if nftID != "" {
			offersByNft[nftID] = item
		}
	}

	for _, action := range w.actions {
		if action.Kind != ActionOffer {
			continue
		}
		rule := w.findRule(action.RuleName)
		if rule == nil || !rule.BumpIfOutbid {
			continue
		}
		raw, ok := offersByNft[action.NFTID]
		if !ok {
			continue
		}
		if action.RemoteID == "" {
			action.RemoteID = pricing.InferRemoteID(raw, "id", "offer_id")
		}

		ownPrice := action.Price
		if d := pricing.FirstDecimal(raw, "offer_price", "price"); d != nil {
			ownPrice = *d
		}
		competitor := pricing.InferCompetitorPrice(raw, "nft", "item")
		target := pricing.ComputeBumpPrice(ownPrice, competitor, rule.OutbidStep, action.CapPrice)
		if target == nil {
			continue
		}

		if w.runtime.DryRun {
			w.log.Info().
				Str("nft", action.NFTID).
				Str("from", pricing.FormatPrice(ownPrice)).
				Str("to", pricing.FormatPrice(*target)).
				Msg("DRY offer outbid")
			action.Price = *target
			continue
		}

		if action.RemoteID == "" {
			continue
		}
		if _, err := w.client.CancelOffer(ctx, action.RemoteID); err != nil {
			w.log.Warn().Err(err).Str("nft", action.NFTID).Msg("offer bump failed")
			continue
		}
		payload, err := w.client.PlaceOffer(ctx, action.NFTID, *target, rule.ExpirationDays)
		if err != nil {
			w.log.Warn().Err(err).Str("nft", action.NFTID).Msg("offer bump failed")
			continue
		}
		if id := pricing.InferRemoteID(payload, "id", "offer_id"); id != "" {
			action.RemoteID = id
		}
		action.Price = *target
		action.CreatedTs = pricing.NowTs()
		w.log.Info().
			Str("nft", action.NFTID).
			Str("to", pricing.FormatPrice(*target)).
			Msg("offer bumped")
	}
}

func (w *Worker) syncOrderOutbids(ctx context.Context) {
	hasOrders := false
	for _, action := range w.actions {
		if action.Kind == ActionOrder {
			hasOrders = true
			break
		}
	}
	if !hasOrders {
		return
	}

	myOrders, err := w.client.FetchMyOrders(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("my orders fetch failed")
		return
	}

	for _, action := range w.actions {
		if action.Kind != ActionOrder {
			continue
		}
		rule := w.findRule(action.RuleName)
		if rule == nil || !rule.BumpIfOutbid {
			continue
		}

		var matched map[string]any
		for _, item := range myOrders {
			rid := pricing.FirstString(item, "id", "order_id")
			if action.RemoteID != "" && rid != "" && rid == action.RemoteID {
				matched = item
				break
			}
		}
		if matched == nil {
			continue
		}

		ownPrice := action.Price
		if d := pricing.FirstDecimal(matched, "order_price", "price"); d != nil {
			ownPrice = *d
		}
		competitor := pricing.InferCompetitorPrice(matched, "target", "market")
		target := pricing.ComputeBumpPrice(ownPrice, competitor, rule.OutbidStep, action.CapPrice)
		if target == nil {
			continue
		}

		if err := w.replaceOrder(ctx, action, *rule, *target, action.CapPrice); err != nil {
			w.log.Warn().Err(err).Str("rule", rule.Name).Msg("order bump failed")
			continue
		}
		w.log.Info().
			Str("rule", rule.Name).
			Str("to", pricing.FormatPrice(*target)).
			Msg("order bumped")
	}
}

func (w *Worker) matchSellRule(gift pricing.InventoryGift) *pricing.SellRule {
	for i := range w.cfg.SellRules {
		rule := &w.cfg.SellRules[i]
		if rule.Enabled && rule.Selector.MatchesGift(gift) {
			return rule
		}
	}
	return nil
}

// autoSell lists unlisted owned gifts that match a sell rule. Gated by the
// inventory poll interval.
func (w *Worker) autoSell(ctx context.Context, floorByTraits map[string]decimal.Decimal) {
	if time.Since(w.lastInventoryPoll) < secondsDur(w.runtime.InventoryPollEverySec) {
		return
	}
	w.lastInventoryPoll = time.Now()

	inventory, err := w.client.FetchMyInventory(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("inventory fetch failed")
		return
	}

	listedIDs := make(map[string]bool)
	if myListings, err := w.client.FetchMyListings(ctx, w.runtime.SearchLimit); err != nil {
		w.log.Warn().Err(err).Msg("my listings fetch failed")
	} else {
		for _, item := range myListings {
			if id := pricing.FirstString(item, "nft_id", "id"); id != "" {
				listedIDs[id] = true
			}
		}
	}

	for _, raw := range inventory {
		gift := pricing.ParseInventoryItem(raw)
		if gift.NFTID == "" || listedIDs[gift.NFTID] || gift.Listed {
			continue
		}
		rule := w.matchSellRule(gift)
		if rule == nil {
			continue
		}

		key := listingActionKey(gift.NFTID, *rule)
		if _, exists := w.actions[key]; exists {
			continue
		}

		var floor *decimal.Decimal
		if f, ok := floorByTraits[gift.TraitKey()]; ok {
			floor = &f
		}
		buyPrice, err := w.ledger.GetBuyPrice(w.account, gift.NFTID)
		if err != nil {
			w.log.Warn().Err(err).Str("nft", gift.NFTID).Msg("buy price lookup failed")
		}
		price, _ := pricing.ComputeSellPrice(floor, buyPrice, *rule)
		if price == nil {
			continue
		}

		var expiresTs int64
		if rule.ExpirationSeconds > 0 {
			expiresTs = pricing.NowTs() + rule.ExpirationSeconds
		}

		if w.runtime.DryRun {
			w.log.Info().
				Str("gift", gift.Name).
				Str("model", gift.Model).
				Str("background", gift.Background).
				Str("rule", rule.Name).
				Str("price", pricing.FormatPrice(*price)).
				Msg("DRY sell")
			w.actions[key] = &ManagedAction{
				Key:         key,
				Kind:        ActionListing,
				RuleName:    rule.Name,
				RemoteID:    "dry-" + key,
				NFTID:       gift.NFTID,
				SelectorKey: rule.Selector.Fingerprint(),
				Price:       *price,
				CapPrice:    rule.MaxSellPrice,
				CreatedTs:   pricing.NowTs(),
				ExpiresTs:   expiresTs,
			}
			continue
		}

		payload, err := w.client.CreateListing(ctx, gift.NFTID, *price, rule.ExpirationDays)
		if err != nil {
			w.log.Warn().Err(err).
				Str("nft", gift.NFTID).
				Str("rule", rule.Name).
				Msg("sell failed")
			continue
		}
		w.actions[key] = &ManagedAction{
			Key:         key,
			Kind:        ActionListing,
			RuleName:    rule.Name,
			RemoteID:    pricing.InferRemoteID(payload, "id", "listing_id"),
			NFTID:       gift.NFTID,
			SelectorKey: rule.Selector.Fingerprint(),
			Price:       *price,
			CapPrice:    rule.MaxSellPrice,
			CreatedTs:   pricing.NowTs(),
			ExpiresTs:   expiresTs,
		}
		w.log.Info().
			Str("gift", gift.Name).
			Str("model", gift.Model).
			Str("background", gift.Background).
			Str("rule", rule.Name).
			Str("price", pricing.FormatPrice(*price)).
			Msg("sell listed")
	}
}

// repriceListings undercuts a dropped competitor floor while never going
// below the rule minimum or the buy price plus markup. Gated by the listings
// poll interval.
func (w *Worker) repriceListings(ctx context.Context, floorByTraits map[string]decimal.Decimal) {
	if time.Since(w.lastListingsPoll) < secondsDur(w.runtime.ListingsPollEverySec) {
		return
	}
	w.lastListingsPoll = time.Now()

	myListings, err := w.client.FetchMyListings(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("my listings fetch failed")
		return
	}

	for _, raw := range myListings {
		nftID := pricing.FirstString(raw, "nft_id", "id")
		listingID := pricing.FirstString(raw, "listing_id", "id")
		price := pricing.FirstDecimal(raw, "price", "ask_price")
		if nftID == "" || listingID == "" || price == nil {
			continue
		}

		gift := pricing.ParseInventoryItem(raw)
		rule := w.matchSellRule(gift)
		if rule == nil || !rule.AutoRepriceBelowFloor {
			continue
		}

		var competitorFloor *decimal.Decimal
		if f, ok := floorByTraits[gift.TraitKey()]; ok {
			competitorFloor = &f
		}
		buyPrice, err := w.ledger.GetBuyPrice(w.account, nftID)
		if err != nil {
			w.log.Warn().Err(err).Str("nft", nftID).Msg("buy price lookup failed")
		}
		minPrice := rule.MinSellPrice
		if buyPrice != nil {
			minByMarkup := pricing.Quantize2(buyPrice.Mul(decimal.NewFromInt(1).Add(rule.MarkupPct.Div(decimal.NewFromInt(100)))))
			if minPrice == nil || minByMarkup.GreaterThan(*minPrice) {
				minPrice = &minByMarkup
			}
		}

		target := pricing.ComputeRepriceBelowFloor(competitorFloor, *price, rule.RepriceStep, minPrice)
		if target == nil {
			continue
		}

		if w.runtime.DryRun {
			w.log.Info().
				Str("listing", listingID).
				Str("nft", nftID).
				Str("from", pricing.FormatPrice(*price)).
				Str("to", pricing.FormatPrice(*target)).
				Msg("DRY reprice")
			continue
		}

		if _, err := w.client.UpdateListing(ctx, listingID, *target); err != nil {
			w.log.Warn().Err(err).Str("listing", listingID).Msg("reprice failed")
			continue
		}
		w.log.Info().
			Str("listing", listingID).
			Str("nft", nftID).
			Str("from", pricing.FormatPrice(*price)).
			Str("to", pricing.FormatPrice(*target)).
			Msg("repriced")
	}
}

// ingestActivity pulls the account's trade feed into the ledger and notifies
// on every newly recorded event. Gated by the activity poll interval.
func (w *Worker) ingestActivity(ctx context.Context) {
	if time.Since(w.lastActivityPoll) < secondsDur(w.runtime.ActivityPollEverySec) {
		return
	}
	w.lastActivityPoll = time.Now()

	activity, err := w.client.FetchActivity(ctx, w.runtime.SearchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("activity fetch failed")
		return
	}

	for _, event := range pricing.ExtractTradeEvents(w.account, activity) {
		created, err := w.ledger.RecordTrade(event)
		if err != nil {
			w.log.Error().Err(err).Str("event", event.EventID).Msg("ledger write failed")
			continue
		}
		if !created {
			continue
		}
		msg := fmt.Sprintf("%s: %s %s %s/%s %s",
			w.account,
			strings.ToUpper(string(event.Kind)),
			event.GiftName,
			event.Model,
			event.Background,
			pricing.FormatPrice(event.Price),
		)
		if w.notifier != nil {
			w.notifier.Notify(msg)
		}
		w.log.Info().Str("event", event.EventID).Msg(msg)
	}
}

// sleep waits for d or until cancellation; false means the context ended.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func isNetworkError(err error) bool {
	var transportErr *portal.TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
