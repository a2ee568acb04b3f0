package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// The marketplace returns loosely-shaped JSON objects. The parsers below map
// those raw bags into typed structs once, at the edge; nothing past this file
// walks an untyped map.

func str(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			switch x := v.(type) {
			case string:
				if s := strings.TrimSpace(x); s != "" {
					return s
				}
			case json.Number:
				// numeric ids show up as numbers in some responses
				return x.String()
			case float64:
				d := decimal.NewFromFloat(x)
				return d.String()
			}
		}
	}
	return ""
}

func boolField(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch x := m[key].(type) {
		case bool:
			if x {
				return true
			}
		case string:
			if x == "true" || x == "1" {
				return true
			}
		case json.Number:
			if f, err := x.Float64(); err == nil && f != 0 {
				return true
			}
		case float64:
			if x != 0 {
				return true
			}
		}
	}
	return false
}

// FirstString returns the first key holding a non-empty string, with numeric
// ids rendered as their decimal text.
func FirstString(m map[string]any, keys ...string) string {
	return str(m, keys...)
}

// FirstDecimal returns the first key that parses as a decimal.
func FirstDecimal(m map[string]any, keys ...string) *decimal.Decimal {
	for _, key := range keys {
		if d := ParseDecimal(m[key]); d != nil {
			return d
		}
	}
	return nil
}

func findAttr(attrs []any, keys ...string) string {
	lowered := map[string]bool{}
	for _, k := range keys {
		lowered[strings.ToLower(k)] = true
	}
	for _, raw := range attrs {
		attr, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(str(attr, "name", "trait_type")))
		if !lowered[title] {
			continue
		}
		if value := str(attr, "value"); value != "" {
			return value
		}
	}
	return ""
}

// ExtractTraits pulls the model and background of an item, from flat fields
// first, then from the attributes list.
func ExtractTraits(item map[string]any) (model, background string) {
	attrs, _ := item["attributes"].([]any)

	model = str(item, "model", "gift_model")
	if model == "" {
		model = findAttr(attrs, "model", "gift model")
	}
	background = str(item, "background", "gift_background")
	if background == "" {
		background = findAttr(attrs, "background", "bg", "back")
	}
	return model, background
}

// ParseListing maps a raw search result onto a MarketListing. The floor falls
// back to the ask when the server does not provide one.
func ParseListing(item map[string]any) MarketListing {
	ask := FirstDecimal(item, "price", "ask_price")
	floor := FirstDecimal(item, "floor_price", "collection_floor_price")
	if floor == nil {
		floor = ask
	}
	model, background := ExtractTraits(item)
	listedAt := ParseUnixTs(item["listed_at"])
	if listedAt == 0 {
		listedAt = ParseUnixTs(item["created_at"])
	}
	return MarketListing{
		NFTID:        str(item, "id", "nft_id"),
		Name:         str(item, "name", "gift_name"),
		CollectionID: str(item, "collection_id"),
		TgID:         str(item, "tg_id"),
		AskPrice:     ask,
		FloorPrice:   floor,
		ListedAtTs:   listedAt,
		Model:        model,
		Background:   background,
		IsCrafted:    boolField(item, "is_crafted"),
		Raw:          item,
	}
}

// ParseInventoryItem maps a raw inventory row onto an InventoryGift.
func ParseInventoryItem(item map[string]any) InventoryGift {
	model, background := ExtractTraits(item)
	return InventoryGift{
		NFTID:        str(item, "id", "nft_id"),
		Name:         str(item, "name", "gift_name"),
		CollectionID: str(item, "collection_id"),
		Model:        model,
		Background:   background,
		Listed:       boolField(item, "is_listed", "listed"),
		Raw:          item,
	}
}

// ExtractTradeEvents converts activity rows into trade events. Rows whose
// type does not mention a buy/purchase or sell, or that are missing an event
// id, nft id or price, are skipped.
func ExtractTradeEvents(account string, rows []map[string]any) []TradeEvent {
	out := make([]TradeEvent, 0, len(rows))
	for _, row := range rows {
		rawKind := strings.ToLower(strings.TrimSpace(str(row, "type", "event_type", "kind")))
		var kind TradeEventKind
		switch {
		case strings.Contains(rawKind, "buy"), strings.Contains(rawKind, "purchase"):
			kind = TradeBuy
		case strings.Contains(rawKind, "sell"):
			kind = TradeSell
		default:
			continue
		}

		eventID := str(row, "id", "event_id", "tx_id")
		if eventID == "" {
			continue
		}

		nft, _ := row["nft"].(map[string]any)
		nftID := str(row, "nft_id")
		if nftID == "" && nft != nil {
			nftID = str(nft, "id")
		}
		if nftID == "" {
			nftID = str(row, "id_nft")
		}
		if nftID == "" {
			continue
		}

		name := str(row, "name")
		model := str(row, "model")
		background := str(row, "background")
		if nft != nil {
			if name == "" {
				name = str(nft, "name")
			}
			if model == "" {
				model = str(nft, "model")
			}
			if background == "" {
				background = str(nft, "background")
			}
		}
		if name == "" {
			name = str(row, "gift_name")
		}

		price := FirstDecimal(row, "price", "amount", "sale_price", "total_price")
		if price == nil {
			continue
		}
		fee := FirstDecimal(row, "fee", "commission", "market_fee")
		if fee == nil {
			z := decimal.Zero
			fee = &z
		}
		ts := ParseUnixTs(row["created_at"])
		if ts == 0 {
			ts = ParseUnixTs(row["timestamp"])
		}
		if ts == 0 {
			ts = ParseUnixTs(row["date"])
		}
		if ts == 0 {
			ts = NowTs()
		}

		out = append(out, TradeEvent{
			Account:    account,
			EventID:    eventID,
			Kind:       kind,
			NFTID:      nftID,
			GiftName:   name,
			Model:      model,
			Background: background,
			Price:      *price,
			Fee:        *fee,
			Ts:         ts,
			Raw:        row,
		})
	}
	return out
}

// InferRemoteID digs the marketplace-assigned id out of a mutation response,
// trying the given keys at the top level, then inside the usual envelope
// sections.
func InferRemoteID(payload map[string]any, keys ...string) string {
	if id := str(payload, keys...); id != "" {
		return id
	}
	for _, sectionKey := range []string{"offer", "order", "listing", "result", "data"} {
		sec, ok := payload[sectionKey].(map[string]any)
		if !ok {
			continue
		}
		if id := str(sec, keys...); id != "" {
			return id
		}
		if id := str(sec, "id"); id != "" {
			return id
		}
	}
	return ""
}

var competitorKeys = []string{
	"top_offer_price",
	"best_offer_price",
	"highest_offer_price",
	"top_order_price",
	"best_order_price",
	"highest_order_price",
	"best_bid",
}

// InferCompetitorPrice locates the best competing bid in an own-offer or
// own-order row. The server sometimes nests those fields under a section
// named after the subject, so the given section keys are tried too.
func InferCompetitorPrice(item map[string]any, sectionKeys ...string) *decimal.Decimal {
	if d := FirstDecimal(item, competitorKeys...); d != nil {
		return d
	}
	for _, key := range sectionKeys {
		if nested, ok := item[key].(map[string]any); ok {
			if d := FirstDecimal(nested, competitorKeys...); d != nil {
				return d
			}
		}
	}
	return nil
}
