package pricing

import (
	"encoding/json"
	"testing"
)

func TestParseListing(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"id":            "n1",
		"name":          "Astral Shard",
		"collection_id": "c1",
		"tg_id":         "AstralShard-1",
		"price":         json.Number("1.50"),
		"floor_price":   "1.40",
		"listed_at":     "2023-11-14T22:13:20Z",
		"is_crafted":    true,
		"attributes": []any{
			map[string]any{"name": "Model", "value": "Onyx"},
			map[string]any{"trait_type": "Background", "value": "Midnight"},
		},
	}
	l := ParseListing(raw)

	if l.NFTID != "n1" || l.Name != "Astral Shard" || l.CollectionID != "c1" {
		t.Fatalf("identity fields wrong: %+v", l)
	}
	if l.AskPrice == nil || l.AskPrice.String() != "1.5" {
		t.Errorf("ask = %v", l.AskPrice)
	}
	if l.FloorPrice == nil || l.FloorPrice.String() != "1.4" {
		t.Errorf("floor = %v", l.FloorPrice)
	}
	if l.ListedAtTs != 1700000000 {
		t.Errorf("listed_at = %d", l.ListedAtTs)
	}
	if l.Model != "Onyx" || l.Background != "Midnight" {
		t.Errorf("traits = %q/%q", l.Model, l.Background)
	}
	if !l.IsCrafted {
		t.Error("is_crafted lost")
	}
	if l.TraitKey() != "c1|onyx|midnight" {
		t.Errorf("trait key = %q", l.TraitKey())
	}
}

func TestParseListingFloorFallsBackToAsk(t *testing.T) {
	t.Parallel()

	l := ParseListing(map[string]any{"id": "n1", "price": "2.00"})
	if l.FloorPrice == nil || !l.FloorPrice.Equal(*l.AskPrice) {
		t.Fatalf("floor = %v, ask = %v", l.FloorPrice, l.AskPrice)
	}
}

func TestParseListingFlatTraitsWinOverAttributes(t *testing.T) {
	t.Parallel()

	l := ParseListing(map[string]any{
		"id":    "n1",
		"model": "Jade",
		"attributes": []any{
			map[string]any{"name": "Model", "value": "Onyx"},
		},
	})
	if l.Model != "Jade" {
		t.Fatalf("model = %q, want flat field to win", l.Model)
	}
}

func TestExtractTradeEvents(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{
			"id":    "e1",
			"type":  "purchase",
			"price": json.Number("1.00"),
			"fee":   "0.05",
			"nft": map[string]any{
				"id":         "n1",
				"name":       "Astral Shard",
				"model":      "Onyx",
				"background": "Midnight",
			},
			"created_at": "2023-11-14T22:13:20Z",
		},
		{"id": "e2", "type": "sell", "price": "2.50", "nft_id": "n2"},
		{"id": "e3", "type": "offer_placed", "price": "1.00", "nft_id": "n3"}, // not a trade
		{"type": "buy", "price": "1.00", "nft_id": "n4"},                     // no event id
		{"id": "e5", "type": "buy", "nft_id": "n5"},                          // no price
	}

	events := ExtractTradeEvents("main", rows)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	buy := events[0]
	if buy.Kind != TradeBuy || buy.EventID != "e1" || buy.NFTID != "n1" {
		t.Fatalf("buy event: %+v", buy)
	}
	if buy.GiftName != "Astral Shard" || buy.Model != "Onyx" || buy.Background != "Midnight" {
		t.Errorf("nested nft fields: %+v", buy)
	}
	if FormatPrice(buy.Price) != "1.00" || FormatPrice(buy.Fee) != "0.05" {
		t.Errorf("price/fee: %s/%s", buy.Price, buy.Fee)
	}
	if buy.Ts != 1700000000 {
		t.Errorf("ts = %d", buy.Ts)
	}

	sell := events[1]
	if sell.Kind != TradeSell || sell.NFTID != "n2" {
		t.Fatalf("sell event: %+v", sell)
	}
	if !sell.Fee.IsZero() {
		t.Errorf("missing fee should default to zero, got %s", sell.Fee)
	}
	if sell.Ts == 0 {
		t.Error("missing ts should fall back to now")
	}
}

func TestInferRemoteID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"top level id", map[string]any{"id": "42"}, "42"},
		{"top level offer_id", map[string]any{"offer_id": "o7"}, "o7"},
		{"nested offer section", map[string]any{"offer": map[string]any{"id": "o9"}}, "o9"},
		{"nested data section", map[string]any{"data": map[string]any{"id": "d3"}}, "d3"},
		{"numeric id", map[string]any{"id": json.Number("1001")}, "1001"},
		{"missing", map[string]any{"status": "ok"}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := InferRemoteID(tt.payload, "id", "offer_id"); got != tt.want {
				t.Fatalf("InferRemoteID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferCompetitorPrice(t *testing.T) {
	t.Parallel()

	if d := InferCompetitorPrice(map[string]any{"top_offer_price": "0.85"}); d == nil || d.String() != "0.85" {
		t.Fatalf("flat competitor = %v", d)
	}
	nested := map[string]any{"nft": map[string]any{"best_offer_price": "0.90"}}
	if d := InferCompetitorPrice(nested, "nft"); d == nil || d.String() != "0.9" {
		t.Fatalf("nested competitor = %v", d)
	}
	if d := InferCompetitorPrice(map[string]any{"price": "1.00"}); d != nil {
		t.Fatalf("unrelated field matched: %v", d)
	}
}
