package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "tma token", defaultTestRoutes(), 2*time.Second)
}

func defaultTestRoutes() config.Routes {
	return config.Routes{
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

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"results": []}`))
	})

	if _, err := c.FetchLatestListings(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if got.Get("authorization") != "tma token" {
		t.Errorf("authorization = %q", got.Get("authorization"))
	}
	if got.Get("origin") != "https://portals.tg" {
		t.Errorf("origin = %q", got.Get("origin"))
	}
	if got.Get("x-request-id") == "" {
		t.Error("x-request-id missing")
	}
	if got.Get("user-agent") == "" {
		t.Error("user-agent missing")
	}
}

func TestRequestIDUniquePerRequest(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen[r.Header.Get("x-request-id")] = true
		w.Write([]byte(`[]`))
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.FetchActivity(ctx, 5); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("got %d distinct request ids, want 3", len(seen))
	}
}

func TestTransportErrorMessageExtraction(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "invalid token"}`))
	})

	err := c.CheckAuth(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if transportErr.Code != http.StatusForbidden || transportErr.Message != "invalid token" {
		t.Fatalf("got %+v", transportErr)
	}
}

func TestTransportErrorRawBody(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	err := c.CheckAuth(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v", err)
	}
	if transportErr.Message != "upstream down" {
		t.Errorf("message = %q", transportErr.Message)
	}
}

func TestFetchLatestListingsParams(t *testing.T) {
	t.Parallel()

	var query map[string]string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"results": [{"id": "n1"}, {"id": "n2"}]}`))
	})

	rows, err := c.FetchLatestListings(context.Background(), 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	want := map[string]string{
		"offset":          "0",
		"limit":           "60",
		"sort_by":         "listed_at desc",
		"exclude_bundled": "true",
		"status":          "listed",
	}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("param %s = %q, want %q", k, query[k], v)
		}
	}
}

func TestUnwrapBareArray(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": "a"}, "junk", {"id": "b"}]`))
	})
	rows, err := c.FetchMyOffers(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (non-object skipped)", len(rows))
	}
}

func TestPricesDecodeAsNumbersNotFloats(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"id": "n1", "price": 0.1}]}`))
	})
	rows, err := c.FetchLatestListings(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	num, ok := rows[0]["price"].(json.Number)
	if !ok {
		t.Fatalf("price decoded as %T, want json.Number", rows[0]["price"])
	}
	if num.String() != "0.1" {
		t.Errorf("price = %q", num)
	}
}

func TestPlaceOfferBody(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"offer": {"id": "o1"}}`))
	})

	payload, err := c.PlaceOffer(context.Background(), "n1", decimal.RequireFromString("0.8"), 45)
	if err != nil {
		t.Fatal(err)
	}

	offer, _ := body["offer"].(map[string]any)
	if offer == nil {
		t.Fatalf("body = %v", body)
	}
	if offer["nft_id"] != "n1" {
		t.Errorf("nft_id = %v", offer["nft_id"])
	}
	if offer["offer_price"] != "0.80" {
		t.Errorf("offer_price = %v, want 2-dp string", offer["offer_price"])
	}
	// expiration clamped to 30
	if days, ok := offer["expiration_days"].(float64); !ok || days != 30 {
		t.Errorf("expiration_days = %v, want 30", offer["expiration_days"])
	}
	if sec, ok := payload["offer"].(map[string]any); !ok || sec["id"] != "o1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestCancelOfferPath(t *testing.T) {
	t.Parallel()

	var gotPath, gotMethod string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"status": "ok"}`))
	})

	if _, err := c.CancelOffer(context.Background(), "o42"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/offers/o42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q", gotMethod)
	}
}

func TestUpdateListingPatch(t *testing.T) {
	t.Parallel()

	var gotMethod string
	var body map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{}`))
	})

	if _, err := c.UpdateListing(context.Background(), "l7", decimal.RequireFromString("4.79")); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q", gotMethod)
	}
	listing, _ := body["listing"].(map[string]any)
	if listing == nil || listing["price"] != "4.79" {
		t.Errorf("body = %v", body)
	}
}

func TestPlaceOrderMergesSelector(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"order": {"id": "ord1"}}`))
	})

	selector := map[string]any{"collection_id": "c1", "model": "onyx"}
	if _, err := c.PlaceOrder(context.Background(), selector, decimal.RequireFromString("2.25"), 7); err != nil {
		t.Fatal(err)
	}
	order, _ := body["order"].(map[string]any)
	if order == nil {
		t.Fatalf("body = %v", body)
	}
	if order["order_price"] != "2.25" || order["collection_id"] != "c1" || order["model"] != "onyx" {
		t.Errorf("order body = %v", order)
	}
}
