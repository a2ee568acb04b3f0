// Package portal implements the Portal marketplace REST client.
//
// The client is the only place that talks HTTP: it carries the bearer
// authorization, the browser-shaped headers the marketplace expects, a unique
// x-request-id per request, and unwraps the {results: [...]} envelopes into
// raw rows for the parsers in internal/pricing.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/config"
	"github.com/web3guy0/portal-sniper/internal/pricing"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/144.0.0.0 Safari/537.36"

// TransportError is any non-2xx marketplace response. The message is taken
// from the body's "message" field when the body is a JSON object, otherwise
// the raw body.
type TransportError struct {
	Code    int
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Client is a per-account marketplace API client.
type Client struct {
	http   *resty.Client
	routes config.Routes
}

// NewClient builds a client for one account's authorization header.
func NewClient(apiBase, authHeader string, routes config.Routes, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(apiBase, "/")).
		SetTimeout(timeout).
		SetHeader("accept", "application/json, text/plain, */*").
		SetHeader("authorization", authHeader).
		SetHeader("origin", "https://portals.tg").
		SetHeader("referer", "https://portals.tg/").
		SetHeader("user-agent", userAgent)

	return &Client{http: httpClient, routes: routes}
}

func clampExpiration(days int) int {
	if days < 1 {
		return 1
	}
	if days > 30 {
		return 30
	}
	return days
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("x-request-id", uuid.NewString())
}

// decodeBody parses a response body with json.Number so prices survive
// untouched. Non-JSON bodies come back wrapped as {"raw": <text>}.
func decodeBody(body []byte) any {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return map[string]any{"raw": string(body)}
	}
	return payload
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() < 400 {
		return nil
	}
	message := resp.String()
	if payload, ok := decodeBody(resp.Body()).(map[string]any); ok {
		if m, ok := payload["message"].(string); ok && m != "" {
			message = m
		}
	}
	return &TransportError{Code: resp.StatusCode(), Message: message}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (any, error) {
	resp, err := c.newRequest(ctx).SetQueryParams(params).Get(path)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return decodeBody(resp.Body()), nil
}

func (c *Client) mutate(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	req := c.newRequest(ctx)
	if body != nil {
		req.SetHeader("content-type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	payload := decodeBody(resp.Body())
	if obj, ok := payload.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"response": payload}, nil
}

// unwrapRows accepts either a bare JSON array or a {results: [...]} envelope
// and returns the object rows.
func unwrapRows(payload any) []map[string]any {
	list, ok := payload.([]any)
	if !ok {
		if obj, isObj := payload.(map[string]any); isObj {
			list, _ = obj["results"].([]any)
		}
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func limitParam(limit int) string {
	if limit < 1 {
		limit = 1
	}
	return strconv.Itoa(limit)
}

// CheckAuth is a cheap reachability and authorization probe.
func (c *Client) CheckAuth(ctx context.Context) error {
	_, err := c.get(ctx, c.routes.SearchListings, map[string]string{"limit": "1"})
	return err
}

// FetchLatestListings returns the newest-first page of listed, non-bundled
// items.
func (c *Client) FetchLatestListings(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.SearchListings, map[string]string{
		"offset":          "0",
		"limit":           limitParam(limit),
		"sort_by":         "listed_at desc",
		"search":          "",
		"exclude_bundled": "true",
		"status":          "listed",
	})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchRecentSales returns recent sales filtered down to a trait
// combination; empty filters are omitted from the query.
func (c *Client) FetchRecentSales(ctx context.Context, collectionID, model, background string, limit int) ([]map[string]any, error) {
	params := map[string]string{"limit": limitParam(limit)}
	if collectionID != "" {
		params["collection_id"] = collectionID
	}
	if model != "" {
		params["model"] = model
	}
	if background != "" {
		params["background"] = background
	}
	payload, err := c.get(ctx, c.routes.RecentSales, params)
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchMyOffers lists this account's open offers.
func (c *Client) FetchMyOffers(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.MyOffers, map[string]string{"limit": limitParam(limit)})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchMyOrders lists this account's open collection-wide orders.
func (c *Client) FetchMyOrders(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.MyOrders, map[string]string{"limit": limitParam(limit)})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchMyInventory lists this account's owned gifts.
func (c *Client) FetchMyInventory(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.Inventory, map[string]string{
		"limit":  limitParam(limit),
		"status": "owned",
	})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchMyListings lists this account's active sell listings.
func (c *Client) FetchMyListings(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.MyListings, map[string]string{
		"limit":  limitParam(limit),
		"status": "listed",
	})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// FetchActivity lists this account's trade activity, newest first.
func (c *Client) FetchActivity(ctx context.Context, limit int) ([]map[string]any, error) {
	payload, err := c.get(ctx, c.routes.Activity, map[string]string{"limit": limitParam(limit)})
	if err != nil {
		return nil, err
	}
	return unwrapRows(payload), nil
}

// PlaceOffer bids on a specific listing.
func (c *Client) PlaceOffer(ctx context.Context, nftID string, price decimal.Decimal, expirationDays int) (map[string]any, error) {
	return c.mutate(ctx, resty.MethodPost, c.routes.CreateOffer, map[string]any{
		"offer": map[string]any{
			"nft_id":          nftID,
			"offer_price":     pricing.FormatPrice(price),
			"expiration_days": clampExpiration(expirationDays),
		},
	})
}

// CancelOffer withdraws an offer by its marketplace id.
func (c *Client) CancelOffer(ctx context.Context, offerID string) (map[string]any, error) {
	path := strings.ReplaceAll(c.routes.CancelOffer, "{offer_id}", offerID)
	return c.mutate(ctx, resty.MethodDelete, path, nil)
}

// PlaceOrder creates a collection-wide order from the selector payload.
func (c *Client) PlaceOrder(ctx context.Context, selectorPayload map[string]any, price decimal.Decimal, expirationDays int) (map[string]any, error) {
	order := map[string]any{
		"order_price":     pricing.FormatPrice(price),
		"expiration_days": clampExpiration(expirationDays),
	}
	for k, v := range selectorPayload {
		order[k] = v
	}
	return c.mutate(ctx, resty.MethodPost, c.routes.CreateOrder, map[string]any{"order": order})
}

// CancelOrder withdraws a collection-wide order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (map[string]any, error) {
	path := strings.ReplaceAll(c.routes.CancelOrder, "{order_id}", orderID)
	return c.mutate(ctx, resty.MethodDelete, path, nil)
}

// CreateListing puts an owned gift up for sale.
func (c *Client) CreateListing(ctx context.Context, nftID string, price decimal.Decimal, expirationDays int) (map[string]any, error) {
	return c.mutate(ctx, resty.MethodPost, c.routes.CreateListing, map[string]any{
		"listing": map[string]any{
			"nft_id":          nftID,
			"price":           pricing.FormatPrice(price),
			"expiration_days": clampExpiration(expirationDays),
		},
	})
}

// UpdateListing reprices an existing listing.
func (c *Client) UpdateListing(ctx context.Context, listingID string, price decimal.Decimal) (map[string]any, error) {
	path := strings.ReplaceAll(c.routes.UpdateListing, "{listing_id}", listingID)
	return c.mutate(ctx, resty.MethodPatch, path, map[string]any{
		"listing": map[string]any{"price": pricing.FormatPrice(price)},
	})
}

// CancelListing removes a listing.
func (c *Client) CancelListing(ctx context.Context, listingID string) (map[string]any, error) {
	path := strings.ReplaceAll(c.routes.CancelListing, "{listing_id}", listingID)
	return c.mutate(ctx, resty.MethodDelete, path, nil)
}
