package engine

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/portal-sniper/internal/pricing"
)

// ActionKind is the kind of open position an action tracks.
type ActionKind string

const (
	ActionOffer   ActionKind = "offer"
	ActionOrder   ActionKind = "order"
	ActionListing ActionKind = "listing"
)

// ManagedAction is one open offer, order or listing owned by a worker. The
// key encodes kind, subject and rule, so the same nft under two rules yields
// two independent actions.
type ManagedAction struct {
	Key         string
	Kind        ActionKind
	RuleName    string
	RemoteID    string
	NFTID       string
	SelectorKey string
	Price       decimal.Decimal
	CapPrice    *decimal.Decimal
	CreatedTs   int64
	ExpiresTs   int64 // 0 means no expiry
	Extra       map[string]any
}

func offerActionKey(nftID string, rule pricing.OfferOrderRule) string {
	return "offer:" + nftID + ":" + rule.Name
}

func orderActionKey(rule pricing.OfferOrderRule) string {
	return "order:" + rule.Name + ":" + rule.Selector.Fingerprint()
}

func listingActionKey(nftID string, rule pricing.SellRule) string {
	return "listing:" + nftID + ":" + rule.Name
}

// seenCache is an insertion-ordered set of nft ids with a hard size bound;
// when full, the oldest entry is evicted. Not safe for concurrent use, each
// worker owns its own.
type seenCache struct {
	set   map[string]struct{}
	order []string
	head  int
	limit int
}

func newSeenCache(limit int) *seenCache {
	if limit < 1 {
		limit = 1
	}
	return &seenCache{set: make(map[string]struct{}), limit: limit}
}

func (c *seenCache) Has(id string) bool {
	_, ok := c.set[id]
	return ok
}

func (c *seenCache) Add(id string) {
	if c.Has(id) {
		return
	}
	c.order = append(c.order, id)
	c.set[id] = struct{}{}
	if len(c.set) > c.limit {
		delete(c.set, c.order[c.head])
		c.head++
		c.compact()
	}
}

func (c *seenCache) Len() int {
	return len(c.set)
}

// compact drops the consumed prefix once it dominates the backing slice.
func (c *seenCache) compact() {
	if c.head < 1024 || c.head < len(c.order)/2 {
		return
	}
	c.order = append([]string(nil), c.order[c.head:]...)
	c.head = 0
}
