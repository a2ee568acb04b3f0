package pricing

import (
	"strconv"
	"strings"
)

// Selector is a conjunction of optional filters over listings and inventory
// gifts. Empty slices match everything; non-empty slices require a
// case-insensitive match of the corresponding attribute. All slices are kept
// lowercased, sorted and deduplicated so that two selectors with the same
// filters produce the same fingerprint.
type Selector struct {
	CollectionIDs     []string
	GiftNames         []string
	NameContains      []string
	Models            []string
	Backgrounds       []string
	OnlyRecentSeconds int64
}

// Fingerprint is a stable string of the normalized filter tuple, used as a
// map key for collection-wide order actions.
func (s Selector) Fingerprint() string {
	return strings.Join([]string{
		strings.Join(s.CollectionIDs, ","),
		strings.Join(s.GiftNames, ","),
		strings.Join(s.NameContains, ","),
		strings.Join(s.Models, ","),
		strings.Join(s.Backgrounds, ","),
		strconv.FormatInt(s.OnlyRecentSeconds, 10),
	}, "|")
}

func (s Selector) matchesCollection(collectionID string) bool {
	if len(s.CollectionIDs) == 0 {
		return true
	}
	return containsFold(s.CollectionIDs, collectionID)
}

func (s Selector) matchesName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(s.GiftNames) > 0 && !contains(s.GiftNames, n) {
		return false
	}
	if len(s.NameContains) > 0 {
		any := false
		for _, part := range s.NameContains {
			if strings.Contains(n, part) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func (s Selector) matchesTraits(model, background string) bool {
	if len(s.Models) > 0 && !containsFold(s.Models, model) {
		return false
	}
	if len(s.Backgrounds) > 0 && !containsFold(s.Backgrounds, background) {
		return false
	}
	return true
}

// MatchesListing reports whether the listing passes every configured filter,
// including the freshness window against listed_at.
func (s Selector) MatchesListing(l MarketListing) bool {
	if !s.matchesCollection(l.CollectionID) {
		return false
	}
	if !s.matchesName(l.Name) {
		return false
	}
	if !s.matchesTraits(l.Model, l.Background) {
		return false
	}
	if s.OnlyRecentSeconds > 0 && l.ListedAtTs > 0 {
		if NowTs()-l.ListedAtTs > s.OnlyRecentSeconds {
			return false
		}
	}
	return true
}

// MatchesGift applies the same filters to an inventory gift. There is no
// freshness window for owned items.
func (s Selector) MatchesGift(g InventoryGift) bool {
	return s.matchesCollection(g.CollectionID) &&
		s.matchesName(g.Name) &&
		s.matchesTraits(g.Model, g.Background)
}

// OrderPayload maps the selector onto the collection-wide order body: the
// first element of each non-empty filter becomes the corresponding field.
func (s Selector) OrderPayload() map[string]any {
	payload := map[string]any{}
	if len(s.CollectionIDs) > 0 {
		payload["collection_id"] = s.CollectionIDs[0]
	}
	if len(s.GiftNames) > 0 {
		payload["gift_name"] = s.GiftNames[0]
	}
	if len(s.Models) > 0 {
		payload["model"] = s.Models[0]
	}
	if len(s.Backgrounds) > 0 {
		payload["background"] = s.Backgrounds[0]
	}
	return payload
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	return contains(list, strings.ToLower(strings.TrimSpace(v)))
}

// TraitKey is the unit of aggregation for floors and liquidity:
// lower(collection)|lower(model)|lower(background).
func TraitKey(collectionID, model, background string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(collectionID)),
		strings.ToLower(strings.TrimSpace(model)),
		strings.ToLower(strings.TrimSpace(background)),
	}, "|")
}
