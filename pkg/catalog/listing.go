package catalog

import (
	"bytes"
	"encoding/json"
	"time"
)

// Listing is a marketplace listing as rendered by the browsing views.
// Fields not requested by the active view shape stay zero.
type Listing struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Price        float64        `json:"price"`
	Currency     string         `json:"currency"`
	Province     string         `json:"province,omitempty"`
	City         string         `json:"city,omitempty"`
	CategorySlug string         `json:"categorySlug,omitempty"`
	ListingType  string         `json:"listingType,omitempty"`
	Status       string         `json:"status,omitempty"`
	Thumbnail    string         `json:"thumbnail,omitempty"`
	Images       []string       `json:"images,omitempty"`
	SellerID     string         `json:"sellerId,omitempty"`
	ViewCount    int            `json:"viewCount,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	Specs        map[string]any `json:"specs"`
}

// DecodeSpecs decodes an embedded specs blob. The blob may be a JSON object or
// a JSON string holding a serialized object. Anything malformed decodes to an
// empty map; this never fails.
func DecodeSpecs(raw []byte) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return map[string]any{}
		}
		return DecodeSpecs([]byte(inner))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
