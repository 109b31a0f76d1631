package api

import (
	"strings"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
)

var enumReplacer = strings.NewReplacer("-", "_", " ", "_")

// enumValue normalizes an enum-like value to its wire spelling, e.g. "price-asc" → "PRICE_ASC".
func enumValue(s string) string {
	return strings.ToUpper(enumReplacer.Replace(strings.TrimSpace(s)))
}

// BuildFilterInput translates AppliedFilters into the wire ListingFilter
// object. Empty fields are omitted and every dynamic attribute selection is
// folded into the single specs map.
func BuildFilterInput(f catalog.AppliedFilters) map[string]any {
	in := map[string]any{
		"categorySlug": f.CategorySlug,
	}

	if f.ListingType != "" {
		in["listingType"] = enumValue(f.ListingType)
	}
	if f.PriceMin != nil {
		in["priceFrom"] = *f.PriceMin
	}
	if f.PriceMax != nil {
		in["priceTo"] = *f.PriceMax
	}
	if f.Currency != "" {
		in["currency"] = enumValue(f.Currency)
	}
	if f.Province != "" {
		in["province"] = f.Province
	}
	if f.City != "" {
		in["city"] = f.City
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		in["search"] = s
	}
	if f.SortBy != "" {
		in["sortBy"] = enumValue(f.SortBy)
	}

	keys := f.SpecKeys()
	if len(keys) > 0 {
		specs := make(map[string]any, len(keys))
		for _, k := range keys {
			specs[k] = f.Specs[k].WireValue()
		}
		in["specs"] = specs
	}

	return in
}
