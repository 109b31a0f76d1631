package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
)

// SpecPrefix marks query parameters carrying attribute selections, e.g.
// spec.brandId=toyota or spec.year=2018..2021.
const SpecPrefix = "spec."

// ParseSelection builds the applied filters of category slug from query
// parameters. Spec values are resolved against the attribute schema base; a
// repeated parameter is a multi-value selection and "from..to" is a range
// with either bound optional.
func ParseSelection(slug string, params url.Values, base []catalog.Attribute) (catalog.AppliedFilters, error) {
	f := catalog.AppliedFilters{
		CategorySlug: slug,
		ListingType:  params.Get("listingType"),
		Currency:     params.Get("currency"),
		Province:     params.Get("province"),
		City:         params.Get("city"),
		Search:       params.Get("q"),
		SortBy:       params.Get("sort"),
	}

	var err error
	if f.PriceMin, err = optionalFloat(params, "priceMin"); err != nil {
		return f, err
	}
	if f.PriceMax, err = optionalFloat(params, "priceMax"); err != nil {
		return f, err
	}

	attrs := make(map[string]catalog.Attribute, len(base))
	for _, a := range base {
		attrs[a.Key] = a
	}

	for name, values := range params {
		key, ok := strings.CutPrefix(name, SpecPrefix)
		if !ok || len(values) == 0 {
			continue
		}
		if key == catalog.KeyLocation {
			f.Province = values[0]
			continue
		}
		attr, ok := attrs[key]
		if !ok {
			return f, fmt.Errorf("%w: unknown attribute %q", catalog.ErrInvalidFilterValue, key)
		}

		v, err := catalog.NewFilterValue(attr, rawValue(attr, values))
		if err != nil {
			return f, err
		}
		f = f.WithSpec(key, v)
	}

	return f, nil
}

func rawValue(attr catalog.Attribute, values []string) any {
	switch {
	case attr.Type.IsRange():
		from, to, _ := strings.Cut(values[0], catalog.RangeSeparator)
		r := map[string]any{}
		if from != "" {
			r["from"] = from
		}
		if to != "" {
			r["to"] = to
		}
		return r
	case attr.Type == catalog.TypeMultiSelect:
		var out []string
		for _, v := range values {
			out = append(out, strings.Split(v, ",")...)
		}
		return out
	case len(values) == 1:
		return values[0]
	default:
		return values
	}
}

func optionalFloat(params url.Values, key string) (*float64, error) {
	s := params.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", catalog.ErrInvalidFilterValue, key, err)
	}
	return &v, nil
}
