// Package catalog defines the marketplace data model shared by the filter engine,
// the listing coordinator and the transport gateway.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// AttributeType is the declared type of a filterable attribute.
type AttributeType string

const (
	// TypeSingleSelect allows exactly one option to be selected.
	TypeSingleSelect AttributeType = "single_select"

	// TypeMultiSelect allows any number of options to be selected.
	TypeMultiSelect AttributeType = "multi_select"

	// TypeRange is a free numeric {from,to} range.
	TypeRange AttributeType = "range"

	// TypeRangeBuckets is a numeric range with predefined buckets.
	TypeRangeBuckets AttributeType = "range_buckets"

	// TypeCurrencyRange is a price-like range bound to a currency.
	TypeCurrencyRange AttributeType = "currency_range"

	// TypeText is a free text attribute.
	TypeText AttributeType = "text"
)

// Keys of attributes whose options are derived from aggregation results only.
const (
	KeyBrand    = "brandId"
	KeyModel    = "modelId"
	KeyVariant  = "variantId"
	KeyLocation = "location"
)

// ParseAttributeType maps a wire spelling onto an AttributeType.
// Matching is case-insensitive and ignores '-' and '_' separators.
func ParseAttributeType(s string) (AttributeType, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch norm {
	case "select", "singleselect", "single", "dropdown":
		return TypeSingleSelect, nil
	case "multiselect", "multi", "checkbox":
		return TypeMultiSelect, nil
	case "range", "number", "numeric", "numericrange":
		return TypeRange, nil
	case "rangebuckets", "rangeselect", "bucketrange":
		return TypeRangeBuckets, nil
	case "currencyrange", "currency", "price":
		return TypeCurrencyRange, nil
	case "text", "string", "freetext":
		return TypeText, nil
	default:
		return "", fmt.Errorf("unknown attribute type %q", s)
	}
}

// IsRange reports whether values of this type are {from,to} ranges.
func (t AttributeType) IsRange() bool {
	return t == TypeRange || t == TypeRangeBuckets || t == TypeCurrencyRange
}

// IsAggregationDriven reports whether the options of the attribute with the given
// key come exclusively from aggregation responses.
func IsAggregationDriven(key string) bool {
	switch key {
	case KeyBrand, KeyModel, KeyVariant:
		return true
	default:
		return false
	}
}

// AttributeOption is a static option of an attribute.
type AttributeOption struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"isActive"`
}

// Attribute is a filterable field definition of a category.
type Attribute struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Type         AttributeType     `json:"type"`
	SortOrder    int               `json:"sortOrder"`
	Group        string            `json:"group,omitempty"`
	GroupOrder   int               `json:"groupOrder"`
	ShowInFilter bool              `json:"showInFilter"`
	ShowInGrid   bool              `json:"showInGrid"`
	ShowInList   bool              `json:"showInList"`
	ShowInDetail bool              `json:"showInDetail"`
	Options      []AttributeOption `json:"options,omitempty"`
}

// Structural returns a deep copy of the attribute holding only its structural
// definition. Aggregation-driven attributes lose their static options.
func (a Attribute) Structural() Attribute {
	out := a
	if IsAggregationDriven(a.Key) || len(a.Options) == 0 {
		out.Options = nil
		return out
	}
	out.Options = make([]AttributeOption, len(a.Options))
	copy(out.Options, a.Options)
	return out
}

// ProcessedOption is an option carrying its live listing count.
type ProcessedOption struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	SortOrder int    `json:"sortOrder"`
	Count     int    `json:"count"`

	// ParentKey groups a variant under its model.
	ParentKey string `json:"parentKey,omitempty"`

	// HasVariants marks a model rendered as a non-selectable group header.
	HasVariants bool `json:"hasVariants,omitempty"`
}

// Selectable reports whether the option may be picked. Zero-count options stay
// selectable so the user can pivot into a currently empty combination.
func (o ProcessedOption) Selectable() bool {
	return !o.HasVariants
}

// Muted reports whether the option should render de-emphasized.
func (o ProcessedOption) Muted() bool {
	return o.Count == 0
}

// ProcessedAttribute is an Attribute with options counted against the filter
// state that produced them. It is derived fresh for every aggregation call.
type ProcessedAttribute struct {
	Attribute
	ProcessedOptions []ProcessedOption `json:"processedOptions"`
}

// Option returns the processed option with the given key.
func (p ProcessedAttribute) Option(key string) (ProcessedOption, bool) {
	for _, o := range p.ProcessedOptions {
		if o.Key == key {
			return o, true
		}
	}
	return ProcessedOption{}, false
}

// TotalCount sums the counts of all processed options.
func (p ProcessedAttribute) TotalCount() int {
	total := 0
	for _, o := range p.ProcessedOptions {
		total += o.Count
	}
	return total
}

// SortAttributes orders attributes by group order, then sort order, then key.
func SortAttributes(attrs []ProcessedAttribute) {
	sort.SliceStable(attrs, func(i, j int) bool {
		a, b := attrs[i], attrs[j]
		if a.GroupOrder != b.GroupOrder {
			return a.GroupOrder < b.GroupOrder
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Key < b.Key
	})
}

// FindAttribute returns the processed attribute with the given key.
func FindAttribute(attrs []ProcessedAttribute, key string) (ProcessedAttribute, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a, true
		}
	}
	return ProcessedAttribute{}, false
}
