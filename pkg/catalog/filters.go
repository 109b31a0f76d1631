package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidFilterValue is returned when a raw value does not fit an attribute's type.
	ErrInvalidFilterValue = errors.New("invalid filter value")

	// ErrNoCategory is returned when an operation needs a category slug and got none.
	ErrNoCategory = errors.New("no category")
)

// RangeSeparator splits the textual form of a range, "from..to" with either
// side optional.
const RangeSeparator = ".."

// ValueKind discriminates the FilterValue variants.
type ValueKind string

const (
	KindScalar ValueKind = "scalar"
	KindMulti  ValueKind = "multi"
	KindRange  ValueKind = "range"
	KindText   ValueKind = "text"
)

// FilterValue is the selected value of one dynamic attribute. The concrete type
// is one of Scalar, Multi, Range or Text.
type FilterValue interface {
	Kind() ValueKind

	// WireValue returns the transport shape: string, []string or {from,to}.
	WireValue() any

	// IsZero reports whether the value selects nothing.
	IsZero() bool

	sealed()
}

// Scalar is a single-select value.
type Scalar string

func (Scalar) Kind() ValueKind { return KindScalar }
func (s Scalar) WireValue() any { return string(s) }
func (s Scalar) IsZero() bool { return s == "" }
func (Scalar) sealed() {}

// Multi is a multi-select value. Order is preserved as selected.
type Multi []string

func (Multi) Kind() ValueKind { return KindMulti }
func (m Multi) WireValue() any {
	out := make([]string, len(m))
	copy(out, m)
	return out
}
func (m Multi) IsZero() bool { return len(m) == 0 }
func (Multi) sealed() {}

// Contains reports whether key is part of the selection.
func (m Multi) Contains(key string) bool {
	for _, v := range m {
		if v == key {
			return true
		}
	}
	return false
}

// Range is a numeric {from,to} value; either bound may be open.
type Range struct {
	From *float64
	To   *float64
}

func (Range) Kind() ValueKind { return KindRange }
func (r Range) WireValue() any {
	out := map[string]any{}
	if r.From != nil {
		out["from"] = *r.From
	}
	if r.To != nil {
		out["to"] = *r.To
	}
	return out
}
func (r Range) IsZero() bool { return r.From == nil && r.To == nil }
func (Range) sealed() {}

// Text is a free text value.
type Text string

func (Text) Kind() ValueKind { return KindText }
func (t Text) WireValue() any { return string(t) }
func (t Text) IsZero() bool { return strings.TrimSpace(string(t)) == "" }
func (Text) sealed() {}

// Float returns a pointer to v. Handy for building ranges.
func Float(v float64) *float64 { return &v }

// NewFilterValue resolves raw against the attribute's declared type.
//
// Accepted raw shapes: string, number, []string, []any, map[string]any{"from","to"}
// and the FilterValue variants themselves.
func NewFilterValue(attr Attribute, raw any) (FilterValue, error) {
	if fv, ok := raw.(FilterValue); ok {
		return coerceVariant(attr, fv)
	}

	switch attr.Type {
	case TypeSingleSelect:
		strs, err := toStrings(raw)
		if err != nil || len(strs) != 1 {
			return nil, fmt.Errorf("%w: %s expects one value, got %v", ErrInvalidFilterValue, attr.Key, raw)
		}
		return Scalar(strs[0]), nil
	case TypeMultiSelect:
		strs, err := toStrings(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilterValue, attr.Key, err)
		}
		return Multi(strs), nil
	case TypeRange, TypeRangeBuckets, TypeCurrencyRange:
		r, err := toRange(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilterValue, attr.Key, err)
		}
		return r, nil
	case TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects text, got %T", ErrInvalidFilterValue, attr.Key, raw)
		}
		return Text(s), nil
	default:
		return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidFilterValue, attr.Key, attr.Type)
	}
}

func coerceVariant(attr Attribute, fv FilterValue) (FilterValue, error) {
	switch {
	case attr.Type == TypeMultiSelect && fv.Kind() == KindScalar:
		return Multi{string(fv.(Scalar))}, nil
	case attr.Type == TypeSingleSelect && fv.Kind() == KindScalar,
		attr.Type == TypeMultiSelect && fv.Kind() == KindMulti,
		attr.Type.IsRange() && fv.Kind() == KindRange,
		attr.Type == TypeText && fv.Kind() == KindText:
		return fv, nil
	default:
		return nil, fmt.Errorf("%w: %s (%s) cannot hold a %s value", ErrInvalidFilterValue, attr.Key, attr.Type, fv.Kind())
	}
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(raw)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func toRange(raw any) (Range, error) {
	var from, to any
	switch v := raw.(type) {
	case map[string]any:
		from, to = v["from"], v["to"]
	case string:
		lo, hi, found := strings.Cut(v, RangeSeparator)
		if !found {
			return Range{}, fmt.Errorf("range %q must look like from%sto", v, RangeSeparator)
		}
		from, to = lo, hi
	default:
		return Range{}, fmt.Errorf("unsupported range type %T", raw)
	}

	var r Range
	var err error
	if r.From, err = optionalFloat(from); err != nil {
		return Range{}, fmt.Errorf("from: %w", err)
	}
	if r.To, err = optionalFloat(to); err != nil {
		return Range{}, fmt.Errorf("to: %w", err)
	}
	if r.From != nil && r.To != nil && *r.From > *r.To {
		return Range{}, fmt.Errorf("range from %v exceeds to %v", *r.From, *r.To)
	}
	return r, nil
}

func optionalFloat(v any) (*float64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return Float(x), nil
	case int:
		return Float(float64(x)), nil
	case int64:
		return Float(float64(x)), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported number type %T", v)
	}
}

// AppliedFilters is the user's current selection within a category.
type AppliedFilters struct {
	CategorySlug string
	ListingType  string
	PriceMin     *float64
	PriceMax     *float64
	Currency     string
	Province     string
	City         string
	Search       string
	SortBy       string
	Specs        map[string]FilterValue
}

// Clone returns a deep copy.
func (f AppliedFilters) Clone() AppliedFilters {
	out := f
	if f.PriceMin != nil {
		out.PriceMin = Float(*f.PriceMin)
	}
	if f.PriceMax != nil {
		out.PriceMax = Float(*f.PriceMax)
	}
	if f.Specs != nil {
		out.Specs = make(map[string]FilterValue, len(f.Specs))
		for k, v := range f.Specs {
			out.Specs[k] = v
		}
	}
	return out
}

// WithSpec returns a copy with key set to v. A zero value removes the key.
func (f AppliedFilters) WithSpec(key string, v FilterValue) AppliedFilters {
	out := f.Clone()
	if v == nil || v.IsZero() {
		delete(out.Specs, key)
		return out
	}
	if out.Specs == nil {
		out.Specs = map[string]FilterValue{}
	}
	out.Specs[key] = v
	return out
}

// WithoutSpec returns a copy without key.
func (f AppliedFilters) WithoutSpec(key string) AppliedFilters {
	out := f.Clone()
	delete(out.Specs, key)
	return out
}

// Cleared drops every selection but keeps the category and listing type.
func (f AppliedFilters) Cleared() AppliedFilters {
	return AppliedFilters{CategorySlug: f.CategorySlug, ListingType: f.ListingType}
}

// IsEmpty reports whether nothing beyond category and listing type is selected.
func (f AppliedFilters) IsEmpty() bool {
	return f.PriceMin == nil && f.PriceMax == nil && f.Currency == "" &&
		f.Province == "" && f.City == "" && f.Search == "" && f.SortBy == "" &&
		len(f.nonZeroSpecs()) == 0
}

// SpecKeys returns the selected spec keys in sorted order.
func (f AppliedFilters) SpecKeys() []string {
	keys := f.nonZeroSpecs()
	sort.Strings(keys)
	return keys
}

func (f AppliedFilters) nonZeroSpecs() []string {
	keys := make([]string, 0, len(f.Specs))
	for k, v := range f.Specs {
		if v != nil && !v.IsZero() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Equal compares two selections by value. Zero-valued specs are ignored.
func (f AppliedFilters) Equal(o AppliedFilters) bool {
	if f.CategorySlug != o.CategorySlug || f.ListingType != o.ListingType ||
		f.Currency != o.Currency || f.Province != o.Province || f.City != o.City ||
		f.Search != o.Search || f.SortBy != o.SortBy {
		return false
	}
	if !floatPtrEqual(f.PriceMin, o.PriceMin) || !floatPtrEqual(f.PriceMax, o.PriceMax) {
		return false
	}
	a, b := f.SpecKeys(), o.SpecKeys()
	if len(a) != len(b) {
		return false
	}
	for i, k := range a {
		if k != b[i] {
			return false
		}
		if !reflect.DeepEqual(f.Specs[k].WireValue(), o.Specs[k].WireValue()) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the selection with spec values in their wire shape.
// Zero-valued specs are omitted.
func (f AppliedFilters) MarshalJSON() ([]byte, error) {
	var specs map[string]any
	if keys := f.SpecKeys(); len(keys) > 0 {
		specs = make(map[string]any, len(keys))
		for _, k := range keys {
			specs[k] = f.Specs[k].WireValue()
		}
	}
	return json.Marshal(struct {
		CategorySlug string         `json:"categorySlug"`
		ListingType  string         `json:"listingType,omitempty"`
		PriceMin     *float64       `json:"priceMin,omitempty"`
		PriceMax     *float64       `json:"priceMax,omitempty"`
		Currency     string         `json:"currency,omitempty"`
		Province     string         `json:"province,omitempty"`
		City         string         `json:"city,omitempty"`
		Search       string         `json:"search,omitempty"`
		SortBy       string         `json:"sortBy,omitempty"`
		Specs        map[string]any `json:"specs,omitempty"`
	}{f.CategorySlug, f.ListingType, f.PriceMin, f.PriceMax, f.Currency, f.Province, f.City, f.Search, f.SortBy, specs})
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
