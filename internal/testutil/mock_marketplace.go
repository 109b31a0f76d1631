// Package testutil provides an in-process mock of the marketplace query API.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

// Query fields of the mock schema.
const (
	FieldCategoryAttributes  = "categoryAttributes"
	FieldListingAggregations = "listingAggregations"
	FieldListingsSearch      = "listingsSearch"
)

// Schema is the mock marketplace schema.
const Schema = `
schema {
  query: Query
}

scalar JSON

type Query {
  categoryAttributes(slug: String!): [Attribute!]!
  listingAggregations(filter: ListingFilter!): ListingAggregations!
  listingsSearch(filter: ListingFilter!, limit: Int!, offset: Int!): ListingSearchResult!
}

input ListingFilter {
  categorySlug: String!
  listingType: String
  priceFrom: Float
  priceTo: Float
  currency: String
  province: String
  city: String
  search: String
  sortBy: String
  specs: JSON
}

type Attribute {
  key: String!
  name: String!
  type: String!
  sortOrder: Int!
  group: String
  groupOrder: Int!
  showInFilter: Boolean!
  showInGrid: Boolean!
  showInList: Boolean!
  showInDetail: Boolean!
  options: [AttributeOption!]!
}

type AttributeOption {
  key: String!
  value: String!
  sortOrder: Int!
  isActive: Boolean!
  count: Int
}

type ListingAggregations {
  totalResults: Int!
  attributes: [AttributeAggregation!]!
  provinces: [AggregationOption!]!
}

type AttributeAggregation {
  field: String!
  options: [AggregationOption!]!
}

type AggregationOption {
  key: String!
  value: String!
  count: Int!
  parentId: String
  hasVariants: Boolean
}

type ListingSearchResult {
  total: Int!
  items: [Listing!]!
}

type Listing {
  id: String!
  title: String!
  description: String
  price: Float
  currency: String
  province: String
  city: String
  categorySlug: String
  listingType: String
  status: String
  thumbnail: String
  images: [String!]
  sellerId: String
  viewCount: Int
  createdAt: String
  specs: String
}
`

// JSON is the free-form scalar carrying the specs selection.
type JSON map[string]any

// ImplementsGraphQLType maps JSON onto the schema scalar.
func (JSON) ImplementsGraphQLType(name string) bool { return name == "JSON" }

// UnmarshalGraphQL accepts any object.
func (j *JSON) UnmarshalGraphQL(input any) error {
	m, ok := input.(map[string]any)
	if !ok {
		return fmt.Errorf("JSON scalar expects an object, got %T", input)
	}
	*j = m
	return nil
}

// FilterInput is the ListingFilter argument as received by the mock.
type FilterInput struct {
	CategorySlug string
	ListingType  *string
	PriceFrom    *float64
	PriceTo      *float64
	Currency     *string
	Province     *string
	City         *string
	Search       *string
	SortBy       *string
	Specs        *JSON
}

// Spec returns the raw specs selection for key.
func (f FilterInput) Spec(key string) (any, bool) {
	if f.Specs == nil {
		return nil, false
	}
	v, ok := (*f.Specs)[key]
	return v, ok
}

// MockMarketplace is a configurable mock marketplace API server for testing.
type MockMarketplace struct {
	server  *httptest.Server
	schema  *graphql.Schema
	dataset *Dataset

	mu       sync.RWMutex
	calls    map[string]int
	filters  map[string][]FilterInput
	failures map[string]string
	holds    map[string]chan struct{}
	delay    time.Duration
}

// NewMockMarketplace parses the schema over dataset without starting a server.
// Use Handler to mount it.
func NewMockMarketplace(dataset *Dataset) *MockMarketplace {
	if dataset == nil {
		dataset = CarsDataset()
	}
	m := &MockMarketplace{
		dataset:  dataset,
		calls:    make(map[string]int),
		filters:  make(map[string][]FilterInput),
		failures: make(map[string]string),
		holds:    make(map[string]chan struct{}),
	}
	m.schema = graphql.MustParseSchema(Schema, &rootResolver{m: m}, graphql.UseFieldResolvers())
	return m
}

// StartMockMarketplace starts a mock server over the reference dataset.
func StartMockMarketplace() *MockMarketplace {
	m := NewMockMarketplace(nil)
	m.server = httptest.NewServer(m.Handler())
	return m
}

// Handler returns the HTTP handler serving the schema.
func (m *MockMarketplace) Handler() http.Handler {
	return &relay.Handler{Schema: m.schema}
}

// URL returns the query endpoint of a started server.
func (m *MockMarketplace) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockMarketplace) Close() {
	if m.server != nil {
		m.server.Close()
	}
}

// Dataset returns the served data.
func (m *MockMarketplace) Dataset() *Dataset {
	return m.dataset
}

// Reset clears all tracking counters and configured failures.
func (m *MockMarketplace) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.filters = make(map[string][]FilterInput)
	m.failures = make(map[string]string)
}

// Calls returns how many times field was resolved.
func (m *MockMarketplace) Calls(field string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[field]
}

// Filters returns every filter received by field, oldest first.
func (m *MockMarketplace) Filters(field string) []FilterInput {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FilterInput, len(m.filters[field]))
	copy(out, m.filters[field])
	return out
}

// LastFilter returns the most recent filter received by field.
func (m *MockMarketplace) LastFilter(field string) (FilterInput, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fs := m.filters[field]
	if len(fs) == 0 {
		return FilterInput{}, false
	}
	return fs[len(fs)-1], true
}

// SetFailure makes field report message as a query error until cleared.
func (m *MockMarketplace) SetFailure(field, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[field] = message
}

// ClearFailure removes a configured failure.
func (m *MockMarketplace) ClearFailure(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, field)
}

// SetDelay delays every resolver.
func (m *MockMarketplace) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Hold blocks resolution of field until the returned release is called.
func (m *MockMarketplace) Hold(field string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[field] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[field] == ch {
				delete(m.holds, field)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// enter records a call and applies holds, delays and failures.
func (m *MockMarketplace) enter(ctx context.Context, field string, filter *FilterInput) error {
	m.mu.Lock()
	m.calls[field]++
	if filter != nil {
		m.filters[field] = append(m.filters[field], *filter)
	}
	hold := m.holds[field]
	delay := m.delay
	failure, failing := m.failures[field]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failing {
		return errors.New(failure)
	}
	return nil
}

type rootResolver struct {
	m *MockMarketplace
}

func (r *rootResolver) CategoryAttributes(ctx context.Context, args struct{ Slug string }) ([]*MockAttribute, error) {
	if err := r.m.enter(ctx, FieldCategoryAttributes, nil); err != nil {
		return nil, err
	}
	attrs, ok := r.m.dataset.Attributes[args.Slug]
	if !ok {
		return nil, fmt.Errorf("category %q not found", args.Slug)
	}
	return attrs, nil
}

type aggregationOption struct {
	Key         string
	Value       string
	Count       int32
	ParentID    *string
	HasVariants *bool
}

type attributeAggregation struct {
	Field   string
	Options []*aggregationOption
}

type listingAggregations struct {
	TotalResults int32
	Attributes   []*attributeAggregation
	Provinces    []*aggregationOption
}

func (r *rootResolver) ListingAggregations(ctx context.Context, args struct{ Filter FilterInput }) (*listingAggregations, error) {
	if err := r.m.enter(ctx, FieldListingAggregations, &args.Filter); err != nil {
		return nil, err
	}

	d := r.m.dataset
	matched := d.match(args.Filter)

	out := &listingAggregations{TotalResults: int32(len(matched))}

	counts := map[string]map[string]int32{}
	provinces := map[string]int32{}
	for _, l := range matched {
		for k, v := range l.Specs {
			if counts[k] == nil {
				counts[k] = map[string]int32{}
			}
			counts[k][fmt.Sprint(v)]++
		}
		provinces[l.Province]++
	}

	// Aggregation-driven fields list every known id, empty ones included
	named := []struct {
		field  string
		values []NamedValue
	}{
		{"brandId", d.Brands},
		{"modelId", d.Models},
		{"variantId", d.Variants},
	}
	hasVariants := map[string]bool{}
	for _, v := range d.Variants {
		hasVariants[v.Parent] = true
	}
	for _, n := range named {
		agg := &attributeAggregation{Field: n.field}
		for _, v := range n.values {
			v := v
			opt := &aggregationOption{Key: v.Key, Value: v.Value, Count: counts[n.field][v.Key]}
			if n.field == "variantId" && v.Parent != "" {
				opt.ParentID = &v.Parent
			}
			if n.field == "modelId" && hasVariants[v.Key] {
				t := true
				opt.HasVariants = &t
			}
			agg.Options = append(agg.Options, opt)
		}
		out.Attributes = append(out.Attributes, agg)
	}

	// Plain attributes omit empty buckets
	for _, attr := range d.Attributes[args.Filter.CategorySlug] {
		if attr.Key == "brandId" || attr.Key == "modelId" || attr.Key == "variantId" || len(attr.Options) == 0 {
			continue
		}
		agg := &attributeAggregation{Field: attr.Key}
		for _, o := range attr.Options {
			if c := counts[attr.Key][o.Key]; c > 0 {
				agg.Options = append(agg.Options, &aggregationOption{Key: o.Key, Value: o.Value, Count: c})
			}
		}
		out.Attributes = append(out.Attributes, agg)
	}

	keys := make([]string, 0, len(provinces))
	for k := range provinces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Provinces = append(out.Provinces, &aggregationOption{Key: k, Value: d.Provinces[k], Count: provinces[k]})
	}

	return out, nil
}

type listingResolver struct {
	ID           string
	Title        string
	Description  *string
	Price        *float64
	Currency     *string
	Province     *string
	City         *string
	CategorySlug *string
	ListingType  *string
	Status       *string
	Thumbnail    *string
	Images       *[]string
	SellerID     *string
	ViewCount    *int32
	CreatedAt    *string
	Specs        *string
}

type listingSearchResult struct {
	Total int32
	Items []*listingResolver
}

func (r *rootResolver) ListingsSearch(ctx context.Context, args struct {
	Filter FilterInput
	Limit  int32
	Offset int32
}) (*listingSearchResult, error) {
	if err := r.m.enter(ctx, FieldListingsSearch, &args.Filter); err != nil {
		return nil, err
	}

	matched := r.m.dataset.match(args.Filter)
	sortListings(matched, args.Filter.SortBy)

	out := &listingSearchResult{Total: int32(len(matched))}
	start := int(args.Offset)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(args.Limit)
	if args.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	for _, l := range matched[start:end] {
		created := l.CreatedAt.Format(time.RFC3339)
		thumb := fmt.Sprintf("https://img.example.test/%s/%s.jpg", l.CategorySlug, l.ID)
		images := []string{thumb}
		out.Items = append(out.Items, &listingResolver{
			ID:           l.ID,
			Title:        l.Title,
			Description:  &l.Description,
			Price:        &l.Price,
			Currency:     &l.Currency,
			Province:     &l.Province,
			City:         &l.City,
			CategorySlug: &l.CategorySlug,
			ListingType:  &l.ListingType,
			Status:       &l.Status,
			Thumbnail:    &thumb,
			Images:       &images,
			SellerID:     &l.SellerID,
			ViewCount:    &l.ViewCount,
			CreatedAt:    &created,
			Specs:        l.specsBlob(),
		})
	}
	return out, nil
}

func sortListings(ls []*MockListing, sortBy *string) {
	if sortBy == nil {
		return
	}
	switch *sortBy {
	case "PRICE_ASC":
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].Price < ls[j].Price })
	case "PRICE_DESC":
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].Price > ls[j].Price })
	case "NEWEST":
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].CreatedAt.After(ls[j].CreatedAt) })
	}
}

// match returns the listings satisfying f, in dataset order.
func (d *Dataset) match(f FilterInput) []*MockListing {
	var out []*MockListing
	for _, l := range d.Listings {
		if matchesFilter(l, f) {
			out = append(out, l)
		}
	}
	return out
}

func matchesFilter(l *MockListing, f FilterInput) bool {
	if l.CategorySlug != f.CategorySlug {
		return false
	}
	if f.ListingType != nil && !strings.EqualFold(*f.ListingType, l.ListingType) {
		return false
	}
	if f.PriceFrom != nil && l.Price < *f.PriceFrom {
		return false
	}
	if f.PriceTo != nil && l.Price > *f.PriceTo {
		return false
	}
	if f.Currency != nil && !strings.EqualFold(*f.Currency, l.Currency) {
		return false
	}
	if f.Province != nil && *f.Province != l.Province {
		return false
	}
	if f.City != nil && *f.City != l.City {
		return false
	}
	if f.Search != nil && !strings.Contains(strings.ToLower(l.Title), strings.ToLower(*f.Search)) {
		return false
	}
	if f.Specs != nil {
		for k, want := range *f.Specs {
			if !matchesSpec(l.Specs[k], want) {
				return false
			}
		}
	}
	return true
}

func matchesSpec(have, want any) bool {
	if have == nil {
		return false
	}
	switch w := want.(type) {
	case []any:
		for _, item := range w {
			if fmt.Sprint(have) == fmt.Sprint(item) {
				return true
			}
		}
		return false
	case map[string]any:
		n, ok := toFloat(have)
		if !ok {
			return false
		}
		if from, ok := toFloat(w["from"]); ok && n < from {
			return false
		}
		if to, ok := toFloat(w["to"]); ok && n > to {
			return false
		}
		return true
	default:
		return fmt.Sprint(have) == fmt.Sprint(w)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
