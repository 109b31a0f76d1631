package filters

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

type fakeSchemaSource struct {
	calls int32
	attrs map[string][]catalog.Attribute
	err   error
	gate  chan struct{}
}

func (f *fakeSchemaSource) CategoryAttributes(_ context.Context, slug string) ([]catalog.Attribute, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	attrs, ok := f.attrs[slug]
	if !ok {
		return nil, errors.New("unknown category")
	}
	return attrs, nil
}

// fakeAggregations answers from a function of the filter state and records
// every state it was asked about.
type fakeAggregations struct {
	mu     sync.Mutex
	seen   []catalog.AppliedFilters
	answer func(f catalog.AppliedFilters) (catalog.Aggregation, error)

	// gates holds a response until released, keyed by call index
	gates map[int]chan struct{}
}

func (f *fakeAggregations) ListingAggregations(_ context.Context, filters catalog.AppliedFilters) (catalog.Aggregation, error) {
	f.mu.Lock()
	idx := len(f.seen)
	f.seen = append(f.seen, filters.Clone())
	gate := f.gates[idx]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return f.answer(filters)
}

func (f *fakeAggregations) Seen() []catalog.AppliedFilters {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.AppliedFilters, len(f.seen))
	copy(out, f.seen)
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func carSchema() []catalog.Attribute {
	return []catalog.Attribute{
		{Key: catalog.KeyBrand, Name: "Brand", Type: catalog.TypeSingleSelect, SortOrder: 1, GroupOrder: 1, ShowInFilter: true,
			Options: []catalog.AttributeOption{{Key: "bmw", Value: "BMW", IsActive: true}}},
		{Key: catalog.KeyModel, Name: "Model", Type: catalog.TypeSingleSelect, SortOrder: 2, GroupOrder: 1, ShowInFilter: true},
		{Key: catalog.KeyVariant, Name: "Variant", Type: catalog.TypeSingleSelect, SortOrder: 3, GroupOrder: 1, ShowInFilter: true},
		{Key: "year", Name: "Year", Type: catalog.TypeRange, SortOrder: 4, GroupOrder: 1, ShowInFilter: true},
		{Key: "fuel", Name: "Fuel", Type: catalog.TypeMultiSelect, SortOrder: 1, GroupOrder: 2, ShowInFilter: true,
			Options: []catalog.AttributeOption{
				{Key: "diesel", Value: "Diesel", SortOrder: 2, IsActive: true},
				{Key: "petrol", Value: "Petrol", SortOrder: 1, IsActive: true},
				{Key: "electric", Value: "Electric", SortOrder: 3, IsActive: true},
				{Key: "lpg", Value: "LPG", SortOrder: 4, IsActive: false},
			}},
		{Key: "vin", Name: "VIN", Type: catalog.TypeText, ShowInFilter: false},
	}
}

// carAggregation answers like the reference marketplace: 40 Toyota, 12 Honda.
func carAggregation(f catalog.AppliedFilters) (catalog.Aggregation, error) {
	brand := ""
	if v, ok := f.Specs[catalog.KeyBrand].(catalog.Scalar); ok {
		brand = string(v)
	}

	agg := catalog.Aggregation{
		Fields: map[string][]catalog.AggregatedOption{},
		Provinces: []catalog.AggregatedOption{
			{Key: "ontario", Value: "Ontario", Count: 26},
			{Key: "quebec", Value: "Quebec", Count: 26},
		},
	}

	switch brand {
	case "toyota":
		agg.TotalResults = 40
		agg.Fields[catalog.KeyBrand] = []catalog.AggregatedOption{{Key: "toyota", Value: "Toyota", Count: 40}, {Key: "honda", Value: "Honda", Count: 0}}
		agg.Fields[catalog.KeyModel] = []catalog.AggregatedOption{
			{Key: "corolla", Value: "Corolla", Count: 25, HasVariants: true},
			{Key: "camry", Value: "Camry", Count: 15},
		}
		agg.Fields["fuel"] = []catalog.AggregatedOption{{Key: "petrol", Count: 20}, {Key: "diesel", Count: 20}}
	default:
		agg.TotalResults = 52
		agg.Fields[catalog.KeyBrand] = []catalog.AggregatedOption{{Key: "toyota", Value: "Toyota", Count: 40}, {Key: "honda", Value: "Honda", Count: 12}}
		agg.Fields[catalog.KeyModel] = []catalog.AggregatedOption{
			{Key: "corolla", Value: "Corolla", Count: 25, HasVariants: true},
			{Key: "camry", Value: "Camry", Count: 15},
			{Key: "civic", Value: "Civic", Count: 12},
		}
		agg.Fields["fuel"] = []catalog.AggregatedOption{{Key: "petrol", Count: 26}, {Key: "diesel", Count: 26}}
	}
	agg.Fields[catalog.KeyVariant] = []catalog.AggregatedOption{
		{Key: "corolla-gr", Value: "GR", Count: 15, ParentKey: "corolla"},
		{Key: "corolla-hybrid", Value: "Hybrid", Count: 10, ParentKey: "corolla"},
	}
	return agg, nil
}
