package testutil

import (
	"encoding/json"
	"fmt"
	"time"
)

// MockOption is a static attribute option as served by the mock API.
type MockOption struct {
	Key       string
	Value     string
	SortOrder int32
	IsActive  bool
	Count     *int32
}

// MockAttribute is an attribute definition as served by the mock API.
type MockAttribute struct {
	Key          string
	Name         string
	Type         string
	SortOrder    int32
	Group        *string
	GroupOrder   int32
	ShowInFilter bool
	ShowInGrid   bool
	ShowInList   bool
	ShowInDetail bool
	Options      []*MockOption
}

// MockListing is one listing of the dataset. SpecsRaw, when set, is served
// verbatim instead of the encoded Specs.
type MockListing struct {
	ID           string
	Title        string
	Description  string
	Price        float64
	Currency     string
	Province     string
	City         string
	CategorySlug string
	ListingType  string
	Status       string
	SellerID     string
	ViewCount    int32
	CreatedAt    time.Time
	Specs        map[string]any
	SpecsRaw     string
}

// NamedValue is a display name for an aggregation-driven id.
type NamedValue struct {
	Key    string
	Value  string
	Parent string
}

// Dataset is the content of the mock marketplace.
type Dataset struct {
	Attributes map[string][]*MockAttribute
	Listings   []*MockListing

	// Known ids of the aggregation-driven fields, in display order.
	Brands   []NamedValue
	Models   []NamedValue
	Variants []NamedValue

	Provinces map[string]string
}

func strPtr(s string) *string { return &s }

func countPtr(n int32) *int32 { return &n }

// CarsDataset returns the reference dataset: 52 cars (40 Toyota, 12 Honda)
// plus a small bikes category.
//
//	toyota: corolla (hybrid 10, gr 15), camry 15
//	honda:  civic 12
func CarsDataset() *Dataset {
	d := &Dataset{
		Attributes: map[string][]*MockAttribute{
			"cars":  carAttributes(),
			"bikes": bikeAttributes(),
		},
		Brands: []NamedValue{
			{Key: "toyota", Value: "Toyota"},
			{Key: "honda", Value: "Honda"},
			{Key: "trek", Value: "Trek"},
		},
		Models: []NamedValue{
			{Key: "corolla", Value: "Corolla", Parent: "toyota"},
			{Key: "camry", Value: "Camry", Parent: "toyota"},
			{Key: "civic", Value: "Civic", Parent: "honda"},
			{Key: "marlin", Value: "Marlin", Parent: "trek"},
		},
		Variants: []NamedValue{
			{Key: "corolla-hybrid", Value: "Corolla Hybrid", Parent: "corolla"},
			{Key: "corolla-gr", Value: "Corolla GR", Parent: "corolla"},
		},
		Provinces: map[string]string{
			"ontario": "Ontario",
			"quebec":  "Quebec",
		},
	}

	groups := []struct {
		brand, model, variant string
		n                     int
	}{
		{"toyota", "corolla", "corolla-hybrid", 10},
		{"toyota", "corolla", "corolla-gr", 15},
		{"toyota", "camry", "", 15},
		{"honda", "civic", "", 12},
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	for _, g := range groups {
		for j := 0; j < g.n; j++ {
			specs := map[string]any{
				"brandId":   g.brand,
				"modelId":   g.model,
				"year":      float64(2015 + i%8),
				"fuel":      []string{"petrol", "diesel"}[i%2],
				"condition": "used",
			}
			if i%4 == 0 {
				specs["condition"] = "new"
			}
			if g.variant != "" {
				specs["variantId"] = g.variant
			}

			province, city := "ontario", "toronto"
			if i%2 == 1 {
				province, city = "quebec", "montreal"
			}

			l := &MockListing{
				ID:           fmt.Sprintf("car-%03d", i+1),
				Title:        fmt.Sprintf("%s %s #%d", g.brand, g.model, j+1),
				Description:  fmt.Sprintf("Well kept %s %s", g.brand, g.model),
				Price:        float64(10000 + i*500),
				Currency:     "USD",
				Province:     province,
				City:         city,
				CategorySlug: "cars",
				ListingType:  "SALE",
				Status:       "ACTIVE",
				SellerID:     fmt.Sprintf("seller-%d", i%5),
				ViewCount:    int32(i * 3),
				CreatedAt:    base.Add(time.Duration(i) * time.Hour),
				Specs:        specs,
			}
			d.Listings = append(d.Listings, l)
			i++
		}
	}

	// One record with a corrupt embedded specs blob
	d.Listings[len(d.Listings)-1].SpecsRaw = `{"brandId": "honda", broken`

	for k := 0; k < 3; k++ {
		d.Listings = append(d.Listings, &MockListing{
			ID:           fmt.Sprintf("bike-%03d", k+1),
			Title:        fmt.Sprintf("trek marlin #%d", k+1),
			Price:        float64(700 + k*50),
			Currency:     "USD",
			Province:     "ontario",
			City:         "toronto",
			CategorySlug: "bikes",
			ListingType:  "SALE",
			Status:       "ACTIVE",
			CreatedAt:    base.Add(time.Duration(k) * time.Minute),
			Specs:        map[string]any{"brandId": "trek", "modelId": "marlin", "frameSize": "M"},
		})
	}

	return d
}

func carAttributes() []*MockAttribute {
	return []*MockAttribute{
		{
			Key: "brandId", Name: "Brand", Type: "SELECT", SortOrder: 1,
			Group: strPtr("vehicle"), GroupOrder: 1,
			ShowInFilter: true, ShowInGrid: true, ShowInList: true, ShowInDetail: true,
			// stale static option; aggregation data always wins for this key
			Options: []*MockOption{{Key: "bmw", Value: "BMW", IsActive: true, Count: countPtr(3)}},
		},
		{
			Key: "modelId", Name: "Model", Type: "SELECT", SortOrder: 2,
			Group: strPtr("vehicle"), GroupOrder: 1,
			ShowInFilter: true, ShowInGrid: true, ShowInList: true, ShowInDetail: true,
		},
		{
			Key: "variantId", Name: "Variant", Type: "SELECT", SortOrder: 3,
			Group: strPtr("vehicle"), GroupOrder: 1,
			ShowInFilter: true, ShowInDetail: true,
		},
		{
			Key: "year", Name: "Year", Type: "RANGE", SortOrder: 4,
			Group: strPtr("vehicle"), GroupOrder: 1,
			ShowInFilter: true, ShowInList: true, ShowInDetail: true,
		},
		{
			Key: "fuel", Name: "Fuel", Type: "MULTISELECT", SortOrder: 1,
			Group: strPtr("engine"), GroupOrder: 2,
			ShowInFilter: true, ShowInList: true, ShowInDetail: true,
			Options: []*MockOption{
				{Key: "petrol", Value: "Petrol", SortOrder: 1, IsActive: true, Count: countPtr(99)},
				{Key: "diesel", Value: "Diesel", SortOrder: 2, IsActive: true},
				{Key: "electric", Value: "Electric", SortOrder: 3, IsActive: true},
				{Key: "lpg", Value: "LPG", SortOrder: 4, IsActive: false},
			},
		},
		{
			Key: "condition", Name: "Condition", Type: "SELECT", SortOrder: 2,
			Group: strPtr("engine"), GroupOrder: 2,
			ShowInFilter: true, ShowInGrid: true, ShowInDetail: true,
			Options: []*MockOption{
				{Key: "new", Value: "New", SortOrder: 1, IsActive: true},
				{Key: "used", Value: "Used", SortOrder: 2, IsActive: true},
			},
		},
		{
			Key: "vin", Name: "VIN", Type: "TEXT", SortOrder: 9,
			ShowInFilter: false, ShowInDetail: true,
		},
	}
}

func bikeAttributes() []*MockAttribute {
	return []*MockAttribute{
		{
			Key: "brandId", Name: "Brand", Type: "SELECT", SortOrder: 1,
			ShowInFilter: true, ShowInGrid: true,
		},
		{
			Key: "frameSize", Name: "Frame size", Type: "SELECT", SortOrder: 2,
			ShowInFilter: true, ShowInList: true,
			Options: []*MockOption{
				{Key: "S", Value: "Small", SortOrder: 1, IsActive: true},
				{Key: "M", Value: "Medium", SortOrder: 2, IsActive: true},
				{Key: "L", Value: "Large", SortOrder: 3, IsActive: true},
			},
		},
	}
}

func (l *MockListing) specsBlob() *string {
	if l.SpecsRaw != "" {
		return &l.SpecsRaw
	}
	raw, err := json.Marshal(l.Specs)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
