package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/marketplace-client/internal/testutil"
	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/client"
	"github.com/rs/zerolog"
)

func setupGateway(t *testing.T) (*Gateway, *testutil.MockMarketplace) {
	t.Helper()

	mock := testutil.StartMockMarketplace()
	t.Cleanup(mock.Close)

	logger := zerolog.Nop()
	cfg := client.DefaultConfig(mock.URL(), "TestApp/1.0.0")
	cfg.Logger = &logger
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	return NewGateway(c, TTLs{}, &logger), mock
}

func TestGateway_CategoryAttributes(t *testing.T) {
	gw, mock := setupGateway(t)
	ctx := context.Background()

	attrs, err := gw.CategoryAttributes(ctx, "cars")
	if err != nil {
		t.Fatalf("CategoryAttributes failed: %v", err)
	}
	if len(attrs) != 7 {
		t.Fatalf("got %d attributes, want 7", len(attrs))
	}

	byKey := map[string]catalog.Attribute{}
	for _, a := range attrs {
		byKey[a.Key] = a
	}

	if byKey["fuel"].Type != catalog.TypeMultiSelect {
		t.Errorf("fuel type = %q", byKey["fuel"].Type)
	}
	if byKey["year"].Type != catalog.TypeRange {
		t.Errorf("year type = %q", byKey["year"].Type)
	}
	if len(byKey["brandId"].Options) != 0 {
		t.Errorf("brandId must not keep static options, got %v", byKey["brandId"].Options)
	}
	if byKey["brandId"].Group != "vehicle" {
		t.Errorf("brandId group = %q", byKey["brandId"].Group)
	}

	lpgFound := false
	for _, o := range byKey["fuel"].Options {
		if o.Key == "lpg" {
			lpgFound = true
			if o.IsActive {
				t.Error("lpg should be inactive")
			}
		}
	}
	if !lpgFound {
		t.Error("inactive options are part of the structural schema")
	}

	// Second call is served by the request cache
	if _, err := gw.CategoryAttributes(ctx, "cars"); err != nil {
		t.Fatalf("CategoryAttributes failed: %v", err)
	}
	if calls := mock.Calls(testutil.FieldCategoryAttributes); calls != 1 {
		t.Errorf("transport calls = %d, want 1", calls)
	}
}

func TestGateway_CategoryAttributesUnknownSlug(t *testing.T) {
	gw, _ := setupGateway(t)

	_, err := gw.CategoryAttributes(context.Background(), "boats")
	if !errors.Is(err, client.ErrRemote) {
		t.Errorf("expected remote error, got %v", err)
	}
}

func TestGateway_ListingAggregations(t *testing.T) {
	gw, mock := setupGateway(t)
	ctx := context.Background()

	agg, err := gw.ListingAggregations(ctx, catalog.AppliedFilters{CategorySlug: "cars"})
	if err != nil {
		t.Fatalf("ListingAggregations failed: %v", err)
	}
	if agg.TotalResults != 52 {
		t.Errorf("TotalResults = %d, want 52", agg.TotalResults)
	}
	if agg.Count("brandId", "toyota") != 40 || agg.Count("brandId", "honda") != 12 {
		t.Errorf("brand counts = %v", agg.Fields["brandId"])
	}
	if len(agg.Provinces) != 2 {
		t.Errorf("provinces = %v", agg.Provinces)
	}

	var corolla catalog.AggregatedOption
	for _, o := range agg.Fields["modelId"] {
		if o.Key == "corolla" {
			corolla = o
		}
	}
	if !corolla.HasVariants {
		t.Error("corolla should be flagged hasVariants")
	}
	for _, v := range agg.Fields["variantId"] {
		if v.ParentKey != "corolla" {
			t.Errorf("variant %s parent = %q", v.Key, v.ParentKey)
		}
	}

	filters := catalog.AppliedFilters{CategorySlug: "cars"}.WithSpec("brandId", catalog.Scalar("toyota"))
	agg, err = gw.ListingAggregations(ctx, filters)
	if err != nil {
		t.Fatalf("ListingAggregations failed: %v", err)
	}
	if agg.TotalResults != 40 {
		t.Errorf("TotalResults = %d, want 40", agg.TotalResults)
	}
	if sum := agg.Count("modelId", "corolla") + agg.Count("modelId", "camry") + agg.Count("modelId", "civic"); sum > 40 {
		t.Errorf("model counts sum to %d, want <= 40", sum)
	}

	last, _ := mock.LastFilter(testutil.FieldListingAggregations)
	if v, _ := last.Spec("brandId"); v != "toyota" {
		t.Errorf("aggregation variables specs.brandId = %v", v)
	}
}

func TestGateway_SearchListings(t *testing.T) {
	gw, _ := setupGateway(t)
	ctx := context.Background()

	res, err := gw.SearchListings(ctx, catalog.SearchRequest{
		Filters:  catalog.AppliedFilters{CategorySlug: "cars"},
		Limit:    20,
		Offset:   40,
		ViewMode: catalog.ViewFull,
	})
	if err != nil {
		t.Fatalf("SearchListings failed: %v", err)
	}
	if res.Total != 52 {
		t.Errorf("Total = %d, want 52", res.Total)
	}
	if len(res.Listings) != 12 {
		t.Fatalf("got %d listings, want 12", len(res.Listings))
	}

	first := res.Listings[0]
	if first.CreatedAt.IsZero() {
		t.Error("createdAt not decoded")
	}
	if first.SellerID == "" {
		t.Error("full shape should carry sellerId")
	}
	if first.Specs["brandId"] == nil {
		t.Errorf("specs not decoded: %v", first.Specs)
	}

	// The last listing carries a corrupt specs blob
	last := res.Listings[len(res.Listings)-1]
	if last.Specs == nil || len(last.Specs) != 0 {
		t.Errorf("corrupt specs should decode to an empty map, got %v", last.Specs)
	}

	grid, err := gw.SearchListings(ctx, catalog.SearchRequest{
		Filters:  catalog.AppliedFilters{CategorySlug: "cars"},
		Limit:    5,
		ViewMode: catalog.ViewGrid,
	})
	if err != nil {
		t.Fatalf("SearchListings failed: %v", err)
	}
	if len(grid.Listings) != 5 {
		t.Fatalf("got %d listings, want 5", len(grid.Listings))
	}
	if grid.Listings[0].Description != "" || grid.Listings[0].SellerID != "" {
		t.Error("grid shape should not carry description or sellerId")
	}
	if grid.Listings[0].Thumbnail == "" {
		t.Error("grid shape should carry a thumbnail")
	}
}

func TestGateway_Invalidate(t *testing.T) {
	gw, mock := setupGateway(t)
	ctx := context.Background()
	filters := catalog.AppliedFilters{CategorySlug: "cars"}
	req := catalog.SearchRequest{Filters: filters, Limit: 20}

	gw.SearchListings(ctx, req)
	gw.ListingAggregations(ctx, filters)

	if n := gw.InvalidateByPattern(ctx, PatternListings); n != 1 {
		t.Errorf("InvalidateByPattern removed %d, want 1", n)
	}

	gw.SearchListings(ctx, req)
	gw.ListingAggregations(ctx, filters)

	if calls := mock.Calls(testutil.FieldListingsSearch); calls != 2 {
		t.Errorf("listing calls = %d, want 2", calls)
	}
	if calls := mock.Calls(testutil.FieldListingAggregations); calls != 1 {
		t.Errorf("aggregation calls = %d, want 1", calls)
	}
}

func TestDefaultTTLs(t *testing.T) {
	gw := NewGateway(nil, TTLs{Listings: 5 * time.Second}, nil)
	if gw.ttls.Listings != 5*time.Second {
		t.Errorf("explicit TTL overridden: %v", gw.ttls.Listings)
	}
	if gw.ttls.Attributes != DefaultTTLs().Attributes {
		t.Errorf("Attributes TTL = %v", gw.ttls.Attributes)
	}
}
