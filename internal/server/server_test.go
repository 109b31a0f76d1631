package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/marketplace-client/internal/testutil"
	"github.com/Sternrassler/marketplace-client/pkg/api"
	"github.com/Sternrassler/marketplace-client/pkg/browse"
	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/client"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

// newTestServer builds a server with its own client and caches against mock.
func newTestServer(t *testing.T, mock *testutil.MockMarketplace) *Server {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL(), "marketplace-test/1.0")
	cfg.Logger = &nopLogger
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	gw := api.NewGateway(c, api.DefaultTTLs(), &nopLogger)
	return New(Options{
		Gateway: gw,
		Schema:  filters.NewSchemaCache(gw, filters.SchemaOptions{Logger: &nopLogger}),
		Cache:   c.Cache(),
		Logger:  &nopLogger,
	})
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req = httptest.NewRequest(method, target, bytes.NewReader(raw))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// viewBody mirrors the session view with applied specs in their wire shape.
type viewBody struct {
	ID      string `json:"id"`
	Filters struct {
		CategorySlug string                       `json:"categorySlug"`
		Attributes   []catalog.ProcessedAttribute `json:"attributes"`
		TotalResults int                          `json:"totalResults"`
		Applied      struct {
			Province string         `json:"province"`
			Specs    map[string]any `json:"specs"`
		} `json:"applied"`
		Error string `json:"error"`
	} `json:"filters"`
	Listings struct {
		CategorySlug string             `json:"categorySlug"`
		Listings     []catalog.Listing  `json:"listings"`
		Pagination   catalog.Pagination `json:"pagination"`
		ViewMode     string             `json:"viewMode"`
	} `json:"listings"`
}

func TestServer_HealthAndMetrics(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	rec := do(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready without probe = %d", rec.Code)
	}
	srv.ready = func(context.Context) error { return errors.New("redis down") }
	if rec = do(t, srv, http.MethodGet, "/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with failing probe = %d, want 503", rec.Code)
	}

	do(t, srv, http.MethodPost, "/sessions", map[string]string{"category": "cars"})
	rec = do(t, srv, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "marketplace_server_sessions") {
		t.Error("session gauge missing from scrape output")
	}
}

func TestServer_Filters(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	tests := []struct {
		query     string
		wantTotal int
	}{
		{"", 52},
		{"?spec.brandId=toyota", 40},
		{"?spec.brandId=honda&spec.location=ontario", 6},
		{"?spec.year=2020..2022", 18},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/categories/cars/filters"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			got := decode[facetsResponse](t, rec)
			if got.TotalResults != tt.wantTotal {
				t.Errorf("TotalResults = %d, want %d", got.TotalResults, tt.wantTotal)
			}
			if _, ok := catalog.FindAttribute(got.Attributes, "vin"); ok {
				t.Error("hidden attribute vin should not be rendered")
			}
		})
	}
}

func TestServer_FilterErrors(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	tests := []struct {
		target string
		want   int
	}{
		{"/categories/cars/filters?spec.colour=red", http.StatusBadRequest},
		{"/categories/cars/filters?priceMin=cheap", http.StatusBadRequest},
		{"/categories/boats/filters", http.StatusBadGateway},
		{"/categories/cars/listings?limit=abc", http.StatusBadRequest},
		{"/categories/cars/listings?page=0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if rec := do(t, srv, http.MethodGet, tt.target, nil); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServer_Listings(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	rec := do(t, srv, http.MethodGet, "/categories/cars/listings?page=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[listingsResponse](t, rec)
	if len(got.Listings) != 12 {
		t.Errorf("page 3 has %d listings, want 12", len(got.Listings))
	}
	if got.Pagination.Total != 52 || got.Pagination.HasMore || got.Pagination.Page != 3 {
		t.Errorf("pagination = %+v", got.Pagination)
	}

	rec = do(t, srv, http.MethodGet, "/categories/cars/listings?priceMax=12000&view=list", nil)
	got = decode[listingsResponse](t, rec)
	if got.Pagination.Total != 5 {
		t.Errorf("priceMax total = %d, want 5", got.Pagination.Total)
	}
	if len(got.Listings) == 0 || got.Listings[0].Description == "" {
		t.Error("list view should carry descriptions")
	}
	if f, _ := mock.LastFilter(testutil.FieldListingsSearch); f.PriceTo == nil || *f.PriceTo != 12000 {
		t.Errorf("priceTo not forwarded: %+v", f)
	}
}

func TestServer_Export(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	rec := do(t, srv, http.MethodGet, "/categories/cars/export?spec.brandId=toyota", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[exportResponse](t, rec)
	if got.Total != 40 || len(got.Listings) != 40 {
		t.Errorf("exported %d (%d listings), want 40", got.Total, len(got.Listings))
	}
	if n := mock.Calls(testutil.FieldListingsSearch); n != 1 {
		t.Errorf("listing searches = %d, want 1", n)
	}
}

func TestServer_SSRHydratesSession(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()

	// Render and browser side hold separate caches
	render := newTestServer(t, mock)
	rec := do(t, render, http.MethodGet, "/ssr/categories/cars", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ssr status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decode[browse.Payload](t, rec)
	if payload.TotalResults != 52 || payload.ListingsTotal != 52 || len(payload.Listings) != catalog.DefaultPageLimit {
		t.Fatalf("payload totals %d/%d with %d listings", payload.TotalResults, payload.ListingsTotal, len(payload.Listings))
	}

	mock.Reset()
	browser := newTestServer(t, mock)
	rec = do(t, browser, http.MethodPost, "/sessions", map[string]any{"hydrate": payload})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[viewBody](t, rec)
	if view.Filters.CategorySlug != "cars" || view.Filters.TotalResults != 52 || len(view.Listings.Listings) != catalog.DefaultPageLimit {
		t.Errorf("hydrated view = %+v", view.Filters)
	}
	for _, field := range []string{testutil.FieldCategoryAttributes, testutil.FieldListingAggregations, testutil.FieldListingsSearch} {
		if n := mock.Calls(field); n != 0 {
			t.Errorf("%s called %d times after hydration", field, n)
		}
	}
}

func TestServer_SessionFlow(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	rec := do(t, srv, http.MethodPost, "/sessions", map[string]string{"category": "cars"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[viewBody](t, rec)
	if view.Listings.Pagination.Total != 52 || view.Filters.TotalResults != 52 {
		t.Fatalf("initial totals %d/%d", view.Filters.TotalResults, view.Listings.Pagination.Total)
	}
	base := "/sessions/" + view.ID

	steps := []struct {
		name  string
		path  string
		body  any
		check func(t *testing.T, v viewBody)
	}{
		{"select brand", "/select", map[string]any{"key": "brandId", "value": "toyota"}, func(t *testing.T, v viewBody) {
			if v.Filters.TotalResults != 40 || v.Listings.Pagination.Total != 40 {
				t.Errorf("totals %d/%d, want 40", v.Filters.TotalResults, v.Listings.Pagination.Total)
			}
			if v.Filters.Applied.Specs["brandId"] != "toyota" {
				t.Errorf("applied specs = %v", v.Filters.Applied.Specs)
			}
		}},
		{"next page", "/page", map[string]int{"page": 2}, func(t *testing.T, v viewBody) {
			if v.Listings.Pagination.Page != 2 || len(v.Listings.Listings) != 20 {
				t.Errorf("page %d with %d listings", v.Listings.Pagination.Page, len(v.Listings.Listings))
			}
		}},
		{"select range", "/select", map[string]any{"key": "year", "value": map[string]any{"from": 2020}}, func(t *testing.T, v viewBody) {
			if v.Listings.Pagination.Page != 1 {
				t.Errorf("filter change should reset to page 1, got %d", v.Listings.Pagination.Page)
			}
		}},
		{"clear all", "/clear", map[string]string{}, func(t *testing.T, v viewBody) {
			if v.Listings.Pagination.Total != 52 || len(v.Filters.Applied.Specs) != 0 {
				t.Errorf("total %d specs %v after clear", v.Listings.Pagination.Total, v.Filters.Applied.Specs)
			}
		}},
		{"list view", "/view", map[string]string{"view": "list"}, func(t *testing.T, v viewBody) {
			if v.Listings.ViewMode != "list" || v.Listings.Listings[0].Description == "" {
				t.Errorf("view mode %q", v.Listings.ViewMode)
			}
		}},
		{"page size", "/page", map[string]int{"limit": 50}, func(t *testing.T, v viewBody) {
			if v.Listings.Pagination.Limit != 50 || len(v.Listings.Listings) != 50 {
				t.Errorf("limit %d with %d listings", v.Listings.Pagination.Limit, len(v.Listings.Listings))
			}
		}},
		{"change category", "/category", map[string]string{"slug": "bikes"}, func(t *testing.T, v viewBody) {
			if v.Listings.CategorySlug != "bikes" || v.Listings.Pagination.Total != 3 {
				t.Errorf("category %q total %d", v.Listings.CategorySlug, v.Listings.Pagination.Total)
			}
			if _, ok := catalog.FindAttribute(v.Filters.Attributes, "frameSize"); !ok {
				t.Error("bike facets missing frameSize")
			}
		}},
	}

	for _, step := range steps {
		rec := do(t, srv, http.MethodPost, base+step.path, step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d: %s", step.name, rec.Code, rec.Body.String())
		}
		step.check(t, decode[viewBody](t, rec))
	}

	if rec := do(t, srv, http.MethodGet, base, nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, base, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, base, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestServer_SessionErrors(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	if rec := do(t, srv, http.MethodPost, "/sessions", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("create without category = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/sessions/nope/select", map[string]string{"key": "brandId"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", rec.Code)
	}

	view := decode[viewBody](t, do(t, srv, http.MethodPost, "/sessions", map[string]string{"category": "cars"}))
	base := "/sessions/" + view.ID

	tests := []struct {
		path string
		body any
		want int
	}{
		{"/select", map[string]any{"key": "colour", "value": "red"}, http.StatusBadRequest},
		{"/select", map[string]any{"value": "red"}, http.StatusBadRequest},
		{"/page", map[string]int{}, http.StatusBadRequest},
		{"/category", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(t, srv, http.MethodPost, base+tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("%s %v = %d, want %d", tt.path, tt.body, rec.Code, tt.want)
		}
	}
}

func TestServer_Admin(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	do(t, srv, http.MethodGet, "/categories/cars/listings", nil)

	rec := do(t, srv, http.MethodPost, "/admin/cache/invalidate?pattern="+api.PatternListings, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["removed"].(float64) < 1 {
		t.Errorf("removed = %v, want >= 1", got["removed"])
	}
	if rec := do(t, srv, http.MethodPost, "/admin/cache/invalidate", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing pattern = %d, want 400", rec.Code)
	}

	do(t, srv, http.MethodPost, "/admin/schema/invalidate?slug=cars", nil)
	if n := srv.schema.Len(); n != 0 {
		t.Errorf("schema cache holds %d entries after invalidation", n)
	}
	do(t, srv, http.MethodGet, "/categories/cars/filters", nil)
	do(t, srv, http.MethodGet, "/categories/bikes/filters", nil)
	if n := srv.schema.Len(); n != 2 {
		t.Errorf("schema cache holds %d entries, want 2", n)
	}
	rec = do(t, srv, http.MethodPost, "/admin/schema/invalidate", nil)
	if got := decode[map[string]any](t, rec); got["cached"].(float64) != 0 {
		t.Errorf("cached = %v after full invalidation", got["cached"])
	}
}

func TestServer_Maintenance(t *testing.T) {
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	srv := newTestServer(t, mock)

	srv.Sessions().Create()
	srv.Sessions().Create()
	if _, expired := srv.RunMaintenance(context.Background()); expired != 0 {
		t.Errorf("fresh sessions expired: %d", expired)
	}

	srv.sessions.now = func() time.Time { return time.Now().Add(DefaultSessionIdle + time.Minute) }
	if _, expired := srv.RunMaintenance(context.Background()); expired != 2 {
		t.Errorf("expired = %d, want 2", expired)
	}
	if srv.Sessions().Len() != 0 {
		t.Errorf("sessions left: %d", srv.Sessions().Len())
	}

	if _, err := srv.StartMaintenance("whenever"); err == nil {
		t.Error("invalid schedule should fail")
	}
	c, err := srv.StartMaintenance("@every 1h")
	if err != nil {
		t.Fatalf("StartMaintenance failed: %v", err)
	}
	<-c.Stop().Done()
}
