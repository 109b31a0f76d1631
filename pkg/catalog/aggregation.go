package catalog

// AggregatedOption is one option count returned by an aggregation query.
type AggregatedOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Count int    `json:"count"`

	// ParentKey links a variant to its model.
	ParentKey   string `json:"parentKey,omitempty"`
	HasVariants bool   `json:"hasVariants,omitempty"`
}

// Aggregation holds the option counts of every field under one filter state.
type Aggregation struct {
	TotalResults int `json:"totalResults"`

	// Fields maps an attribute key to its counted options, in response order.
	Fields map[string][]AggregatedOption `json:"fields"`

	// Provinces feeds the synthetic location attribute.
	Provinces []AggregatedOption `json:"provinces,omitempty"`
}

// Count returns the count of option under field, 0 when absent.
func (a Aggregation) Count(field, option string) int {
	for _, o := range a.Fields[field] {
		if o.Key == option {
			return o.Count
		}
	}
	return 0
}

// SearchRequest is one listing search window.
type SearchRequest struct {
	Filters  AppliedFilters
	Limit    int
	Offset   int
	ViewMode ViewMode
}

// SearchResult is one page of listings with the total match count.
type SearchResult struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
}
