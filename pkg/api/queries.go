// Package api holds the marketplace query documents, the wire filter builder
// and the Gateway that feeds the filter engine and the listing coordinator.
package api

import (
	"fmt"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
)

// Invalidation patterns. Each matches every cached query of its kind
// regardless of variables.
const (
	PatternListings     = "listingsSearch"
	PatternAggregations = "listingAggregations"
	PatternAttributes   = "categoryAttributes"
)

// CategoryAttributesQuery fetches the attribute schema of a category.
const CategoryAttributesQuery = `query CategoryAttributes($slug: String!) {
  categoryAttributes(slug: $slug) {
    key
    name
    type
    sortOrder
    group
    groupOrder
    showInFilter
    showInGrid
    showInList
    showInDetail
    options { key value sortOrder isActive count }
  }
}`

// ListingAggregationsQuery fetches option counts under a filter state.
const ListingAggregationsQuery = `query ListingAggregations($filter: ListingFilter!) {
  listingAggregations(filter: $filter) {
    totalResults
    attributes {
      field
      options { key value count parentId hasVariants }
    }
    provinces { key value count }
  }
}`

const (
	gridFields = `id title price currency province city thumbnail listingType createdAt`

	listFields = gridFields + ` description specs`

	detailFields = listFields + ` status images categorySlug`

	fullFields = detailFields + ` sellerId viewCount`
)

const listingsSearchTemplate = `query %s($filter: ListingFilter!, $limit: Int!, $offset: Int!) {
  listingsSearch(filter: $filter, limit: $limit, offset: $offset) {
    total
    items { %s }
  }
}`

// Listing search documents, one per view mode. Each requests only what its view renders.
var (
	ListingsGridQuery   = fmt.Sprintf(listingsSearchTemplate, "ListingsGrid", gridFields)
	ListingsListQuery   = fmt.Sprintf(listingsSearchTemplate, "ListingsList", listFields)
	ListingsDetailQuery = fmt.Sprintf(listingsSearchTemplate, "ListingsDetail", detailFields)
	ListingsFullQuery   = fmt.Sprintf(listingsSearchTemplate, "ListingsFull", fullFields)
)

// ListingsQuery returns the search document for a view mode.
func ListingsQuery(mode catalog.ViewMode) string {
	switch mode {
	case catalog.ViewList:
		return ListingsListQuery
	case catalog.ViewDetail:
		return ListingsDetailQuery
	case catalog.ViewFull:
		return ListingsFullQuery
	default:
		return ListingsGridQuery
	}
}
