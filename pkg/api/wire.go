package api

import (
	"encoding/json"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
)

type wireOption struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	SortOrder int    `json:"sortOrder"`
	IsActive  *bool  `json:"isActive"`
	Count     *int   `json:"count"` // live count some backends attach; never kept
}

type wireAttribute struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	SortOrder    int          `json:"sortOrder"`
	Group        *string      `json:"group"`
	GroupOrder   int          `json:"groupOrder"`
	ShowInFilter bool         `json:"showInFilter"`
	ShowInGrid   bool         `json:"showInGrid"`
	ShowInList   bool         `json:"showInList"`
	ShowInDetail bool         `json:"showInDetail"`
	Options      []wireOption `json:"options"`
}

type categoryAttributesData struct {
	CategoryAttributes []wireAttribute `json:"categoryAttributes"`
}

type wireAggregationOption struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Count       int     `json:"count"`
	ParentID    *string `json:"parentId"`
	HasVariants *bool   `json:"hasVariants"`
}

type wireFieldAggregation struct {
	Field   string                  `json:"field"`
	Options []wireAggregationOption `json:"options"`
}

type listingAggregationsData struct {
	ListingAggregations struct {
		TotalResults int                     `json:"totalResults"`
		Attributes   []wireFieldAggregation  `json:"attributes"`
		Provinces    []wireAggregationOption `json:"provinces"`
	} `json:"listingAggregations"`
}

type wireListing struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  *string         `json:"description"`
	Price        *float64        `json:"price"`
	Currency     *string         `json:"currency"`
	Province     *string         `json:"province"`
	City         *string         `json:"city"`
	CategorySlug *string         `json:"categorySlug"`
	ListingType  *string         `json:"listingType"`
	Status       *string         `json:"status"`
	Thumbnail    *string         `json:"thumbnail"`
	Images       []string        `json:"images"`
	SellerID     *string         `json:"sellerId"`
	ViewCount    *int            `json:"viewCount"`
	CreatedAt    *string         `json:"createdAt"`
	Specs        json.RawMessage `json:"specs"`
}

type listingsSearchData struct {
	ListingsSearch struct {
		Total int           `json:"total"`
		Items []wireListing `json:"items"`
	} `json:"listingsSearch"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// toAttributes converts the wire schema. Attributes with an unknown type are
// skipped; live counts are dropped.
func toAttributes(in []wireAttribute, logger zerolog.Logger) []catalog.Attribute {
	out := make([]catalog.Attribute, 0, len(in))
	for _, w := range in {
		typ, err := catalog.ParseAttributeType(w.Type)
		if err != nil {
			logger.Warn().Err(err).Str("attribute", w.Key).Msg("Skipping attribute")
			continue
		}

		attr := catalog.Attribute{
			Key:          w.Key,
			Name:         w.Name,
			Type:         typ,
			SortOrder:    w.SortOrder,
			Group:        str(w.Group),
			GroupOrder:   w.GroupOrder,
			ShowInFilter: w.ShowInFilter,
			ShowInGrid:   w.ShowInGrid,
			ShowInList:   w.ShowInList,
			ShowInDetail: w.ShowInDetail,
		}
		for _, o := range w.Options {
			active := true
			if o.IsActive != nil {
				active = *o.IsActive
			}
			attr.Options = append(attr.Options, catalog.AttributeOption{
				Key:       o.Key,
				Value:     o.Value,
				SortOrder: o.SortOrder,
				IsActive:  active,
			})
		}
		out = append(out, attr.Structural())
	}
	return out
}

func toAggregatedOptions(in []wireAggregationOption) []catalog.AggregatedOption {
	out := make([]catalog.AggregatedOption, 0, len(in))
	for _, o := range in {
		out = append(out, catalog.AggregatedOption{
			Key:         o.Key,
			Value:       o.Value,
			Count:       o.Count,
			ParentKey:   str(o.ParentID),
			HasVariants: o.HasVariants != nil && *o.HasVariants,
		})
	}
	return out
}

func toAggregation(d listingAggregationsData) catalog.Aggregation {
	agg := catalog.Aggregation{
		TotalResults: d.ListingAggregations.TotalResults,
		Fields:       make(map[string][]catalog.AggregatedOption, len(d.ListingAggregations.Attributes)),
		Provinces:    toAggregatedOptions(d.ListingAggregations.Provinces),
	}
	for _, f := range d.ListingAggregations.Attributes {
		agg.Fields[f.Field] = append(agg.Fields[f.Field], toAggregatedOptions(f.Options)...)
	}
	return agg
}

// toListing converts one wire listing. Malformed embedded fields decode to
// their zero value.
func toListing(w wireListing) catalog.Listing {
	l := catalog.Listing{
		ID:           w.ID,
		Title:        w.Title,
		Description:  str(w.Description),
		Currency:     str(w.Currency),
		Province:     str(w.Province),
		City:         str(w.City),
		CategorySlug: str(w.CategorySlug),
		ListingType:  str(w.ListingType),
		Status:       str(w.Status),
		Thumbnail:    str(w.Thumbnail),
		Images:       w.Images,
		SellerID:     str(w.SellerID),
		Specs:        catalog.DecodeSpecs(w.Specs),
	}
	if w.Price != nil {
		l.Price = *w.Price
	}
	if w.ViewCount != nil {
		l.ViewCount = *w.ViewCount
	}
	if w.CreatedAt != nil {
		if t, err := time.Parse(time.RFC3339, *w.CreatedAt); err == nil {
			l.CreatedAt = t
		}
	}
	return l
}
