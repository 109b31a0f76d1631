package filters

import (
	"sort"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
)

// LocationAttribute is the synthetic attribute built from province counts.
var LocationAttribute = catalog.Attribute{
	Key:          catalog.KeyLocation,
	Name:         "Location",
	Type:         catalog.TypeSingleSelect,
	ShowInFilter: true,
}

// Merge joins base attribute definitions with aggregation counts into the
// facet list the UI renders.
//
// Options of brand, model and variant come from the aggregation only. Every
// other attribute keeps its active static options with Count looked up by
// option key, defaulting to 0. Zero-count options are kept. Attributes not
// shown in the filter panel are skipped. When province counts are present a
// location attribute is placed first.
func Merge(base []catalog.Attribute, agg catalog.Aggregation) []catalog.ProcessedAttribute {
	out := make([]catalog.ProcessedAttribute, 0, len(base)+1)
	for _, attr := range base {
		if !attr.ShowInFilter || attr.Key == catalog.KeyLocation {
			continue
		}

		p := catalog.ProcessedAttribute{Attribute: attr.Structural()}
		switch {
		case attr.Key == catalog.KeyVariant:
			p.ProcessedOptions = groupVariants(agg.Fields[catalog.KeyModel], agg.Fields[catalog.KeyVariant])
		case catalog.IsAggregationDriven(attr.Key):
			p.ProcessedOptions = fromAggregation(agg.Fields[attr.Key])
		default:
			p.ProcessedOptions = countStatic(attr.Key, attr.Options, agg)
		}
		out = append(out, p)
	}
	catalog.SortAttributes(out)

	if len(agg.Provinces) > 0 {
		loc := catalog.ProcessedAttribute{
			Attribute:        LocationAttribute,
			ProcessedOptions: fromAggregation(agg.Provinces),
		}
		out = append([]catalog.ProcessedAttribute{loc}, out...)
	}

	return out
}

func fromAggregation(opts []catalog.AggregatedOption) []catalog.ProcessedOption {
	out := make([]catalog.ProcessedOption, 0, len(opts))
	for i, o := range opts {
		out = append(out, catalog.ProcessedOption{
			Key:         o.Key,
			Value:       o.Value,
			SortOrder:   i,
			Count:       o.Count,
			ParentKey:   o.ParentKey,
			HasVariants: o.HasVariants,
		})
	}
	return out
}

// groupVariants orders variants under their model, following model order.
// Variants of unknown models go last in response order.
func groupVariants(models, variants []catalog.AggregatedOption) []catalog.ProcessedOption {
	rank := make(map[string]int, len(models))
	for i, m := range models {
		rank[m.Key] = i
	}

	ordered := make([]catalog.AggregatedOption, len(variants))
	copy(ordered, variants)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iok := rank[ordered[i].ParentKey]
		rj, jok := rank[ordered[j].ParentKey]
		if iok != jok {
			return iok
		}
		return ri < rj
	})

	return fromAggregation(ordered)
}

func countStatic(key string, opts []catalog.AttributeOption, agg catalog.Aggregation) []catalog.ProcessedOption {
	out := make([]catalog.ProcessedOption, 0, len(opts))
	for _, o := range opts {
		if !o.IsActive {
			continue
		}
		out = append(out, catalog.ProcessedOption{
			Key:       o.Key,
			Value:     o.Value,
			SortOrder: o.SortOrder,
			Count:     agg.Count(key, o.Key),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}
