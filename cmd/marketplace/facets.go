package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/marketplace-client/internal/server"
	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/spf13/cobra"
)

var (
	facetSpecs       []string
	facetProvince    string
	facetListingType string
	facetJSON        bool
)

var facetsCmd = &cobra.Command{
	Use:   "facets <category>",
	Short: "Resolve the facet list of a category for a selection",
	Example: `  marketplace facets cars --spec brandId=toyota
  marketplace facets cars --spec fuel=petrol --spec fuel=diesel --spec year=2018.. --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		slug := args[0]

		st, err := newStack(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		params := url.Values{}
		for _, s := range facetSpecs {
			key, value, ok := strings.Cut(s, "=")
			if !ok || key == "" {
				return fmt.Errorf("--spec %q must look like key=value", s)
			}
			params.Add(server.SpecPrefix+key, value)
		}
		if facetProvince != "" {
			params.Set("province", facetProvince)
		}
		if facetListingType != "" {
			params.Set("listingType", facetListingType)
		}

		base, err := st.schema.GetBaseAttributes(ctx, slug)
		if err != nil {
			return err
		}
		f, err := server.ParseSelection(slug, params, base)
		if err != nil {
			return err
		}
		res, err := filters.NewResolver(st.schema, st.gateway, nil).Resolve(ctx, slug, f)
		if err != nil {
			return err
		}

		if facetJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"categorySlug": slug,
				"applied":      res.Filters,
				"totalResults": res.TotalResults,
				"attributes":   res.Attributes,
			})
		}
		return printFacets(cmd.OutOrStdout(), res)
	},
}

func init() {
	facetsCmd.Flags().StringArrayVar(&facetSpecs, "spec", nil, "attribute selection key=value (repeatable; ranges as from..to)")
	facetsCmd.Flags().StringVar(&facetProvince, "province", "", "restrict to a province")
	facetsCmd.Flags().StringVar(&facetListingType, "listing-type", "", "restrict to a listing type")
	facetsCmd.Flags().BoolVar(&facetJSON, "json", false, "print the resolution as JSON")
	rootCmd.AddCommand(facetsCmd)
}

// printFacets renders one line per option. Group headers are marked with
// "+", zero-count options with "-".
func printFacets(w io.Writer, res filters.Resolution) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%d results\n", res.TotalResults)
	for _, a := range res.Attributes {
		fmt.Fprintf(tw, "%s\t%s\t\n", a.Name, a.Type)
		for _, o := range a.ProcessedOptions {
			fmt.Fprintf(tw, "  %s%s\t%d\t\n", optionMarker(o), o.Value, o.Count)
		}
	}
	return tw.Flush()
}

func optionMarker(o catalog.ProcessedOption) string {
	switch {
	case !o.Selectable():
		return "+ "
	case o.Muted():
		return "- "
	case o.ParentKey != "":
		return "  "
	default:
		return ""
	}
}
