package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prepcart/brochure-crawler/internal/retailers"
)

func newStoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "Lists the built-in stores and their strategy",
		Args:  cobra.NoArgs,
		// Listing needs no services.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTORE ID\tCOUNTRY\tSOURCE\tSTRATEGY\tSCOPES")
			for _, def := range retailers.Definitions() {
				scopes := "-"
				if len(def.Scopes) > 0 {
					scopes = strings.Join(def.Scopes, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					def.Name, def.StoreID, def.Country, def.Source, def.Strategy, scopes)
			}
			return tw.Flush()
		},
	}
}
