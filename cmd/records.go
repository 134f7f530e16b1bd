package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

const defaultListLimit = 20

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspects and maintains crawl records",
	}
	cmd.AddCommand(newRecordsCheckCmd(), newRecordsListCmd(), newRecordsDeleteCmd())
	return cmd
}

func newRecordsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <brochure-id>",
		Short: "Reports whether a brochure has been crawled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := appInstance.Records().Get(cmd.Context(), args[0])
			if errors.Is(err, crawler.ErrRecordNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not crawled\n", args[0])
				return nil
			}
			if err != nil {
				return fmt.Errorf("check %s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: crawled %s\n", rec.BrochureID, rec.CrawledAt.Format(time.RFC3339))
			fmt.Fprintf(w, "  store     %s (%s)\n", rec.StoreID, rec.Country)
			fmt.Fprintf(w, "  valid     %s - %s\n", crawler.FormatKeyDate(rec.ValidFrom), crawler.FormatKeyDate(rec.ValidTo))
			fmt.Fprintf(w, "  pages     %d\n", rec.ImageCount)
			fmt.Fprintf(w, "  file      %s\n", rec.Filename)
			if rec.CloudStoragePath != "" {
				fmt.Fprintf(w, "  path      %s\n", rec.CloudStoragePath)
			}
			if len(rec.Scopes) > 0 {
				fmt.Fprintf(w, "  scopes    %v\n", rec.Scopes)
			}
			return nil
		},
	}
}

func newRecordsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <store-id> <country>",
		Short: "Lists the newest records of a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := appInstance.Records().ListByStore(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", args[0], args[1], err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "BROCHURE ID\tCRAWLED AT\tVALID FROM\tVALID TO\tPAGES\tPATH")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					rec.BrochureID,
					rec.CrawledAt.Format(time.RFC3339),
					crawler.FormatKeyDate(rec.ValidFrom),
					crawler.FormatKeyDate(rec.ValidTo),
					rec.ImageCount,
					rec.CloudStoragePath,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of records")
	return cmd
}

func newRecordsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <brochure-id>",
		Short: "Deletes a record so the brochure is crawled again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Records().Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted\n", args[0])
			return nil
		},
	}
}
