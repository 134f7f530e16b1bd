package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/retailers"
)

// errNoStores means neither arguments, --all nor crawl.stores selected anything.
var errNoStores = errors.New("no stores selected: pass store names or ids, --all, or set crawl.stores")

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "crawl [store ...]",
		Short: "Crawls the current brochures of the selected stores",
		Long: `Runs the brochure pipeline store by store. Stores are selected by
crawler name (e.g. katalozi-kaufland) or store id (e.g. kaufland-bg). A summary
is printed per store. Brochure failures are reported but do not change the
exit code; a store whose every scope fails to resolve does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "crawl every built-in store")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string, all bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defs, err := selectStores(args, all, appInstance.Config().Crawl.Stores)
	if err != nil {
		return err
	}

	logger := appInstance.Logger()
	var fatal []error
	for _, def := range defs {
		if err := cmd.Context().Err(); err != nil {
			fatal = append(fatal, err)
			break
		}
		summary, err := appInstance.RunStore(cmd.Context(), def)
		printSummary(cmd.OutOrStdout(), def, summary, err)
		if err != nil {
			logger.Error("store run failed", zap.String("store", def.Name), zap.Error(err))
			fatal = append(fatal, fmt.Errorf("%s: %w", def.Name, err))
		}
	}
	if len(fatal) > 0 {
		return errors.Join(fatal...)
	}
	logger.Info("crawl command finished", zap.Int("stores", len(defs)))
	return nil
}

func selectStores(args []string, all bool, configured []string) ([]retailers.Definition, error) {
	switch {
	case all:
		return retailers.Definitions(), nil
	case len(args) > 0:
		return retailers.Lookup(args...)
	case len(configured) > 0:
		return retailers.Lookup(configured...)
	default:
		return nil, errNoStores
	}
}

func printSummary(w io.Writer, def retailers.Definition, s crawler.BatchSummary, runErr error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s (%s)\trun %s\n", def.Name, def.StoreID, s.RunID)
	fmt.Fprintln(tw, "  STORED\tALREADY CRAWLED\tFAILED\tDEGRADED\tSCOPE FAILURES\tDURATION")
	fmt.Fprintf(tw, "  %d\t%d\t%d\t%d\t%d\t%s\n",
		s.Count(crawler.StatusStored),
		s.Count(crawler.StatusAlreadyCrawled),
		s.Count(crawler.StatusFailed),
		s.DegradedCount(),
		len(s.ScopeFailures),
		s.Duration().Round(time.Millisecond),
	)
	_ = tw.Flush()

	for _, o := range s.Outcomes {
		switch {
		case o.Status == crawler.StatusFailed:
			fmt.Fprintf(w, "  failed   %s: %v\n", o.BrochureID, o.Err)
		case o.Status == crawler.StatusStored && o.Degraded():
			fmt.Fprintf(w, "  degraded %s: %d pages, %d skipped\n", o.BrochureID, o.PageCount, o.SkippedPages)
		}
	}
	for _, f := range s.ScopeFailures {
		fmt.Fprintf(w, "  scope    %s: %v\n", scopeLabel(f.Scope), f.Err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(w, "  fatal    %v\n", runErr)
	}
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "(listing)"
	}
	return scope
}
