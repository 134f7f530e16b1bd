// Package cmd defines and implements the CLI commands for the brochures executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/app"
	"github.com/prepcart/brochure-crawler/internal/config"
	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/logging"
	"github.com/prepcart/brochure-crawler/internal/retailers"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what commands need from the service container. Tests inject a fake.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Records() crawler.RecordStore
	RunStore(ctx context.Context, def retailers.Definition) (crawler.BatchSummary, error)
	Close()
}

type rootOptions struct {
	configPath  string
	development bool
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, opts rootOptions) (App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.development {
		cfg.Logging.Development = true
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &syncingApp{App: a, logger: logger}, nil
}

// syncingApp flushes the logger after the services are closed.
type syncingApp struct {
	*app.App
	logger *zap.Logger
}

func (s *syncingApp) Close() {
	s.App.Close()
	_ = s.logger.Sync()
}

// appHolder keeps the App built for a command so it can be closed even when
// the command fails; cobra skips post-run hooks after a RunE error.
type appHolder struct {
	app App
}

func (h *appHolder) close() {
	if h.app != nil {
		h.app.Close()
		h.app = nil
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(holder *appHolder) *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "brochures",
		Short: "Crawls weekly retail brochures into durable PDFs.",
		Long: `brochures resolves the current promotional brochures of Bulgarian
retailers, fetches their page images or PDFs, assembles one document per
brochure, stores it and records it so a brochure is never crawled twice.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			holder.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVar(&opts.development, "dev", false, "human readable debug logging")

	cmd.AddCommand(newCrawlCmd(), newStoresCmd(), newRecordsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits non-zero on a fatal error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var holder appHolder
	defer holder.close()
	root := newRootCmd(&holder)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
