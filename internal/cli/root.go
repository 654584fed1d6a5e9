// Package cli wires configuration, stores, providers and the cache into the
// geocachectl commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sachanni/salonhub-geocache/internal/config"
	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// ProviderFactory builds the provider selected by cfg.
type ProviderFactory func(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.Provider, error)

// Options swaps process-wide pieces; zero values select the production ones.
type Options struct {
	Out         io.Writer
	Err         io.Writer
	NewMetrics  func() *observability.Metrics
	NewProvider ProviderFactory
}

// app is the state shared by every command after configuration has loaded.
type app struct {
	opts    Options
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	aliasDictPath string
}

// NewRootCommand builds the geocachectl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.NewMetrics == nil {
		opts.NewMetrics = observability.NewMetrics
	}
	if opts.NewProvider == nil {
		opts.NewProvider = newProvider
	}

	a := &app{opts: opts}
	root := &cobra.Command{
		Use:   "geocachectl",
		Short: "Canonical geocoding cache",
		Long: `geocachectl resolves addresses and coordinates through a cache of
canonical locations, audits cached coordinates against trusted ones and
runs the Kafka cache warmer.

Configuration comes from the environment (and .env.local when present).
Without DATABASE_URL records are kept in memory for the life of the process.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVar(&a.aliasDictPath, "alias-dict", "", "alias dictionary YAML (default: built-in)")

	root.AddCommand(
		newGeocodeCmd(a),
		newReverseCmd(a),
		newAuditCmd(a),
		newIntegrityCmd(a),
		newMigrateCmd(a),
		newWarmCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(a.opts.Err, cfg.LogLevel, cfg.LogFormat)
	a.metrics = a.opts.NewMetrics()
	return nil
}
