package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/sachanni/salonhub-geocache/internal/adapter/http"
	kafkaadapter "github.com/sachanni/salonhub-geocache/internal/adapter/kafka"
	"github.com/sachanni/salonhub-geocache/internal/pipeline"
)

func newWarmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Run the Kafka cache warmer",
		Long: `warm consumes geocode requests from KAFKA_QUERY_TOPIC, resolves each one
through the cache and publishes the outcome to KAFKA_RESULT_TOPIC. Health,
readiness and metrics are served on HTTP_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWarmer(cmd.Context())
		},
	}
}

func (a *app) runWarmer(parent context.Context) error {
	svc, st, err := a.service()
	if err != nil {
		return err
	}
	defer a.closeStores(st)

	reader := kafkaadapter.NewReader(a.cfg, a.logger)
	writer := kafkaadapter.NewWriter(a.cfg, a.logger)
	resolver := pipeline.NewResolver(svc, nil, a.logger)

	p := pipeline.New(reader, resolver, writer, a.logger, a.metrics, a.cfg.BatchSize)

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.logger,
		httpadapter.Check{Name: "warmer", Checker: p},
		httpadapter.Check{Name: "store", Checker: httpadapter.ReadinessFunc(st.ping)},
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
			stop()
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		a.logger.Error("warmer error", "error", runErr)
	}
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		a.logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return runErr
}
