package cli

import (
	"github.com/spf13/cobra"

	"github.com/sachanni/salonhub-geocache/internal/adapter/kafka"
	"github.com/sachanni/salonhub-geocache/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "audit <trusted.yaml>",
		Short: "Compare provider coordinates with a trusted location list",
		Long: `audit re-resolves every trusted location through the provider, one request
at a time with AUDIT_DELAY between requests, and prints a drift report.
Distances above AUDIT_THRESHOLD_METERS are warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := audit.LoadTrustedLocations(args[0])
			if err != nil {
				return err
			}
			provider, err := a.provider()
			if err != nil {
				return err
			}

			opts := []audit.Option{
				audit.WithDelay(a.cfg.AuditDelay),
				audit.WithThreshold(a.cfg.AuditThresholdMeters),
			}
			if publish {
				pub := kafka.NewDriftPublisher(a.cfg, a.logger)
				defer func() {
					if err := pub.Close(); err != nil {
						a.logger.Error("drift publisher close error", "error", err)
					}
				}()
				opts = append(opts, audit.WithPublisher(pub))
			}

			report, runErr := audit.New(provider, a.logger, a.metrics, opts...).Run(cmd.Context(), entries)
			if err := a.printJSON(report); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "send warnings and errors to KAFKA_DRIFT_TOPIC")
	return cmd
}
