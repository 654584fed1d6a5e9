package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sachanni/salonhub-geocache/internal/geocache"
)

func newIntegrityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Scan stored records and aliases for defects",
		Long: `integrity reports hash mismatches, dangling aliases and records whose expiry
does not match their confidence. Nothing is repaired. The command fails when
any issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStores()
			if err != nil {
				return err
			}
			defer a.closeStores(st)

			report, err := geocache.CheckIntegrity(cmd.Context(), st)
			if err != nil {
				return err
			}
			if err := a.printJSON(report); err != nil {
				return err
			}
			if !report.Clean() {
				return fmt.Errorf("%d integrity issues found", len(report.Issues))
			}
			return nil
		},
	}
}
