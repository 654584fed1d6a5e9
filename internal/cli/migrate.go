package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sachanni/salonhub-geocache/internal/store/sqlstore"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			s, err := sqlstore.Open(a.cfg.DatabaseURL, a.logger, sqlstore.Options{MaxOpenConns: a.cfg.DBMaxOpenConns})
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(); err != nil {
					a.logger.Error("store close error", "error", err)
				}
			}()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("schema up to date")
			return nil
		},
	}
}
