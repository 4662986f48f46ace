package app

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/database"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			down, err := cmd.Flags().GetBool("down")
			if err != nil {
				return fmt.Errorf("failed to get down flag: %w", err)
			}
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}

			conn, err := pgx.Connect(ctx, a.cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if closeErr := conn.Close(ctx); closeErr != nil {
					a.log.Error("error closing database connection", zap.Error(closeErr))
				}
			}()

			if down {
				a.log.Info("dropping schema")
				if err := database.MigrateDown(ctx, conn); err != nil {
					return fmt.Errorf("failed to drop schema: %w", err)
				}
				return nil
			}

			a.log.Info("applying schema")
			if err := database.MigrateUp(ctx, conn); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			a.log.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().Bool("down", false, "Drop the schema instead of creating it")
	return cmd
}
