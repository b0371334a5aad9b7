package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/persistence"
	"github.com/iota-uz/lms-admin/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	var printSQL bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the userimport schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSQL {
				stmts, err := persistence.UpSQL()
				if err != nil {
					return withCode(exitUsage, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(stmts, "\n"))
				return err
			}

			conf := configuration.Use()
			defer conf.Unload()
			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := persistence.Migrate(cmd.Context(), pool); err != nil {
				return withCode(exitDB, fmt.Errorf("migrate: %w", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSQL, "print", false, "Print the up migrations instead of applying them")
	return cmd
}
