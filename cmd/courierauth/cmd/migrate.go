package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/courierauth"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the courierauth tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, dialect, err := openDB(cmd.Context(), settings)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := courierauth.Migrate(cmd.Context(), db, dialect); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
