package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", storeLabel(st))
		return nil
	},
}

func storeLabel(st store.Store) string {
	if _, ok := st.(*store.PostgresStore); ok {
		return "postgres"
	}
	return "sqlite"
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
