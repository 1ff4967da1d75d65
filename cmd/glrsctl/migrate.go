package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glrssign/internal/database"
	"glrssign/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db := database.New()
		defer db.Close()

		if err := models.RunMigrations(db.DB()); err != nil {
			return err
		}
		version, dirty, err := models.MigrationVersion(db.DB())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
