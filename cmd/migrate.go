package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xamero/smartdocs/internal/database"
	"github.com/xamero/smartdocs/internal/metrics"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Runs database migrations to ensure the database schema
is up-to-date. This is useful for CI/CD pipelines or initial setup.`,
	RunE: runMigration,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigration executes the database migrations
func runMigration(cmd *cobra.Command, args []string) error {
	dbCfg := cfg.DB
	dbCfg.AutoMigrate = false

	log.Info().Msg("Connecting to database...")
	db, readOnlyDB, err := database.Open(dbCfg, metrics.NewMetrics())
	if err != nil {
		return err
	}
	defer database.Close(db, readOnlyDB)

	if err := database.Migrate(db); err != nil {
		return err
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}
