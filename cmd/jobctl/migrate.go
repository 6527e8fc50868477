package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/printworks/jobtrack/internal/config"
	"github.com/printworks/jobtrack/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL job tables",
		Long: `Creates or updates the jobs, job_history and job_sequences tables.

The driver and DSN default to STORAGE_DRIVER and STORAGE_DSN. Only the
sqlite and mysql drivers keep a schema; memory and redis need no migration.

Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("migrate: load config: %w", err)
			}
			if driver != "" {
				cfg.Storage.Driver = driver
			}
			if dsn != "" {
				cfg.Storage.DSN = dsn
			}
			return runMigrate(cmd.OutOrStdout(), cfg.Storage)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "sqlite or mysql (default from STORAGE_DRIVER)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (default from STORAGE_DSN)")
	return cmd
}

func runMigrate(out io.Writer, cfg config.StorageConfig) error {
	if cfg.Driver != "sqlite" && cfg.Driver != "mysql" {
		fmt.Fprintf(out, "Driver %q has no schema, nothing to migrate\n", cfg.Driver)
		return nil
	}

	db, err := store.OpenSQL(cfg.Driver, store.SQLDSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	for _, m := range store.AllModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return fmt.Errorf("migrate: parse model: %w", err)
		}
		if !db.Migrator().HasTable(m) {
			return fmt.Errorf("migrate: table %s missing after migration", stmt.Schema.Table)
		}
		fmt.Fprintf(out, "  %s ok\n", stmt.Schema.Table)
	}
	fmt.Fprintln(out, "Migration complete.")
	return nil
}
