package main

import (
	"errors"
	"fmt"
	"os"

	"signaling-platform/internal/config"
	"signaling-platform/internal/db"
	"signaling-platform/pkg/logger"

	"github.com/spf13/cobra"
)

var databaseURL string

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the signaling platform Postgres schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"),
		"Postgres URL; defaults to the DB_* environment used by the API")

	rootCmd.AddCommand(
		migrateCmd("up", "Apply all pending migrations", cobra.NoArgs),
		migrateCmd("down", "Roll back every migration", cobra.NoArgs),
		migrateCmd("version", "Print the applied schema version", cobra.NoArgs),
		migrateCmd("force", "Force the schema version after a failed migration", cobra.ExactArgs(1)),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd(name, short string, args cobra.PositionalArgs) *cobra.Command {
	use := name
	if name == "force" {
		use = "force VERSION"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, env, err := resolveURL()
			if err != nil {
				return err
			}
			return db.RunMigrate(logger.New(env, os.Getenv("LOG_LEVEL")), url, db.Migrations(), name, args)
		},
	}
}

// resolveURL prefers --database-url and falls back to the API's DB_* config.
func resolveURL() (string, string, error) {
	if databaseURL != "" {
		return databaseURL, os.Getenv("APP_ENV"), nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", "", err
	}
	if !cfg.DBEnabled() {
		return "", "", errors.New("DB_HOST is not set and --database-url was not given")
	}
	return cfg.PostgresURL(), cfg.App.Env, nil
}
