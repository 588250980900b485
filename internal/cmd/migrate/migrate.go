package migrate

import (
	"context"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/BusyMan009/my-thrift-backend/internal/plugin/store/mongo"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create database collections and indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("MYTHRIFT_DB_URL"),
				Usage:    "Database connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("MYTHRIFT_DB_KIND"),
				Usage:   "Store backend (mongo)",
				Value:   "mongo",
			},
			&cli.StringFlag{
				Name:    "db-name",
				Sources: cli.EnvVars("MYTHRIFT_DB_NAME"),
				Usage:   "Database name",
				Value:   config.DefaultConfig().DBName,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DBName = cmd.String("db-name")
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrystore.MigrateAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
