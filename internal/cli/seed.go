package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"hr-testing-service/internal/config"
	"hr-testing-service/internal/infra/memory"
	"hr-testing-service/internal/infra/postgres"
)

// NewSeedCmd imports a YAML catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a YAML test catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Catalog.File
			}
			return seedCatalog(cmd.Context(), cfg, file, newLogger(cfg))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog YAML (defaults to catalog.file)")
	return cmd
}

func seedCatalog(ctx context.Context, cfg config.Config, file string, logger *slog.Logger) error {
	if file == "" {
		return fmt.Errorf("no catalog file given")
	}
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}

	static, err := memory.LoadCatalogFile(file)
	if err != nil {
		return err
	}
	defs := static.Definitions()

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewCatalogLoader(pool).ImportCatalog(ctx, defs); err != nil {
		return err
	}
	logger.Info("catalog imported", "file", file, "tests", len(defs))
	return nil
}
