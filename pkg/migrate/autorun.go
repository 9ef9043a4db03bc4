package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// MaybeAuto applies pending migrations at agent startup when
// FIELDSYNC_DB_AUTO_MIGRATE is set. The agent owns its local store, so this
// is on by default.
func MaybeAuto(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, client *db.Client) error {
	if !cfg.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"driver": client.Driver()})
	logg.Info(ctx, "running goose migrations (auto-run)")

	SetLogger(logg)
	if err := Up(ctx, sqlDB, client.Driver()); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
