package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/railzwaylabs/tallybook/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run brings the schema to the embedded version and marks the bootstrap
// state active. Postgres applies the SQL migrations under an advisory lock;
// sqlite is only used for local work and is auto-migrated from the models.
func Run(ctx context.Context, conn *gorm.DB, cfg config.DatabaseConfig, log *zap.Logger) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	latestVersion, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	checksum, err := MigrationsChecksum()
	if err != nil {
		return err
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		if err := autoMigrate(ctx, conn); err != nil {
			return err
		}
	default:
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		unlock, err := acquireAdvisoryLock(ctx, sqlDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				log.Warn("release migration lock failed", zap.Error(err))
			}
		}()

		if err := migratePostgres(sqlDB, latestVersion); err != nil {
			return err
		}
	}

	if err := activateSystemBootstrapState(ctx, conn, fmt.Sprintf("%d", latestVersion), checksum); err != nil {
		return err
	}

	log.Info("schema migrated",
		zap.String("driver", cfg.Driver),
		zap.Uint("version", latestVersion),
	)
	return nil
}

func migratePostgres(db *sql.DB, latestVersion uint) error {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if _, err := ensureNotDirty(migrator); err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	currentVersion, err := ensureNotDirty(migrator)
	if err != nil {
		return err
	}
	if currentVersion != latestVersion {
		return fmt.Errorf("schema version mismatch after migrate: got %d want %d", currentVersion, latestVersion)
	}
	return nil
}

func ensureNotDirty(migrator *migrate.Migrate) (uint, error) {
	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
