package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const bootstrapStatusActive = "active"

// activateSystemBootstrapState records the schema version the binary was
// migrated to. The serving processes refuse to start until it matches.
func activateSystemBootstrapState(ctx context.Context, db *gorm.DB, schemaVersion string, checksum string) error {
	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required for bootstrap state activation")
	}

	now := time.Now().UTC()
	err := db.WithContext(ctx).Exec(`
		INSERT INTO system_bootstrap_state (id, status, schema_version, checksum, activated_at, created_at)
		VALUES (TRUE, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status,
		    schema_version = excluded.schema_version,
		    checksum = excluded.checksum,
		    activated_at = excluded.activated_at
	`, bootstrapStatusActive, version, nullIfEmpty(checksum), now, now).Error
	if err != nil {
		return fmt.Errorf("activate system bootstrap state: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
