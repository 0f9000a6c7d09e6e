package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const StatusActive = "active"

var ErrBootstrapStateNotFound = errors.New("system bootstrap state not found")

// SystemBootstrapState is the single row written by the migrator.
type SystemBootstrapState struct {
	Status        string
	SchemaVersion string
	Checksum      *string
	ActivatedAt   *time.Time
}

func loadSystemBootstrapState(ctx context.Context, db *gorm.DB) (*SystemBootstrapState, error) {
	var state SystemBootstrapState
	result := db.WithContext(ctx).Raw(`
		SELECT status, schema_version, checksum, activated_at
		FROM system_bootstrap_state
		LIMIT 1
	`).Scan(&state)
	if result.Error != nil {
		if strings.Contains(strings.ToLower(result.Error.Error()), "no such table") ||
			strings.Contains(result.Error.Error(), "42P01") {
			return nil, ErrBootstrapStateNotFound
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrBootstrapStateNotFound
	}

	state.Status = strings.ToLower(strings.TrimSpace(state.Status))
	state.SchemaVersion = strings.TrimSpace(state.SchemaVersion)
	if state.Checksum != nil {
		trimmed := strings.TrimSpace(*state.Checksum)
		state.Checksum = &trimmed
	}
	return &state, nil
}
