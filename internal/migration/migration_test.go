package migration

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestEmbeddedMigrations(t *testing.T) {
	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 2, latest)

	first, err := MigrationsChecksum()
	require.NoError(t, err)
	second, err := MigrationsChecksum()
	require.NoError(t, err)
	assert.Len(t, first, 64)
	assert.Equal(t, first, second)
}

func TestParseMigrationVersion(t *testing.T) {
	v, ok := parseMigrationVersion("000012_add_things.up.sql")
	assert.True(t, ok)
	assert.EqualValues(t, 12, v)

	_, ok = parseMigrationVersion("add_things.up.sql")
	assert.False(t, ok)
	_, ok = parseMigrationVersion("000012.up.sql")
	assert.False(t, ok)
}

func TestRunSQLiteIsRepeatable(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.DatabaseConfig{Driver: config.DriverSQLite}
	require.NoError(t, Run(context.Background(), db, cfg, zap.NewNop()))
	require.NoError(t, Run(context.Background(), db, cfg, zap.NewNop()))

	var state struct {
		Status        string
		SchemaVersion string
	}
	require.NoError(t, db.Raw(`SELECT status, schema_version FROM system_bootstrap_state`).Scan(&state).Error)
	assert.Equal(t, "active", state.Status)
	assert.Equal(t, "2", state.SchemaVersion)

	for _, table := range []string{"clients", "products", "subscriptions", "payments", "payment_cleanup_runs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("payments", "ux_payments_pending_period"))
}
