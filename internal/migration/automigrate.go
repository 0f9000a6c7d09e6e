package migration

import (
	"context"
	"fmt"

	"github.com/railzwaylabs/tallybook/internal/payment/cleanup"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"gorm.io/gorm"
)

// sqlite gets the same guards as the SQL migrations, minus foreign keys.
var sqliteStatements = []string{
	`CREATE TABLE IF NOT EXISTS system_bootstrap_state (
		id             BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
		status         TEXT     NOT NULL,
		schema_version TEXT     NOT NULL,
		checksum       TEXT,
		activated_at   DATETIME,
		created_at     DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_pending_period
		ON payments (subscription_id, period)
		WHERE status = 'pending'`,
}

func autoMigrate(ctx context.Context, conn *gorm.DB) error {
	db := conn.WithContext(ctx)
	if err := db.AutoMigrate(
		&subscriptiondomain.Client{},
		&subscriptiondomain.Product{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&cleanup.Run{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range sqliteStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	return nil
}
