package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	// InsertPendingIfAbsent inserts a pending payment unless the store's
	// pending-period uniqueness guard rejects it. Reports whether a row
	// was written.
	InsertPendingIfAbsent(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, key string) (*Payment, error)
	// FindLatestOpenDueBy returns the open payment with the latest due date
	// not after dueBy.
	FindLatestOpenDueBy(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, dueBy time.Time) (*Payment, error)
	// FindInPeriod returns the first payment of the subscription whose due
	// date falls in [from, to).
	FindInPeriod(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, from, to time.Time) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Payment, error)
	// ListForCleanup returns every payment attached to an existing
	// subscription, ordered by subscription, due date and creation time.
	ListForCleanup(ctx context.Context, db *gorm.DB) ([]Payment, error)
	CountOrphans(ctx context.Context, db *gorm.DB) (int64, error)
	// Settle marks an open payment as paid. Reports false when the payment
	// was no longer open.
	Settle(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, payment *Payment) error
	// Reclassify moves a payment from one status to another and reports
	// false when the payment no longer has the expected status.
	Reclassify(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PaymentStatus, at time.Time) (bool, error)
	// DeleteIfStatus deletes a payment only while it still has status.
	DeleteIfStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	DeleteMany(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error)
}

type ListFilter struct {
	SubscriptionID snowflake.ID
	Status         PaymentStatus
}
