package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, subscription_id, amount, currency, due_date, period, paid_at, status, receipt_url, notes, idempotency_key, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs(p)...,
	).Error
}

func (r *repo) InsertPendingIfAbsent(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	if p == nil || p.Status != domain.PaymentStatusPending {
		return false, gorm.ErrInvalidData
	}
	result := db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		insertArgs(p)...,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func insertArgs(p *domain.Payment) []any {
	return []any{
		p.ID,
		p.SubscriptionID,
		p.Amount,
		p.Currency,
		p.DueDate,
		p.Period,
		p.PaidAt,
		p.Status,
		p.ReceiptURL,
		p.Notes,
		p.IdempotencyKey,
		p.CreatedAt,
		p.UpdatedAt,
	}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	if len(ids) == 0 {
		return items, nil
	}
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, key string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE subscription_id = ? AND idempotency_key = ?
		 LIMIT 1`,
		subscriptionID,
		key,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindLatestOpenDueBy(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, dueBy time.Time) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE subscription_id = ? AND status IN ? AND due_date <= ?
		 ORDER BY due_date DESC, created_at ASC, id ASC
		 LIMIT 1`,
		subscriptionID,
		domain.OpenStatuses(),
		dueBy,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindInPeriod(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, from, to time.Time) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE subscription_id = ? AND due_date >= ? AND due_date < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		subscriptionID,
		from,
		to,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Payment, error) {
	var items []domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{})
	if filter.SubscriptionID != 0 {
		stmt = stmt.Where("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("due_date desc, created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListForCleanup(ctx context.Context, db *gorm.DB) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.subscription_id, p.amount, p.currency, p.due_date, p.period, p.paid_at, p.status,
		        p.receipt_url, p.notes, p.idempotency_key, p.created_at, p.updated_at
		 FROM payments p
		 JOIN subscriptions s ON s.id = p.subscription_id
		 ORDER BY p.subscription_id ASC, p.due_date ASC, p.created_at ASC, p.id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountOrphans(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments p
		 LEFT JOIN subscriptions s ON s.id = p.subscription_id
		 WHERE s.id IS NULL`,
	).Scan(&count).Error
	return count, err
}

func (r *repo) Settle(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	if p == nil || p.Status != domain.PaymentStatusPaid || p.PaidAt == nil {
		return false, gorm.ErrInvalidData
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, paid_at = ?, amount = ?, currency = ?, receipt_url = ?, notes = ?, idempotency_key = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		p.Status,
		p.PaidAt,
		p.Amount,
		p.Currency,
		p.ReceiptURL,
		p.Notes,
		p.IdempotencyKey,
		p.UpdatedAt,
		p.ID,
		domain.OpenStatuses(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, paid_at = ?, receipt_url = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		p.Status,
		p.PaidAt,
		p.ReceiptURL,
		p.Notes,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) Reclassify(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.PaymentStatus, at time.Time) (bool, error) {
	stmt := `UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []any{to, at, id, from}
	if to == domain.PaymentStatusPaid {
		stmt = `UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ? AND paid_at IS NOT NULL`
	}
	result := db.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeleteIfStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.PaymentStatus) (int64, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE id = ? AND status = ?`, id, status)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE id = ?`, id)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteMany(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE id IN ?`, ids)
	return result.RowsAffected, result.Error
}
