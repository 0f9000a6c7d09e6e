package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, client_id, product_id, price_monthly, billing_day, status, starts_at, ends_at, payment_method, instance_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ClientID,
		s.ProductID,
		s.PriceMonthly,
		s.BillingDay,
		s.Status,
		s.StartsAt,
		s.EndsAt,
		s.PaymentMethod,
		s.InstanceURL,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, product_id, price_monthly, billing_day, status, starts_at, ends_at, payment_method, instance_url, created_at, updated_at
		 FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

// FindByIDForUpdate locks the row for the rest of the transaction where the
// store supports row locks.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []domain.Subscription
	if err := stmt.Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET price_monthly = ?, billing_day = ?, status = ?, starts_at = ?, ends_at = ?, payment_method = ?, instance_url = ?, updated_at = ?
		 WHERE id = ?`,
		s.PriceMonthly,
		s.BillingDay,
		s.Status,
		s.StartsAt,
		s.EndsAt,
		s.PaymentMethod,
		s.InstanceURL,
		s.UpdatedAt,
		s.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Subscription, error) {
	var items []domain.Subscription
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindClientByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var c domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_name, contact_name, email, phone, city, department, status, created_at, updated_at
		 FROM clients WHERE id = ?`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, base_price_monthly, active, created_at, updated_at
		 FROM products WHERE id = ?`,
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

type summaryRow struct {
	ID                      snowflake.ID
	Status                  domain.SubscriptionStatus
	PriceMonthly            decimal.Decimal
	BillingDay              int
	ClientID                snowflake.ID
	ClientBusinessName      string
	ClientContactName       string
	ClientEmail             string
	ClientPhone             string
	ClientCity              string
	ClientStatus            string
	ProductID               snowflake.ID
	ProductName             string
	ProductDescription      *string
	ProductBasePriceMonthly decimal.Decimal
}

func (r *repo) FindSummaries(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]domain.Summary, error) {
	out := make(map[snowflake.ID]domain.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []summaryRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.status, s.price_monthly, s.billing_day,
		        c.id AS client_id, c.business_name AS client_business_name, c.contact_name AS client_contact_name,
		        c.email AS client_email, c.phone AS client_phone, c.city AS client_city, c.status AS client_status,
		        p.id AS product_id, p.name AS product_name, p.description AS product_description,
		        p.base_price_monthly AS product_base_price_monthly
		 FROM subscriptions s
		 JOIN clients c ON c.id = s.client_id
		 JOIN products p ON p.id = s.product_id
		 WHERE s.id IN ?`,
		ids,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.ID] = domain.Summary{
			ID:           row.ID,
			Status:       row.Status,
			PriceMonthly: row.PriceMonthly,
			BillingDay:   row.BillingDay,
			Client: domain.ClientSummary{
				ID:           row.ClientID,
				BusinessName: row.ClientBusinessName,
				ContactName:  row.ClientContactName,
				Email:        row.ClientEmail,
				Phone:        row.ClientPhone,
				City:         row.ClientCity,
				Status:       row.ClientStatus,
			},
			Product: domain.ProductSummary{
				ID:               row.ProductID,
				Name:             row.ProductName,
				Description:      row.ProductDescription,
				BasePriceMonthly: row.ProductBasePriceMonthly,
			},
		}
	}
	return out, nil
}
