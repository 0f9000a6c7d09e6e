package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive,
		SubscriptionStatusPending,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a subscription may move from s to target.
// Expired is final except for a renewal back to active.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusPending:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCancelled || target == SubscriptionStatusExpired
	case SubscriptionStatusActive:
		return target == SubscriptionStatusPending || target == SubscriptionStatusCancelled || target == SubscriptionStatusExpired
	case SubscriptionStatusCancelled:
		return target == SubscriptionStatusActive || target == SubscriptionStatusExpired
	case SubscriptionStatusExpired:
		return target == SubscriptionStatusActive
	default:
		return false
	}
}

// Billable reports whether the status still accrues monthly obligations.
func (s SubscriptionStatus) Billable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPending
}

// Subscription pairs a client with a product billed monthly on BillingDay.
type Subscription struct {
	ID            snowflake.ID       `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ClientID      snowflake.ID       `json:"client_id" gorm:"not null;index"`
	ProductID     snowflake.ID       `json:"product_id" gorm:"not null;index"`
	PriceMonthly  decimal.Decimal    `json:"price_monthly" gorm:"type:numeric(14,2);not null"`
	BillingDay    int                `json:"billing_day" gorm:"not null"`
	Status        SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	StartsAt      time.Time          `json:"starts_at" gorm:"not null"`
	EndsAt        *time.Time         `json:"ends_at,omitempty"`
	PaymentMethod *string            `json:"payment_method,omitempty" gorm:"type:text"`
	InstanceURL   *string            `json:"instance_url,omitempty" gorm:"type:text"`
	CreatedAt     time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// BillableOn reports whether an obligation due on due belongs to the
// subscription. A subscription is billed through its end date inclusive.
func (s *Subscription) BillableOn(due time.Time) bool {
	if !s.Status.Billable() {
		return false
	}
	if s.EndsAt == nil {
		return true
	}
	ends := s.EndsAt.UTC()
	end := time.Date(ends.Year(), ends.Month(), ends.Day(), 0, 0, 0, 0, time.UTC)
	return !end.Before(due)
}

// Client and Product are owned by the surrounding CRUD surface; this
// module only reads them.
type Client struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	BusinessName string       `json:"business_name" gorm:"type:text;not null"`
	ContactName  string       `json:"contact_name" gorm:"type:text"`
	Email        string       `json:"email" gorm:"type:text"`
	Phone        string       `json:"phone" gorm:"type:text"`
	City         string       `json:"city" gorm:"type:text"`
	Department   string       `json:"department" gorm:"type:text"`
	Status       string       `json:"status" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Client) TableName() string { return "clients" }

type Product struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name             string          `json:"name" gorm:"type:text;not null"`
	Description      *string         `json:"description,omitempty" gorm:"type:text"`
	BasePriceMonthly decimal.Decimal `json:"base_price_monthly" gorm:"type:numeric(14,2);not null"`
	Active           bool            `json:"active" gorm:"not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

type ClientSummary struct {
	ID           snowflake.ID `json:"id"`
	BusinessName string       `json:"business_name"`
	ContactName  string       `json:"contact_name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	City         string       `json:"city"`
	Status       string       `json:"status"`
}

type ProductSummary struct {
	ID               snowflake.ID    `json:"id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description,omitempty"`
	BasePriceMonthly decimal.Decimal `json:"base_price_monthly"`
}

// Summary is the subscription view embedded in payment listings.
type Summary struct {
	ID           snowflake.ID       `json:"id"`
	Status       SubscriptionStatus `json:"status"`
	PriceMonthly decimal.Decimal    `json:"price_monthly"`
	BillingDay   int                `json:"billing_day"`
	Client       ClientSummary      `json:"client"`
	Product      ProductSummary     `json:"product"`
}
