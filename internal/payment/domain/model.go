package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// Payment is one billing-period obligation of a subscription, or the record
// of its settlement.
type Payment struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	SubscriptionID snowflake.ID    `json:"subscription_id" gorm:"not null;index:idx_payments_subscription_due,priority:1;uniqueIndex:idx_payments_idempotency,priority:1"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency       string          `json:"currency" gorm:"type:varchar(3);not null"`
	DueDate        time.Time       `json:"due_date" gorm:"not null;index:idx_payments_subscription_due,priority:2"`
	Period         time.Time       `json:"period" gorm:"not null"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Status         PaymentStatus   `json:"status" gorm:"type:text;not null;index"`
	ReceiptURL     *string         `json:"receipt_url,omitempty" gorm:"type:text"`
	Notes          *string         `json:"notes,omitempty" gorm:"type:text"`
	IdempotencyKey *string         `json:"-" gorm:"type:text;uniqueIndex:idx_payments_idempotency,priority:2"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// IsOpen reports whether the payment still represents an unsettled
// obligation that a registration can settle.
func (p Payment) IsOpen() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusOverdue
}

// Response is a payment with its subscription, client and product summary.
type Response struct {
	Payment
	Subscription *subscriptiondomain.Summary `json:"subscription,omitempty"`
}
