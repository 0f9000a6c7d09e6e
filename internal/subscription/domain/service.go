package domain

import (
	"context"
	"errors"
	"time"

	"github.com/railzwaylabs/tallybook/internal/apperror"
	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
}

type CreateRequest struct {
	ClientID      string              `json:"client_id"`
	ProductID     string              `json:"product_id"`
	PriceMonthly  *decimal.Decimal    `json:"price_monthly"`
	BillingDay    int                 `json:"billing_day"`
	Status        *SubscriptionStatus `json:"status,omitempty"`
	StartsAt      *time.Time          `json:"starts_at,omitempty"`
	EndsAt        *time.Time          `json:"ends_at,omitempty"`
	PaymentMethod *string             `json:"payment_method,omitempty"`
	InstanceURL   *string             `json:"instance_url,omitempty"`
}

// UpdateRequest changes only the fields that are set. ClearEndsAt removes
// the end date and wins over EndsAt.
type UpdateRequest struct {
	ID            string
	PriceMonthly  *decimal.Decimal
	BillingDay    *int
	Status        *SubscriptionStatus
	StartsAt      *time.Time
	EndsAt        *time.Time
	ClearEndsAt   bool
	PaymentMethod *string
	InstanceURL   *string
}

type ListRequest struct {
	Status string
}

type Response struct {
	Subscription
	Client  ClientSummary  `json:"client"`
	Product ProductSummary `json:"product"`
}

var (
	ErrInvalidSubscription  = apperror.Mark(errors.New("invalid_subscription_id"), apperror.ErrInvalidArgument)
	ErrInvalidClient        = apperror.Mark(errors.New("invalid_client_id"), apperror.ErrInvalidArgument)
	ErrInvalidProduct       = apperror.Mark(errors.New("invalid_product_id"), apperror.ErrInvalidArgument)
	ErrInvalidBillingDay    = apperror.Mark(errors.New("invalid_billing_day"), apperror.ErrInvalidArgument)
	ErrInvalidPrice         = apperror.Mark(errors.New("invalid_price"), apperror.ErrInvalidArgument)
	ErrInvalidStatus        = apperror.Mark(errors.New("invalid_status"), apperror.ErrInvalidArgument)
	ErrInvalidPeriod        = apperror.Mark(errors.New("invalid_period"), apperror.ErrInvalidArgument)
	ErrInvalidTransition    = apperror.Mark(errors.New("invalid_subscription_transition"), apperror.ErrConflict)
	ErrSubscriptionNotFound = apperror.Mark(errors.New("subscription_not_found"), apperror.ErrNotFound)
	ErrClientNotFound       = apperror.Mark(errors.New("client_not_found"), apperror.ErrNotFound)
	ErrProductNotFound      = apperror.Mark(errors.New("product_not_found"), apperror.ErrNotFound)
)
