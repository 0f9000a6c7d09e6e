package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/railzwaylabs/tallybook/internal/apperror"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"gorm.io/gorm"
)

type Service interface {
	RegisterPayment(ctx context.Context, req RegisterPaymentRequest) (*Payment, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Payment, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) (int, error)
	// EnsurePendingForSubscription creates the first pending payment of a
	// newly created subscription, due on the next billing day on or after
	// reference.
	EnsurePendingForSubscription(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription, reference time.Time) (*Payment, error)
}

type RegisterPaymentRequest struct {
	SubscriptionID string
	Amount         string
	PaidAt         string
	Currency       string
	ReceiptURL     *string
	Notes          *string
	IdempotencyKey string
}

type ListRequest struct {
	SubscriptionID string
	Status         string
}

type UpdateStatusRequest struct {
	ID         string
	Status     string
	ReceiptURL *string
	Notes      *string
}

var (
	ErrInvalidPaymentID    = apperror.Mark(errors.New("invalid_payment_id"), apperror.ErrInvalidArgument)
	ErrInvalidAmount       = apperror.Mark(errors.New("invalid_amount"), apperror.ErrInvalidArgument)
	ErrInvalidPaidAt       = apperror.Mark(errors.New("invalid_paid_at"), apperror.ErrInvalidArgument)
	ErrInvalidCurrency     = apperror.Mark(errors.New("invalid_currency"), apperror.ErrInvalidArgument)
	ErrInvalidStatus       = apperror.Mark(errors.New("invalid_status"), apperror.ErrInvalidArgument)
	ErrEmptyPaymentIDs     = apperror.Mark(errors.New("payment_ids_required"), apperror.ErrInvalidArgument)
	ErrPaymentNotFound     = apperror.Mark(errors.New("payment_not_found"), apperror.ErrNotFound)
	ErrPaidPaymentDeletion = apperror.Mark(errors.New("paid_payment_delete"), apperror.ErrConflict)
	ErrInvalidTransition   = apperror.Mark(errors.New("invalid_status_transition"), apperror.ErrConflict)
	ErrCleanupInProgress   = apperror.Mark(errors.New("cleanup_in_progress"), apperror.ErrConflict)
)

// BulkDeleteError rejects a bulk delete and names the offending payments.
// It matches ErrPaymentNotFound when ids are missing and
// ErrPaidPaymentDeletion when paid payments were targeted.
type BulkDeleteError struct {
	Reason     error
	PaymentIDs []string
}

func (e *BulkDeleteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason.Error(), strings.Join(e.PaymentIDs, ","))
}

func (e *BulkDeleteError) Unwrap() error {
	return e.Reason
}
