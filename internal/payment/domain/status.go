package domain

import "strings"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusOverdue, PaymentStatusFailed},
	PaymentStatusOverdue: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPending, PaymentStatusPaid},
	// paid is terminal
	PaymentStatusPaid: nil,
}

func (s PaymentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Staying on the same status is always allowed.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	if s == target {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ParseStatus parses a status filter or update value. Empty input yields
// an empty status and no error.
func ParseStatus(value string) (PaymentStatus, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", nil
	}
	status := PaymentStatus(trimmed)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

func OpenStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusOverdue}
}
