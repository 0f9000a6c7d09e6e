package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SubscriptionStatus
		allowed  bool
	}{
		{SubscriptionStatusPending, SubscriptionStatusActive, true},
		{SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{SubscriptionStatusActive, SubscriptionStatusExpired, true},
		{SubscriptionStatusCancelled, SubscriptionStatusActive, true},
		{SubscriptionStatusCancelled, SubscriptionStatusPending, false},
		{SubscriptionStatusExpired, SubscriptionStatusActive, true},
		{SubscriptionStatusExpired, SubscriptionStatusCancelled, false},
		{SubscriptionStatus("paused"), SubscriptionStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBillableOn(t *testing.T) {
	due := time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC)
	sameDay := time.Date(2024, time.February, 5, 18, 30, 0, 0, time.UTC)
	dayBefore := time.Date(2024, time.February, 4, 23, 59, 0, 0, time.UTC)

	assert.True(t, (&Subscription{Status: SubscriptionStatusActive}).BillableOn(due))
	assert.True(t, (&Subscription{Status: SubscriptionStatusPending, EndsAt: &sameDay}).BillableOn(due))
	assert.False(t, (&Subscription{Status: SubscriptionStatusActive, EndsAt: &dayBefore}).BillableOn(due))
	assert.False(t, (&Subscription{Status: SubscriptionStatusCancelled}).BillableOn(due))
	assert.False(t, (&Subscription{Status: SubscriptionStatusExpired}).BillableOn(due))
}
