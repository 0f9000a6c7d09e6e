package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

type createSubscriptionRequest struct {
	ClientID      string           `json:"client_id" binding:"required"`
	ProductID     string           `json:"product_id" binding:"required"`
	PriceMonthly  *decimal.Decimal `json:"price_monthly,omitempty"`
	BillingDay    int              `json:"billing_day"`
	Status        *string          `json:"status,omitempty"`
	StartsAt      *string          `json:"starts_at,omitempty"`
	EndsAt        *string          `json:"ends_at,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
	InstanceURL   *string          `json:"instance_url,omitempty"`
}

// updateSubscriptionRequest sets only the fields present. An empty
// ends_at removes the end date.
type updateSubscriptionRequest struct {
	PriceMonthly  *decimal.Decimal `json:"price_monthly,omitempty"`
	BillingDay    *int             `json:"billing_day,omitempty"`
	Status        *string          `json:"status,omitempty"`
	StartsAt      *string          `json:"starts_at,omitempty"`
	EndsAt        *string          `json:"ends_at,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
	InstanceURL   *string          `json:"instance_url,omitempty"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startsAt, err := parseOptionalDate(req.StartsAt)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidPeriod)
		return
	}
	endsAt, err := parseOptionalDate(req.EndsAt)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidPeriod)
		return
	}

	var status *subscriptiondomain.SubscriptionStatus
	if req.Status != nil {
		value := subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		status = &value
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateRequest{
		ClientID:      strings.TrimSpace(req.ClientID),
		ProductID:     strings.TrimSpace(req.ProductID),
		PriceMonthly:  req.PriceMonthly,
		BillingDay:    req.BillingDay,
		Status:        status,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		PaymentMethod: req.PaymentMethod,
		InstanceURL:   req.InstanceURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp)
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startsAt, err := parseOptionalDate(req.StartsAt)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidPeriod)
		return
	}
	endsAt, err := parseOptionalDate(req.EndsAt)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidPeriod)
		return
	}

	var status *subscriptiondomain.SubscriptionStatus
	if req.Status != nil {
		value := subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		status = &value
	}

	resp, err := s.subscriptionSvc.Update(c.Request.Context(), subscriptiondomain.UpdateRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		PriceMonthly:  req.PriceMonthly,
		BillingDay:    req.BillingDay,
		Status:        status,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		ClearEndsAt:   req.EndsAt != nil && strings.TrimSpace(*req.EndsAt) == "",
		PaymentMethod: req.PaymentMethod,
		InstanceURL:   req.InstanceURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, resp)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListRequest{
		Status: strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, resp)
}

func (s *Server) GetSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, resp)
}

// parseOptionalDate accepts a calendar date or an RFC 3339 timestamp.
func parseOptionalDate(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
