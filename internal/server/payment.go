package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type registerPaymentRequest struct {
	SubscriptionID string           `json:"subscription_id" binding:"required"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PaidAt         string           `json:"paid_at"`
	Currency       string           `json:"currency"`
	ReceiptURL     *string          `json:"receipt_url,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

type updatePaymentStatusRequest struct {
	Status     string  `json:"status" binding:"required"`
	ReceiptURL *string `json:"receipt_url,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type bulkDeletePaymentsRequest struct {
	PaymentIDs []string `json:"payment_ids"`
}

// RegisterPayment records a payment against a subscription, settling its
// latest open obligation when there is one.
func (s *Server) RegisterPayment(c *gin.Context) {
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// an omitted amount settles at the subscription price
	var amount string
	if req.Amount != nil {
		amount = req.Amount.String()
	}

	payment, err := s.paymentSvc.RegisterPayment(c.Request.Context(), paymentdomain.RegisterPaymentRequest{
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		Amount:         amount,
		PaidAt:         strings.TrimSpace(req.PaidAt),
		Currency:       strings.TrimSpace(req.Currency),
		ReceiptURL:     req.ReceiptURL,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKeyFromHeader(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, payment)
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		SubscriptionID string `form:"subscription_id"`
		Status         string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListRequest{
		SubscriptionID: strings.TrimSpace(query.SubscriptionID),
		Status:         strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, items)
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, payment)
}

func (s *Server) UpdatePaymentStatus(c *gin.Context) {
	var req updatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.UpdateStatus(c.Request.Context(), paymentdomain.UpdateStatusRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		Status:     req.Status,
		ReceiptURL: req.ReceiptURL,
		Notes:      req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, payment)
}

func (s *Server) DeletePayment(c *gin.Context) {
	if err := s.paymentSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"deleted": 1})
}

// BulkDeletePayments deletes every listed payment or none of them.
func (s *Server) BulkDeletePayments(c *gin.Context) {
	var req bulkDeletePaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deleted, err := s.paymentSvc.BulkDelete(c.Request.Context(), req.PaymentIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"deleted": deleted})
}
