package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/observability"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type paymentServiceMock struct {
	mock.Mock
}

func (m *paymentServiceMock) RegisterPayment(ctx context.Context, req paymentdomain.RegisterPaymentRequest) (*paymentdomain.Payment, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*paymentdomain.Payment)
	return p, args.Error(1)
}

func (m *paymentServiceMock) List(ctx context.Context, req paymentdomain.ListRequest) ([]paymentdomain.Response, error) {
	args := m.Called(ctx, req)
	items, _ := args.Get(0).([]paymentdomain.Response)
	return items, args.Error(1)
}

func (m *paymentServiceMock) Get(ctx context.Context, id string) (*paymentdomain.Response, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*paymentdomain.Response)
	return p, args.Error(1)
}

func (m *paymentServiceMock) UpdateStatus(ctx context.Context, req paymentdomain.UpdateStatusRequest) (*paymentdomain.Payment, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*paymentdomain.Payment)
	return p, args.Error(1)
}

func (m *paymentServiceMock) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *paymentServiceMock) BulkDelete(ctx context.Context, ids []string) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

func (m *paymentServiceMock) EnsurePendingForSubscription(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, reference time.Time) (*paymentdomain.Payment, error) {
	args := m.Called(ctx, tx, sub, reference)
	p, _ := args.Get(0).(*paymentdomain.Payment)
	return p, args.Error(1)
}

type subscriptionServiceMock struct {
	mock.Mock
}

func (m *subscriptionServiceMock) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.Response, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*subscriptiondomain.Response)
	return r, args.Error(1)
}

func (m *subscriptionServiceMock) Get(ctx context.Context, id string) (*subscriptiondomain.Response, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*subscriptiondomain.Response)
	return r, args.Error(1)
}

func (m *subscriptionServiceMock) List(ctx context.Context, req subscriptiondomain.ListRequest) ([]subscriptiondomain.Response, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).([]subscriptiondomain.Response)
	return r, args.Error(1)
}

func (m *subscriptionServiceMock) Update(ctx context.Context, req subscriptiondomain.UpdateRequest) (*subscriptiondomain.Response, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*subscriptiondomain.Response)
	return r, args.Error(1)
}

type harness struct {
	server        *Server
	payments      *paymentServiceMock
	subscriptions *subscriptionServiceMock
	metrics       *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	h := &harness{
		payments:      &paymentServiceMock{},
		subscriptions: &subscriptionServiceMock{},
		metrics:       metrics,
	}
	cfg := config.Config{App: config.AppConfig{Env: "test"}}
	h.server = NewServer(Params{
		Config:          cfg,
		Log:             zap.NewNop(),
		DB:              db,
		Engine:          NewEngine(cfg),
		PaymentSvc:      h.payments,
		SubscriptionSvc: h.subscriptions,
		Metrics:         metrics,
	})
	h.server.RegisterAPIRoutes()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterPayment(t *testing.T) {
	h := newHarness(t)

	paid := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	payment := &paymentdomain.Payment{
		ID:       snowflake.ID(42),
		Amount:   decimal.NewFromInt(99000),
		Currency: "COP",
		Status:   paymentdomain.PaymentStatusPaid,
		PaidAt:   &paid,
	}
	h.payments.On("RegisterPayment", mock.Anything, paymentdomain.RegisterPaymentRequest{
		SubscriptionID: "7",
		Amount:         "99000",
		PaidAt:         "2024-01-10",
		Currency:       "COP",
		IdempotencyKey: "abc-123",
	}).Return(payment, nil).Once()

	rec := h.do(t, http.MethodPost, "/api/payments", map[string]any{
		"subscription_id": " 7 ",
		"amount":          99000,
		"paid_at":         "2024-01-10",
		"currency":        "COP",
	}, map[string]string{"Idempotency-Key": "abc-123"})

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "42", data["id"])
	assert.Equal(t, "paid", data["status"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	h.payments.AssertExpectations(t)
}

func TestRegisterPaymentWithoutAmountUsesSubscriptionPrice(t *testing.T) {
	h := newHarness(t)

	h.payments.On("RegisterPayment", mock.Anything, paymentdomain.RegisterPaymentRequest{
		SubscriptionID: "7",
		Amount:         "",
	}).Return(&paymentdomain.Payment{
		ID:     snowflake.ID(43),
		Amount: decimal.NewFromInt(150000),
		Status: paymentdomain.PaymentStatusPaid,
	}, nil).Once()

	rec := h.do(t, http.MethodPost, "/api/payments", map[string]any{"subscription_id": "7"}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "43", decode(t, rec)["data"].(map[string]any)["id"])
	h.payments.AssertExpectations(t)
}

func TestRegisterPaymentRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/payments", map[string]any{"amount": 10}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["code"])
	h.payments.AssertNotCalled(t, "RegisterPayment", mock.Anything, mock.Anything)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid argument", paymentdomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"not found", paymentdomain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
		{"conflict", paymentdomain.ErrPaidPaymentDeletion, http.StatusConflict, "paid_payment_delete"},
		{"unclassified", assert.AnError, http.StatusInternalServerError, "store_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.payments.On("Delete", mock.Anything, "9").Return(tc.err).Once()

			rec := h.do(t, http.MethodDelete, "/api/payments/9", nil, nil)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestBulkDeleteReportsOffendingIDs(t *testing.T) {
	h := newHarness(t)
	h.payments.On("BulkDelete", mock.Anything, []string{"1", "2"}).Return(0, &paymentdomain.BulkDeleteError{
		Reason:     paymentdomain.ErrPaidPaymentDeletion,
		PaymentIDs: []string{"2"},
	}).Once()

	rec := h.do(t, http.MethodDelete, "/api/payments", map[string]any{"payment_ids": []string{"1", "2"}}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "paid_payment_delete", body["code"])
	assert.Equal(t, []any{"2"}, body["payment_ids"])
}

func TestBulkDelete(t *testing.T) {
	h := newHarness(t)
	h.payments.On("BulkDelete", mock.Anything, []string{"1", "3"}).Return(2, nil).Once()

	rec := h.do(t, http.MethodDelete, "/api/payments", map[string]any{"payment_ids": []string{"1", "3"}}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["data"].(map[string]any)["deleted"])
}

func TestListAndUpdatePayments(t *testing.T) {
	h := newHarness(t)
	h.payments.On("List", mock.Anything, paymentdomain.ListRequest{SubscriptionID: "7", Status: "pending"}).
		Return([]paymentdomain.Response{{Payment: paymentdomain.Payment{ID: 1}}}, nil).Once()
	h.payments.On("UpdateStatus", mock.Anything, paymentdomain.UpdateStatusRequest{ID: "1", Status: "overdue"}).
		Return(&paymentdomain.Payment{ID: 1, Status: paymentdomain.PaymentStatusOverdue}, nil).Once()

	rec := h.do(t, http.MethodGet, "/api/payments?subscription_id=7&status=pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	rec = h.do(t, http.MethodPatch, "/api/payments/1", map[string]any{"status": "overdue"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "overdue", decode(t, rec)["data"].(map[string]any)["status"])

	h.payments.AssertExpectations(t)
}

func TestCreateSubscription(t *testing.T) {
	h := newHarness(t)

	startsAt := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	h.subscriptions.On("Create", mock.Anything, mock.MatchedBy(func(req subscriptiondomain.CreateRequest) bool {
		return req.ClientID == "1" && req.ProductID == "2" && req.BillingDay == 5 &&
			req.StartsAt != nil && req.StartsAt.Equal(startsAt) && req.PriceMonthly == nil
	})).Return(&subscriptiondomain.Response{Subscription: subscriptiondomain.Subscription{ID: 3, BillingDay: 5}}, nil).Once()

	rec := h.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"client_id":   "1",
		"product_id":  "2",
		"billing_day": 5,
		"starts_at":   "2024-03-10",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "3", decode(t, rec)["data"].(map[string]any)["id"])

	rec = h.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"client_id":   "1",
		"product_id":  "2",
		"billing_day": 5,
		"starts_at":   "10/03/2024",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_period", decode(t, rec)["code"])
	h.subscriptions.AssertExpectations(t)
}

func TestUpdateSubscription(t *testing.T) {
	h := newHarness(t)

	h.subscriptions.On("Update", mock.Anything, mock.MatchedBy(func(req subscriptiondomain.UpdateRequest) bool {
		return req.ID == "3" && req.Status != nil && *req.Status == subscriptiondomain.SubscriptionStatusCancelled &&
			req.BillingDay != nil && *req.BillingDay == 12 && req.ClearEndsAt && req.EndsAt == nil
	})).Return(&subscriptiondomain.Response{Subscription: subscriptiondomain.Subscription{
		ID:         3,
		BillingDay: 12,
		Status:     subscriptiondomain.SubscriptionStatusCancelled,
	}}, nil).Once()

	rec := h.do(t, http.MethodPatch, "/api/subscriptions/3", map[string]any{
		"status":      "Cancelled",
		"billing_day": 12,
		"ends_at":     "",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "cancelled", data["status"])
	assert.EqualValues(t, 12, data["billing_day"])

	h.subscriptions.On("Update", mock.Anything, mock.MatchedBy(func(req subscriptiondomain.UpdateRequest) bool {
		return req.ID == "4"
	})).Return(nil, subscriptiondomain.ErrInvalidTransition).Once()

	rec = h.do(t, http.MethodPatch, "/api/subscriptions/4", map[string]any{"status": "pending"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_subscription_transition", decode(t, rec)["code"])
	h.subscriptions.AssertExpectations(t)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	h := newHarness(t)
	h.subscriptions.On("Get", mock.Anything, "5").Return(nil, subscriptiondomain.ErrSubscriptionNotFound).Once()

	rec := h.do(t, http.MethodGet, "/api/subscriptions/5", nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "subscription_not_found", decode(t, rec)["code"])
}

func TestHealthAndRequestMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: "req-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
	assert.Equal(t, 1, testutil.CollectAndCount(h.metrics.HTTPRequestDuration))
}
