package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/storefront/backend/internal/checkout"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/membership"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

type stubCheckout struct {
	quoteErr    error
	finalizeRes *checkout.OrderResult
	finalizeErr error
	detail      *checkout.OrderDetail
	detailErr   error
	statusErr   error
	stockQty    int
	stockErr    error

	gotItems  []pricing.Item
	gotToken  string
	gotStatus models.OrderStatus
}

func (s *stubCheckout) Quote(ctx context.Context, customerID int64, items []pricing.Item) (*pricing.Priced, error) {
	s.gotItems = items
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &pricing.Priced{DiscountPercent: decimal.Zero}, nil
}

func (s *stubCheckout) CreatePendingOrder(ctx context.Context, customerID int64, items []pricing.Item) (*checkout.OrderResult, error) {
	return &checkout.OrderResult{Order: &models.Order{ID: 1, CustomerID: customerID, Status: models.OrderStatusPending}}, nil
}

func (s *stubCheckout) Finalize(ctx context.Context, customerID int64, items []pricing.Item, paymentToken string) (*checkout.OrderResult, error) {
	s.gotToken = paymentToken
	return s.finalizeRes, s.finalizeErr
}

func (s *stubCheckout) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	s.gotStatus = status
	return s.statusErr
}

func (s *stubCheckout) GetOrderDetail(ctx context.Context, orderID int64) (*checkout.OrderDetail, error) {
	return s.detail, s.detailErr
}

func (s *stubCheckout) DecrementStock(ctx context.Context, productID int64, color, size string, delta int) (int, error) {
	return s.stockQty, s.stockErr
}

type stubMemberships struct {
	plan      models.MembershipPlan
	active    bool
	cancelled bool
	subErr    error
}

func (s *stubMemberships) Subscribe(ctx context.Context, customerID int64, plan models.MembershipPlan) (*models.Membership, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	return &models.Membership{ID: 9, CustomerID: customerID, Plan: plan, Status: models.MembershipActive}, nil
}

func (s *stubMemberships) Cancel(ctx context.Context, customerID int64) (bool, error) {
	return s.cancelled, nil
}

func (s *stubMemberships) ActivePlan(ctx context.Context, customerID int64, asOf time.Time) (models.MembershipPlan, bool, error) {
	return s.plan, s.active, nil
}

func (s *stubMemberships) Discounts() membership.Discounts {
	return membership.NewDiscounts(10, 15)
}

type stubJobs struct {
	cancelErr error
}

func (s *stubJobs) QueueStats(ctx context.Context) (*models.JobStats, error) {
	return &models.JobStats{Pending: 2, Total: 5}, nil
}

func (s *stubJobs) PendingJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return nil, nil
}

func (s *stubJobs) CancelJob(ctx context.Context, jobID int64) error {
	return s.cancelErr
}

type stubStock struct {
	err error
	key models.VariantKey
}

func (s *stubStock) SetQuantity(ctx context.Context, key models.VariantKey, quantity int) error {
	s.key = key
	return s.err
}

func serve(t *testing.T, method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestQuoteDecodesItems(t *testing.T) {
	svc := &stubCheckout{}
	body := `{"customer_id":7,"items":[{"product_id":1,"color":"red","size":"M","quantity":2}]}`

	rr := serve(t, http.MethodPost, "/quote", "/quote", body, Quote(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.gotItems, 1)
	assert.Equal(t, 2, svc.gotItems[0].Quantity)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestQuoteRejectsMalformedJSON(t *testing.T) {
	rr := serve(t, http.MethodPost, "/quote", "/quote", `{"items":`, Quote(&stubCheckout{}, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuoteErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid item", fmt.Errorf("%w: quantity must be positive", pricing.ErrInvalidItem), http.StatusBadRequest},
		{"empty cart", pricing.ErrEmptyCart, http.StatusBadRequest},
		{"unknown variant", fmt.Errorf("%w: product 4", pricing.ErrVariantNotFound), http.StatusNotFound},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(t, http.MethodPost, "/quote", "/quote", `{"items":[]}`, Quote(&stubCheckout{quoteErr: tc.err}, logger.Nop()))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestUnexpectedErrorsHideDetail(t *testing.T) {
	rr := serve(t, http.MethodPost, "/quote", "/quote", `{}`, Quote(&stubCheckout{quoteErr: errors.New("password=hunter2")}, logger.Nop()))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hunter2")
}

func TestFinalizeStatusCodes(t *testing.T) {
	order := &models.Order{ID: 3, Status: models.OrderStatusPaid, TotalAmount: decimal.RequireFromString("43.72")}

	svc := &stubCheckout{finalizeRes: &checkout.OrderResult{Order: order}}
	rr := serve(t, http.MethodPost, "/finalize", "/finalize", `{"customer_id":1,"items":[],"payment_token":"tok_1"}`, Finalize(svc, logger.Nop()))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "tok_1", svc.gotToken)

	svc = &stubCheckout{finalizeRes: &checkout.OrderResult{Order: order, Replayed: true}}
	rr = serve(t, http.MethodPost, "/finalize", "/finalize", `{"payment_token":"tok_1"}`, Finalize(svc, logger.Nop()))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFinalizeTokenConflict(t *testing.T) {
	svc := &stubCheckout{finalizeErr: fmt.Errorf("%w: order 3", checkout.ErrPaymentTokenConflict)}

	rr := serve(t, http.MethodPost, "/finalize", "/finalize", `{"customer_id":2,"payment_token":"tok_1"}`, Finalize(svc, logger.Nop()))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestFinalizeRetryableFailure(t *testing.T) {
	svc := &stubCheckout{finalizeErr: &checkout.TxError{Op: "finalize", Err: context.DeadlineExceeded}}

	rr := serve(t, http.MethodPost, "/finalize", "/finalize", `{"payment_token":"tok_1"}`, Finalize(svc, logger.Nop()))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestGetOrder(t *testing.T) {
	svc := &stubCheckout{detail: &checkout.OrderDetail{Order: &models.Order{ID: 12}, ChargedTotal: "43.72"}}

	rr := serve(t, http.MethodGet, "/orders/{id}", "/orders/12", "", GetOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "43.72", got["charged_total"])

	rr = serve(t, http.MethodGet, "/orders/{id}", "/orders/abc", "", GetOrder(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc = &stubCheckout{detailErr: checkout.ErrOrderNotFound}
	rr = serve(t, http.MethodGet, "/orders/{id}", "/orders/12", "", GetOrder(svc, logger.Nop()))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateOrderStatusNormalizesInput(t *testing.T) {
	svc := &stubCheckout{}

	rr := serve(t, http.MethodPatch, "/orders/{id}/status", "/orders/4/status", `{"status":" Shipped "}`, UpdateOrderStatus(svc, logger.Nop()))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.OrderStatusShipped, svc.gotStatus)

	svc = &stubCheckout{statusErr: checkout.ErrInvalidStatus}
	rr = serve(t, http.MethodPatch, "/orders/{id}/status", "/orders/4/status", `{"status":"lost"}`, UpdateOrderStatus(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDecrementStock(t *testing.T) {
	rr := serve(t, http.MethodPost, "/dec", "/dec", `{"product_id":1,"color":"red","size":"M","delta":2}`, DecrementStock(&stubCheckout{stockQty: 3}, logger.Nop()))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"quantity":3}`, rr.Body.String())
}

func TestSetStock(t *testing.T) {
	admin := &stubStock{}
	rr := serve(t, http.MethodPut, "/qty", "/qty", `{"product_id":1,"color":"red","size":"M","quantity":20}`, SetStock(admin, logger.Nop()))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.VariantKey{ProductID: 1, Color: "red", Size: "M"}, admin.key)

	admin = &stubStock{err: pricing.ErrVariantNotFound}
	rr = serve(t, http.MethodPut, "/qty", "/qty", `{"product_id":1,"color":"red","size":"M","quantity":20}`, SetStock(admin, logger.Nop()))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMembershipRoutes(t *testing.T) {
	svc := &stubMemberships{plan: models.PlanYearly, active: true, cancelled: true}

	rr := serve(t, http.MethodPost, "/m", "/m", `{"customer_id":5,"plan":"yearly"}`, Subscribe(svc, logger.Nop()))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(t, http.MethodPost, "/m", "/m", `{"plan":"yearly"}`, Subscribe(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, http.MethodGet, "/m/{customerID}", "/m/5", "", ActiveMembership(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"customer_id":5,"active":true,"plan":"yearly","discount_percent":"15"}`, rr.Body.String())

	rr = serve(t, http.MethodDelete, "/m/{customerID}", "/m/5", "", CancelMembership(svc, logger.Nop()))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(t, http.MethodDelete, "/m/{customerID}", "/m/5", "", CancelMembership(&stubMemberships{}, logger.Nop()))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubscribeInvalidPlan(t *testing.T) {
	svc := &stubMemberships{subErr: membership.ErrInvalidPlan}
	rr := serve(t, http.MethodPost, "/m", "/m", `{"customer_id":5,"plan":"weekly"}`, Subscribe(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestActiveMembershipNone(t *testing.T) {
	rr := serve(t, http.MethodGet, "/m/{customerID}", "/m/5", "", ActiveMembership(&stubMemberships{}, logger.Nop()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"customer_id":5,"active":false,"plan":null,"discount_percent":"0"}`, rr.Body.String())
}

func TestJobRoutes(t *testing.T) {
	jobs := &stubJobs{}

	rr := serve(t, http.MethodGet, "/stats", "/stats", "", GetJobStats(jobs, logger.Nop()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"pending":2`)

	rr = serve(t, http.MethodGet, "/pending", "/pending?limit=5", "", ListPendingJobs(jobs, logger.Nop()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"jobs":[],"count":0}`, rr.Body.String())

	rr = serve(t, http.MethodPost, "/{id}/cancel", "/3/cancel", "", CancelJob(&stubJobs{cancelErr: store.ErrJobNotCancellable}, logger.Nop()))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, http.MethodPost, "/{id}/cancel", "/3/cancel", "", CancelJob(jobs, logger.Nop()))
	assert.Equal(t, http.StatusOK, rr.Code)
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	Health(failingPinger{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
