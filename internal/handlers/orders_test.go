package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/platform/auth"
	"github.com/loopmarket/api/internal/services"
)

func newOrderRouter(handler *OrderHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func TestOrderHandlersCheckoutCreatesOrder(t *testing.T) {
	var got services.CreateOrderFromCartCommand
	svc := &stubOrderService{
		createFromCartFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error) {
			got = cmd
			return services.CheckoutResult{
				Order: services.Order{
					ID:          "ord_1",
					OrderNumber: "ORD-000001",
					BuyerID:     "buyer-7",
					Status:      domain.OrderStatusPending,
					Currency:    "eur",
					TotalAmount: 3900,
				},
				Payment: services.Payment{
					ID:       "pay_1",
					OrderID:  "ord_1",
					Provider: "stripe",
					Status:   domain.PaymentStatusPending,
					Amount:   3900,
					Currency: "eur",
				},
				ClientSecret: "secret_test",
			}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc, &stubPaymentService{})
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Idempotency-Key", "idem-42")
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.BuyerID != "buyer-7" || got.IdempotencyKey != "idem-42" {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp checkoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.OrderNumber != "ORD-000001" {
		t.Fatalf("unexpected order number %q", resp.Order.OrderNumber)
	}
	if resp.Order.Currency != "EUR" {
		t.Fatalf("expected uppercase currency, got %q", resp.Order.Currency)
	}
	if resp.Payment.OrderID != "ord_1" || resp.Payment.Amount != 3900 {
		t.Fatalf("unexpected payment %+v", resp.Payment)
	}
	if resp.ClientSecret != "secret_test" {
		t.Fatalf("unexpected client secret %q", resp.ClientSecret)
	}
}

func TestOrderHandlersCheckoutEmptyCart(t *testing.T) {
	svc := &stubOrderService{
		createFromCartFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrOrderEmptyCart
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cart_empty") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestOrderHandlersCheckoutPaymentSetupFailure(t *testing.T) {
	svc := &stubOrderService{
		createFromCartFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrOrderPaymentSetupFailed
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payment_setup_failed") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestOrderHandlersCheckoutCartChangedConflict(t *testing.T) {
	svc := &stubOrderService{
		createFromCartFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrOrderCartChanged
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cart_changed") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestOrderHandlersListOrdersForwardsStatusFilter(t *testing.T) {
	var got services.OrderListQuery
	svc := &stubOrderService{
		listOrdersFn: func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
			got = query
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{{ID: "ord_1", Status: domain.OrderStatusShipped}},
				NextPageToken: "tok_2",
			}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=shipped&page_size=10", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected status filter %q", got.Status)
	}
	if got.Pagination.PageSize != 10 {
		t.Fatalf("unexpected page size %d", got.Pagination.PageSize)
	}
	var resp orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.NextPageToken != "tok_2" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getOrderFn: func(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_404", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "order_not_found") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestOrderHandlersTransitionStatus(t *testing.T) {
	var got services.OrderStatusTransitionCommand
	svc := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			got = cmd
			return services.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":" shipped "}`))
	req = withIdentity(req, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "ord_1" || got.Target != domain.OrderStatusShipped {
		t.Fatalf("unexpected command %+v", got)
	}
	hasSeller := false
	for _, role := range got.ActorRoles {
		if role == domain.RoleSeller {
			hasSeller = true
		}
	}
	if !hasSeller {
		t.Fatalf("expected seller role to be forwarded, got %v", got.ActorRoles)
	}
}

func TestOrderHandlersTransitionIllegalJump(t *testing.T) {
	svc := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderIllegalTransition
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":"delivered"}`))
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "illegal_transition") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestOrderHandlersCancelWithoutBody(t *testing.T) {
	var got services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			got = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/cancel", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "ord_1" || got.Reason != "" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestOrderHandlersCancelWithReason(t *testing.T) {
	var got services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			got = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/cancel", strings.NewReader(`{"reason":"changed my mind"}`))
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.Reason != "changed my mind" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestOrderHandlersGetPayment(t *testing.T) {
	payments := &stubPaymentService{
		getPaymentFn: func(ctx context.Context, query services.GetPaymentQuery) (services.Payment, error) {
			if query.OrderID != "ord_1" {
				t.Fatalf("unexpected order id %q", query.OrderID)
			}
			return services.Payment{
				ID:       "pay_1",
				OrderID:  "ord_1",
				Provider: "stripe",
				IntentID: "pi_1",
				Status:   domain.PaymentStatusPaid,
				Amount:   3900,
				Currency: "eur",
			}, nil
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{}, payments)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/payment", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp paymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Payment.IntentID != "pi_1" || resp.Payment.Status != string(domain.PaymentStatusPaid) {
		t.Fatalf("unexpected payment %+v", resp.Payment)
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	handler := NewOrderHandlers(nil, nil, nil)
	router := newOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "order_service_unavailable") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
