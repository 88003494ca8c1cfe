package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/payments"
	"github.com/loopmarket/api/internal/repositories"
)

func newPaymentServiceForTest(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Payments == nil {
		deps.Payments = &stubPaymentRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Verifier == nil {
		deps.Verifier = &stubWebhookVerifier{}
	}
	if deps.Clock == nil {
		deps.Clock = testClock
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestHandleWebhookEventRejectsBadSignatureBeforeState(t *testing.T) {
	ctx := context.Background()
	touched := false
	repo := &stubPaymentRepo{
		applySuccessFn: func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
			touched = true
			return repositories.PaymentSuccessResult{}, nil
		},
	}
	verifier := &stubWebhookVerifier{err: payments.ErrInvalidSignature}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Verifier: verifier})

	if _, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "t=1,v1=bad"); !errors.Is(err, ErrPaymentInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
	if touched {
		t.Fatalf("no settlement must run on a bad signature")
	}
}

func TestHandleWebhookEventAppliesSuccess(t *testing.T) {
	ctx := context.Background()
	events := &stubEventPublisher{}
	repo := &stubPaymentRepo{
		applySuccessFn: func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
			if req.IntentID != "pi_1" || req.EventID != "evt_1" {
				t.Fatalf("unexpected settlement request %+v", req)
			}
			return repositories.PaymentSuccessResult{
				Order:   domain.Order{ID: "ord_1", BuyerID: "buyer-1", Status: domain.OrderStatusConfirmed},
				Payment: domain.Payment{ID: "pay_1", Status: domain.PaymentStatusPaid},
			}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.WebhookEvent{
		ID:       "evt_1",
		Kind:     payments.WebhookEventSucceeded,
		IntentID: "pi_1",
	}}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Verifier: verifier, Events: events})

	outcome, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if !outcome.Applied || outcome.Replayed {
		t.Fatalf("expected applied outcome, got %+v", outcome)
	}
	if outcome.Order == nil || outcome.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order in outcome")
	}
	if len(events.published) != 1 || events.published[0].Event != "order.payment_settled" {
		t.Fatalf("expected payment settled event, got %+v", events.published)
	}
}

func TestHandleWebhookEventReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	events := &stubEventPublisher{}
	repo := &stubPaymentRepo{
		applySuccessFn: func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
			return repositories.PaymentSuccessResult{
				Order:    domain.Order{ID: "ord_1", Status: domain.OrderStatusConfirmed},
				Payment:  domain.Payment{ID: "pay_1", Status: domain.PaymentStatusPaid, ProcessedEventIDs: []string{"evt_1"}},
				Replayed: true,
			}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.WebhookEvent{
		ID:       "evt_1",
		Kind:     payments.WebhookEventSucceeded,
		IntentID: "pi_1",
	}}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Verifier: verifier, Events: events})

	outcome, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if outcome.Applied || !outcome.Replayed {
		t.Fatalf("expected replayed outcome, got %+v", outcome)
	}
	if len(events.published) != 0 {
		t.Fatalf("replays must not publish events, got %+v", events.published)
	}
}

func TestHandleWebhookEventIgnoresUnknownTypes(t *testing.T) {
	ctx := context.Background()
	repo := &stubPaymentRepo{
		applySuccessFn: func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
			t.Fatalf("ignored events must not reach the repository")
			return repositories.PaymentSuccessResult{}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.WebhookEvent{
		ID:   "evt_9",
		Kind: payments.WebhookEventIgnored,
		Type: "charge.refunded",
	}}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Verifier: verifier})

	outcome, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if outcome.Applied || outcome.Replayed {
		t.Fatalf("ignored events carry no state change, got %+v", outcome)
	}
	if outcome.EventID != "evt_9" {
		t.Fatalf("expected event id in outcome, got %q", outcome.EventID)
	}
}

func TestHandleWebhookEventAppliesFailure(t *testing.T) {
	ctx := context.Background()
	events := &stubEventPublisher{}
	repo := &stubPaymentRepo{
		applyFailureFn: func(ctx context.Context, req repositories.PaymentFailureRequest) (domain.Payment, error) {
			if req.Reason != "card declined" {
				t.Fatalf("expected failure reason to be forwarded, got %q", req.Reason)
			}
			reason := req.Reason
			return domain.Payment{
				ID:                "pay_1",
				OrderID:           "ord_1",
				Status:            domain.PaymentStatusFailed,
				FailureReason:     &reason,
				ProcessedEventIDs: []string{req.EventID},
			}, nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, BuyerID: "buyer-1", PaymentStatus: domain.PaymentStatusFailed}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.WebhookEvent{
		ID:            "evt_2",
		Kind:          payments.WebhookEventFailed,
		IntentID:      "pi_1",
		FailureReason: "card declined",
	}}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Orders: orders, Verifier: verifier, Events: events})

	outcome, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected applied failure outcome, got %+v", outcome)
	}
	if outcome.Payment == nil || outcome.Payment.FailureReason == nil {
		t.Fatalf("expected failure reason on outcome payment")
	}
	if len(events.published) != 1 || events.published[0].Event != "order.payment_failed" {
		t.Fatalf("expected payment failed event, got %+v", events.published)
	}
}

func TestHandleWebhookEventRejectsEmptyPayload(t *testing.T) {
	ctx := context.Background()
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{})

	if _, err := svc.HandleWebhookEvent(ctx, nil, "sig"); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHandleWebhookEventLateSuccessKeepsCancelledOrder(t *testing.T) {
	ctx := context.Background()
	events := &stubEventPublisher{}
	var logged []string
	repo := &stubPaymentRepo{
		applySuccessFn: func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
			return repositories.PaymentSuccessResult{
				Order:   domain.Order{ID: "ord_1", BuyerID: "buyer-1", Status: domain.OrderStatusCancelled, PaymentStatus: domain.PaymentStatusPaid},
				Payment: domain.Payment{ID: "pay_1", Status: domain.PaymentStatusPaid},
			}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.WebhookEvent{
		ID:       "evt_1",
		Kind:     payments.WebhookEventSucceeded,
		IntentID: "pi_1",
	}}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{
		Payments: repo,
		Verifier: verifier,
		Events:   events,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			logged = append(logged, event)
		},
	})

	outcome, err := svc.HandleWebhookEvent(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if outcome.Order == nil || outcome.Order.Status != domain.OrderStatusCancelled {
		t.Fatalf("a late settlement must not resurrect a cancelled order, got %+v", outcome.Order)
	}
	if outcome.Payment == nil || outcome.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("the payment itself settles, got %+v", outcome.Payment)
	}
	found := false
	for _, event := range logged {
		if event == "payment.settlement.refund_required" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a refund_required log entry, got %v", logged)
	}
}

func TestGetPaymentForOrderReconcilesAgainstProvider(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, BuyerID: "buyer-1"}, nil
		},
	}
	repo := &stubPaymentRepo{
		findByOrderIDFn: func(ctx context.Context, orderID string) (domain.Payment, error) {
			return domain.Payment{
				ID:       "pay_1",
				OrderID:  orderID,
				Status:   domain.PaymentStatusPending,
				Provider: "stripe",
				IntentID: "pi_1",
				Currency: "EUR",
			}, nil
		},
	}
	var looked []string
	gateway := &stubPaymentGateway{
		lookupFn: func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
			looked = append(looked, req.IntentID)
			return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusSucceeded}, nil
		},
	}
	var logged []string
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{
		Payments: repo,
		Orders:   orders,
		Gateway:  gateway,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			logged = append(logged, event)
		},
	})

	payment, err := svc.GetPaymentForOrder(ctx, GetPaymentQuery{OrderID: "ord_1", ActorID: "buyer-1", ActorRoles: []Role{domain.RoleBuyer}})
	if err != nil {
		t.Fatalf("buyer lookup: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("reconciliation is read-only, got status %q", payment.Status)
	}
	if len(looked) != 1 || looked[0] != "pi_1" {
		t.Fatalf("expected one provider lookup for pi_1, got %v", looked)
	}
	found := false
	for _, event := range logged {
		if event == "payment.reconcile_mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reconcile_mismatch log entry, got %v", logged)
	}
}

func TestGetPaymentForOrderScopesToBuyerAndAdmin(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, BuyerID: "buyer-1"}, nil
		},
	}
	repo := &stubPaymentRepo{
		findByOrderIDFn: func(ctx context.Context, orderID string) (domain.Payment, error) {
			return domain.Payment{ID: "pay_1", OrderID: orderID}, nil
		},
	}
	svc := newPaymentServiceForTest(t, PaymentServiceDeps{Payments: repo, Orders: orders})

	if _, err := svc.GetPaymentForOrder(ctx, GetPaymentQuery{OrderID: "ord_1", ActorID: "buyer-2", ActorRoles: []Role{domain.RoleBuyer}}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for foreign buyer, got %v", err)
	}
	payment, err := svc.GetPaymentForOrder(ctx, GetPaymentQuery{OrderID: "ord_1", ActorID: "buyer-1", ActorRoles: []Role{domain.RoleBuyer}})
	if err != nil {
		t.Fatalf("buyer lookup: %v", err)
	}
	if payment.ID != "pay_1" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if _, err := svc.GetPaymentForOrder(ctx, GetPaymentQuery{OrderID: "ord_1", ActorID: "admin-1", ActorRoles: []Role{domain.RoleAdmin}}); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
}
