package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/payments"
	"github.com/loopmarket/api/internal/repositories"
)

var (
	errPaymentPaymentsRequired = errors.New("payment service: payment repository is required")
	errPaymentOrdersRequired   = errors.New("payment service: order repository is required")
	errPaymentVerifierRequired = errors.New("payment service: webhook verifier is required")
	errPaymentClockRequired    = errors.New("payment service: clock is required")
)

// ErrPaymentInvalidSignature indicates the webhook payload failed signature verification.
var ErrPaymentInvalidSignature = errors.New("payment service: invalid signature")

// ErrPaymentInvalidInput indicates the caller supplied invalid input.
var ErrPaymentInvalidInput = errors.New("payment service: invalid input")

// ErrPaymentNotFound indicates no payment matches the query.
var ErrPaymentNotFound = errors.New("payment service: not found")

// ErrPaymentUnavailable indicates the payment backend cannot fulfil the request.
var ErrPaymentUnavailable = errors.New("payment service: unavailable")

// webhookVerifier abstracts payments.StripeWebhookVerifier for testing.
type webhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error)
}

// intentLookup abstracts the PSP-side payment lookup used to reconcile a
// stored payment against the processor's view of it.
type intentLookup interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// PaymentServiceDeps wires the repositories and verifier for webhook processing.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Orders   repositories.OrderRepository
	Verifier webhookVerifier
	// Gateway is optional; when present, payment reads reconcile pending
	// payments against the PSP and log any status drift.
	Gateway intentLookup
	Events  OrderEventPublisher
	Clock   Clock
	Logger  func(context.Context, string, map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	verifier webhookVerifier
	gateway  intentLookup
	events   OrderEventPublisher
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService enforcing dependency validation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errPaymentPaymentsRequired
	}
	if deps.Orders == nil {
		return nil, errPaymentOrdersRequired
	}
	if deps.Verifier == nil {
		return nil, errPaymentVerifierRequired
	}
	if deps.Clock == nil {
		return nil, errPaymentClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		verifier: deps.Verifier,
		gateway:  deps.Gateway,
		events:   deps.Events,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// HandleWebhookEvent verifies the provider signature before anything else,
// then applies the settlement transition. Replays of an already processed
// event id return the stored outcome without touching state.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	if s == nil || s.payments == nil || s.verifier == nil {
		return WebhookOutcome{}, ErrPaymentUnavailable
	}
	if len(payload) == 0 {
		return WebhookOutcome{}, ErrPaymentInvalidInput
	}

	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return WebhookOutcome{}, ErrPaymentInvalidSignature
		}
		return WebhookOutcome{}, ErrPaymentInvalidInput
	}

	outcome := WebhookOutcome{EventID: event.ID, IntentID: event.IntentID}
	if event.Kind == payments.WebhookEventIgnored {
		return outcome, nil
	}

	now := s.now()
	switch event.Kind {
	case payments.WebhookEventSucceeded:
		result, err := s.payments.ApplySuccess(ctx, repositories.PaymentSuccessRequest{
			IntentID: event.IntentID,
			EventID:  event.ID,
			Now:      now,
		})
		if err != nil {
			return WebhookOutcome{}, s.translateRepoError(err)
		}

		outcome.Applied = !result.Replayed
		outcome.Replayed = result.Replayed
		orderCopy := result.Order
		paymentCopy := result.Payment
		outcome.Order = &orderCopy
		outcome.Payment = &paymentCopy

		if result.Replayed {
			s.logger(ctx, "payment.webhook.replayed", map[string]any{
				"eventId":  event.ID,
				"intentId": event.IntentID,
			})
			return outcome, nil
		}
		if len(result.ShortfallProducts) > 0 {
			s.logger(ctx, "payment.settlement.stock_shortfall", map[string]any{
				"orderId":  result.Order.ID,
				"products": result.ShortfallProducts,
			})
		}
		if result.Order.Status == domain.OrderStatusCancelled {
			// Funds settled after the buyer cancelled; the order stays
			// cancelled and an operator has to refund the payment.
			s.logger(ctx, "payment.settlement.refund_required", map[string]any{
				"orderId":  result.Order.ID,
				"intentId": event.IntentID,
			})
		}
		s.publishEvent(ctx, "order.payment_settled", result.Order)
		return outcome, nil

	case payments.WebhookEventFailed:
		payment, err := s.payments.ApplyFailure(ctx, repositories.PaymentFailureRequest{
			IntentID: event.IntentID,
			EventID:  event.ID,
			Reason:   event.FailureReason,
			Now:      now,
		})
		if err != nil {
			return WebhookOutcome{}, s.translateRepoError(err)
		}

		paymentCopy := payment
		outcome.Payment = &paymentCopy
		outcome.Applied = payment.Status == domain.PaymentStatusFailed && containsEventID(payment.ProcessedEventIDs, event.ID)
		outcome.Replayed = !outcome.Applied

		if order, err := s.orders.FindByID(ctx, payment.OrderID); err == nil {
			orderCopy := order
			outcome.Order = &orderCopy
			if outcome.Applied {
				s.publishEvent(ctx, "order.payment_failed", order)
			}
		}
		return outcome, nil
	}

	return outcome, nil
}

// GetPaymentForOrder returns the payment attached to an order, visible to the
// order's buyer and to admins.
func (s *paymentService) GetPaymentForOrder(ctx context.Context, query GetPaymentQuery) (Payment, error) {
	if s == nil || s.payments == nil || s.orders == nil {
		return Payment{}, ErrPaymentUnavailable
	}

	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Payment{}, ErrPaymentInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Payment{}, s.translateRepoError(err)
	}

	actor := strings.TrimSpace(query.ActorID)
	if !hasRole(query.ActorRoles, domain.RoleAdmin) && order.BuyerID != actor {
		return Payment{}, ErrPaymentNotFound
	}

	payment, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return Payment{}, s.translateRepoError(err)
	}
	s.reconcile(ctx, payment)
	return payment, nil
}

// reconcile consults the PSP for payments still pending locally and logs any
// status drift, typically a settlement webhook that never arrived. Read-only
// and best-effort; state changes stay with the webhook path.
func (s *paymentService) reconcile(ctx context.Context, payment domain.Payment) {
	if s.gateway == nil || payment.Status != domain.PaymentStatusPending || strings.TrimSpace(payment.IntentID) == "" {
		return
	}
	details, err := s.gateway.LookupPayment(ctx,
		payments.PaymentContext{PreferredProvider: payment.Provider, Currency: payment.Currency},
		payments.LookupRequest{IntentID: payment.IntentID},
	)
	if err != nil {
		s.logger(ctx, "payment.reconcile_failed", map[string]any{
			"paymentId": payment.ID,
			"intentId":  payment.IntentID,
			"error":     err.Error(),
		})
		return
	}
	if details.Status != payments.StatusPending {
		s.logger(ctx, "payment.reconcile_mismatch", map[string]any{
			"paymentId":      payment.ID,
			"intentId":       payment.IntentID,
			"storedStatus":   string(payment.Status),
			"providerStatus": string(details.Status),
		})
	}
}

func (s *paymentService) publishEvent(ctx context.Context, event string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Event:   event,
		OrderID: order.ID,
		BuyerID: order.BuyerID,
		Status:  string(order.Status),
	}); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrPaymentNotFound
	}
	return ErrPaymentUnavailable
}

func containsEventID(events []string, eventID string) bool {
	for _, id := range events {
		if id == eventID {
			return true
		}
	}
	return false
}
