package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/payments"
	"github.com/loopmarket/api/internal/repositories"
)

// OrderNumberCounter names the sequence backing human-readable order numbers.
// Bootstrap configures its ceiling so numbers never outgrow the ORD-%06d width.
const OrderNumberCounter = "order_numbers"

var (
	errOrderOrdersRequired   = errors.New("order service: order repository is required")
	errOrderCartsRequired    = errors.New("order service: cart repository is required")
	errOrderPaymentsRequired = errors.New("order service: payment repository is required")
	errOrderCountersRequired = errors.New("order service: counter repository is required")
	errOrderClockRequired    = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderEmptyCart indicates the cart holds no items to convert.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderNotFound indicates the requested order does not exist or is not visible to the caller.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderForbidden indicates the caller may not act on the order.
var ErrOrderForbidden = errors.New("order service: forbidden")

// ErrOrderInsufficientStock indicates current stock cannot cover the cart.
var ErrOrderInsufficientStock = errors.New("order service: insufficient stock")

// ErrOrderCartChanged indicates the cart was modified while checkout was in
// flight; the caller should re-read the cart and retry.
var ErrOrderCartChanged = errors.New("order service: cart changed during checkout")

// ErrOrderIllegalTransition indicates the requested status change is not on the lifecycle table.
var ErrOrderIllegalTransition = errors.New("order service: illegal transition")

// ErrOrderPaymentSetupFailed indicates the PSP intent could not be created.
// The order itself was persisted and stays pending.
var ErrOrderPaymentSetupFailed = errors.New("order service: payment setup failed")

// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	CancelIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) (payments.PaymentDetails, error)
}

// OrderServiceDeps wires the repositories and gateways for order operations.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Carts           repositories.CartRepository
	Payments        repositories.PaymentRepository
	Counters        repositories.CounterRepository
	Gateway         paymentGateway
	Events          OrderEventPublisher
	Clock           Clock
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func(prefix string) string
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	payments repositories.PaymentRepository
	counters repositories.CounterRepository
	gateway  paymentGateway
	events   OrderEventPublisher
	newID    func(prefix string) string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderOrdersRequired
	}
	if deps.Carts == nil {
		return nil, errOrderCartsRequired
	}
	if deps.Payments == nil {
		return nil, errOrderPaymentsRequired
	}
	if deps.Counters == nil {
		return nil, errOrderCountersRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func(prefix string) string { return prefix + ulid.Make().String() }
	}

	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		payments: deps.Payments,
		counters: deps.Counters,
		gateway:  deps.Gateway,
		events:   deps.Events,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// CreateFromCart snapshots the buyer's cart into an immutable order with a
// pending payment row, clears the cart in the same transaction, then opens
// the PSP intent. Intent failure leaves the pending order in place so the
// buyer can retry or cancel.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (CheckoutResult, error) {
	if s == nil || s.orders == nil || s.carts == nil {
		return CheckoutResult{}, ErrOrderUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return CheckoutResult{}, ErrOrderInvalidInput
	}

	cart, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrOrderEmptyCart
		}
		return CheckoutResult{}, s.translateRepoError(err)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrOrderEmptyCart
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(cart.Items))
	var total int64
	for _, line := range cart.Items {
		if line.Quantity <= 0 || line.UnitPrice <= 0 {
			return CheckoutResult{}, fmt.Errorf("%w: cart line for product %s is invalid", ErrOrderInvalidInput, line.ProductID)
		}
		lineTotal := line.UnitPrice * int64(line.Quantity)
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			SellerID:  line.SellerID,
			Title:     line.Title,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     lineTotal,
		})
		total += lineTotal
	}

	currency := strings.ToUpper(strings.TrimSpace(cart.Currency))
	if currency == "" {
		currency = s.currency
	}

	sequence, err := s.counters.Next(ctx, OrderNumberCounter, 1)
	if err != nil {
		return CheckoutResult{}, ErrOrderUnavailable
	}

	order := domain.Order{
		ID:            s.newID("ord_"),
		OrderNumber:   fmt.Sprintf("ORD-%06d", sequence),
		BuyerID:       buyerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Currency:      currency,
		TotalAmount:   total,
		Items:         items,
	}
	payment := domain.Payment{
		ID:       s.newID("pay_"),
		OrderID:  order.ID,
		Provider: "stripe",
		Status:   domain.PaymentStatusPending,
		Amount:   total,
		Currency: currency,
	}

	result, err := s.orders.CreateFromCart(ctx, repositories.OrderCreateRequest{
		Order:   order,
		Payment: payment,
		Now:     now,
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			switch orderErr.Code {
			case repositories.OrderErrorInvalidInput:
				return CheckoutResult{}, ErrOrderInvalidInput
			case repositories.OrderErrorInsufficientStock:
				return CheckoutResult{}, fmt.Errorf("%w: %s", ErrOrderInsufficientStock, strings.Join(orderErr.ProductIDs, ", "))
			case repositories.OrderErrorCartChanged:
				return CheckoutResult{}, ErrOrderCartChanged
			}
		}
		return CheckoutResult{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, "order.created", result.Order)

	clientSecret := ""
	savedPayment := result.Payment
	if s.gateway != nil {
		intent, err := s.gateway.CreateIntent(ctx, payments.PaymentContext{Currency: currency}, payments.IntentRequest{
			OrderID:        order.ID,
			Amount:         total,
			Currency:       currency,
			Metadata:       map[string]string{"buyerId": buyerID},
			IdempotencyKey: s.intentIdempotencyKey(cmd, order),
		})
		if err != nil {
			s.logger(ctx, "order.payment_intent_failed", map[string]any{
				"orderId": order.ID,
				"buyerId": buyerID,
				"error":   err.Error(),
			})
			return CheckoutResult{}, fmt.Errorf("%w: order %s", ErrOrderPaymentSetupFailed, order.ID)
		}
		saved, err := s.payments.SaveIntent(ctx, payment.ID, intent.ID, intent.ClientSecret, s.now())
		if err != nil {
			return CheckoutResult{}, s.translateRepoError(err)
		}
		savedPayment = saved
		clientSecret = intent.ClientSecret
	}

	return CheckoutResult{
		Order:        result.Order,
		Payment:      savedPayment,
		ClientSecret: clientSecret,
	}, nil
}

// GetOrder loads one order, visible to its buyer, to sellers owning at least
// one item, and to admins.
func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !s.canView(order, query.ActorID, query.ActorRoles) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns orders scoped to the caller: buyers see their own,
// sellers see orders containing their items, admins see everything.
func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}

	actorID := strings.TrimSpace(query.ActorID)
	if actorID == "" {
		return domain.CursorPage[Order]{}, ErrOrderInvalidInput
	}

	filter := repositories.OrderListFilter{
		Status:     query.Status,
		Pagination: query.Pagination,
	}

	var (
		page domain.CursorPage[Order]
		err  error
	)
	switch {
	case hasRole(query.ActorRoles, domain.RoleAdmin):
		page, err = s.orders.List(ctx, filter)
	case hasRole(query.ActorRoles, domain.RoleSeller):
		page, err = s.orders.ListBySeller(ctx, actorID, filter)
	default:
		page, err = s.orders.ListByBuyer(ctx, actorID, filter)
	}
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// TransitionStatus advances an order along the fulfilment path. Sellers must
// own at least one order item; buyers may not advance orders at all.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	target := cmd.Target
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if target == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: use cancel for cancellation", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	isAdmin := hasRole(cmd.ActorRoles, domain.RoleAdmin)
	if !isAdmin {
		if !hasRole(cmd.ActorRoles, domain.RoleSeller) || !order.HasSeller(strings.TrimSpace(cmd.ActorID)) {
			return Order{}, ErrOrderForbidden
		}
	}

	if order.Status == target {
		return order, nil
	}
	if !order.Status.CanTransition(target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, order.Status, target)
	}

	now := s.now()
	update := repositories.OrderStatusUpdate{Status: target, Now: now}
	switch target {
	case domain.OrderStatusShipped:
		update.ShippedAt = &now
	case domain.OrderStatusDelivered:
		update.DeliveredAt = &now
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, update)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, "order.status_changed", updated)
	return updated, nil
}

// Cancel cancels an order. Buyers may cancel their own order while the status
// table allows it; shipped and delivered orders stay untouched. Admins may
// cancel any non-terminal order.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	isAdmin := hasRole(cmd.ActorRoles, domain.RoleAdmin)
	actorID := strings.TrimSpace(cmd.ActorID)
	if !isAdmin && order.BuyerID != actorID {
		return Order{}, ErrOrderNotFound
	}
	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if !order.Status.Cancellable() {
		return Order{}, ErrOrderForbidden
	}
	if !isAdmin && order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return Order{}, ErrOrderForbidden
	}

	now := s.now()
	reason := strings.TrimSpace(cmd.Reason)
	update := repositories.OrderStatusUpdate{
		Status:      domain.OrderStatusCancelled,
		CancelledAt: &now,
		Now:         now,
	}
	if reason != "" {
		update.CancelReason = &reason
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, update)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.voidPendingIntent(ctx, updated, reason)
	s.publishEvent(ctx, "order.cancelled", updated)
	return updated, nil
}

// voidPendingIntent cancels the PSP intent of an order whose payment never
// settled, so the buyer is not charged after cancelling. Best-effort; a PSP
// failure leaves the intent to expire on its own.
func (s *orderService) voidPendingIntent(ctx context.Context, order domain.Order, reason string) {
	if s.gateway == nil || order.PaymentStatus != domain.PaymentStatusPending {
		return
	}
	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil || payment.Status != domain.PaymentStatusPending || strings.TrimSpace(payment.IntentID) == "" {
		return
	}
	if reason == "" {
		reason = "order cancelled"
	}
	if _, err := s.gateway.CancelIntent(ctx,
		payments.PaymentContext{PreferredProvider: payment.Provider, Currency: payment.Currency},
		payments.CancelRequest{IntentID: payment.IntentID, Reason: reason},
	); err != nil {
		s.logger(ctx, "order.intent_cancel_failed", map[string]any{
			"orderId":  order.ID,
			"intentId": payment.IntentID,
			"error":    err.Error(),
		})
	}
}

func (s *orderService) canView(order domain.Order, actorID string, roles []Role) bool {
	if hasRole(roles, domain.RoleAdmin) {
		return true
	}
	actor := strings.TrimSpace(actorID)
	if actor == "" {
		return false
	}
	if order.BuyerID == actor {
		return true
	}
	return hasRole(roles, domain.RoleSeller) && order.HasSeller(actor)
}

func (s *orderService) intentIdempotencyKey(cmd CreateOrderFromCartCommand, order domain.Order) string {
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		return key
	}
	base := fmt.Sprintf("%s|%s|%d", order.ID, order.BuyerID, order.TotalAmount)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// publishEvent is best-effort; a broker outage never fails the request.
func (s *orderService) publishEvent(ctx context.Context, event string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Event:   event,
		OrderID: order.ID,
		BuyerID: order.BuyerID,
		Status:  string(order.Status),
	}); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderIllegalTransition
		}
	}
	return ErrOrderUnavailable
}
