package services

import (
	"context"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/payments"
	"github.com/loopmarket/api/internal/repositories"
)

var testClock = func() time.Time {
	return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errStubNotFound = &stubRepoError{notFound: true}

type stubProductRepo struct {
	insertFn       func(ctx context.Context, product domain.Product) error
	updateFn       func(ctx context.Context, product domain.Product) error
	deleteFn       func(ctx context.Context, productID string) error
	findByIDFn     func(ctx context.Context, productID string) (domain.Product, error)
	listPublicFn   func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	listBySellerFn func(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	listByStatusFn func(ctx context.Context, status domain.ProductStatus, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	updateStatusFn func(ctx context.Context, productID string, status domain.ProductStatus, now time.Time) (domain.Product, error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Delete(ctx context.Context, productID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, productID)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, productID)
	}
	return domain.Product{}, errStubNotFound
}

func (s *stubProductRepo) ListPublic(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listPublicFn != nil {
		return s.listPublicFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if s.listBySellerFn != nil {
		return s.listBySellerFn(ctx, sellerID, pager)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) ListByStatus(ctx context.Context, status domain.ProductStatus, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if s.listByStatusFn != nil {
		return s.listByStatusFn(ctx, status, pager)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) UpdateStatus(ctx context.Context, productID string, status domain.ProductStatus, now time.Time) (domain.Product, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, productID, status, now)
	}
	return domain.Product{}, errStubNotFound
}

type stubCartRepo struct {
	getFn   func(ctx context.Context, buyerID string) (domain.Cart, error)
	saveFn  func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	clearFn func(ctx context.Context, buyerID string, now time.Time) error
}

func (s *stubCartRepo) Get(ctx context.Context, buyerID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, buyerID)
	}
	return domain.Cart{}, errStubNotFound
}

func (s *stubCartRepo) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepo) Clear(ctx context.Context, buyerID string, now time.Time) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, buyerID, now)
	}
	return nil
}

type stubOrderRepo struct {
	createFromCartFn func(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error)
	findByIDFn       func(ctx context.Context, orderID string) (domain.Order, error)
	listByBuyerFn    func(ctx context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listBySellerFn   func(ctx context.Context, sellerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listFn           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFn   func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error)
}

func (s *stubOrderRepo) CreateFromCart(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if s.createFromCartFn != nil {
		return s.createFromCartFn(ctx, req)
	}
	return repositories.OrderCreateResult{Order: req.Order, Payment: req.Payment}, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, errStubNotFound
}

func (s *stubOrderRepo) ListByBuyer(ctx context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listByBuyerFn != nil {
		return s.listByBuyerFn(ctx, buyerID, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListBySeller(ctx context.Context, sellerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listBySellerFn != nil {
		return s.listBySellerFn(ctx, sellerID, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, update)
	}
	return domain.Order{}, errStubNotFound
}

type stubPaymentRepo struct {
	findByIDFn       func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByOrderIDFn  func(ctx context.Context, orderID string) (domain.Payment, error)
	findByIntentIDFn func(ctx context.Context, intentID string) (domain.Payment, error)
	saveIntentFn     func(ctx context.Context, paymentID, intentID, clientSecret string, now time.Time) (domain.Payment, error)
	applySuccessFn   func(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error)
	applyFailureFn   func(ctx context.Context, req repositories.PaymentFailureRequest) (domain.Payment, error)
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, paymentID)
	}
	return domain.Payment{}, errStubNotFound
}

func (s *stubPaymentRepo) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.findByOrderIDFn != nil {
		return s.findByOrderIDFn(ctx, orderID)
	}
	return domain.Payment{}, errStubNotFound
}

func (s *stubPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	if s.findByIntentIDFn != nil {
		return s.findByIntentIDFn(ctx, intentID)
	}
	return domain.Payment{}, errStubNotFound
}

func (s *stubPaymentRepo) SaveIntent(ctx context.Context, paymentID, intentID, clientSecret string, now time.Time) (domain.Payment, error) {
	if s.saveIntentFn != nil {
		return s.saveIntentFn(ctx, paymentID, intentID, clientSecret, now)
	}
	return domain.Payment{ID: paymentID, IntentID: intentID, ClientSecret: clientSecret}, nil
}

func (s *stubPaymentRepo) ApplySuccess(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
	if s.applySuccessFn != nil {
		return s.applySuccessFn(ctx, req)
	}
	return repositories.PaymentSuccessResult{}, errStubNotFound
}

func (s *stubPaymentRepo) ApplyFailure(ctx context.Context, req repositories.PaymentFailureRequest) (domain.Payment, error) {
	if s.applyFailureFn != nil {
		return s.applyFailureFn(ctx, req)
	}
	return domain.Payment{}, errStubNotFound
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

type stubCategoryRepo struct {
	insertFn   func(ctx context.Context, category domain.Category) error
	deleteFn   func(ctx context.Context, categoryID string) error
	findByIDFn func(ctx context.Context, categoryID string) (domain.Category, error)
	listFn     func(ctx context.Context) ([]domain.Category, error)
}

func (s *stubCategoryRepo) Insert(ctx context.Context, category domain.Category) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, category)
	}
	return nil
}

func (s *stubCategoryRepo) Delete(ctx context.Context, categoryID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, categoryID)
	}
	return nil
}

func (s *stubCategoryRepo) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, categoryID)
	}
	return domain.Category{}, errStubNotFound
}

func (s *stubCategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

type stubReviewRepo struct {
	insertFn                func(ctx context.Context, review domain.Review) error
	findByIDFn              func(ctx context.Context, reviewID string) (domain.Review, error)
	findByOrderAndProductFn func(ctx context.Context, orderID, productID string) (domain.Review, error)
	listByProductFn         func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	listByStatusFn          func(ctx context.Context, status domain.ReviewStatus, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	updateStatusFn          func(ctx context.Context, reviewID string, status domain.ReviewStatus, moderatorID string, now time.Time) (domain.Review, error)
}

func (s *stubReviewRepo) Insert(ctx context.Context, review domain.Review) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, review)
	}
	return nil
}

func (s *stubReviewRepo) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, reviewID)
	}
	return domain.Review{}, errStubNotFound
}

func (s *stubReviewRepo) FindByOrderAndProduct(ctx context.Context, orderID, productID string) (domain.Review, error) {
	if s.findByOrderAndProductFn != nil {
		return s.findByOrderAndProductFn(ctx, orderID, productID)
	}
	return domain.Review{}, errStubNotFound
}

func (s *stubReviewRepo) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByProductFn != nil {
		return s.listByProductFn(ctx, productID, pager)
	}
	return domain.CursorPage[domain.Review]{}, nil
}

func (s *stubReviewRepo) ListByStatus(ctx context.Context, status domain.ReviewStatus, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByStatusFn != nil {
		return s.listByStatusFn(ctx, status, pager)
	}
	return domain.CursorPage[domain.Review]{}, nil
}

func (s *stubReviewRepo) UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, moderatorID string, now time.Time) (domain.Review, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, reviewID, status, moderatorID, now)
	}
	return domain.Review{}, errStubNotFound
}

type stubPaymentGateway struct {
	createFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	cancelFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) (payments.PaymentDetails, error)
	lookupFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

func (s *stubPaymentGateway) CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	if s.createFn != nil {
		return s.createFn(ctx, paymentCtx, req)
	}
	return payments.Intent{ID: "pi_test", ClientSecret: "secret_test"}, nil
}

func (s *stubPaymentGateway) CancelIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) (payments.PaymentDetails, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, paymentCtx, req)
	}
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusFailed}, nil
}

func (s *stubPaymentGateway) LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, paymentCtx, req)
	}
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusPending}, nil
}

type stubEventPublisher struct {
	published []OrderEventMessage
	err       error
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, msg OrderEventMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, msg)
	return "msg_1", nil
}

type stubWebhookVerifier struct {
	event payments.WebhookEvent
	err   error
}

func (s *stubWebhookVerifier) Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error) {
	if s.err != nil {
		return payments.WebhookEvent{}, s.err
	}
	return s.event, nil
}
