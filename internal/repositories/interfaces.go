package repositories

import (
	"context"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Reviews() ReviewRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists seller listings and their moderation state.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	ListPublic(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	ListByStatus(ctx context.Context, status domain.ProductStatus, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	UpdateStatus(ctx context.Context, productID string, status domain.ProductStatus, now time.Time) (domain.Product, error)
}

// ProductListFilter narrows public catalog queries; only approved listings are returned.
type ProductListFilter struct {
	CategoryID string
	PriceMin   *int64
	PriceMax   *int64
	Pagination domain.Pagination
}

// CategoryRepository persists the catalog category tree.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// CartRepository owns the single cart document per buyer, items embedded.
type CartRepository interface {
	Get(ctx context.Context, buyerID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context, buyerID string, now time.Time) error
}

// OrderRepository persists immutable order snapshots and their status lifecycle.
type OrderRepository interface {
	// CreateFromCart atomically validates stock, writes the order and payment
	// documents, and empties the buyer's cart in a single transaction.
	CreateFromCart(ctx context.Context, req OrderCreateRequest) (OrderCreateResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListBySeller(ctx context.Context, sellerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
}

// OrderCreateRequest bundles the documents written during checkout.
type OrderCreateRequest struct {
	Order   domain.Order
	Payment domain.Payment
	Now     time.Time
}

// OrderCreateResult reports the persisted order and payment.
type OrderCreateResult struct {
	Order   domain.Order
	Payment domain.Payment
}

// OrderListFilter narrows order queries by status.
type OrderListFilter struct {
	Status     domain.OrderStatus
	Pagination domain.Pagination
}

// OrderStatusUpdate carries optional fields to mutate during a status transition.
type OrderStatusUpdate struct {
	Status        domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	CancelReason  *string
	AttentionNote *string
	PaidAt        *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	Now           time.Time
}

// PaymentRepository persists payment documents and applies settlement transitions.
type PaymentRepository interface {
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error)
	SaveIntent(ctx context.Context, paymentID, intentID, clientSecret string, now time.Time) (domain.Payment, error)
	// ApplySuccess marks the payment paid, decrements product stock, and
	// advances the order, all within one transaction. Replayed events are
	// detected via the processed event id list and return the stored outcome
	// without further writes. An order that can no longer be confirmed keeps
	// its status; the settled payment is flagged for a refund instead.
	ApplySuccess(ctx context.Context, req PaymentSuccessRequest) (PaymentSuccessResult, error)
	// ApplyFailure marks the payment failed and leaves stock untouched.
	ApplyFailure(ctx context.Context, req PaymentFailureRequest) (domain.Payment, error)
}

// PaymentSuccessRequest identifies the settlement event to apply.
type PaymentSuccessRequest struct {
	IntentID string
	EventID  string
	Now      time.Time
}

// PaymentSuccessResult reports the settlement outcome.
type PaymentSuccessResult struct {
	Payment domain.Payment
	Order   domain.Order
	// Replayed is true when the event id had already been processed and no
	// state was changed.
	Replayed bool
	// ShortfallProducts lists product ids whose stock could not cover the
	// ordered quantity, in which case the order is flagged for attention.
	ShortfallProducts []string
}

// PaymentFailureRequest identifies the failure event to apply.
type PaymentFailureRequest struct {
	IntentID string
	EventID  string
	Reason   string
	Now      time.Time
}

// ReviewRepository persists buyer reviews and their moderation lifecycle.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByOrderAndProduct(ctx context.Context, orderID, productID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByStatus(ctx context.Context, status domain.ReviewStatus, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, moderatorID string, now time.Time) (domain.Review, error)
}

// CounterConfig adjusts counter behaviour such as step size or upper bounds.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides monotonically increasing sequences used for order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository reports backend connectivity for readiness probes.
type HealthRepository interface {
	CheckReadiness(ctx context.Context) error
}
