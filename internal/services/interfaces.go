package services

import (
	"context"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Product       = domain.Product
	ProductStatus = domain.ProductStatus
	Category      = domain.Category
	Cart          = domain.Cart
	CartItem      = domain.CartItem
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	Payment       = domain.Payment
	PaymentStatus = domain.PaymentStatus
	Review        = domain.Review
	ReviewStatus  = domain.ReviewStatus
	Role          = domain.Role
)

// CatalogService manages the product catalog, categories, and listing moderation.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	GetProduct(ctx context.Context, query GetProductQuery) (Product, error)
	SearchProducts(ctx context.Context, filter ProductSearchQuery) (domain.CursorPage[Product], error)
	ListSellerProducts(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[Product], error)
	ListPendingProducts(ctx context.Context, pager Pagination) (domain.CursorPage[Product], error)
	ModerateProduct(ctx context.Context, cmd ModerateProductCommand) (Product, error)
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context) ([]Category, error)
}

// CartService manages the buyer's single cart and its line items.
type CartService interface {
	GetOrCreateCart(ctx context.Context, buyerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// OrderService converts carts into orders and drives the order status lifecycle.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (CheckoutResult, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService processes PSP webhook notifications and exposes payment state.
type PaymentService interface {
	HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error)
	GetPaymentForOrder(ctx context.Context, query GetPaymentQuery) (Payment, error)
}

// ReviewService records buyer feedback on delivered orders and moderates it.
type ReviewService interface {
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error)
	ListPendingReviews(ctx context.Context, pager Pagination) (domain.CursorPage[Review], error)
	ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
}

// OrderEventMessage is the payload published for order lifecycle notifications.
type OrderEventMessage struct {
	Event   string
	OrderID string
	BuyerID string
	Status  string
}

// OrderEventPublisher fans order lifecycle events out to interested consumers.
// Publishing is best-effort; callers log failures and carry on.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg OrderEventMessage) (string, error)
}

// CreateProductCommand captures a new seller listing.
type CreateProductCommand struct {
	SellerID    string
	CategoryID  string
	Title       string
	Description string
	Condition   string
	Price       int64
	Currency    string
	Stock       int
	ImageURLs   []string
}

// UpdateProductCommand mutates an existing listing. Nil fields are left unchanged.
type UpdateProductCommand struct {
	ProductID   string
	ActorID     string
	ActorRoles  []Role
	CategoryID  *string
	Title       *string
	Description *string
	Condition   *string
	Price       *int64
	Stock       *int
	ImageURLs   *[]string
}

// DeleteProductCommand removes a listing.
type DeleteProductCommand struct {
	ProductID  string
	ActorID    string
	ActorRoles []Role
}

// GetProductQuery loads a single product, restricting visibility of
// unapproved listings to their owner and admins.
type GetProductQuery struct {
	ProductID  string
	ActorID    string
	ActorRoles []Role
}

// ProductSearchQuery narrows the public catalog listing.
type ProductSearchQuery struct {
	Keyword    string
	CategoryID string
	PriceMin   *int64
	PriceMax   *int64
	Pagination Pagination
}

// ModerateProductCommand records an admin approve/reject decision.
type ModerateProductCommand struct {
	ProductID   string
	ModeratorID string
	Approve     bool
}

// CreateCategoryCommand adds a catalog category.
type CreateCategoryCommand struct {
	Name string
	Slug string
}

// AddCartItemCommand adds a product to the buyer's cart, capturing the unit
// price at add time.
type AddCartItemCommand struct {
	BuyerID   string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand changes the quantity of a cart line. Non-positive
// quantities remove the line.
type UpdateCartItemCommand struct {
	BuyerID   string
	ProductID string
	Quantity  int
}

// RemoveCartItemCommand drops a product from the cart.
type RemoveCartItemCommand struct {
	BuyerID   string
	ProductID string
}

// CreateOrderFromCartCommand converts the buyer's cart into an order.
type CreateOrderFromCartCommand struct {
	BuyerID        string
	IdempotencyKey string
}

// CheckoutResult carries the created order together with the payment intent
// reference the client confirms against.
type CheckoutResult struct {
	Order        Order
	Payment      Payment
	ClientSecret string
}

// GetOrderQuery loads one order, enforcing party-based visibility.
type GetOrderQuery struct {
	OrderID    string
	ActorID    string
	ActorRoles []Role
}

// OrderListQuery lists orders scoped to the caller's role.
type OrderListQuery struct {
	ActorID    string
	ActorRoles []Role
	Status     OrderStatus
	Pagination Pagination
}

// OrderStatusTransitionCommand advances an order along the fulfilment path.
type OrderStatusTransitionCommand struct {
	OrderID    string
	ActorID    string
	ActorRoles []Role
	Target     OrderStatus
}

// CancelOrderCommand cancels an order with an optional reason.
type CancelOrderCommand struct {
	OrderID    string
	ActorID    string
	ActorRoles []Role
	Reason     string
}

// WebhookOutcome summarises the effect of a processed provider event.
type WebhookOutcome struct {
	EventID  string
	IntentID string
	// Applied is false for replays and event types the lifecycle ignores.
	Applied  bool
	Replayed bool
	Order    *Order
	Payment  *Payment
}

// GetPaymentQuery loads the payment attached to an order.
type GetPaymentQuery struct {
	OrderID    string
	ActorID    string
	ActorRoles []Role
}

// CreateReviewCommand records buyer feedback for a delivered order.
type CreateReviewCommand struct {
	BuyerID   string
	OrderID   string
	ProductID string
	Rating    int
	Comment   string
}

// ModerateReviewCommand records an admin approve/reject decision on a review.
type ModerateReviewCommand struct {
	ReviewID    string
	ModeratorID string
	Approve     bool
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
