package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role enumerates the marketplace principal roles.
type Role string

const (
	// RoleBuyer identifies ordinary purchasing users.
	RoleBuyer Role = "buyer"
	// RoleSeller identifies users allowed to list and fulfil products.
	RoleSeller Role = "seller"
	// RoleAdmin identifies moderation staff.
	RoleAdmin Role = "admin"
)

// ProductStatus describes the moderation state of a listing.
type ProductStatus string

const (
	// ProductStatusPending indicates the listing awaits admin review.
	ProductStatusPending ProductStatus = "pending"
	// ProductStatusApproved indicates the listing is publicly visible and purchasable.
	ProductStatusApproved ProductStatus = "approved"
	// ProductStatusRejected indicates the listing was rejected by moderation.
	ProductStatusRejected ProductStatus = "rejected"
)

// Product is a seller-owned second-hand listing. Price and stock are mutable;
// stock is decremented only when a payment settles.
type Product struct {
	ID          string
	SellerID    string
	CategoryID  string
	Title       string
	Description string
	Condition   string
	Price       int64
	Currency    string
	Stock       int
	Status      ProductStatus
	ImageURLs   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups listings for browsing and search.
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Cart aggregates the single mutable cart owned by a buyer. The document is
// keyed by the buyer id, which makes the one-cart-per-buyer constraint
// structural rather than enforced by a unique index.
type Cart struct {
	ID        string
	BuyerID   string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem stores a single product entry within a cart. UnitPrice is captured
// when the item is added and is not refreshed on later product price changes.
// CurrentPrice and CurrentStatus carry the product's live price and listing
// state, joined on cart reads for display; they are never persisted.
type CartItem struct {
	ProductID     string
	SellerID      string
	Title         string
	Quantity      int
	UnitPrice     int64
	CurrentPrice  *int64
	CurrentStatus ProductStatus
	AddedAt       time.Time
	UpdatedAt     *time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment settlement.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment settled and stock was committed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the seller is preparing the shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the buyer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipping.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusNeedsAttention indicates payment settled but stock could not
	// cover every line; the order requires operator intervention instead of
	// confirming with oversold inventory.
	OrderStatusNeedsAttention OrderStatus = "needs_attention"
)

// OrderStatusTransitions encodes transition legality as a table. Shipped and
// delivered orders cannot be cancelled; cancelled and delivered are terminal
// apart from delivery confirmation bookkeeping.
var OrderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusNeedsAttention},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusNeedsAttention: {OrderStatusConfirmed, OrderStatusCancelled},
}

// CanTransition reports whether an order may move from current to target.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	if s == target {
		return true
	}
	for _, next := range OrderStatusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Cancellable reports whether cancellation is permitted from this status.
// Buyers reach only pending and confirmed; processing and needs-attention
// orders may still be cancelled by an admin, never once shipped.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusNeedsAttention:
		return true
	default:
		return false
	}
}

// PaymentStatus enumerates payment settlement states. Paid and failed are
// terminal; a paid payment replayed by the processor must be a no-op.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the intent exists but has not settled.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the processor captured the funds.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the processor reported a failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Terminal reports whether the payment can no longer change state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Order is the immutable snapshot of a purchase derived once from a cart.
// TotalAmount is computed at creation and never recomputed.
type Order struct {
	ID            string
	OrderNumber   string
	BuyerID       string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Currency      string
	TotalAmount   int64
	Items         []OrderItem
	CancelReason  *string
	AttentionNote *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
}

// SellerIDs returns the distinct sellers represented in the order's items.
func (o Order) SellerIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if item.SellerID == "" {
			continue
		}
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}

// HasSeller reports whether the given seller owns at least one order item.
func (o Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// OrderItem snapshots (product, quantity, unit price) at order creation.
type OrderItem struct {
	ProductID string
	SellerID  string
	Title     string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Payment tracks the processor-side transaction tied 1:1 to an order.
type Payment struct {
	ID                string
	OrderID           string
	Provider          string
	IntentID          string
	ClientSecret      string
	Status            PaymentStatus
	Amount            int64
	Currency          string
	FailureReason     *string
	ProcessedEventIDs []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SettledAt         *time.Time
}

// ReviewStatus indicates the moderation state of a review.
type ReviewStatus string

const (
	// ReviewStatusPending indicates the review awaits moderation.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusApproved indicates the review is publicly visible.
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusRejected indicates the review is hidden.
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Review captures buyer feedback tied to a delivered order.
type Review struct {
	ID          string
	OrderID     string
	ProductID   string
	BuyerID     string
	Rating      int
	Comment     string
	Status      ReviewStatus
	ModeratedBy *string
	ModeratedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSearchFilter narrows public catalog listings.
type ProductSearchFilter struct {
	Keyword    string
	CategoryID string
	PriceMin   *int64
	PriceMax   *int64
}
