package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/loopmarket/api/internal/domain"
	pfirestore "github.com/loopmarket/api/internal/platform/firestore"
	"github.com/loopmarket/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order snapshots within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	payments *pfirestore.BaseRepository[paymentDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		payments: pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// CreateFromCart validates stock, writes the order and payment documents, and
// empties the buyer's cart within a single transaction. Stock is only checked
// here, not decremented; the decrement happens when the payment settles.
func (r *OrderRepository) CreateFromCart(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderCreateResult{}, errors.New("order repository not initialised")
	}

	order := req.Order
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return repositories.OrderCreateResult{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order id is required", nil)
	}
	if strings.TrimSpace(order.BuyerID) == "" {
		return repositories.OrderCreateResult{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "buyer id is required", nil)
	}
	if len(order.Items) == 0 {
		return repositories.OrderCreateResult{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order has no items", nil)
	}
	paymentID := strings.TrimSpace(req.Payment.ID)
	if paymentID == "" {
		return repositories.OrderCreateResult{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "payment id is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		paymentRef, err := r.payments.DocumentRef(ctx, paymentID)
		if err != nil {
			return err
		}
		cartRef, err := r.carts.DocumentRef(ctx, order.BuyerID)
		if err != nil {
			return err
		}

		// All reads must precede writes within a Firestore transaction. The
		// cart read also guards the snapshot: a concurrent cart mutation
		// conflicts with this transaction instead of being wiped unseen.
		cartSnap, err := tx.Get(cartRef)
		if err != nil {
			if isMissingDoc(err) {
				return repositories.NewOrderError(repositories.OrderErrorCartChanged, "cart changed during checkout", nil)
			}
			return err
		}
		var cartDoc cartDocument
		if err := cartSnap.DataTo(&cartDoc); err != nil {
			return fmt.Errorf("firestore orders decode cart %s: %w", order.BuyerID, err)
		}
		if !cartMatchesOrder(cartDoc.Items, order.Items) {
			return repositories.NewOrderError(repositories.OrderErrorCartChanged, "cart changed during checkout", nil)
		}

		var shortfall []string
		for _, item := range order.Items {
			productRef, err := r.products.DocumentRef(ctx, item.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if isMissingDoc(err) {
					shortfall = append(shortfall, item.ProductID)
					continue
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("firestore orders decode product %s: %w", item.ProductID, err)
			}
			if product.Status != string(domain.ProductStatusApproved) || product.Stock < item.Quantity {
				shortfall = append(shortfall, item.ProductID)
			}
		}
		if len(shortfall) > 0 {
			return repositories.NewInsufficientStockError(shortfall)
		}

		if err := tx.Create(orderRef, encodeOrder(order, now)); err != nil {
			return err
		}
		if err := tx.Create(paymentRef, encodePayment(req.Payment, now)); err != nil {
			return err
		}
		return tx.Update(cartRef, []firestore.Update{
			{Path: "items", Value: []cartItemDocument{}},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			return repositories.OrderCreateResult{}, orderErr
		}
		return repositories.OrderCreateResult{}, pfirestore.WrapError("orders.create", err)
	}

	savedOrder := order
	savedOrder.CreatedAt = now
	savedOrder.UpdatedAt = now
	savedPayment := req.Payment
	savedPayment.CreatedAt = now
	savedPayment.UpdatedAt = now

	return repositories.OrderCreateResult{
		Order:   savedOrder,
		Payment: savedPayment,
	}, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	buyer := strings.TrimSpace(buyerID)
	if buyer == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: buyer id is required")
	}
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query {
		return q.Where("buyerId", "==", buyer)
	})
}

// ListBySeller returns orders containing at least one item owned by the seller.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: seller id is required")
	}
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query {
		return q.Where("sellerIds", "array-contains", seller)
	})
}

// List returns orders across all buyers for administrative views.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query { return q })
}

// UpdateStatus applies a status transition together with its bookkeeping fields.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := update.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(update.Status)},
		{Path: "updatedAt", Value: now},
	}
	if update.PaymentStatus != nil {
		updates = append(updates, firestore.Update{Path: "paymentStatus", Value: string(*update.PaymentStatus)})
	}
	if update.CancelReason != nil {
		updates = append(updates, firestore.Update{Path: "cancelReason", Value: *update.CancelReason})
	}
	if update.AttentionNote != nil {
		updates = append(updates, firestore.Update{Path: "attentionNote", Value: *update.AttentionNote})
	}
	if update.PaidAt != nil {
		updates = append(updates, firestore.Update{Path: "paidAt", Value: update.PaidAt.UTC()})
	}
	if update.ShippedAt != nil {
		updates = append(updates, firestore.Update{Path: "shippedAt", Value: update.ShippedAt.UTC()})
	}
	if update.DeliveredAt != nil {
		updates = append(updates, firestore.Update{Path: "deliveredAt", Value: update.DeliveredAt.UTC()})
	}
	if update.CancelledAt != nil {
		updates = append(updates, firestore.Update{Path: "cancelledAt", Value: update.CancelledAt.UTC()})
	}

	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter, narrow pfirestore.QueryBuilder) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = narrow(q)
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	BuyerID       string              `firestore:"buyerId"`
	SellerIDs     []string            `firestore:"sellerIds"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	Currency      string              `firestore:"currency"`
	TotalAmount   int64               `firestore:"totalAmount"`
	Items         []orderItemDocument `firestore:"items"`
	CancelReason  *string             `firestore:"cancelReason,omitempty"`
	AttentionNote *string             `firestore:"attentionNote,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	PaidAt        *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt     *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt   *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt   *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SellerID  string `firestore:"sellerId"`
	Title     string `firestore:"title"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

func encodeOrder(order domain.Order, now time.Time) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	return orderDocument{
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		SellerIDs:     order.SellerIDs(),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalAmount:   order.TotalAmount,
		Items:         items,
		CancelReason:  order.CancelReason,
		AttentionNote: order.AttentionNote,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	return domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		BuyerID:       d.BuyerID,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Currency:      d.Currency,
		TotalAmount:   d.TotalAmount,
		Items:         items,
		CancelReason:  d.CancelReason,
		AttentionNote: d.AttentionNote,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		PaidAt:        d.PaidAt,
		ShippedAt:     d.ShippedAt,
		DeliveredAt:   d.DeliveredAt,
		CancelledAt:   d.CancelledAt,
	}
}

// cartMatchesOrder reports whether the cart lines still match the order
// snapshot taken before the transaction, comparing product, quantity, and
// the captured unit price.
func cartMatchesOrder(lines []cartItemDocument, items []domain.OrderItem) bool {
	if len(lines) != len(items) {
		return false
	}
	byProduct := make(map[string]cartItemDocument, len(lines))
	for _, line := range lines {
		byProduct[line.ProductID] = line
	}
	for _, item := range items {
		line, ok := byProduct[item.ProductID]
		if !ok || line.Quantity != item.Quantity || line.UnitPrice != item.UnitPrice {
			return false
		}
	}
	return true
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
