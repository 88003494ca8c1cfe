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

const paymentCollection = "payments"

// PaymentRepository persists payment documents within Firestore.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderID loads the payment attached to an order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.findOne(ctx, "orderId", orderID)
}

// FindByIntentID loads the payment created for a processor intent.
func (r *PaymentRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	return r.findOne(ctx, "intentId", intentID)
}

// SaveIntent records the processor intent reference against an existing payment.
func (r *PaymentRepository) SaveIntent(ctx context.Context, paymentID, intentID, clientSecret string, now time.Time) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	updates := []firestore.Update{
		{Path: "intentId", Value: strings.TrimSpace(intentID)},
		{Path: "clientSecret", Value: strings.TrimSpace(clientSecret)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Payment{}, err
	}
	return r.FindByID(ctx, id)
}

// ApplySuccess marks the payment paid, decrements stock for each order item,
// and advances the order, all inside one transaction. A previously processed
// event id returns the stored state unchanged, which makes webhook replays
// harmless. An order that can no longer be confirmed, typically because the
// buyer cancelled before settlement, keeps its status untouched and is
// flagged for a refund.
func (r *PaymentRepository) ApplySuccess(ctx context.Context, req repositories.PaymentSuccessRequest) (repositories.PaymentSuccessResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PaymentSuccessResult{}, errors.New("payment repository not initialised")
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return repositories.PaymentSuccessResult{}, errors.New("payment repository: intent id is required")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return repositories.PaymentSuccessResult{}, errors.New("payment repository: event id is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Transactions cannot run queries, so the intent lookup happens first and
	// the payment document is re-read inside the transaction.
	payment, err := r.FindByIntentID(ctx, intentID)
	if err != nil {
		return repositories.PaymentSuccessResult{}, err
	}

	var result repositories.PaymentSuccessResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		paymentRef, err := r.base.DocumentRef(ctx, payment.ID)
		if err != nil {
			return err
		}
		paymentSnap, err := tx.Get(paymentRef)
		if err != nil {
			return err
		}
		var paymentDoc paymentDocument
		if err := paymentSnap.DataTo(&paymentDoc); err != nil {
			return fmt.Errorf("firestore payments decode %s: %w", payment.ID, err)
		}

		orderRef, err := r.orders.DocumentRef(ctx, paymentDoc.OrderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("firestore payments decode order %s: %w", paymentDoc.OrderID, err)
		}

		if containsEvent(paymentDoc.ProcessedEventIDs, eventID) || paymentDoc.Status == string(domain.PaymentStatusPaid) {
			result = repositories.PaymentSuccessResult{
				Payment:  paymentDoc.toDomain(payment.ID),
				Order:    orderDoc.toDomain(paymentDoc.OrderID),
				Replayed: true,
			}
			return nil
		}
		if paymentDoc.Status == string(domain.PaymentStatusFailed) {
			return repositories.NewOrderError(repositories.OrderErrorIllegalTransition, "payment already failed", nil)
		}

		type stockUpdate struct {
			ref   *firestore.DocumentRef
			stock int
		}
		var (
			updates   []stockUpdate
			shortfall []string
		)
		// A cancelled order cannot be confirmed anymore; skip the stock reads
		// entirely so the late settlement never touches inventory.
		if domain.OrderStatus(orderDoc.Status).CanTransition(domain.OrderStatusConfirmed) {
			for _, item := range orderDoc.Items {
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
					return fmt.Errorf("firestore payments decode product %s: %w", item.ProductID, err)
				}
				if product.Stock < item.Quantity {
					shortfall = append(shortfall, item.ProductID)
					continue
				}
				updates = append(updates, stockUpdate{ref: productRef, stock: product.Stock - item.Quantity})
			}
		}

		if settleSuccess(&paymentDoc, &orderDoc, shortfall, eventID, now) {
			for _, update := range updates {
				if err := tx.Update(update.ref, []firestore.Update{
					{Path: "stock", Value: update.stock},
					{Path: "updatedAt", Value: now},
				}); err != nil {
					return err
				}
			}
		}

		if err := tx.Set(paymentRef, paymentDoc); err != nil {
			return err
		}
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		result = repositories.PaymentSuccessResult{
			Payment:           paymentDoc.toDomain(payment.ID),
			Order:             orderDoc.toDomain(paymentDoc.OrderID),
			ShortfallProducts: shortfall,
		}
		return nil
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			return repositories.PaymentSuccessResult{}, orderErr
		}
		return repositories.PaymentSuccessResult{}, pfirestore.WrapError("payments.apply_success", err)
	}

	return result, nil
}

// ApplyFailure marks the payment failed without touching stock. Replays and
// events arriving after settlement are ignored.
func (r *PaymentRepository) ApplyFailure(ctx context.Context, req repositories.PaymentFailureRequest) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return domain.Payment{}, errors.New("payment repository: intent id is required")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return domain.Payment{}, errors.New("payment repository: event id is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	payment, err := r.FindByIntentID(ctx, intentID)
	if err != nil {
		return domain.Payment{}, err
	}

	var saved domain.Payment
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		paymentRef, err := r.base.DocumentRef(ctx, payment.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(paymentRef)
		if err != nil {
			return err
		}
		var doc paymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore payments decode %s: %w", payment.ID, err)
		}

		if containsEvent(doc.ProcessedEventIDs, eventID) || domain.PaymentStatus(doc.Status).Terminal() {
			saved = doc.toDomain(payment.ID)
			return nil
		}

		reason := strings.TrimSpace(req.Reason)
		doc.Status = string(domain.PaymentStatusFailed)
		doc.ProcessedEventIDs = append(doc.ProcessedEventIDs, eventID)
		if reason != "" {
			doc.FailureReason = &reason
		}
		doc.UpdatedAt = now

		if err := tx.Set(paymentRef, doc); err != nil {
			return err
		}

		orderRef, err := r.orders.DocumentRef(ctx, doc.OrderID)
		if err != nil {
			return err
		}
		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "paymentStatus", Value: string(domain.PaymentStatusFailed)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		saved = doc.toDomain(payment.ID)
		return nil
	})
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.apply_failure", err)
	}

	return saved, nil
}

func (r *PaymentRepository) findOne(ctx context.Context, field, value string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return domain.Payment{}, fmt.Errorf("payment repository: %s is required", field)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NewNotFoundError("payments.find", fmt.Errorf("payment with %s %s not found", field, trimmed))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// settleSuccess applies a settlement event to the payment and order documents
// and reports whether the prepared stock decrements may be committed. The
// payment always becomes paid; the order only confirms when its current status
// allows it and stock covers every line. An order cancelled before settlement
// keeps its status and is flagged for a refund. A stock shortfall flags the
// order for an operator instead of confirming with oversold inventory.
func settleSuccess(paymentDoc *paymentDocument, orderDoc *orderDocument, shortfall []string, eventID string, now time.Time) bool {
	paymentDoc.Status = string(domain.PaymentStatusPaid)
	paymentDoc.ProcessedEventIDs = append(paymentDoc.ProcessedEventIDs, eventID)
	paymentDoc.SettledAt = &now
	paymentDoc.UpdatedAt = now

	orderDoc.PaymentStatus = string(domain.PaymentStatusPaid)
	orderDoc.PaidAt = &now
	orderDoc.UpdatedAt = now

	current := domain.OrderStatus(orderDoc.Status)
	if !current.CanTransition(domain.OrderStatusConfirmed) {
		note := fmt.Sprintf("payment settled while order was %s; refund required", current)
		orderDoc.AttentionNote = &note
		return false
	}
	if len(shortfall) > 0 {
		note := fmt.Sprintf("stock shortfall on settlement: %s", strings.Join(shortfall, ", "))
		orderDoc.Status = string(domain.OrderStatusNeedsAttention)
		orderDoc.AttentionNote = &note
		return false
	}
	orderDoc.Status = string(domain.OrderStatusConfirmed)
	return true
}

func containsEvent(events []string, eventID string) bool {
	for _, id := range events {
		if id == eventID {
			return true
		}
	}
	return false
}

type paymentDocument struct {
	OrderID           string     `firestore:"orderId"`
	Provider          string     `firestore:"provider"`
	IntentID          string     `firestore:"intentId,omitempty"`
	ClientSecret      string     `firestore:"clientSecret,omitempty"`
	Status            string     `firestore:"status"`
	Amount            int64      `firestore:"amount"`
	Currency          string     `firestore:"currency"`
	FailureReason     *string    `firestore:"failureReason,omitempty"`
	ProcessedEventIDs []string   `firestore:"processedEventIds"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
	SettledAt         *time.Time `firestore:"settledAt,omitempty"`
}

func encodePayment(payment domain.Payment, now time.Time) paymentDocument {
	events := payment.ProcessedEventIDs
	if events == nil {
		events = []string{}
	}
	return paymentDocument{
		OrderID:           strings.TrimSpace(payment.OrderID),
		Provider:          strings.TrimSpace(payment.Provider),
		IntentID:          strings.TrimSpace(payment.IntentID),
		ClientSecret:      strings.TrimSpace(payment.ClientSecret),
		Status:            string(payment.Status),
		Amount:            payment.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(payment.Currency)),
		FailureReason:     payment.FailureReason,
		ProcessedEventIDs: append([]string(nil), events...),
		CreatedAt:         now,
		UpdatedAt:         now,
		SettledAt:         payment.SettledAt,
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:                id,
		OrderID:           d.OrderID,
		Provider:          d.Provider,
		IntentID:          d.IntentID,
		ClientSecret:      d.ClientSecret,
		Status:            domain.PaymentStatus(d.Status),
		Amount:            d.Amount,
		Currency:          d.Currency,
		FailureReason:     d.FailureReason,
		ProcessedEventIDs: append([]string(nil), d.ProcessedEventIDs...),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		SettledAt:         d.SettledAt,
	}
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
