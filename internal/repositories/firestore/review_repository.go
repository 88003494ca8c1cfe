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

const reviewCollection = "reviews"

// ReviewRepository persists buyer reviews in Firestore.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base: pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection, nil, nil),
	}, nil
}

// Insert stores a new review. The document id must not already exist.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	_, err := r.base.Create(ctx, id, encodeReview(review))
	return err
}

// FindByID loads a single review.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderAndProduct locates the review a buyer left for a product within
// an order. Used to enforce one review per purchased product.
func (r *ReviewRepository) FindByOrderAndProduct(ctx context.Context, orderID, productID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	pid := strings.TrimSpace(productID)
	if oid == "" || pid == "" {
		return domain.Review{}, errors.New("review repository: order id and product id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", oid).Where("productId", "==", pid).Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.NewNotFoundError("reviews.find", fmt.Errorf("review for order %s product %s not found", oid, pid))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListByProduct returns approved reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", pid).Where("status", "==", string(domain.ReviewStatusApproved))
	})
}

// ListByStatus returns reviews in a moderation state, newest first.
func (r *ReviewRepository) ListByStatus(ctx context.Context, status domain.ReviewStatus, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(status))
	})
}

// UpdateStatus records a moderation decision.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, moderatorID string, now time.Time) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	ts := now.UTC()
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "moderatedBy", Value: strings.TrimSpace(moderatorID)},
		{Path: "moderatedAt", Value: ts},
		{Path: "updatedAt", Value: ts},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Review{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *ReviewRepository) list(ctx context.Context, pager domain.Pagination, narrow pfirestore.QueryBuilder) (domain.CursorPage[domain.Review], error) {
	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = narrow(q)
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
		return domain.CursorPage[domain.Review]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
	}

	items := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	return domain.CursorPage[domain.Review]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type reviewDocument struct {
	OrderID     string     `firestore:"orderId"`
	ProductID   string     `firestore:"productId"`
	BuyerID     string     `firestore:"buyerId"`
	Rating      int        `firestore:"rating"`
	Comment     string     `firestore:"comment,omitempty"`
	Status      string     `firestore:"status"`
	ModeratedBy *string    `firestore:"moderatedBy,omitempty"`
	ModeratedAt *time.Time `firestore:"moderatedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func encodeReview(review domain.Review) reviewDocument {
	return reviewDocument{
		OrderID:     strings.TrimSpace(review.OrderID),
		ProductID:   strings.TrimSpace(review.ProductID),
		BuyerID:     strings.TrimSpace(review.BuyerID),
		Rating:      review.Rating,
		Comment:     strings.TrimSpace(review.Comment),
		Status:      string(review.Status),
		ModeratedBy: review.ModeratedBy,
		ModeratedAt: review.ModeratedAt,
		CreatedAt:   review.CreatedAt.UTC(),
		UpdatedAt:   review.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:          id,
		OrderID:     d.OrderID,
		ProductID:   d.ProductID,
		BuyerID:     d.BuyerID,
		Rating:      d.Rating,
		Comment:     d.Comment,
		Status:      domain.ReviewStatus(d.Status),
		ModeratedBy: d.ModeratedBy,
		ModeratedAt: d.ModeratedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
