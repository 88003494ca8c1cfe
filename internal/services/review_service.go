package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/repositories"
)

var (
	errReviewReviewsRequired = errors.New("review service: review repository is required")
	errReviewOrdersRequired  = errors.New("review service: order repository is required")
	errReviewClockRequired   = errors.New("review service: clock is required")
)

const maxReviewCommentLength = 2000

// ErrReviewInvalidInput indicates the caller supplied invalid input.
var ErrReviewInvalidInput = errors.New("review service: invalid input")

// ErrReviewNotFound indicates the requested review does not exist.
var ErrReviewNotFound = errors.New("review service: not found")

// ErrReviewForbidden indicates the caller may not review this order.
var ErrReviewForbidden = errors.New("review service: forbidden")

// ErrReviewOrderNotDelivered indicates the order has not reached the delivered state.
var ErrReviewOrderNotDelivered = errors.New("review service: order not delivered")

// ErrReviewDuplicate indicates a review already exists for this order and product.
var ErrReviewDuplicate = errors.New("review service: already reviewed")

// ErrReviewUnavailable indicates the review backend cannot fulfil the request.
var ErrReviewUnavailable = errors.New("review service: unavailable")

// ReviewServiceDeps wires the repositories for review operations.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Clock       Clock
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type reviewService struct {
	reviews repositories.ReviewRepository
	orders  repositories.OrderRepository
	newID   func() string
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewReviewService constructs a ReviewService enforcing dependency validation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errReviewReviewsRequired
	}
	if deps.Orders == nil {
		return nil, errReviewOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errReviewClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "rev_" + ulid.Make().String() }
	}

	return &reviewService{
		reviews: deps.Reviews,
		orders:  deps.Orders,
		newID:   idGen,
		now:     func() time.Time { return deps.Clock().UTC() },
		logger:  logger,
	}, nil
}

// CreateReview records buyer feedback for a product within a delivered order.
// One review per order and product; the review starts in pending moderation.
func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	if s == nil || s.reviews == nil || s.orders == nil {
		return Review{}, ErrReviewUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || orderID == "" || productID == "" {
		return Review{}, ErrReviewInvalidInput
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	comment := strings.TrimSpace(cmd.Comment)
	if len(comment) > maxReviewCommentLength {
		return Review{}, fmt.Errorf("%w: comment must be %d characters or fewer", ErrReviewInvalidInput, maxReviewCommentLength)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, ErrReviewNotFound
		}
		return Review{}, ErrReviewUnavailable
	}
	if order.BuyerID != buyerID {
		return Review{}, ErrReviewForbidden
	}
	if order.Status != domain.OrderStatusDelivered {
		return Review{}, ErrReviewOrderNotDelivered
	}

	found := false
	for _, item := range order.Items {
		if item.ProductID == productID {
			found = true
			break
		}
	}
	if !found {
		return Review{}, fmt.Errorf("%w: product not part of order", ErrReviewInvalidInput)
	}

	if _, err := s.reviews.FindByOrderAndProduct(ctx, orderID, productID); err == nil {
		return Review{}, ErrReviewDuplicate
	} else if !isRepoNotFound(err) {
		return Review{}, ErrReviewUnavailable
	}

	now := s.now()
	review := domain.Review{
		ID:        s.newID(),
		OrderID:   orderID,
		ProductID: productID,
		BuyerID:   buyerID,
		Rating:    cmd.Rating,
		Comment:   comment,
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Review{}, ErrReviewDuplicate
		}
		return Review{}, ErrReviewUnavailable
	}

	s.logger(ctx, "review.created", map[string]any{
		"reviewId":  review.ID,
		"orderId":   orderID,
		"productId": productID,
	})
	return review, nil
}

// ListProductReviews returns approved reviews for a product.
func (s *reviewService) ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error) {
	if s == nil || s.reviews == nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.CursorPage[Review]{}, ErrReviewInvalidInput
	}

	page, err := s.reviews.ListByProduct(ctx, pid, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	return page, nil
}

// ListPendingReviews returns reviews awaiting moderation.
func (s *reviewService) ListPendingReviews(ctx context.Context, pager Pagination) (domain.CursorPage[Review], error) {
	if s == nil || s.reviews == nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	page, err := s.reviews.ListByStatus(ctx, domain.ReviewStatusPending, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	return page, nil
}

// ModerateReview records an approve or reject decision.
func (s *reviewService) ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	if s == nil || s.reviews == nil {
		return Review{}, ErrReviewUnavailable
	}

	reviewID := strings.TrimSpace(cmd.ReviewID)
	moderatorID := strings.TrimSpace(cmd.ModeratorID)
	if reviewID == "" || moderatorID == "" {
		return Review{}, ErrReviewInvalidInput
	}

	target := domain.ReviewStatusRejected
	if cmd.Approve {
		target = domain.ReviewStatusApproved
	}

	review, err := s.reviews.UpdateStatus(ctx, reviewID, target, moderatorID, s.now())
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, ErrReviewNotFound
		}
		return Review{}, ErrReviewUnavailable
	}

	s.logger(ctx, "review.moderated", map[string]any{
		"reviewId":  reviewID,
		"status":    string(target),
		"moderator": moderatorID,
	})
	return review, nil
}
