package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
)

func newReviewServiceForTest(t *testing.T, deps ReviewServiceDeps) ReviewService {
	t.Helper()
	if deps.Reviews == nil {
		deps.Reviews = &stubReviewRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = testClock
	}
	svc, err := NewReviewService(deps)
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	return svc
}

func deliveredOrder(orderID, buyerID string) domain.Order {
	return domain.Order{
		ID:      orderID,
		BuyerID: buyerID,
		Status:  domain.OrderStatusDelivered,
		Items:   []domain.OrderItem{{ProductID: "prd_1", SellerID: "seller-1"}},
	}
}

func TestCreateReviewStartsPending(t *testing.T) {
	ctx := context.Background()
	var inserted domain.Review
	reviews := &stubReviewRepo{
		insertFn: func(ctx context.Context, review domain.Review) error {
			inserted = review
			return nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(orderID, "buyer-1"), nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Reviews: reviews, Orders: orders})

	review, err := svc.CreateReview(ctx, CreateReviewCommand{
		BuyerID:   "buyer-1",
		OrderID:   "ord_1",
		ProductID: "prd_1",
		Rating:    4,
		Comment:   "Arrived as described.",
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if review.Status != domain.ReviewStatusPending {
		t.Fatalf("new reviews must await moderation, got %q", review.Status)
	}
	if inserted.Rating != 4 || inserted.BuyerID != "buyer-1" {
		t.Fatalf("unexpected review %+v", inserted)
	}
}

func TestCreateReviewRequiresDeliveredOrder(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			order := deliveredOrder(orderID, "buyer-1")
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Orders: orders})

	_, err := svc.CreateReview(ctx, CreateReviewCommand{BuyerID: "buyer-1", OrderID: "ord_1", ProductID: "prd_1", Rating: 5})
	if !errors.Is(err, ErrReviewOrderNotDelivered) {
		t.Fatalf("expected not delivered error, got %v", err)
	}
}

func TestCreateReviewForbiddenForOtherBuyers(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(orderID, "buyer-1"), nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Orders: orders})

	_, err := svc.CreateReview(ctx, CreateReviewCommand{BuyerID: "buyer-2", OrderID: "ord_1", ProductID: "prd_1", Rating: 5})
	if !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateReviewRejectsProductOutsideOrder(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(orderID, "buyer-1"), nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Orders: orders})

	_, err := svc.CreateReview(ctx, CreateReviewCommand{BuyerID: "buyer-1", OrderID: "ord_1", ProductID: "prd_9", Rating: 5})
	if !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected invalid input for product outside order, got %v", err)
	}
}

func TestCreateReviewRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(orderID, "buyer-1"), nil
		},
	}
	reviews := &stubReviewRepo{
		findByOrderAndProductFn: func(ctx context.Context, orderID, productID string) (domain.Review, error) {
			return domain.Review{ID: "rev_1", OrderID: orderID, ProductID: productID}, nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Reviews: reviews, Orders: orders})

	_, err := svc.CreateReview(ctx, CreateReviewCommand{BuyerID: "buyer-1", OrderID: "ord_1", ProductID: "prd_1", Rating: 5})
	if !errors.Is(err, ErrReviewDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCreateReviewValidatesRating(t *testing.T) {
	ctx := context.Background()
	svc := newReviewServiceForTest(t, ReviewServiceDeps{})

	for _, rating := range []int{0, 6, -1} {
		if _, err := svc.CreateReview(ctx, CreateReviewCommand{BuyerID: "b", OrderID: "o", ProductID: "p", Rating: rating}); !errors.Is(err, ErrReviewInvalidInput) {
			t.Fatalf("rating %d: expected invalid input, got %v", rating, err)
		}
	}
}

func TestModerateReviewRecordsModerator(t *testing.T) {
	ctx := context.Background()
	reviews := &stubReviewRepo{
		updateStatusFn: func(ctx context.Context, reviewID string, status domain.ReviewStatus, moderatorID string, now time.Time) (domain.Review, error) {
			if moderatorID != "admin-1" {
				t.Fatalf("expected moderator admin-1, got %q", moderatorID)
			}
			return domain.Review{ID: reviewID, Status: status, ModeratedBy: &moderatorID}, nil
		},
	}
	svc := newReviewServiceForTest(t, ReviewServiceDeps{Reviews: reviews})

	review, err := svc.ModerateReview(ctx, ModerateReviewCommand{ReviewID: "rev_1", ModeratorID: "admin-1", Approve: true})
	if err != nil {
		t.Fatalf("moderate review: %v", err)
	}
	if review.Status != domain.ReviewStatusApproved {
		t.Fatalf("expected approved, got %q", review.Status)
	}
}

func TestModerateReviewUnknownReview(t *testing.T) {
	ctx := context.Background()
	svc := newReviewServiceForTest(t, ReviewServiceDeps{})

	if _, err := svc.ModerateReview(ctx, ModerateReviewCommand{ReviewID: "rev_missing", ModeratorID: "admin-1"}); !errors.Is(err, ErrReviewNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
