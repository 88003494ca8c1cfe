package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/platform/auth"
	"github.com/loopmarket/api/internal/services"
)

func newReviewRouter(handler *ReviewHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/reviews", handler.Routes)
	return router
}

func TestReviewHandlersCreateReview(t *testing.T) {
	var got services.CreateReviewCommand
	svc := &stubReviewService{
		createReviewFn: func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			got = cmd
			return services.Review{
				ID:        "rev_1",
				OrderID:   cmd.OrderID,
				ProductID: cmd.ProductID,
				BuyerID:   cmd.BuyerID,
				Rating:    cmd.Rating,
				Comment:   cmd.Comment,
				Status:    domain.ReviewStatusPending,
			}, nil
		},
	}
	handler := NewReviewHandlers(nil, svc)
	router := newReviewRouter(handler)

	body := `{"order_id":"ord_1","product_id":"prd_1","rating":4,"comment":"works great"}`
	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(body))
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.BuyerID != "buyer-7" || got.OrderID != "ord_1" || got.ProductID != "prd_1" || got.Rating != 4 {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Review.Status != string(domain.ReviewStatusPending) {
		t.Fatalf("unexpected status %q", resp.Review.Status)
	}
}

func TestReviewHandlersCreateReviewOrderNotDelivered(t *testing.T) {
	svc := &stubReviewService{
		createReviewFn: func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			return services.Review{}, services.ErrReviewOrderNotDelivered
		},
	}
	handler := NewReviewHandlers(nil, svc)
	router := newReviewRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"order_id":"ord_1","product_id":"prd_1","rating":5}`))
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "order_not_delivered") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestReviewHandlersCreateReviewDuplicate(t *testing.T) {
	svc := &stubReviewService{
		createReviewFn: func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			return services.Review{}, services.ErrReviewDuplicate
		},
	}
	handler := NewReviewHandlers(nil, svc)
	router := newReviewRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"order_id":"ord_1","product_id":"prd_1","rating":5}`))
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "review_exists") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestReviewHandlersCreateReviewUnauthenticated(t *testing.T) {
	handler := NewReviewHandlers(nil, &stubReviewService{})
	router := newReviewRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"order_id":"ord_1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestReviewHandlersCreateReviewEmptyBody(t *testing.T) {
	handler := NewReviewHandlers(nil, &stubReviewService{})
	router := newReviewRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	req = withIdentity(req, &auth.Identity{UID: "buyer-7"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
