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

func newAdminRouter(handler *AdminHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminHandlersListPendingProducts(t *testing.T) {
	svc := &stubCatalogService{
		listPendingFn: func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Product], error) {
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{ID: "prd_1", Status: domain.ProductStatusPending}},
			}, nil
		},
	}
	handler := NewAdminHandlers(nil, svc, &stubReviewService{})
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/admin/products/pending", nil)
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp productListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].Status != string(domain.ProductStatusPending) {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAdminHandlersModerateProductApprove(t *testing.T) {
	var got services.ModerateProductCommand
	svc := &stubCatalogService{
		moderateFn: func(ctx context.Context, cmd services.ModerateProductCommand) (services.Product, error) {
			got = cmd
			return services.Product{ID: cmd.ProductID, Status: domain.ProductStatusApproved}, nil
		},
	}
	handler := NewAdminHandlers(nil, svc, nil)
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/admin/products/prd_1/moderate", strings.NewReader(`{"approve":true}`))
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.ProductID != "prd_1" || got.ModeratorID != "admin-1" || !got.Approve {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestAdminHandlersModerateReviewReject(t *testing.T) {
	var got services.ModerateReviewCommand
	reviews := &stubReviewService{
		moderateReviewFn: func(ctx context.Context, cmd services.ModerateReviewCommand) (services.Review, error) {
			got = cmd
			return services.Review{ID: cmd.ReviewID, Status: domain.ReviewStatusRejected}, nil
		},
	}
	handler := NewAdminHandlers(nil, &stubCatalogService{}, reviews)
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/admin/reviews/rev_1/moderate", strings.NewReader(`{"approve":false}`))
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.ReviewID != "rev_1" || got.ModeratorID != "admin-1" || got.Approve {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Review.Status != string(domain.ReviewStatusRejected) {
		t.Fatalf("unexpected status %q", resp.Review.Status)
	}
}

func TestAdminHandlersCreateCategory(t *testing.T) {
	var got services.CreateCategoryCommand
	svc := &stubCatalogService{
		createCategoryFn: func(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
			got = cmd
			return services.Category{ID: "cat_new", Name: cmd.Name, Slug: "home-garden"}, nil
		},
	}
	handler := NewAdminHandlers(nil, svc, nil)
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/admin/categories", strings.NewReader(`{"name":"Home & Garden"}`))
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.Name != "Home & Garden" {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp categoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Category.Slug != "home-garden" {
		t.Fatalf("unexpected slug %q", resp.Category.Slug)
	}
}

func TestAdminHandlersDeleteCategory(t *testing.T) {
	deleted := ""
	svc := &stubCatalogService{
		deleteCategoryFn: func(ctx context.Context, categoryID string) error {
			deleted = categoryID
			return nil
		},
	}
	handler := NewAdminHandlers(nil, svc, nil)
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodDelete, "/admin/categories/cat_1", nil)
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if deleted != "cat_1" {
		t.Fatalf("unexpected category id %q", deleted)
	}
}

func TestAdminHandlersServiceUnavailable(t *testing.T) {
	handler := NewAdminHandlers(nil, nil, nil)
	router := newAdminRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/admin/products/pending", nil)
	req = withIdentity(req, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
