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

func newCatalogRouter(handler *CatalogHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/products", handler.ProductRoutes)
	router.Route("/categories", handler.CategoryRoutes)
	return router
}

func TestCatalogHandlersSearchProducts(t *testing.T) {
	var got services.ProductSearchQuery
	svc := &stubCatalogService{
		searchProductsFn: func(ctx context.Context, query services.ProductSearchQuery) (domain.CursorPage[services.Product], error) {
			got = query
			return domain.CursorPage[services.Product]{
				Items: []services.Product{
					{ID: "prd_1", SellerID: "seller-1", Title: "Vintage camera", Price: 1500, Currency: "eur", Status: domain.ProductStatusApproved},
				},
				NextPageToken: "tok_next",
			}, nil
		},
	}
	handler := NewCatalogHandlers(nil, svc, &stubReviewService{})
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products?q=camera&category_id=cat_1&price_min=100&price_max=2000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.Keyword != "camera" || got.CategoryID != "cat_1" {
		t.Fatalf("unexpected query %+v", got)
	}
	if got.PriceMin == nil || *got.PriceMin != 100 || got.PriceMax == nil || *got.PriceMax != 2000 {
		t.Fatalf("unexpected price range %+v", got)
	}
	var resp productListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].Currency != "EUR" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.NextPageToken != "tok_next" {
		t.Fatalf("unexpected next page token %q", resp.NextPageToken)
	}
}

func TestCatalogHandlersSearchRejectsBadPriceFilter(t *testing.T) {
	handler := NewCatalogHandlers(nil, &stubCatalogService{}, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products?price_min=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCatalogHandlersGetProductForwardsIdentity(t *testing.T) {
	var got services.GetProductQuery
	svc := &stubCatalogService{
		getProductFn: func(ctx context.Context, query services.GetProductQuery) (services.Product, error) {
			got = query
			return services.Product{ID: query.ProductID, Status: domain.ProductStatusPending}, nil
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_1", nil)
	req = withIdentity(req, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.ProductID != "prd_1" || got.ActorID != "seller-1" {
		t.Fatalf("unexpected query %+v", got)
	}
}

func TestCatalogHandlersGetProductNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getProductFn: func(ctx context.Context, query services.GetProductQuery) (services.Product, error) {
			return services.Product{}, services.ErrCatalogNotFound
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "product_not_found") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCatalogHandlersCreateProduct(t *testing.T) {
	var got services.CreateProductCommand
	svc := &stubCatalogService{
		createProductFn: func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			got = cmd
			return services.Product{
				ID:       "prd_new",
				SellerID: cmd.SellerID,
				Title:    cmd.Title,
				Price:    cmd.Price,
				Currency: "eur",
				Status:   domain.ProductStatusPending,
			}, nil
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	body := `{"category_id":"cat_1","title":"Record player","condition":"used_good","price":4500,"currency":"EUR","stock":1}`
	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body))
	req = withIdentity(req, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.SellerID != "seller-1" || got.Title != "Record player" || got.Price != 4500 {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp productResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product.Status != string(domain.ProductStatusPending) {
		t.Fatalf("unexpected status %q", resp.Product.Status)
	}
}

func TestCatalogHandlersCreateProductUnauthenticated(t *testing.T) {
	handler := NewCatalogHandlers(nil, &stubCatalogService{}, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCatalogHandlersUpdateProductPartialPatch(t *testing.T) {
	var got services.UpdateProductCommand
	svc := &stubCatalogService{
		updateProductFn: func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
			got = cmd
			return services.Product{ID: cmd.ProductID, Status: domain.ProductStatusApproved}, nil
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodPatch, "/products/prd_1", strings.NewReader(`{"price":2500,"stock":3}`))
	req = withIdentity(req, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got.ProductID != "prd_1" || got.ActorID != "seller-1" {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.Price == nil || *got.Price != 2500 {
		t.Fatalf("expected price pointer, got %+v", got.Price)
	}
	if got.Stock == nil || *got.Stock != 3 {
		t.Fatalf("expected stock pointer, got %+v", got.Stock)
	}
	if got.Title != nil || got.Description != nil {
		t.Fatalf("untouched fields must stay nil: %+v", got)
	}
}

func TestCatalogHandlersUpdateProductRejectsUnknownField(t *testing.T) {
	handler := NewCatalogHandlers(nil, &stubCatalogService{}, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodPatch, "/products/prd_1", strings.NewReader(`{"seller_id":"seller-2"}`))
	req = withIdentity(req, &auth.Identity{UID: "seller-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not editable") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCatalogHandlersUpdateProductRejectsNullTitle(t *testing.T) {
	handler := NewCatalogHandlers(nil, &stubCatalogService{}, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodPatch, "/products/prd_1", strings.NewReader(`{"title":null}`))
	req = withIdentity(req, &auth.Identity{UID: "seller-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCatalogHandlersDeleteProductForbidden(t *testing.T) {
	svc := &stubCatalogService{
		deleteProductFn: func(ctx context.Context, cmd services.DeleteProductCommand) error {
			return services.ErrCatalogForbidden
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodDelete, "/products/prd_1", nil)
	req = withIdentity(req, &auth.Identity{UID: "seller-2", Roles: []string{auth.RoleSeller}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCatalogHandlersListProductReviews(t *testing.T) {
	reviews := &stubReviewService{
		listByProductFn: func(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.Review], error) {
			if productID != "prd_1" {
				t.Fatalf("unexpected product id %q", productID)
			}
			return domain.CursorPage[services.Review]{
				Items: []services.Review{{ID: "rev_1", ProductID: "prd_1", Rating: 5, Status: domain.ReviewStatusApproved}},
			}, nil
		},
	}
	handler := NewCatalogHandlers(nil, &stubCatalogService{}, reviews)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_1/reviews", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp reviewListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Reviews) != 1 || resp.Reviews[0].Rating != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCatalogHandlersListCategories(t *testing.T) {
	svc := &stubCatalogService{
		listCategoriesFn: func(ctx context.Context) ([]services.Category, error) {
			return []services.Category{{ID: "cat_1", Name: "Electronics", Slug: "electronics"}}, nil
		},
	}
	handler := NewCatalogHandlers(nil, svc, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp categoryListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Categories) != 1 || resp.Categories[0].Slug != "electronics" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCatalogHandlersServiceUnavailable(t *testing.T) {
	handler := NewCatalogHandlers(nil, nil, nil)
	router := newCatalogRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
