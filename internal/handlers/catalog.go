package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/platform/auth"
	"github.com/loopmarket/api/internal/platform/httpx"
	"github.com/loopmarket/api/internal/services"
)

const maxProductBodySize = 64 * 1024

// CatalogHandlers exposes the public product catalog plus seller listing management.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	reviews services.ReviewService
}

// NewCatalogHandlers constructs handlers for product and category endpoints.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, reviews services.ReviewService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
		reviews: reviews,
	}
}

// ProductRoutes wires the /products endpoints onto the provided router.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.searchProducts)
	r.Get("/{productId}", h.getProduct)
	r.Get("/{productId}/reviews", h.listProductReviews)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireFirebaseAuth())
		}
		protected.Post("/", h.createProduct)
		protected.Get("/mine", h.listOwnProducts)
		protected.Patch("/{productId}", h.updateProduct)
		protected.Delete("/{productId}", h.deleteProduct)
	})
}

// CategoryRoutes wires the public /categories endpoints onto the provided router.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
}

func (h *CatalogHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	priceMin, err := parseOptionalInt64(query.Get("price_min"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price_min must be an integer", http.StatusBadRequest))
		return
	}
	priceMax, err := parseOptionalInt64(query.Get("price_max"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price_max must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.catalog.SearchProducts(ctx, services.ProductSearchQuery{
		Keyword:    strings.TrimSpace(query.Get("q")),
		CategoryID: strings.TrimSpace(query.Get("category_id")),
		PriceMin:   priceMin,
		PriceMax:   priceMax,
		Pagination: parsePagination(r),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      buildProductPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.GetProductQuery{ProductID: chi.URLParam(r, "productId")}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		query.ActorID = identity.UID
		query.ActorRoles = identityRoles(identity)
	}

	product, err := h.catalog.GetProduct(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := h.reviews.ListProductReviews(ctx, chi.URLParam(r, "productId"), parsePagination(r))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reviewListResponse{
		Reviews:       buildReviewPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		SellerID:    identity.UID,
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Title:       req.Title,
		Description: req.Description,
		Condition:   req.Condition,
		Price:       req.Price,
		Currency:    req.Currency,
		Stock:       req.Stock,
		ImageURLs:   req.ImageURLs,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listOwnProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	page, err := h.catalog.ListSellerProducts(ctx, identity.UID, parsePagination(r))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      buildProductPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := parseUpdateProductRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.ProductID = chi.URLParam(r, "productId")
	cmd.ActorID = identity.UID
	cmd.ActorRoles = identityRoles(identity)

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID:  chi.URLParam(r, "productId"),
		ActorID:    identity.UID,
		ActorRoles: identityRoles(identity),
	}); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payloads := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payloads = append(payloads, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Categories: payloads})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you may not modify this listing", http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog request failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type createProductRequest struct {
	CategoryID  string   `json:"category_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Stock       int      `json:"stock"`
	ImageURLs   []string `json:"image_urls"`
}

func parseUpdateProductRequest(body []byte) (services.UpdateProductCommand, error) {
	var cmd services.UpdateProductCommand

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return cmd, errors.New("invalid JSON payload")
	}
	if len(raw) == 0 {
		return cmd, errors.New("no editable fields provided")
	}

	for key, value := range raw {
		switch key {
		case "title":
			if isJSONNull(value) {
				return cmd, errors.New("title must not be null")
			}
			var title string
			if err := json.Unmarshal(value, &title); err != nil {
				return cmd, errors.New("title must be a string")
			}
			cmd.Title = &title
		case "description":
			var description string
			if !isJSONNull(value) {
				if err := json.Unmarshal(value, &description); err != nil {
					return cmd, errors.New("description must be a string")
				}
			}
			cmd.Description = &description
		case "condition":
			var condition string
			if !isJSONNull(value) {
				if err := json.Unmarshal(value, &condition); err != nil {
					return cmd, errors.New("condition must be a string")
				}
			}
			cmd.Condition = &condition
		case "category_id":
			var categoryID string
			if !isJSONNull(value) {
				if err := json.Unmarshal(value, &categoryID); err != nil {
					return cmd, errors.New("category_id must be a string")
				}
			}
			cmd.CategoryID = &categoryID
		case "price":
			if isJSONNull(value) {
				return cmd, errors.New("price must not be null")
			}
			var price int64
			if err := json.Unmarshal(value, &price); err != nil {
				return cmd, errors.New("price must be an integer")
			}
			cmd.Price = &price
		case "stock":
			if isJSONNull(value) {
				return cmd, errors.New("stock must not be null")
			}
			var stock int
			if err := json.Unmarshal(value, &stock); err != nil {
				return cmd, errors.New("stock must be an integer")
			}
			cmd.Stock = &stock
		case "image_urls":
			var urls []string
			if !isJSONNull(value) {
				if err := json.Unmarshal(value, &urls); err != nil {
					return cmd, errors.New("image_urls must be an array of strings")
				}
			}
			cmd.ImageURLs = &urls
		default:
			return cmd, fmt.Errorf("field %q is not editable", key)
		}
	}

	return cmd, nil
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"seller_id"`
	CategoryID  string   `json:"category_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Stock       int      `json:"stock"`
	Status      string   `json:"status"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		SellerID:    product.SellerID,
		CategoryID:  product.CategoryID,
		Title:       product.Title,
		Description: product.Description,
		Condition:   product.Condition,
		Price:       product.Price,
		Currency:    strings.ToUpper(product.Currency),
		Stock:       product.Stock,
		Status:      string(product.Status),
		ImageURLs:   product.ImageURLs,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func buildProductPayloads(products []services.Product) []productPayload {
	payloads := make([]productPayload, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, buildProductPayload(product))
	}
	return payloads
}

type categoryListResponse struct {
	Categories []categoryPayload `json:"categories"`
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:        category.ID,
		Name:      category.Name,
		Slug:      category.Slug,
		CreatedAt: formatTime(category.CreatedAt),
	}
}
