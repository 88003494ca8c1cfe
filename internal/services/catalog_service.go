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
	errCatalogProductsRequired = errors.New("catalog service: product repository is required")
	errCatalogClockRequired    = errors.New("catalog service: clock is required")
)

const (
	maxProductTitleLength       = 140
	maxProductDescriptionLength = 4000
	maxProductImages            = 10
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested product or category does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogForbidden indicates the caller may not act on the listing.
var ErrCatalogForbidden = errors.New("catalog service: forbidden")

// ErrCatalogConflict indicates the listing conflicts with existing state.
var ErrCatalogConflict = errors.New("catalog service: conflict")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires repositories for catalog operations.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	Categories      repositories.CategoryRepository
	Clock           Clock
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	newID      func() string
	now        func() time.Time
	currency   string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errCatalogProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "prd_" + ulid.Make().String() }
	}

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		newID:      idGen,
		now:        func() time.Time { return deps.Clock().UTC() },
		currency:   currency,
		logger:     logger,
	}, nil
}

// CreateProduct registers a new listing in pending moderation state.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Product{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	if len(title) > maxProductTitleLength {
		return Product{}, fmt.Errorf("%w: title must be %d characters or fewer", ErrCatalogInvalidInput, maxProductTitleLength)
	}
	if len(cmd.Description) > maxProductDescriptionLength {
		return Product{}, fmt.Errorf("%w: description must be %d characters or fewer", ErrCatalogInvalidInput, maxProductDescriptionLength)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be greater than zero", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
	}
	if len(cmd.ImageURLs) > maxProductImages {
		return Product{}, fmt.Errorf("%w: at most %d images are allowed", ErrCatalogInvalidInput, maxProductImages)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if !validCurrencyCode(currency) {
		return Product{}, fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCatalogInvalidInput)
	}

	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID != "" && s.categories != nil {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if isRepoNotFound(err) {
				return Product{}, fmt.Errorf("%w: unknown category", ErrCatalogInvalidInput)
			}
			return Product{}, s.translateRepoError(err)
		}
	}

	now := s.now()
	product := domain.Product{
		ID:          s.newID(),
		SellerID:    sellerID,
		CategoryID:  categoryID,
		Title:       title,
		Description: strings.TrimSpace(cmd.Description),
		Condition:   strings.TrimSpace(cmd.Condition),
		Price:       cmd.Price,
		Currency:    currency,
		Stock:       cmd.Stock,
		Status:      domain.ProductStatusPending,
		ImageURLs:   append([]string(nil), cmd.ImageURLs...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"sellerId":  sellerID,
	})
	return product, nil
}

// UpdateProduct applies partial changes to a listing. Only the owning seller
// or an admin may modify it; price or stock edits on an approved listing keep
// it approved, content edits send it back to moderation.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if !s.canManage(product, cmd.ActorID, cmd.ActorRoles) {
		return Product{}, ErrCatalogForbidden
	}

	contentChanged := false

	if cmd.Title != nil {
		title := strings.TrimSpace(*cmd.Title)
		if title == "" || len(title) > maxProductTitleLength {
			return Product{}, fmt.Errorf("%w: title must be 1-%d characters", ErrCatalogInvalidInput, maxProductTitleLength)
		}
		if title != product.Title {
			product.Title = title
			contentChanged = true
		}
	}
	if cmd.Description != nil {
		desc := strings.TrimSpace(*cmd.Description)
		if len(desc) > maxProductDescriptionLength {
			return Product{}, fmt.Errorf("%w: description must be %d characters or fewer", ErrCatalogInvalidInput, maxProductDescriptionLength)
		}
		if desc != product.Description {
			product.Description = desc
			contentChanged = true
		}
	}
	if cmd.Condition != nil {
		condition := strings.TrimSpace(*cmd.Condition)
		if condition != product.Condition {
			product.Condition = condition
			contentChanged = true
		}
	}
	if cmd.CategoryID != nil {
		categoryID := strings.TrimSpace(*cmd.CategoryID)
		if categoryID != "" && s.categories != nil {
			if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
				if isRepoNotFound(err) {
					return Product{}, fmt.Errorf("%w: unknown category", ErrCatalogInvalidInput)
				}
				return Product{}, s.translateRepoError(err)
			}
		}
		if categoryID != product.CategoryID {
			product.CategoryID = categoryID
			contentChanged = true
		}
	}
	if cmd.ImageURLs != nil {
		if len(*cmd.ImageURLs) > maxProductImages {
			return Product{}, fmt.Errorf("%w: at most %d images are allowed", ErrCatalogInvalidInput, maxProductImages)
		}
		product.ImageURLs = append([]string(nil), (*cmd.ImageURLs)...)
		contentChanged = true
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be greater than zero", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}

	if contentChanged && product.Status != domain.ProductStatusPending {
		product.Status = domain.ProductStatusPending
	}
	product.UpdatedAt = s.now()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// DeleteProduct removes a listing permanently.
func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	if s == nil || s.products == nil {
		return ErrCatalogUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ErrCatalogInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if !s.canManage(product, cmd.ActorID, cmd.ActorRoles) {
		return ErrCatalogForbidden
	}

	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{
		"productId": productID,
		"actorId":   cmd.ActorID,
	})
	return nil
}

// GetProduct loads one listing. Pending and rejected listings are only
// visible to their owner and admins.
func (s *catalogService) GetProduct(ctx context.Context, query GetProductQuery) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	productID := strings.TrimSpace(query.ProductID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if product.Status != domain.ProductStatusApproved && !s.canManage(product, query.ActorID, query.ActorRoles) {
		return Product{}, ErrCatalogNotFound
	}
	return product, nil
}

// SearchProducts lists approved products matching the filter. Keyword
// filtering happens on the fetched page since Firestore has no substring
// queries.
func (s *catalogService) SearchProducts(ctx context.Context, filter ProductSearchQuery) (domain.CursorPage[Product], error) {
	if s == nil || s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	if filter.PriceMin != nil && filter.PriceMax != nil && *filter.PriceMin > *filter.PriceMax {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: price_min exceeds price_max", ErrCatalogInvalidInput)
	}

	page, err := s.products.ListPublic(ctx, repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		PriceMin:   filter.PriceMin,
		PriceMax:   filter.PriceMax,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}

	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
	if keyword == "" {
		return page, nil
	}

	matched := make([]Product, 0, len(page.Items))
	for _, product := range page.Items {
		haystack := strings.ToLower(product.Title + " " + product.Description)
		if strings.Contains(haystack, keyword) {
			matched = append(matched, product)
		}
	}
	page.Items = matched
	return page, nil
}

// ListSellerProducts lists a seller's own listings regardless of status.
func (s *catalogService) ListSellerProducts(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[Product], error) {
	if s == nil || s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.CursorPage[Product]{}, ErrCatalogInvalidInput
	}

	page, err := s.products.ListBySeller(ctx, seller, pager)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ListPendingProducts lists listings awaiting moderation.
func (s *catalogService) ListPendingProducts(ctx context.Context, pager Pagination) (domain.CursorPage[Product], error) {
	if s == nil || s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	page, err := s.products.ListByStatus(ctx, domain.ProductStatusPending, pager)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ModerateProduct records an approve or reject decision.
func (s *catalogService) ModerateProduct(ctx context.Context, cmd ModerateProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" || strings.TrimSpace(cmd.ModeratorID) == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	target := domain.ProductStatusRejected
	if cmd.Approve {
		target = domain.ProductStatusApproved
	}

	product, err := s.products.UpdateStatus(ctx, productID, target, s.now())
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product.moderated", map[string]any{
		"productId": productID,
		"status":    string(target),
		"moderator": cmd.ModeratorID,
	})
	return product, nil
}

// CreateCategory adds a catalog category.
func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	if s == nil || s.categories == nil {
		return Category{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	slug := strings.ToLower(strings.TrimSpace(cmd.Slug))
	if slug == "" {
		slug = slugify(name)
	}

	category := domain.Category{
		ID:        "cat_" + ulid.Make().String(),
		Name:      name,
		Slug:      slug,
		CreatedAt: s.now(),
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return category, nil
}

// DeleteCategory removes a category. Listings keep their category id and
// surface as uncategorised.
func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s == nil || s.categories == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	if s == nil || s.categories == nil {
		return nil, ErrCatalogUnavailable
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

func (s *catalogService) canManage(product domain.Product, actorID string, roles []Role) bool {
	if hasRole(roles, domain.RoleAdmin) {
		return true
	}
	actor := strings.TrimSpace(actorID)
	return actor != "" && actor == product.SellerID
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		case repoErr.IsUnavailable():
			return ErrCatalogUnavailable
		}
	}
	return ErrCatalogUnavailable
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func validCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func hasRole(roles []Role, target Role) bool {
	for _, role := range roles {
		if role == target {
			return true
		}
	}
	return false
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
