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

const productCollection = "products"

// ProductRepository persists seller listings within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the listing document, failing when the id already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Create(ctx, id, encodeProduct(product))
	return err
}

// Update rewrites the full listing document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Set(ctx, id, encodeProduct(product))
	return err
}

// Delete removes the listing document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Delete(ctx, id)
}

// FindByID loads a single listing.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListPublic returns approved listings matching the filter, newest first.
func (r *ProductRepository) ListPublic(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	return r.list(ctx, filter.Pagination, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.ProductStatusApproved))
		if category := strings.TrimSpace(filter.CategoryID); category != "" {
			q = q.Where("categoryId", "==", category)
		}
		if filter.PriceMin != nil {
			q = q.Where("price", ">=", *filter.PriceMin)
		}
		if filter.PriceMax != nil {
			q = q.Where("price", "<=", *filter.PriceMax)
		}
		return q
	})
}

// ListBySeller returns every listing owned by the seller regardless of status.
func (r *ProductRepository) ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository: seller id is required")
	}

	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("sellerId", "==", seller)
	})
}

// ListByStatus returns listings in the given moderation state, oldest submissions first served by createdAt descending pages.
func (r *ProductRepository) ListByStatus(ctx context.Context, status domain.ProductStatus, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(status))
	})
}

// UpdateStatus moves the listing between moderation states.
func (r *ProductRepository) UpdateStatus(ctx context.Context, productID string, status domain.ProductStatus, now time.Time) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Product{}, err
	}

	return r.FindByID(ctx, id)
}

func (r *ProductRepository) list(ctx context.Context, pager domain.Pagination, narrow pfirestore.QueryBuilder) (domain.CursorPage[domain.Product], error) {
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
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
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
		return domain.CursorPage[domain.Product]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type productDocument struct {
	SellerID    string    `firestore:"sellerId"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	Title       string    `firestore:"title"`
	Description string    `firestore:"description,omitempty"`
	Condition   string    `firestore:"condition,omitempty"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	Stock       int       `firestore:"stock"`
	Status      string    `firestore:"status"`
	ImageURLs   []string  `firestore:"imageUrls,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func encodeProduct(product domain.Product) productDocument {
	return productDocument{
		SellerID:    strings.TrimSpace(product.SellerID),
		CategoryID:  strings.TrimSpace(product.CategoryID),
		Title:       strings.TrimSpace(product.Title),
		Description: product.Description,
		Condition:   strings.TrimSpace(product.Condition),
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:       product.Stock,
		Status:      string(product.Status),
		ImageURLs:   append([]string(nil), product.ImageURLs...),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		SellerID:    d.SellerID,
		CategoryID:  d.CategoryID,
		Title:       d.Title,
		Description: d.Description,
		Condition:   d.Condition,
		Price:       d.Price,
		Currency:    d.Currency,
		Stock:       d.Stock,
		Status:      domain.ProductStatus(d.Status),
		ImageURLs:   append([]string(nil), d.ImageURLs...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
