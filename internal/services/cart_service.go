package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartLineQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductNotFound indicates the referenced product does not exist.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartItemNotFound indicates the cart holds no line for the product.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	Clock           Clock
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart loads the buyer's cart, creating an empty one when absent.
// Each line is joined with the product's current price and listing state so
// clients can show price drift against the captured unit price.
func (s *cartService) GetOrCreateCart(ctx context.Context, buyerID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		saved, err := s.carts.Save(ctx, s.newCart(uid))
		if err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		cart = saved
	}
	cart = s.normaliseCart(cart, uid)
	s.joinProducts(ctx, cart.Items)
	return cart, nil
}

// joinProducts fills the live product fields on each cart line. Best-effort:
// a missing listing leaves the line without current data and a backend error
// is logged rather than failing the read.
func (s *cartService) joinProducts(ctx context.Context, items []domain.CartItem) {
	if s.products == nil {
		return
	}
	for i := range items {
		product, err := s.products.FindByID(ctx, items[i].ProductID)
		if err != nil {
			if !isRepoNotFound(err) {
				s.logger(ctx, "cart.product_join_failed", map[string]any{
					"productId": items[i].ProductID,
					"error":     err.Error(),
				})
			}
			continue
		}
		price := product.Price
		items[i].CurrentPrice = &price
		items[i].CurrentStatus = product.Status
	}
}

// AddItem adds a product to the cart, capturing the current unit price. An
// existing line for the same product accumulates quantity; a non-positive
// quantity removes the line instead.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil || s.products == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.BuyerID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return s.UpdateItemQuantity(ctx, UpdateCartItemCommand{
			BuyerID:   uid,
			ProductID: productID,
			Quantity:  0,
		})
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	if product.Status != domain.ProductStatusApproved {
		return Cart{}, fmt.Errorf("%w: product is not purchasable", ErrCartInvalidInput)
	}
	if product.SellerID == uid {
		return Cart{}, fmt.Errorf("%w: cannot buy your own listing", ErrCartInvalidInput)
	}

	cart, err := s.loadOrNewCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	if cart.Currency != "" && product.Currency != "" && !strings.EqualFold(cart.Currency, product.Currency) && len(cart.Items) > 0 {
		return Cart{}, fmt.Errorf("%w: product currency must match cart currency", ErrCartInvalidInput)
	}

	now := s.now()
	idx := indexOfCartLine(cart.Items, productID)
	if idx >= 0 {
		quantity := cart.Items[idx].Quantity + cmd.Quantity
		if quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartLineQuantity)
		}
		cart.Items[idx].Quantity = quantity
		ts := now
		cart.Items[idx].UpdatedAt = &ts
	} else {
		if cmd.Quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartLineQuantity)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			SellerID:  product.SellerID,
			Title:     product.Title,
			Quantity:  cmd.Quantity,
			UnitPrice: product.Price,
			AddedAt:   now,
		})
		if len(cart.Items) == 1 && product.Currency != "" {
			cart.Currency = strings.ToUpper(product.Currency)
		}
	}
	cart.UpdatedAt = now

	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved, uid), nil
}

// UpdateItemQuantity sets an absolute quantity for a cart line. Non-positive
// quantities remove the line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.BuyerID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartItemNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	idx := indexOfCartLine(cart.Items, productID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}

	now := s.now()
	if cmd.Quantity <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		if cmd.Quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartLineQuantity)
		}
		cart.Items[idx].Quantity = cmd.Quantity
		ts := now
		cart.Items[idx].UpdatedAt = &ts
	}
	cart.UpdatedAt = now

	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved, uid), nil
}

// RemoveItem drops a product line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	return s.UpdateItemQuantity(ctx, UpdateCartItemCommand{
		BuyerID:   cmd.BuyerID,
		ProductID: cmd.ProductID,
		Quantity:  0,
	})
}

// ClearCart empties the buyer's cart. A missing cart is already empty.
func (s *cartService) ClearCart(ctx context.Context, buyerID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	if err := s.carts.Clear(ctx, uid, s.now()); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) loadOrNewCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(buyerID), nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, buyerID), nil
}

func (s *cartService) newCart(buyerID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        buyerID,
		BuyerID:   buyerID,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, buyerID string) domain.Cart {
	if strings.TrimSpace(cart.ID) == "" {
		cart.ID = buyerID
	}
	if strings.TrimSpace(cart.BuyerID) == "" {
		cart.BuyerID = buyerID
	}
	cart.Currency = strings.ToUpper(strings.TrimSpace(cart.Currency))
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = cart.CreatedAt
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartItemNotFound
	}
	return ErrCartUnavailable
}

func indexOfCartLine(items []domain.CartItem, productID string) int {
	target := strings.TrimSpace(productID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ProductID), target) {
			return i
		}
	}
	return -1
}
