package handlers

import (
	"context"

	domain "github.com/loopmarket/api/internal/domain"
	"github.com/loopmarket/api/internal/services"
)

type stubCatalogService struct {
	createProductFn  func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error)
	updateProductFn  func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error)
	deleteProductFn  func(ctx context.Context, cmd services.DeleteProductCommand) error
	getProductFn     func(ctx context.Context, query services.GetProductQuery) (services.Product, error)
	searchProductsFn func(ctx context.Context, query services.ProductSearchQuery) (domain.CursorPage[services.Product], error)
	listSellerFn     func(ctx context.Context, sellerID string, pager services.Pagination) (domain.CursorPage[services.Product], error)
	listPendingFn    func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Product], error)
	moderateFn       func(ctx context.Context, cmd services.ModerateProductCommand) (services.Product, error)
	createCategoryFn func(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error)
	deleteCategoryFn func(ctx context.Context, categoryID string) error
	listCategoriesFn func(ctx context.Context) ([]services.Category, error)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createProductFn != nil {
		return s.createProductFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateProductFn != nil {
		return s.updateProductFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteProductFn != nil {
		return s.deleteProductFn(ctx, cmd)
	}
	return nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, query services.GetProductQuery) (services.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, query)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) SearchProducts(ctx context.Context, query services.ProductSearchQuery) (domain.CursorPage[services.Product], error) {
	if s.searchProductsFn != nil {
		return s.searchProductsFn(ctx, query)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) ListSellerProducts(ctx context.Context, sellerID string, pager services.Pagination) (domain.CursorPage[services.Product], error) {
	if s.listSellerFn != nil {
		return s.listSellerFn(ctx, sellerID, pager)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) ListPendingProducts(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Product], error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, pager)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) ModerateProduct(ctx context.Context, cmd services.ModerateProductCommand) (services.Product, error) {
	if s.moderateFn != nil {
		return s.moderateFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
	if s.createCategoryFn != nil {
		return s.createCategoryFn(ctx, cmd)
	}
	return services.Category{}, nil
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFn != nil {
		return s.deleteCategoryFn(ctx, categoryID)
	}
	return nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx)
	}
	return nil, nil
}

type stubCartService struct {
	getOrCreateFn    func(ctx context.Context, buyerID string) (services.Cart, error)
	addItemFn        func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateQuantityFn func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeItemFn     func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	clearFn          func(ctx context.Context, buyerID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, buyerID string) (services.Cart, error) {
	if s.getOrCreateFn != nil {
		return s.getOrCreateFn(ctx, buyerID)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addItemFn != nil {
		return s.addItemFn(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateQuantityFn != nil {
		return s.updateQuantityFn(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFn != nil {
		return s.removeItemFn(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) ClearCart(ctx context.Context, buyerID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, buyerID)
	}
	return nil
}

type stubOrderService struct {
	createFromCartFn func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error)
	getOrderFn       func(ctx context.Context, query services.GetOrderQuery) (services.Order, error)
	listOrdersFn     func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error)
	transitionFn     func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn         func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.CheckoutResult, error) {
	if s.createFromCartFn != nil {
		return s.createFromCartFn(ctx, cmd)
	}
	return services.CheckoutResult{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getOrderFn != nil {
		return s.getOrderFn(ctx, query)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
	if s.listOrdersFn != nil {
		return s.listOrdersFn(ctx, query)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubPaymentService struct {
	handleWebhookFn func(ctx context.Context, payload []byte, signature string) (services.WebhookOutcome, error)
	getPaymentFn    func(ctx context.Context, query services.GetPaymentQuery) (services.Payment, error)
}

func (s *stubPaymentService) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (services.WebhookOutcome, error) {
	if s.handleWebhookFn != nil {
		return s.handleWebhookFn(ctx, payload, signature)
	}
	return services.WebhookOutcome{}, nil
}

func (s *stubPaymentService) GetPaymentForOrder(ctx context.Context, query services.GetPaymentQuery) (services.Payment, error) {
	if s.getPaymentFn != nil {
		return s.getPaymentFn(ctx, query)
	}
	return services.Payment{}, nil
}

type stubReviewService struct {
	createReviewFn   func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error)
	listByProductFn  func(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.Review], error)
	listPendingFn    func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Review], error)
	moderateReviewFn func(ctx context.Context, cmd services.ModerateReviewCommand) (services.Review, error)
}

func (s *stubReviewService) CreateReview(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	if s.createReviewFn != nil {
		return s.createReviewFn(ctx, cmd)
	}
	return services.Review{}, nil
}

func (s *stubReviewService) ListProductReviews(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.Review], error) {
	if s.listByProductFn != nil {
		return s.listByProductFn(ctx, productID, pager)
	}
	return domain.CursorPage[services.Review]{}, nil
}

func (s *stubReviewService) ListPendingReviews(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Review], error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, pager)
	}
	return domain.CursorPage[services.Review]{}, nil
}

func (s *stubReviewService) ModerateReview(ctx context.Context, cmd services.ModerateReviewCommand) (services.Review, error) {
	if s.moderateReviewFn != nil {
		return s.moderateReviewFn(ctx, cmd)
	}
	return services.Review{}, nil
}

var (
	_ services.CatalogService = (*stubCatalogService)(nil)
	_ services.CartService    = (*stubCartService)(nil)
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.ReviewService  = (*stubReviewService)(nil)
)
