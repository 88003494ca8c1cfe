package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loopmarket/api/internal/payments"
	"github.com/loopmarket/api/internal/platform/config"
	"github.com/loopmarket/api/internal/platform/observability"
	"github.com/loopmarket/api/internal/repositories"
	"github.com/loopmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	Payments services.PaymentService
	Reviews  services.ReviewService
}

// Infrastructure carries the external gateways services depend on beyond the
// repository registry.
type Infrastructure struct {
	PaymentGateway  *payments.Manager
	WebhookVerifier *payments.StripeWebhookVerifier
	Events          services.OrderEventPublisher
	Logger          *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients and background workers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:        reg.Products(),
		Categories:      reg.Categories(),
		Clock:           time.Now,
		DefaultCurrency: cfg.Currency,
		Logger:          observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		Clock:           time.Now,
		DefaultCurrency: cfg.Currency,
		Logger:          observability.EventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderDeps := services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Carts:           reg.Carts(),
		Payments:        reg.Payments(),
		Counters:        reg.Counters(),
		Events:          infra.Events,
		Clock:           time.Now,
		DefaultCurrency: cfg.Currency,
		Logger:          observability.EventLogger(logger.Named("orders")),
	}
	if infra.PaymentGateway != nil {
		orderDeps.Gateway = infra.PaymentGateway
	}
	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if infra.WebhookVerifier != nil {
		paymentDeps := services.PaymentServiceDeps{
			Payments: reg.Payments(),
			Orders:   reg.Orders(),
			Verifier: infra.WebhookVerifier,
			Events:   infra.Events,
			Clock:    time.Now,
			Logger:   observability.EventLogger(logger.Named("payments")),
		}
		if infra.PaymentGateway != nil {
			paymentDeps.Gateway = infra.PaymentGateway
		}
		paymentSvc, err := services.NewPaymentService(paymentDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: reg.Reviews(),
		Orders:  reg.Orders(),
		Clock:   time.Now,
		Logger:  observability.EventLogger(logger.Named("reviews")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	return svc, nil
}
