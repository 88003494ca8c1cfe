package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loopmarket/api/internal/platform/httpx"
	"github.com/loopmarket/api/internal/services"
)

// Stripe caps event payloads well below this; anything larger is not a
// legitimate webhook delivery.
const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives payment provider callbacks. Requests are
// authenticated by provider signature, not by Firebase tokens.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs handlers for provider webhook deliveries.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	outcome, err := h.payments.HandleWebhookEvent(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid webhook payload", http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentNotFound):
			// Unknown intent: acknowledge so the provider stops retrying a
			// payment this system never created.
			writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true})
		default:
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Received: true,
		EventID:  outcome.EventID,
		Applied:  outcome.Applied,
		Replayed: outcome.Replayed,
	})
}

type webhookResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Applied  bool   `json:"applied"`
	Replayed bool   `json:"replayed"`
}
