// Package webhook receives asynchronous payment events from the billing
// provider and feeds them back into the payment pipeline.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/handler"
	"github.com/madronelabs/formpay/internal/telemetry"
)

// maxPayloadBytes caps webhook bodies. Stripe events are small; anything
// larger is not one of theirs.
const maxPayloadBytes = 1 << 16

// SourceHandler consumes chargeable bank sources. The payment service
// implements it.
type SourceHandler interface {
	HandleSourceChargeable(ctx context.Context, source *billing.Source) error
}

// EventFunc is a subscriber for one webhook event type.
type EventFunc func(ctx context.Context, event stripe.Event) error

// StripeHandler verifies and dispatches Stripe webhook events.
type StripeHandler struct {
	provider billing.Provider
	sources  SourceHandler
	secret   string
	logger   *slog.Logger

	subscribers map[string][]EventFunc
}

// NewStripeHandler creates the webhook endpoint handler.
func NewStripeHandler(provider billing.Provider, sources SourceHandler, secret string, logger *slog.Logger) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider:    provider,
		sources:     sources,
		secret:      secret,
		logger:      logger,
		subscribers: make(map[string][]EventFunc),
	}
}

// Subscribe registers an additional handler for an event type. Subscribers
// run after the built-in handling, in registration order.
func (h *StripeHandler) Subscribe(eventType string, fn EventFunc) {
	h.subscribers[eventType] = append(h.subscribers[eventType], fn)
}

// HandleWebhook processes POST /webhooks/stripe. Handled events always return
// 200 so Stripe stops retrying; only unverifiable or unreadable requests are
// rejected.
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "Method not allowed"))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("webhook payload unreadable", "error", err)
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.secret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		telemetry.RecordWebhookFailed("unknown", "bad_signature")
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.stripe", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("webhook payload is not a stripe event", "error", err)
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "Invalid JSON"))
		return
	}

	eventType := string(event.Type)
	h.logger.Info("webhook event received", "type", eventType, "id", event.ID)
	telemetry.RecordWebhookReceived(eventType)
	defer func() {
		telemetry.ObserveWebhookLatency(eventType, time.Since(start).Seconds())
	}()

	h.dispatch(r.Context(), event)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

func (h *StripeHandler) dispatch(ctx context.Context, event stripe.Event) {
	eventType := string(event.Type)

	switch eventType {
	case "source.chargeable":
		h.handleSourceChargeable(ctx, event)

	case "source.failed", "source.canceled":
		h.handleSourceClosed(event)

	case "charge.failed":
		h.logger.Info("charge failed", "event", event.ID)
		telemetry.RecordWebhookProcessed(eventType)

	default:
		h.logger.Debug("unhandled webhook event type", "type", eventType)
	}

	for _, fn := range h.subscribers[eventType] {
		if err := fn(ctx, event); err != nil {
			h.logger.Error("webhook subscriber failed",
				"type", eventType, "event", event.ID, "error", err)
			telemetry.RecordWebhookFailed(eventType, "subscriber")
		}
	}
}

// handleSourceChargeable drives phase two of the bank-redirect flow.
func (h *StripeHandler) handleSourceChargeable(ctx context.Context, event stripe.Event) {
	source, err := sourceFromEvent(event)
	if err != nil {
		h.logger.Error("failed to parse source from webhook", "event", event.ID, "error", err)
		telemetry.RecordWebhookFailed("source.chargeable", "bad_payload")
		return
	}

	if err := h.sources.HandleSourceChargeable(ctx, source); err != nil {
		h.logger.Error("chargeable source processing failed",
			"source", source.ID, "event", event.ID, "error", err)
		telemetry.RecordWebhookFailed("source.chargeable", "processing")
		return
	}
	telemetry.RecordWebhookProcessed("source.chargeable")
}

// handleSourceClosed logs failed or canceled sources. The Pending order stays
// behind as a record of the abandoned attempt.
func (h *StripeHandler) handleSourceClosed(event stripe.Event) {
	source, err := sourceFromEvent(event)
	if err != nil {
		h.logger.Error("failed to parse source from webhook", "event", event.ID, "error", err)
		return
	}
	h.logger.Info("bank source closed without a charge",
		"source", source.ID, "status", source.Status, "event_type", string(event.Type))
	telemetry.RecordWebhookProcessed(string(event.Type))
}

// sourceFromEvent maps the raw event payload onto the provider-neutral
// source type.
func sourceFromEvent(event stripe.Event) (*billing.Source, error) {
	var raw struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Owner    struct {
			VerifiedName string `json:"verified_name"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(event.Data.Raw, &raw); err != nil {
		return nil, err
	}
	return &billing.Source{
		ID:                raw.ID,
		Type:              billing.SourceType(raw.Type),
		Status:            raw.Status,
		AmountCents:       raw.Amount,
		Currency:          raw.Currency,
		OwnerVerifiedName: raw.Owner.VerifiedName,
	}, nil
}
