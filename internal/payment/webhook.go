package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-patungan/internal/common"
	"github.com/noah-isme/backend-patungan/internal/obs"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Webhook receives provider callbacks, verifies and deduplicates them,
// and hands the normalized event to the reconciler.
type Webhook struct {
	Providers map[string]Provider
	Svc       *Service
	Replay    replayStore
	ReplayTTL time.Duration
}

// Handle processes one webhook delivery for the provider named in the
// URL. Verified events the engine cannot match (unknown session or
// participant, stale state) are acknowledged so the provider stops
// redelivering them.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()
	r = r.WithContext(ctx)

	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	span.SetAttributes(attribute.String("payment.webhook.provider", providerKey))
	outcome := "error"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, outcome).Inc()
		}
	}()

	provider, ok := h.Providers[providerKey]
	if !ok {
		outcome = "unknown_provider"
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	event, err := provider.VerifyWebhook(r, body)
	if err != nil {
		if errors.Is(err, ErrEventIgnored) {
			outcome = "ignored"
			w.WriteHeader(http.StatusNoContent)
			return
		}
		span.RecordError(err)
		outcome = "invalid"
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			span.RecordError(err)
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			span.AddEvent("payment webhook replay prevented")
			outcome = "replay"
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook payload", nil)
			return
		}
	}

	if err := h.Svc.ApplyEvent(r.Context(), event); err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusInternalServerError, "EVENT_APPLY_ERROR", "failed to record payment event", nil)
		return
	}
	outcome = "success"
	w.WriteHeader(http.StatusNoContent)
}
