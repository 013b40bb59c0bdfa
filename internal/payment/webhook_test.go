package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-patungan/internal/payment"
	"github.com/noah-isme/backend-patungan/internal/session"
)

type fakeReplayStore struct {
	results []bool
	err     error
}

func (f *fakeReplayStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if len(f.results) == 0 {
		return redis.NewBoolResult(true, f.err)
	}
	res := f.results[0]
	f.results = f.results[1:]
	return redis.NewBoolResult(res, f.err)
}

func webhookRequest(provider string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment/"+provider, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestWebhookMockProviderSettles(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)
	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"mock": payment.MockProvider{}},
		Svc:       svc,
		Replay:    &fakeReplayStore{},
		ReplayTTL: time.Minute,
	}

	body, err := json.Marshal(map[string]any{
		"sessionId":     "sess-1",
		"participantId": "p-1",
		"kind":          "succeeded",
		"reference":     "ref-1",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("mock", body))
	require.Equal(t, http.StatusNoContent, rr.Code)

	sess, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentPaid, sess.Participant("p-1").PaymentState)
}

func TestWebhookReplayProtection(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)
	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"mock": payment.MockProvider{}},
		Svc:       svc,
		Replay:    &fakeReplayStore{results: []bool{true, false}},
		ReplayTTL: time.Minute,
	}

	body, err := json.Marshal(map[string]any{
		"sessionId":     "sess-1",
		"participantId": "p-1",
		"kind":          "succeeded",
		"reference":     "ref-1",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("mock", body))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr2 := httptest.NewRecorder()
	wh.Handle(rr2, webhookRequest("mock", body))
	require.Equal(t, http.StatusConflict, rr2.Code)
}

func TestWebhookUnknownProvider(t *testing.T) {
	t.Parallel()

	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"mock": payment.MockProvider{}},
		Svc:       newReconciler(session.NewMemoryStore()),
	}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("paypal", []byte("{}")))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhookUnknownSessionAcknowledged(t *testing.T) {
	t.Parallel()

	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"mock": payment.MockProvider{}},
		Svc:       newReconciler(session.NewMemoryStore()),
	}

	body, err := json.Marshal(map[string]any{
		"sessionId":     "missing",
		"participantId": "p-1",
		"kind":          "succeeded",
		"reference":     "ref-1",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("mock", body))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func stripeSign(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookStripeSignature(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)
	provider := payment.StripeProvider{WebhookSecret: "whsec_test"}
	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"stripe": provider},
		Svc:       svc,
	}

	event := map[string]any{
		"type":    "payment_intent.succeeded",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id": "pi_123",
				"metadata": map[string]string{
					"session_id":     "sess-1",
					"participant_id": "p-2",
				},
			},
		},
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	ts := fmt.Sprintf("%d", time.Now().Unix())

	badReq := webhookRequest("stripe", body)
	badReq.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, "deadbeef"))
	rr := httptest.NewRecorder()
	wh.Handle(rr, badReq)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	goodReq := webhookRequest("stripe", body)
	goodReq.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, stripeSign("whsec_test", ts, body)))
	rr2 := httptest.NewRecorder()
	wh.Handle(rr2, goodReq)
	require.Equal(t, http.StatusNoContent, rr2.Code)

	sess, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentPaid, sess.Participant("p-2").PaymentState)
	require.Equal(t, "pi_123", sess.Participant("p-2").PaymentReference)
}

func TestWebhookIgnoredEventType(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	newTestSession(t, store)
	wh := payment.Webhook{
		Providers: map[string]payment.Provider{"stripe": payment.StripeProvider{}},
		Svc:       newReconciler(store),
	}

	body, err := json.Marshal(map[string]any{"type": "payment_intent.created"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("stripe", body))
	require.Equal(t, http.StatusNoContent, rr.Code)

	sess, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentUnpaid, sess.Participant("p-1").PaymentState)
}
