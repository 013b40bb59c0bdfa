package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com"

// StripeProvider creates payment intents and verifies signed webhook
// deliveries. Session and participant identity travel in the intent
// metadata so webhook events can be routed back without local lookup
// tables.
type StripeProvider struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

func (StripeProvider) Name() string { return "stripe" }

func (p StripeProvider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (p StripeProvider) baseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return stripeAPIBase
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

func (p StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", "usd")
	form.Set("description", req.Description)
	form.Set("metadata[session_id]", req.SessionID)
	form.Set("metadata[participant_id]", req.ParticipantID)
	form.Set("automatic_payment_methods[enabled]", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL()+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("stripe: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client().Do(httpReq)
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChargeResponse{}, fmt.Errorf("stripe: create payment intent: status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return ChargeResponse{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	return ChargeResponse{Reference: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

type stripeEvent struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (p StripeProvider) VerifyWebhook(r *http.Request, body []byte) (Event, error) {
	if p.WebhookSecret != "" {
		if err := verifyStripeSignature(body, r.Header.Get("Stripe-Signature"), p.WebhookSecret); err != nil {
			return Event{}, err
		}
	}
	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("stripe webhook: decode event: %w", err)
	}

	var kind EventKind
	switch ev.Type {
	case "payment_intent.succeeded":
		kind = EventSucceeded
	case "payment_intent.payment_failed":
		kind = EventFailed
	case "payment_intent.canceled":
		kind = EventCanceled
	default:
		return Event{}, ErrEventIgnored
	}

	occurred := time.Now().UTC()
	if ev.Created > 0 {
		occurred = time.Unix(ev.Created, 0).UTC()
	}
	return Event{
		SessionID:     ev.Data.Object.Metadata["session_id"],
		ParticipantID: ev.Data.Object.Metadata["participant_id"],
		Kind:          kind,
		Reference:     ev.Data.Object.ID,
		OccurredAt:    occurred,
	}, nil
}

// verifyStripeSignature checks the t=timestamp,v1=signature header
// scheme: the expected signature is HMAC-SHA256 over "timestamp.body"
// keyed by the endpoint secret.
func verifyStripeSignature(body []byte, header, secret string) error {
	var timestamp, signature string
	for _, element := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(element, "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return fmt.Errorf("stripe webhook: missing signature or timestamp")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("stripe webhook: signature verification failed")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
