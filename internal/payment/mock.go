package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// MockProvider is the development gateway. Charges succeed immediately
// with a generated reference and webhooks are accepted without a
// signature, so the full attempt/notify loop can be exercised locally.
type MockProvider struct{}

func (MockProvider) Name() string { return "mock" }

func (MockProvider) CreateCharge(_ context.Context, req ChargeRequest) (ChargeResponse, error) {
	ref := "mock_" + uuid.NewString()
	return ChargeResponse{
		Reference:   ref,
		RedirectURL: fmt.Sprintf("/mock/checkout/%s?amount=%d", ref, req.AmountCents),
	}, nil
}

type mockWebhookBody struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Kind          string `json:"kind"`
	Reference     string `json:"reference"`
	OccurredAt    int64  `json:"occurredAt"`
}

func (MockProvider) VerifyWebhook(_ *http.Request, body []byte) (Event, error) {
	var in mockWebhookBody
	if err := json.Unmarshal(body, &in); err != nil {
		return Event{}, fmt.Errorf("mock webhook: decode body: %w", err)
	}
	kind := EventKind(in.Kind)
	switch kind {
	case EventSucceeded, EventFailed, EventCanceled:
	default:
		return Event{}, ErrEventIgnored
	}
	occurred := time.Now().UTC()
	if in.OccurredAt > 0 {
		occurred = time.Unix(in.OccurredAt, 0).UTC()
	}
	return Event{
		SessionID:     in.SessionID,
		ParticipantID: in.ParticipantID,
		Kind:          kind,
		Reference:     in.Reference,
		OccurredAt:    occurred,
	}, nil
}
