package payment

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrEventIgnored marks a verified delivery whose event type the engine
// does not track. Webhook handlers acknowledge these without applying
// anything.
var ErrEventIgnored = errors.New("payment: event type ignored")

// EventKind is the normalized outcome of a provider notification.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventCanceled  EventKind = "canceled"
)

// ChargeRequest describes one payment attempt handed to a provider.
type ChargeRequest struct {
	SessionID     string
	ParticipantID string
	AmountCents   int64
	Description   string
}

// ChargeResponse carries the provider handle the client needs to
// complete the charge.
type ChargeResponse struct {
	Reference    string
	ClientSecret string
	RedirectURL  string
}

// Event is a provider notification normalized into engine terms.
type Event struct {
	SessionID     string
	ParticipantID string
	Kind          EventKind
	Reference     string
	OccurredAt    time.Time
}

// Provider abstracts a payment gateway. Implementations must not hold
// session state; the reconciler owns all state transitions.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
	// VerifyWebhook authenticates a raw delivery and normalizes it. A
	// verification failure (bad signature, malformed body) returns an
	// error; deliveries for event types the engine does not track
	// return ErrEventIgnored.
	VerifyWebhook(r *http.Request, body []byte) (Event, error)
}
