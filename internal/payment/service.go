package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-patungan/internal/lock"
	"github.com/noah-isme/backend-patungan/internal/obs"
	"github.com/noah-isme/backend-patungan/internal/realtime"
	"github.com/noah-isme/backend-patungan/internal/session"
)

var (
	// ErrNotConfigured is returned when the service is missing its store
	// or provider.
	ErrNotConfigured = errors.New("payment: service not configured")
	// ErrAmountMismatch is returned when an attempt's amount deviates
	// from the participant's allocation by more than one cent.
	ErrAmountMismatch = errors.New("payment: amount mismatch")
	// ErrAlreadyPaid is returned when an attempt targets a participant
	// whose payment has already settled.
	ErrAlreadyPaid = errors.New("payment: already paid")
)

// attemptTolerance absorbs client-side float rounding on submitted
// amounts. The charge itself always uses the allocated amount.
const attemptTolerance = 1

// Service is the reconciler: it opens payment attempts against a
// provider and folds provider events back into session state. All
// session mutation happens inside the session's exclusive section;
// provider calls and realtime fan-out stay outside it.
type Service struct {
	Store    session.Store
	Locks    *lock.Keyed
	Provider Provider
	Events   *realtime.Bus
	Logger   zerolog.Logger
}

// Attempt is the client-facing view of an opened payment attempt.
type Attempt struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	AmountCents   int64  `json:"amountCents"`
	Provider      string `json:"provider"`
	Reference     string `json:"reference"`
	ClientSecret  string `json:"clientSecret,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
}

// RecordAttempt opens a charge for a participant's allocated amount and
// marks the participant pending. The submitted amount must match the
// allocation to within one cent; the provider is always charged the
// allocated amount.
func (s *Service) RecordAttempt(ctx context.Context, sessionID, participantID string, amountCents int64) (Attempt, error) {
	var zero Attempt
	if s == nil || s.Store == nil || s.Locks == nil || s.Provider == nil {
		return zero, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.RecordAttempt")
	defer span.End()

	start := time.Now()
	providerName := s.Provider.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.Float64("payment.attempt.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.attempt.result", result),
		)
		if obs.PaymentAttemptTotal != nil {
			obs.PaymentAttemptTotal.WithLabelValues(providerName, result).Inc()
		}
	}()
	span.SetAttributes(attribute.String("session.id", sessionID))

	owed, err := s.validateAttempt(ctx, sessionID, participantID, amountCents)
	if err != nil {
		result = attemptResult(err)
		return zero, err
	}

	resp, err := s.Provider.CreateCharge(ctx, ChargeRequest{
		SessionID:     sessionID,
		ParticipantID: participantID,
		AmountCents:   owed,
		Description:   "bill share " + participantID,
	})
	if err != nil {
		span.RecordError(err)
		return zero, fmt.Errorf("create charge: %w", err)
	}

	// Re-validate under the lock: a webhook may have settled this
	// participant while the charge was being created.
	if err := s.commitAttempt(ctx, sessionID, participantID, resp.Reference); err != nil {
		result = attemptResult(err)
		return zero, err
	}
	result = "success"

	if s.Events != nil {
		s.Events.Emit(ctx, realtime.TopicPaymentPending, sessionID, map[string]any{
			"participantId": participantID,
			"reference":     resp.Reference,
			"amountCents":   owed,
			"provider":      providerName,
		})
	}
	return Attempt{
		SessionID:     sessionID,
		ParticipantID: participantID,
		AmountCents:   owed,
		Provider:      providerName,
		Reference:     resp.Reference,
		ClientSecret:  resp.ClientSecret,
		RedirectURL:   resp.RedirectURL,
	}, nil
}

func (s *Service) validateAttempt(ctx context.Context, sessionID, participantID string, amountCents int64) (int64, error) {
	release := s.Locks.Acquire(sessionID)
	defer release()

	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Status != session.StatusActive {
		return 0, session.ErrNotActive
	}
	p := sess.Participant(participantID)
	if p == nil {
		return 0, session.ErrParticipantNotFound
	}
	if p.PaymentState == session.PaymentPaid {
		return 0, ErrAlreadyPaid
	}
	if diff := amountCents - p.AmountOwedCents; diff < -attemptTolerance || diff > attemptTolerance {
		return 0, fmt.Errorf("%w: got %d expected %d", ErrAmountMismatch, amountCents, p.AmountOwedCents)
	}
	return p.AmountOwedCents, nil
}

func (s *Service) commitAttempt(ctx context.Context, sessionID, participantID, reference string) error {
	release := s.Locks.Acquire(sessionID)
	defer release()

	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusActive {
		return session.ErrNotActive
	}
	p := sess.Participant(participantID)
	if p == nil {
		return session.ErrParticipantNotFound
	}
	if p.PaymentState == session.PaymentPaid {
		return ErrAlreadyPaid
	}
	now := time.Now().UTC()
	p.PaymentState = session.PaymentPending
	p.PaymentReference = reference
	p.PaymentUpdatedAt = &now
	sess.UpdatedAt = now
	return s.Store.Put(ctx, sess)
}

func attemptResult(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrNotActive):
		return "not_active"
	case errors.Is(err, session.ErrParticipantNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	default:
		return "error"
	}
}

// ApplyEvent folds one provider event into session state. The fold is
// idempotent and monotonic: a paid participant never leaves paid, a
// redelivered event is a no-op, and events for unknown sessions or
// participants are logged and dropped without error. Only storage
// failures surface to the caller so deliveries can be retried.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) error {
	if s == nil || s.Store == nil || s.Locks == nil {
		return ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ApplyEvent")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.event.kind", string(ev.Kind)),
			attribute.String("payment.event.result", result),
		)
		if obs.PaymentEventTotal != nil {
			obs.PaymentEventTotal.WithLabelValues(string(ev.Kind), result).Inc()
		}
	}()

	if ev.SessionID == "" || ev.ParticipantID == "" {
		s.Logger.Warn().
			Str("kind", string(ev.Kind)).
			Str("reference", ev.Reference).
			Msg("payment event missing session or participant id, dropped")
		result = "unknown"
		return nil
	}
	span.SetAttributes(attribute.String("session.id", ev.SessionID))

	outcome, completed, err := s.applyLocked(ctx, ev)
	if err != nil {
		span.RecordError(err)
		return err
	}
	result = outcome

	if result != "applied" {
		return nil
	}
	if s.Events != nil {
		payload := map[string]any{
			"participantId": ev.ParticipantID,
			"reference":     ev.Reference,
		}
		switch ev.Kind {
		case EventSucceeded:
			s.Events.Emit(ctx, realtime.TopicPaymentPaid, ev.SessionID, payload)
		case EventFailed:
			s.Events.Emit(ctx, realtime.TopicPaymentFailed, ev.SessionID, payload)
		case EventCanceled:
			s.Events.Emit(ctx, realtime.TopicPaymentCanceled, ev.SessionID, payload)
		}
		if completed {
			s.Events.Emit(ctx, realtime.TopicSessionCompleted, ev.SessionID, map[string]any{
				"sessionId": ev.SessionID,
			})
		}
	}
	if completed && obs.SessionsCompletedTotal != nil {
		obs.SessionsCompletedTotal.Inc()
	}
	return nil
}

func (s *Service) applyLocked(ctx context.Context, ev Event) (outcome string, completed bool, err error) {
	release := s.Locks.Acquire(ev.SessionID)
	defer release()

	sess, err := s.Store.Get(ctx, ev.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.Logger.Warn().
				Str("sessionId", ev.SessionID).
				Str("reference", ev.Reference).
				Msg("payment event for unknown session, dropped")
			return "unknown", false, nil
		}
		return "", false, err
	}
	p := sess.Participant(ev.ParticipantID)
	if p == nil {
		s.Logger.Warn().
			Str("sessionId", ev.SessionID).
			Str("participantId", ev.ParticipantID).
			Str("reference", ev.Reference).
			Msg("payment event for unknown participant, dropped")
		return "unknown", false, nil
	}

	if p.PaymentState == session.PaymentPaid {
		if ev.Reference != "" && ev.Reference == p.PaymentReference {
			return "duplicate", false, nil
		}
		s.Logger.Warn().
			Str("sessionId", ev.SessionID).
			Str("participantId", ev.ParticipantID).
			Str("reference", ev.Reference).
			Str("settledReference", p.PaymentReference).
			Msg("payment event conflicts with settled payment, ignored")
		return "conflict", false, nil
	}

	var next session.PaymentState
	switch ev.Kind {
	case EventSucceeded:
		next = session.PaymentPaid
	case EventFailed, EventCanceled:
		if p.PaymentState != session.PaymentUnpaid && p.PaymentState != session.PaymentPending {
			s.Logger.Debug().
				Str("sessionId", ev.SessionID).
				Str("participantId", ev.ParticipantID).
				Str("state", string(p.PaymentState)).
				Str("kind", string(ev.Kind)).
				Msg("stale payment event, dropped")
			return "stale", false, nil
		}
		next = session.PaymentFailed
		if ev.Kind == EventCanceled {
			next = session.PaymentCanceled
		}
	default:
		s.Logger.Warn().Str("kind", string(ev.Kind)).Msg("unrecognized payment event kind, dropped")
		return "unknown", false, nil
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	p.PaymentState = next
	// The settled reference is recorded on success only; a failure keeps
	// the attempt's reference so the charge stays traceable.
	if next == session.PaymentPaid && ev.Reference != "" {
		p.PaymentReference = ev.Reference
	}
	p.PaymentUpdatedAt = &occurred
	sess.UpdatedAt = time.Now().UTC()

	if next == session.PaymentPaid && sess.Status == session.StatusActive && sess.AllPaid() {
		sess.Status = session.StatusCompleted
		completed = true
	}
	if err := s.Store.Put(ctx, sess); err != nil {
		return "", false, err
	}
	return "applied", completed, nil
}
