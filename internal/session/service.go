package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-patungan/internal/lock"
	"github.com/noah-isme/backend-patungan/internal/money"
	"github.com/noah-isme/backend-patungan/internal/obs"
	"github.com/noah-isme/backend-patungan/internal/realtime"
	"github.com/noah-isme/backend-patungan/internal/split"
)

var (
	// ErrValidation marks bad input shape or range.
	ErrValidation = errors.New("session: invalid input")
	// ErrNotActive is returned when an operation requires an active session.
	ErrNotActive = errors.New("session: not active")
	// ErrNoParticipants is returned when a split is requested with nobody to split between.
	ErrNoParticipants = errors.New("session: no participants")
	// ErrParticipantNotFound is returned when a custom amount names an unknown participant.
	ErrParticipantNotFound = errors.New("session: participant not found")
)

// Service orchestrates session lifecycle: creation, joins, split
// computation and closure. Every read-modify-write runs inside the
// session's exclusive section; realtime fan-out happens after it is
// released.
type Service struct {
	Store         Store
	Locks         *lock.Keyed
	Events        *realtime.Bus
	Logger        zerolog.Logger
	PublicBaseURL string
}

// CreateInput carries the fields required to open a session.
type CreateInput struct {
	RestaurantName string
	WaiterName     string
	TableNumber    string
	TotalAmount    float64
	TipPercentage  float64
	Items          []Item
}

// Create opens a new session. The tip amount is computed here once and
// frozen; changing the total or tip later means a new session.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("session service not configured")
	}
	name := strings.TrimSpace(in.RestaurantName)
	if name == "" {
		return nil, fmt.Errorf("%w: restaurant name is required", ErrValidation)
	}
	if in.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if in.TipPercentage < 0 || in.TipPercentage > 100 {
		return nil, fmt.Errorf("%w: tip percentage must be between 0 and 100", ErrValidation)
	}
	for i := range in.Items {
		if in.Items[i].PriceCents < 0 {
			return nil, fmt.Errorf("%w: item price must not be negative", ErrValidation)
		}
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		RestaurantName: name,
		WaiterName:     strings.TrimSpace(in.WaiterName),
		TableNumber:    strings.TrimSpace(in.TableNumber),
		Status:         StatusActive,
		TotalCents:     money.FromFloat(in.TotalAmount),
		TipPercent:     in.TipPercentage,
		TipCents:       money.FromFloat(in.TotalAmount * in.TipPercentage / 100),
		Items:          normaliseItems(in.Items),
		Participants:   []Participant{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if base := strings.TrimRight(s.PublicBaseURL, "/"); base != "" {
		sess.JoinURL = base + "/join/" + sess.ID
	}
	if err := s.Store.Put(ctx, sess); err != nil {
		return nil, err
	}
	s.Logger.Info().Str("session_id", sess.ID).Str("restaurant", sess.RestaurantName).
		Int64("total_cents", sess.TotalCents).Int64("tip_cents", sess.TipCents).Msg("session created")
	s.Events.Emit(ctx, realtime.TopicSessionCreated, sess.ID, map[string]any{
		"restaurantName": sess.RestaurantName,
		"totalAmount":    money.ToFloat(sess.TotalCents),
		"tipAmount":      money.ToFloat(sess.TipCents),
	})
	return sess.Clone(), nil
}

func normaliseItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// Get loads a session snapshot.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.Store.Get(ctx, id)
}

// Join appends a new participant. The participant starts unpaid with no
// owed amount until a split is computed.
func (s *Service) Join(ctx context.Context, id, name, email, phone string) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, fmt.Errorf("%w: participant name is required", ErrValidation)
	}

	release := s.Locks.Acquire(id)
	var joined Participant
	err := func() error {
		defer release()
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return ErrNotActive
		}
		joined = Participant{
			ID:           uuid.NewString(),
			Name:         name,
			Email:        strings.TrimSpace(email),
			Phone:        strings.TrimSpace(phone),
			PaymentState: PaymentUnpaid,
			JoinedAt:     time.Now().UTC(),
		}
		sess.Participants = append(sess.Participants, joined)
		sess.UpdatedAt = time.Now().UTC()
		return s.Store.Put(ctx, sess)
	}()
	if err != nil {
		return Participant{}, err
	}
	s.Logger.Info().Str("session_id", id).Str("participant_id", joined.ID).Msg("participant joined")
	s.Events.Emit(ctx, realtime.TopicParticipantJoined, id, map[string]any{
		"participantId": joined.ID,
		"name":          joined.Name,
	})
	return joined, nil
}

// RecomputeSplit runs the split calculator and replaces the owed
// amounts. When items is non-nil it replaces the session's item list
// first. Payment state and reference are merged from the prior
// participant record by id: recomputation never reverts a confirmed
// payment.
func (s *Service) RecomputeSplit(ctx context.Context, id string, items []Item) (*Session, error) {
	release := s.Locks.Acquire(id)
	var snapshot *Session
	var method string
	err := func() error {
		defer release()
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return ErrNotActive
		}
		if len(sess.Participants) == 0 {
			return ErrNoParticipants
		}
		if items != nil {
			sess.Items = normaliseItems(items)
		}

		allocs, err := split.Compute(toSplitItems(sess.Items), participantIDs(sess), sess.TotalCents, sess.TipCents)
		if err != nil {
			if errors.Is(err, split.ErrNoParticipants) {
				return ErrNoParticipants
			}
			return err
		}
		applyAllocations(sess, allocs)
		sess.UpdatedAt = time.Now().UTC()
		if err := s.Store.Put(ctx, sess); err != nil {
			return err
		}
		method = string(allocs[0].Method)
		snapshot = sess.Clone()
		return nil
	}()
	if err != nil {
		return nil, err
	}
	if obs.SplitComputedTotal != nil {
		obs.SplitComputedTotal.WithLabelValues(method).Inc()
	}
	s.Logger.Info().Str("session_id", id).Str("method", method).Int("participants", len(snapshot.Participants)).Msg("split computed")
	s.Events.Emit(ctx, realtime.TopicSplitComputed, id, splitPayload(snapshot))
	return snapshot, nil
}

// ApplyCustomSplit assigns explicit amounts per participant and splits
// the remainder across everyone else.
func (s *Service) ApplyCustomSplit(ctx context.Context, id string, customAmounts map[string]float64) (*Session, error) {
	release := s.Locks.Acquire(id)
	var snapshot *Session
	err := func() error {
		defer release()
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return ErrNotActive
		}
		if len(sess.Participants) == 0 {
			return ErrNoParticipants
		}
		customCents := make(map[string]int64, len(customAmounts))
		for pid, amount := range customAmounts {
			if sess.Participant(pid) == nil {
				return fmt.Errorf("%w: %s", ErrParticipantNotFound, pid)
			}
			if amount < 0 {
				return fmt.Errorf("%w: custom amount must not be negative", ErrValidation)
			}
			customCents[pid] = money.FromFloat(amount)
		}

		allocs, err := split.ComputeCustom(participantIDs(sess), customCents, sess.TotalCents, sess.TipCents)
		if err != nil {
			return err
		}
		applyAllocations(sess, allocs)
		sess.UpdatedAt = time.Now().UTC()
		if err := s.Store.Put(ctx, sess); err != nil {
			return err
		}
		snapshot = sess.Clone()
		return nil
	}()
	if err != nil {
		return nil, err
	}
	if obs.SplitComputedTotal != nil {
		obs.SplitComputedTotal.WithLabelValues(string(split.MethodCustom)).Inc()
	}
	s.Events.Emit(ctx, realtime.TopicSplitComputed, id, splitPayload(snapshot))
	return snapshot, nil
}

// Summary reports payment progress for the session.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return sess.Summarize(), nil
}

// Cancel marks the session cancelled. Cancelled and completed sessions
// are terminal; cancelling either again fails with ErrNotActive.
func (s *Service) Cancel(ctx context.Context, id string) error {
	release := s.Locks.Acquire(id)
	err := func() error {
		defer release()
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return ErrNotActive
		}
		sess.Status = StatusCancelled
		sess.UpdatedAt = time.Now().UTC()
		return s.Store.Put(ctx, sess)
	}()
	if err != nil {
		return err
	}
	s.Logger.Info().Str("session_id", id).Msg("session cancelled")
	s.Events.Emit(ctx, realtime.TopicSessionCancelled, id, nil)
	return nil
}

func participantIDs(sess *Session) []string {
	ids := make([]string, len(sess.Participants))
	for i := range sess.Participants {
		ids[i] = sess.Participants[i].ID
	}
	return ids
}

func toSplitItems(items []Item) []split.Item {
	out := make([]split.Item, len(items))
	for i, it := range items {
		out[i] = split.Item{
			ID:             it.ID,
			Name:           it.Name,
			PriceCents:     it.PriceCents,
			ParticipantIDs: it.ParticipantIDs,
		}
	}
	return out
}

// applyAllocations writes the calculator output onto the participant
// list. Allocations come back in join order with one entry per
// participant; payment fields are left untouched.
func applyAllocations(sess *Session, allocs []split.Allocation) {
	byID := make(map[string]*split.Allocation, len(allocs))
	for i := range allocs {
		byID[allocs[i].ParticipantID] = &allocs[i]
	}
	for i := range sess.Participants {
		p := &sess.Participants[i]
		alloc, ok := byID[p.ID]
		if !ok {
			continue
		}
		p.AmountOwedCents = alloc.AmountCents
		p.SplitMethod = SplitMethod(alloc.Method)
		p.Items = toItemShares(alloc.Lines)
	}
}

func toItemShares(lines []split.Line) []ItemShare {
	if len(lines) == 0 {
		return nil
	}
	out := make([]ItemShare, len(lines))
	for i, l := range lines {
		out[i] = ItemShare{
			ItemID:     l.ItemID,
			Name:       l.Name,
			PriceCents: l.PriceCents,
			SharedWith: l.SharedWith,
			ShareCents: l.ShareCents,
		}
	}
	return out
}

func splitPayload(sess *Session) map[string]any {
	amounts := make(map[string]float64, len(sess.Participants))
	for i := range sess.Participants {
		amounts[sess.Participants[i].ID] = money.ToFloat(sess.Participants[i].AmountOwedCents)
	}
	return map[string]any{"amounts": amounts}
}
