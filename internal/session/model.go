package session

import (
	"time"

	"github.com/noah-isme/backend-patungan/internal/money"
)

// Status enumerates the lifecycle states of a bill-splitting session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SplitMethod records which policy produced a participant's owed amount.
type SplitMethod string

const (
	SplitUnset     SplitMethod = ""
	SplitEqual     SplitMethod = "equal"
	SplitItemBased SplitMethod = "item_based"
	SplitCustom    SplitMethod = "custom"
)

// PaymentState enumerates the per-participant payment state machine.
// paid is terminal; failed and canceled are terminal for the attempt
// but a participant may open a fresh attempt afterwards.
type PaymentState string

const (
	PaymentUnpaid   PaymentState = "unpaid"
	PaymentPending  PaymentState = "pending"
	PaymentPaid     PaymentState = "paid"
	PaymentFailed   PaymentState = "failed"
	PaymentCanceled PaymentState = "canceled"
)

// Settled reports whether the state is terminal for the participant.
func (s PaymentState) Settled() bool {
	return s == PaymentPaid
}

// Item is one line on the bill. ParticipantIDs holds the participants the
// item is assigned to; an empty set pools the item into the unassigned
// amount.
type Item struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	PriceCents     int64    `json:"priceCents"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

// ItemShare is a participant's individual line for one assigned item.
type ItemShare struct {
	ItemID     string `json:"itemId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	SharedWith int    `json:"sharedWith"`
	ShareCents int64  `json:"shareCents"`
}

// Participant is one diner within a session. AmountOwed and SplitMethod
// are written only by the split calculator; PaymentState and
// PaymentReference only by the payment reconciler.
type Participant struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Email            string       `json:"email,omitempty"`
	Phone            string       `json:"phone,omitempty"`
	AmountOwedCents  int64        `json:"amountOwedCents"`
	SplitMethod      SplitMethod  `json:"splitMethod,omitempty"`
	Items            []ItemShare  `json:"items,omitempty"`
	PaymentState     PaymentState `json:"paymentState"`
	PaymentReference string       `json:"paymentReference,omitempty"`
	PaymentUpdatedAt *time.Time   `json:"paymentUpdatedAt,omitempty"`
	JoinedAt         time.Time    `json:"joinedAt"`
}

// Session is the unit of concurrency control and persistence. All
// participant/item mutation happens while holding the session's
// exclusive section.
type Session struct {
	ID             string        `json:"id"`
	RestaurantName string        `json:"restaurantName"`
	WaiterName     string        `json:"waiterName,omitempty"`
	TableNumber    string        `json:"tableNumber,omitempty"`
	Status         Status        `json:"status"`
	TotalCents     int64         `json:"totalCents"`
	TipPercent     float64       `json:"tipPercent"`
	TipCents       int64         `json:"tipCents"`
	Items          []Item        `json:"items"`
	Participants   []Participant `json:"participants"`
	JoinURL        string        `json:"joinUrl,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// TargetCents is the amount the sum of all owed amounts must reach: the
// bill total plus the tip frozen at creation time.
func (s *Session) TargetCents() int64 {
	return s.TotalCents + s.TipCents
}

// Participant returns the participant with the given id, or nil.
func (s *Session) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// AllPaid reports whether every participant has settled. False for an
// empty participant list.
func (s *Session) AllPaid() bool {
	if len(s.Participants) == 0 {
		return false
	}
	for i := range s.Participants {
		if s.Participants[i].PaymentState != PaymentPaid {
			return false
		}
	}
	return true
}

// CollectedCents sums the owed amounts of participants that have paid.
func (s *Session) CollectedCents() int64 {
	var collected int64
	for i := range s.Participants {
		if s.Participants[i].PaymentState == PaymentPaid {
			collected += s.Participants[i].AmountOwedCents
		}
	}
	return collected
}

// Clone returns a deep copy so snapshots handed outside the exclusive
// section never alias stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = make([]Item, len(s.Items))
	for i, it := range s.Items {
		out.Items[i] = it
		out.Items[i].ParticipantIDs = append([]string(nil), it.ParticipantIDs...)
	}
	out.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		out.Participants[i] = p
		out.Participants[i].Items = append([]ItemShare(nil), p.Items...)
		if p.PaymentUpdatedAt != nil {
			t := *p.PaymentUpdatedAt
			out.Participants[i].PaymentUpdatedAt = &t
		}
	}
	return &out
}

// Summary is the aggregate payment progress of a session.
type Summary struct {
	SessionID            string  `json:"sessionId"`
	Status               Status  `json:"status"`
	TargetAmount         float64 `json:"targetAmount"`
	TotalCollected       float64 `json:"totalCollected"`
	TotalParticipants    int     `json:"totalParticipants"`
	PaidParticipants     int     `json:"paidParticipants"`
	CompletionPercentage float64 `json:"completionPercentage"`
	AllPaid              bool    `json:"allPaid"`
}

// Summarize builds the status summary for the session.
func (s *Session) Summarize() Summary {
	total := len(s.Participants)
	paid := 0
	for i := range s.Participants {
		if s.Participants[i].PaymentState == PaymentPaid {
			paid++
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(paid) / float64(total) * 100
	}
	return Summary{
		SessionID:            s.ID,
		Status:               s.Status,
		TargetAmount:         money.ToFloat(s.TargetCents()),
		TotalCollected:       money.ToFloat(s.CollectedCents()),
		TotalParticipants:    total,
		PaidParticipants:     paid,
		CompletionPercentage: pct,
		AllPaid:              paid == total && total > 0,
	}
}
