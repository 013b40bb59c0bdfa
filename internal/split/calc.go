// Package split computes per-participant owed amounts for a shared bill.
// All functions are pure: they never mutate their inputs and work in
// integer cents so computed shares close exactly on the target total.
package split

import (
	"errors"

	"github.com/noah-isme/backend-patungan/internal/money"
)

var (
	// ErrNoParticipants is returned when there is nobody to split between.
	ErrNoParticipants = errors.New("split: no participants")
	// ErrExceedsTotal is returned when custom amounts overcommit the bill.
	ErrExceedsTotal = errors.New("split: custom amounts exceed total bill amount")
	// ErrUnallocatedRemainder is returned when every participant has a
	// custom amount but money is left over with nobody to assign it to.
	ErrUnallocatedRemainder = errors.New("split: unallocated remainder with no open participants")
)

// Method identifies the policy that produced an allocation.
type Method string

const (
	MethodEqual     Method = "equal"
	MethodItemBased Method = "item_based"
	MethodCustom    Method = "custom"
)

// Item is one bill line with the participants it is assigned to, in
// assignment order. Items with no assignees fall into the unassigned pool.
type Item struct {
	ID             string
	Name           string
	PriceCents     int64
	ParticipantIDs []string
}

// Line records a participant's individual share of one assigned item.
type Line struct {
	ItemID     string
	Name       string
	PriceCents int64
	SharedWith int
	ShareCents int64
}

// Allocation is the computed result for one participant.
type Allocation struct {
	ParticipantID string
	AmountCents   int64
	Method        Method
	Lines         []Line
}

// Compute splits totalCents+tipCents across the participants, in join
// order. With no items the bill is split equally; otherwise item
// assignments drive the division, the gap between the bill total and the
// assigned item prices is pooled equally, and the tip is distributed in
// proportion to each participant's subtotal. A final reconciliation pass
// guarantees the allocations sum to the target exactly.
func Compute(items []Item, participantIDs []string, totalCents, tipCents int64) ([]Allocation, error) {
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}
	if len(items) == 0 {
		return computeEqual(participantIDs, totalCents+tipCents), nil
	}
	return computeItemBased(items, participantIDs, totalCents, tipCents), nil
}

func computeEqual(participantIDs []string, targetCents int64) []Allocation {
	shares := money.DistributeEven(targetCents, len(participantIDs))
	money.Reconcile(targetCents, shares)
	out := make([]Allocation, len(participantIDs))
	for i, id := range participantIDs {
		out[i] = Allocation{ParticipantID: id, AmountCents: shares[i], Method: MethodEqual}
	}
	return out
}

func computeItemBased(items []Item, participantIDs []string, totalCents, tipCents int64) []Allocation {
	index := make(map[string]int, len(participantIDs))
	for i, id := range participantIDs {
		index[id] = i
	}
	subtotals := make([]int64, len(participantIDs))
	lines := make([][]Line, len(participantIDs))

	var assignedTotal int64
	for _, item := range items {
		assignees := knownAssignees(item.ParticipantIDs, index)
		if len(assignees) == 0 {
			continue
		}
		shares := money.DistributeEven(item.PriceCents, len(assignees))
		for j, id := range assignees {
			i := index[id]
			subtotals[i] += shares[j]
			lines[i] = append(lines[i], Line{
				ItemID:     item.ID,
				Name:       item.Name,
				PriceCents: item.PriceCents,
				SharedWith: len(assignees),
				ShareCents: shares[j],
			})
		}
		assignedTotal += item.PriceCents
	}

	// Untracked charges and unassigned items are carried by everyone.
	if unassigned := totalCents - assignedTotal; unassigned != 0 {
		pool := money.DistributeEven(unassigned, len(participantIDs))
		for i := range subtotals {
			subtotals[i] += pool[i]
		}
	}

	amounts := make([]int64, len(participantIDs))
	for i, sub := range subtotals {
		amounts[i] = sub
		if tipCents > 0 && totalCents > 0 && sub > 0 {
			amounts[i] += tipCents * sub / totalCents
		}
	}
	money.Reconcile(totalCents+tipCents, amounts)

	out := make([]Allocation, len(participantIDs))
	for i, id := range participantIDs {
		out[i] = Allocation{
			ParticipantID: id,
			AmountCents:   amounts[i],
			Method:        MethodItemBased,
			Lines:         lines[i],
		}
	}
	return out
}

func knownAssignees(ids []string, index map[string]int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := index[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// ComputeCustom assigns explicit amounts to the participants present in
// customCents and splits whatever remains equally across the rest.
// Custom amounts are user commitments: overcommitting the bill fails
// with ErrExceedsTotal, no tolerance, and leftover money with no open
// participant to take it fails with ErrUnallocatedRemainder.
func ComputeCustom(participantIDs []string, customCents map[string]int64, totalCents, tipCents int64) ([]Allocation, error) {
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}
	target := totalCents + tipCents
	var committed int64
	for _, id := range participantIDs {
		if amount, ok := customCents[id]; ok {
			committed += amount
		}
	}
	if committed > target {
		return nil, ErrExceedsTotal
	}

	open := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if _, ok := customCents[id]; !ok {
			open = append(open, id)
		}
	}
	remaining := target - committed
	if len(open) == 0 && remaining != 0 {
		return nil, ErrUnallocatedRemainder
	}

	shares := money.DistributeEven(remaining, len(open))
	shareAt := make(map[string]int64, len(open))
	for i, id := range open {
		shareAt[id] = shares[i]
	}

	out := make([]Allocation, len(participantIDs))
	for i, id := range participantIDs {
		amount, ok := customCents[id]
		if !ok {
			amount = shareAt[id]
		}
		out[i] = Allocation{ParticipantID: id, AmountCents: amount, Method: MethodCustom}
	}
	return out, nil
}

// Result reports whether computed amounts match an expected total.
type Result struct {
	IsValid         bool
	ExpectedCents   int64
	CalculatedCents int64
	DifferenceCents int64
	ToleranceCents  int64
}

// Validate is a read-only check used by callers and tests. The calculator
// itself satisfies the invariant by construction and never calls this.
func Validate(allocations []Allocation, expectedCents, toleranceCents int64) Result {
	var calculated int64
	for _, a := range allocations {
		calculated += a.AmountCents
	}
	diff := calculated - expectedCents
	if diff < 0 {
		diff = -diff
	}
	return Result{
		IsValid:         diff <= toleranceCents,
		ExpectedCents:   expectedCents,
		CalculatedCents: calculated,
		DifferenceCents: diff,
		ToleranceCents:  toleranceCents,
	}
}
