package money

import "math"

// Cents represents a monetary value stored in minor units.
type Cents = int64

// FromFloat converts a two-decimal currency amount into cents, rounding
// half away from zero so 0.005 becomes a whole cent.
func FromFloat(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// ToFloat converts cents back into a two-decimal currency amount.
func ToFloat(c Cents) float64 {
	return float64(c) / 100
}

// DistributeEven splits total into n shares. Every share receives the
// floor amount and the first (total mod n) shares receive one extra cent,
// so the shares always sum to total exactly. Order is the caller's
// tie-break: earlier positions absorb the remainder.
func DistributeEven(total Cents, n int) []Cents {
	if n <= 0 {
		return nil
	}
	base := total / Cents(n)
	remainder := total % Cents(n)
	if remainder < 0 {
		// Keep the remainder non-negative for negative totals.
		base--
		remainder += Cents(n)
	}
	shares := make([]Cents, n)
	for i := range shares {
		shares[i] = base
		if Cents(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

// Reconcile adjusts shares in place, one cent at a time in slice order,
// until they sum to target. This is the final correction that turns
// near-exact proportional divisions into an exact total.
func Reconcile(target Cents, shares []Cents) {
	if len(shares) == 0 {
		return
	}
	diff := target - Sum(shares)
	step := Cents(1)
	if diff < 0 {
		step = -1
		diff = -diff
	}
	for i := Cents(0); i < diff; i++ {
		shares[int(i)%len(shares)] += step
	}
}

// Sum totals the provided shares.
func Sum(shares []Cents) Cents {
	var sum Cents
	for _, s := range shares {
		sum += s
	}
	return sum
}
