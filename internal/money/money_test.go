package money

import "testing"

func TestFromFloatRounds(t *testing.T) {
	cases := []struct {
		in   float64
		want Cents
	}{
		{0, 0},
		{10.00, 1000},
		{36.665, 3667},
		{0.1 + 0.2, 30},
		{110.00, 11000},
	}
	for _, tc := range cases {
		if got := FromFloat(tc.in); got != tc.want {
			t.Fatalf("FromFloat(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDistributeEvenExact(t *testing.T) {
	shares := DistributeEven(11000, 3)
	want := []Cents{3667, 3667, 3666}
	for i, s := range shares {
		if s != want[i] {
			t.Fatalf("share %d = %d, want %d", i, s, want[i])
		}
	}
	if Sum(shares) != 11000 {
		t.Fatalf("shares sum to %d, want 11000", Sum(shares))
	}
}

func TestDistributeEvenRemainderOrder(t *testing.T) {
	shares := DistributeEven(1001, 4)
	if shares[0] != 251 || shares[1] != 250 || shares[2] != 250 || shares[3] != 250 {
		t.Fatalf("unexpected shares %v", shares)
	}
}

func TestReconcileAddsAndRemoves(t *testing.T) {
	shares := []Cents{100, 100, 100}
	Reconcile(302, shares)
	if shares[0] != 101 || shares[1] != 101 || shares[2] != 100 {
		t.Fatalf("unexpected shares after positive reconcile %v", shares)
	}

	shares = []Cents{100, 100, 100}
	Reconcile(298, shares)
	if shares[0] != 99 || shares[1] != 99 || shares[2] != 100 {
		t.Fatalf("unexpected shares after negative reconcile %v", shares)
	}
}

func TestReconcileNoop(t *testing.T) {
	shares := []Cents{50, 50}
	Reconcile(100, shares)
	if shares[0] != 50 || shares[1] != 50 {
		t.Fatalf("reconcile changed balanced shares %v", shares)
	}
}
