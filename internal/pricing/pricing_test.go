package pricing

import (
	"errors"
	"math"
	"testing"

	"retailpos/backend/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func mustTax(t *testing.T, rate float64, inclusive bool) Tax {
	t.Helper()
	tax, err := TaxRate(rate, inclusive)
	if err != nil {
		t.Fatalf("tax rate: %v", err)
	}
	return tax
}

func TestCalculateExclusiveTax(t *testing.T) {
	got, err := Calculate(
		[]Line{{Qty: 2, UnitPriceCents: 10000}},
		NoDiscount(),
		mustTax(t, 0.1, false),
		Payment{Method: "CARD"},
	)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.SubtotalCents != 20000 || got.DiscountCents != 0 || got.TaxCents != 2000 || got.TotalCents != 22000 {
		t.Fatalf("unexpected breakdown %+v", got)
	}
	if got.ChangeCents != nil {
		t.Fatalf("expected no change for non-cash payment, got %d", *got.ChangeCents)
	}
}

func TestCalculatePercentDiscountThenTax(t *testing.T) {
	discount, err := PercentDiscount(50)
	if err != nil {
		t.Fatalf("percent discount: %v", err)
	}
	got, err := Calculate(
		[]Line{{Qty: 2, UnitPriceCents: 10000}},
		discount,
		mustTax(t, 0.1, false),
		Payment{Method: "cash", CashReceived: int64Ptr(15000)},
	)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.DiscountCents != 10000 || got.TaxCents != 1000 || got.TotalCents != 11000 {
		t.Fatalf("unexpected breakdown %+v", got)
	}
	if got.ChangeCents == nil || *got.ChangeCents != 4000 {
		t.Fatalf("expected change 4000, got %v", got.ChangeCents)
	}
}

func TestCalculateInclusiveTaxLeavesTotalUnchanged(t *testing.T) {
	got, err := Calculate(
		[]Line{{Qty: 1, UnitPriceCents: 11000}},
		NoDiscount(),
		mustTax(t, 0.1, true),
		Payment{Method: "QRIS"},
	)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TaxCents != 1000 || got.TotalCents != 11000 {
		t.Fatalf("unexpected inclusive breakdown %+v", got)
	}
}

func TestCalculateFixedDiscountIsClamped(t *testing.T) {
	discount, err := FixedDiscount(50000)
	if err != nil {
		t.Fatalf("fixed discount: %v", err)
	}
	got, err := Calculate(
		[]Line{{Qty: 3, UnitPriceCents: 1000}},
		discount,
		mustTax(t, 0.11, false),
		Payment{Method: "CASH", CashReceived: int64Ptr(0)},
	)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.DiscountCents != 3000 || got.TaxCents != 0 || got.TotalCents != 0 {
		t.Fatalf("expected full clamp to subtotal, got %+v", got)
	}
	if got.ChangeCents == nil || *got.ChangeCents != 0 {
		t.Fatalf("expected zero change, got %v", got.ChangeCents)
	}
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	discount, _ := PercentDiscount(10)
	got, err := Calculate([]Line{{Qty: 1, UnitPriceCents: 5}}, discount, NoTax(), Payment{})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.DiscountCents != 1 {
		t.Fatalf("expected 0.5 to round up to 1, got %d", got.DiscountCents)
	}

	got, err = Calculate([]Line{{Qty: 1, UnitPriceCents: 105}}, NoDiscount(), mustTax(t, 0.1, false), Payment{})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TaxCents != 11 || got.TotalCents != 116 {
		t.Fatalf("expected 10.5 tax to round up to 11, got %+v", got)
	}

	got, err = Calculate([]Line{{Qty: 1, UnitPriceCents: 104}}, NoDiscount(), mustTax(t, 0.1, false), Payment{})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TaxCents != 10 {
		t.Fatalf("expected 10.4 tax to round down to 10, got %d", got.TaxCents)
	}
}

func TestCalculateUnderpaymentYieldsZeroChange(t *testing.T) {
	payment := Payment{Method: "cash", CashReceived: int64Ptr(500)}
	got, err := Calculate([]Line{{Qty: 1, UnitPriceCents: 1000}}, NoDiscount(), NoTax(), payment)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.ChangeCents == nil || *got.ChangeCents != 0 {
		t.Fatalf("expected clamped change 0, got %v", got.ChangeCents)
	}
	if got.Shortfall(payment) != 500 {
		t.Fatalf("expected shortfall 500, got %d", got.Shortfall(payment))
	}
}

func TestCalculateIdentityHoldsForExclusiveTax(t *testing.T) {
	discount, _ := PercentDiscount(12.5)
	lines := []Line{{Qty: 3, UnitPriceCents: 3333}, {Qty: 7, UnitPriceCents: 149}}
	got, err := Calculate(lines, discount, mustTax(t, 0.11, false), Payment{})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TotalCents != got.SubtotalCents-got.DiscountCents+got.TaxCents {
		t.Fatalf("total identity broken: %+v", got)
	}
	if got.SubtotalCents != 3*3333+7*149 {
		t.Fatalf("unexpected subtotal %d", got.SubtotalCents)
	}
}

func TestCalculateRejectsInvalidLines(t *testing.T) {
	fullTax := mustTax(t, 1, false)
	cases := []struct {
		name  string
		lines []Line
		tax   Tax
		want  error
	}{
		{name: "empty", lines: nil, want: ErrEmptyCart},
		{name: "zero qty", lines: []Line{{Qty: 0, UnitPriceCents: 100}}, want: ErrInvalidLine},
		{name: "negative price", lines: []Line{{Qty: 1, UnitPriceCents: -1}}, want: ErrInvalidLine},
		{name: "overflow", lines: []Line{{Qty: 4, UnitPriceCents: 1 << 62}}, want: ErrInvalidLine},
		{name: "total overflows after tax", lines: []Line{{Qty: 1, UnitPriceCents: math.MaxInt64/2 + 10}}, tax: fullTax, want: ErrInvalidLine},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Calculate(tc.lines, NoDiscount(), tc.tax, Payment{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v (breakdown %+v)", tc.want, err, got)
			}
		})
	}
}

func TestCalculateRejectsNegativeCash(t *testing.T) {
	_, err := Calculate([]Line{{Qty: 1, UnitPriceCents: 100}}, NoDiscount(), NoTax(), Payment{Method: "CASH", CashReceived: int64Ptr(-1)})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestZeroPriceLineIsAllowed(t *testing.T) {
	got, err := Calculate([]Line{{Qty: 2, UnitPriceCents: 0}}, NoDiscount(), NoTax(), Payment{})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TotalCents != 0 {
		t.Fatalf("expected zero total, got %d", got.TotalCents)
	}
}

func TestDiscountFromPolicy(t *testing.T) {
	cases := []struct {
		name    string
		policy  *domain.DiscountPolicy
		wantErr bool
		want    int64
	}{
		{name: "nil", policy: nil, want: 0},
		{name: "amount", policy: &domain.DiscountPolicy{Type: "AMOUNT", Amount: int64Ptr(250)}, want: 250},
		{name: "percent lower case type", policy: &domain.DiscountPolicy{Type: "percent", Percent: float64Ptr(25)}, want: 250},
		{name: "inferred amount", policy: &domain.DiscountPolicy{Amount: int64Ptr(100)}, want: 100},
		{name: "inferred percent", policy: &domain.DiscountPolicy{Percent: float64Ptr(10)}, want: 100},
		{name: "empty", policy: &domain.DiscountPolicy{}, want: 0},
		{name: "both set", policy: &domain.DiscountPolicy{Type: "AMOUNT", Amount: int64Ptr(1), Percent: float64Ptr(1)}, wantErr: true},
		{name: "percent over 100", policy: &domain.DiscountPolicy{Type: "PERCENT", Percent: float64Ptr(100.5)}, wantErr: true},
		{name: "percent negative", policy: &domain.DiscountPolicy{Type: "PERCENT", Percent: float64Ptr(-1)}, wantErr: true},
		{name: "negative amount", policy: &domain.DiscountPolicy{Type: "AMOUNT", Amount: int64Ptr(-5)}, wantErr: true},
		{name: "amount type without amount", policy: &domain.DiscountPolicy{Type: "AMOUNT"}, wantErr: true},
		{name: "unknown type", policy: &domain.DiscountPolicy{Type: "BOGO"}, wantErr: true},
		{name: "none with value", policy: &domain.DiscountPolicy{Type: "NONE", Amount: int64Ptr(1)}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := DiscountFromPolicy(tc.policy)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPricingPolicy) {
					t.Fatalf("expected ErrInvalidPricingPolicy, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := d.apply(1000); got != tc.want {
				t.Fatalf("expected discount %d on 1000, got %d", tc.want, got)
			}
		})
	}
}

func TestTaxFromPolicyRejectsOutOfRangeRate(t *testing.T) {
	for _, rate := range []float64{-0.01, 1.01, 11} {
		if _, err := TaxFromPolicy(&domain.TaxPolicy{Rate: rate}); !errors.Is(err, ErrInvalidPricingPolicy) {
			t.Fatalf("rate %v: expected ErrInvalidPricingPolicy, got %v", rate, err)
		}
	}
	if _, err := TaxFromPolicy(&domain.TaxPolicy{Rate: 1, Inclusive: true}); err != nil {
		t.Fatalf("rate 1 should be accepted: %v", err)
	}
}

func TestIsCashIgnoresCase(t *testing.T) {
	if !IsCash(" cash ") || !IsCash("CASH") {
		t.Fatalf("expected cash detection to ignore case and spaces")
	}
	if IsCash("card") {
		t.Fatalf("card is not cash")
	}
}
