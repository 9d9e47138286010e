// Package pricing computes cart totals in integer minor currency units.
//
// Percent and rate arithmetic runs on exact decimals and every intermediate
// amount is rounded half up (half away from zero) to a whole minor unit.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
)

var (
	ErrInvalidPricingPolicy = errors.New("invalid pricing policy")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidLine          = errors.New("invalid cart line")
	ErrInvalidPayment       = errors.New("invalid payment")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)

	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

type Line struct {
	Qty            int
	UnitPriceCents int64
}

type discountKind int

const (
	discountNone discountKind = iota
	discountFixed
	discountPercent
)

// Discount is one of None, Fixed(amount) or Percent(pct). The zero value is None.
type Discount struct {
	kind    discountKind
	amount  int64
	percent decimal.Decimal
}

func NoDiscount() Discount {
	return Discount{}
}

func FixedDiscount(amount int64) (Discount, error) {
	if amount < 0 {
		return Discount{}, fmt.Errorf("%w: discount amount must not be negative", ErrInvalidPricingPolicy)
	}
	return Discount{kind: discountFixed, amount: amount}, nil
}

func PercentDiscount(pct float64) (Discount, error) {
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 || pct > 100 {
		return Discount{}, fmt.Errorf("%w: discount percent must be within 0..100", ErrInvalidPricingPolicy)
	}
	return Discount{kind: discountPercent, percent: decimal.NewFromFloat(pct)}, nil
}

// DiscountFromPolicy validates a caller-supplied discount. When Type is empty
// the variant is taken from whichever value is present.
func DiscountFromPolicy(p *domain.DiscountPolicy) (Discount, error) {
	if p == nil {
		return NoDiscount(), nil
	}
	if p.Amount != nil && p.Percent != nil {
		return Discount{}, fmt.Errorf("%w: discount amount and percent are mutually exclusive", ErrInvalidPricingPolicy)
	}

	kind := strings.ToUpper(strings.TrimSpace(p.Type))
	if kind == "" {
		switch {
		case p.Amount != nil:
			kind = domain.DiscountTypeAmount
		case p.Percent != nil:
			kind = domain.DiscountTypePercent
		default:
			return NoDiscount(), nil
		}
	}

	switch kind {
	case "NONE":
		if p.Amount != nil || p.Percent != nil {
			return Discount{}, fmt.Errorf("%w: discount type NONE carries a value", ErrInvalidPricingPolicy)
		}
		return NoDiscount(), nil
	case domain.DiscountTypeAmount:
		if p.Amount == nil {
			return Discount{}, fmt.Errorf("%w: discount type AMOUNT requires amount", ErrInvalidPricingPolicy)
		}
		return FixedDiscount(*p.Amount)
	case domain.DiscountTypePercent:
		if p.Percent == nil {
			return Discount{}, fmt.Errorf("%w: discount type PERCENT requires percent", ErrInvalidPricingPolicy)
		}
		return PercentDiscount(*p.Percent)
	default:
		return Discount{}, fmt.Errorf("%w: unknown discount type %q", ErrInvalidPricingPolicy, p.Type)
	}
}

// Tax is either None (zero value) or a rate in [0,1] that is added on top of,
// or already included in, the discounted subtotal.
type Tax struct {
	set       bool
	rate      decimal.Decimal
	inclusive bool
}

func NoTax() Tax {
	return Tax{}
}

func TaxRate(rate float64, inclusive bool) (Tax, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 || rate > 1 {
		return Tax{}, fmt.Errorf("%w: tax rate must be within 0..1", ErrInvalidPricingPolicy)
	}
	return Tax{set: true, rate: decimal.NewFromFloat(rate), inclusive: inclusive}, nil
}

func TaxFromPolicy(p *domain.TaxPolicy) (Tax, error) {
	if p == nil {
		return NoTax(), nil
	}
	return TaxRate(p.Rate, p.Inclusive)
}

type Payment struct {
	Method       string
	CashReceived *int64
}

type Breakdown struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
	// ChangeCents is nil unless the payment is cash with an amount received.
	ChangeCents *int64
}

// Shortfall is how much a cash payment falls short of the total.
func (b Breakdown) Shortfall(p Payment) int64 {
	if !IsCash(p.Method) || p.CashReceived == nil || *p.CashReceived >= b.TotalCents {
		return 0
	}
	return b.TotalCents - *p.CashReceived
}

func IsCash(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), domain.PaymentMethodCash)
}

// LineTotal returns qty × unit price, failing on invalid quantities, negative
// prices or int64 overflow.
func LineTotal(l Line) (int64, error) {
	if l.Qty < 1 {
		return 0, fmt.Errorf("%w: qty must be at least 1", ErrInvalidLine)
	}
	if l.UnitPriceCents < 0 {
		return 0, fmt.Errorf("%w: unit price must not be negative", ErrInvalidLine)
	}
	if l.UnitPriceCents > 0 && int64(l.Qty) > math.MaxInt64/l.UnitPriceCents {
		return 0, fmt.Errorf("%w: line total overflows", ErrInvalidLine)
	}
	return int64(l.Qty) * l.UnitPriceCents, nil
}

func Subtotal(lines []Line) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrEmptyCart
	}
	subtotal := int64(0)
	for _, l := range lines {
		lt, err := LineTotal(l)
		if err != nil {
			return 0, err
		}
		if subtotal > math.MaxInt64-lt {
			return 0, fmt.Errorf("%w: subtotal overflows", ErrInvalidLine)
		}
		subtotal += lt
	}
	return subtotal, nil
}

// Calculate prices a cart. It performs no I/O and its result depends only on
// its arguments.
func Calculate(lines []Line, discount Discount, tax Tax, payment Payment) (Breakdown, error) {
	if payment.CashReceived != nil && *payment.CashReceived < 0 {
		return Breakdown{}, fmt.Errorf("%w: cash received must not be negative", ErrInvalidPayment)
	}

	subtotal, err := Subtotal(lines)
	if err != nil {
		return Breakdown{}, err
	}

	discountCents := discount.apply(subtotal)
	discounted := subtotal - discountCents

	taxCents, total, err := tax.apply(discounted)
	if err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{
		SubtotalCents: subtotal,
		DiscountCents: discountCents,
		TaxCents:      taxCents,
		TotalCents:    total,
	}
	if IsCash(payment.Method) && payment.CashReceived != nil {
		change := *payment.CashReceived - total
		if change < 0 {
			change = 0
		}
		out.ChangeCents = &change
	}
	return out, nil
}

func (d Discount) apply(subtotal int64) int64 {
	var amount int64
	switch d.kind {
	case discountFixed:
		amount = d.amount
	case discountPercent:
		amount = roundHalfUp(decimal.NewFromInt(subtotal).Mul(d.percent).Div(hundred))
	default:
		return 0
	}
	return clamp(amount, 0, subtotal)
}

func (t Tax) apply(discounted int64) (taxCents int64, total int64, err error) {
	if !t.set {
		return 0, discounted, nil
	}
	base := decimal.NewFromInt(discounted)
	if t.inclusive {
		net := base.Div(one.Add(t.rate))
		taxCents, err = toMinorUnits(base.Sub(net))
		return taxCents, discounted, err
	}
	taxCents, err = toMinorUnits(base.Mul(t.rate))
	if err != nil {
		return 0, 0, err
	}
	if taxCents > math.MaxInt64-discounted {
		return 0, 0, fmt.Errorf("%w: total overflows", ErrInvalidLine)
	}
	return taxCents, discounted + taxCents, nil
}

func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// toMinorUnits rounds half up and fails when the result does not fit in int64.
func toMinorUnits(d decimal.Decimal) (int64, error) {
	rounded := d.Round(0)
	if rounded.GreaterThan(maxMinorUnits) || rounded.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%w: amount overflows", ErrInvalidLine)
	}
	return rounded.IntPart(), nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
