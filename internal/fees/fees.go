// Package fees derives the monetary split of an EscrowPi transaction.
//
// All amounts are shopspring decimals in pi. Nothing here rounds except
// Format and the rail-precision result of SolveBaseFromTotal.
package fees

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("amount must be a number greater than zero with at most 7 decimal places")
	ErrInvalidPercent = errors.New("refund percent must be a number between 0 and 100")
	ErrTotalTooSmall  = errors.New("total does not cover the minimum stake and fees")
)

var (
	// StakeRate and StakeFloor give the refundable completion stake.
	StakeRate  = decimal.RequireFromString("0.10")
	StakeFloor = decimal.NewFromInt(1)

	// EscrowRate and EscrowFloor give the non-refundable EscrowPi fee.
	EscrowRate  = decimal.RequireFromString("0.03")
	EscrowFloor = decimal.RequireFromString("0.10")

	// NetworkFee is the Pi Network gas fee charged on funding.
	NetworkFee = decimal.RequireFromString("0.03")

	// NetworkRefund is the gas credited back to the payer on a full reversal.
	NetworkRefund = decimal.RequireFromString("0.01")

	hundred = decimal.NewFromInt(100)

	// amountCeiling keeps an amount plus its fees inside NUMERIC(30,7).
	amountCeiling = decimal.New(1, 22)
)

const (
	// RailPlaces is the precision of the Pi payment rail.
	RailPlaces = 7
	// PercentPlaces is the precision of a dispute refund percent.
	PercentPlaces = 2
)

// Breakdown is what the payer funds for a transfer of Base.
type Breakdown struct {
	Base            decimal.Decimal `json:"base"`
	CompletionStake decimal.Decimal `json:"completionStake"`
	NetworkFee      decimal.Decimal `json:"networkFee"`
	EscrowFee       decimal.Decimal `json:"escrowFee"`
	Total           decimal.Decimal `json:"total"`
}

// ComputeBreakdown returns the breakdown for a positive base amount.
func ComputeBreakdown(base decimal.Decimal) (Breakdown, error) {
	if !base.IsPositive() {
		return Breakdown{}, ErrInvalidAmount
	}
	return compute(base), nil
}

// MustBreakdown is ComputeBreakdown for amounts already validated upstream.
func MustBreakdown(base decimal.Decimal) Breakdown {
	b, err := ComputeBreakdown(base)
	if err != nil {
		panic(err)
	}
	return b
}

// CompletionStake is max(10% of base, 1).
func CompletionStake(base decimal.Decimal) decimal.Decimal {
	return decimal.Max(base.Mul(StakeRate), StakeFloor)
}

// EscrowFee is max(3% of base, 0.1).
func EscrowFee(base decimal.Decimal) decimal.Decimal {
	return decimal.Max(base.Mul(EscrowRate), EscrowFloor)
}

func compute(base decimal.Decimal) Breakdown {
	stake := CompletionStake(base)
	escrow := EscrowFee(base)
	return Breakdown{
		Base:            base,
		CompletionStake: stake,
		NetworkFee:      NetworkFee,
		EscrowFee:       escrow,
		Total:           base.Add(stake).Add(NetworkFee).Add(escrow),
	}
}

const (
	solveMinIterations = 40
	solveMaxIterations = 200
)

var solveTolerance = decimal.New(1, -9)

// SolveBaseFromTotal recovers the base amount whose breakdown total equals
// total. Legacy order records only carry the funded total.
//
// Stake and escrow fee are floored percentages, so the inverse is found by
// bisection over [0, total]; Total is strictly increasing in base.
func SolveBaseFromTotal(total decimal.Decimal) (decimal.Decimal, error) {
	if !total.GreaterThan(compute(decimal.Zero).Total) {
		return decimal.Zero, ErrTotalTooSmall
	}

	two := decimal.NewFromInt(2)
	lo, hi := decimal.Zero, total
	for i := 0; i < solveMaxIterations; i++ {
		mid := lo.Add(hi).Div(two)
		if compute(mid).Total.LessThan(total) {
			lo = mid
		} else {
			hi = mid
		}
		if i+1 >= solveMinIterations && hi.Sub(lo).LessThan(solveTolerance) {
			break
		}
	}
	return lo.Add(hi).Div(two).Round(RailPlaces), nil
}

// DisputeSplit is the outcome of resolving a dispute at RefundPercent.
type DisputeSplit struct {
	Base            decimal.Decimal `json:"base"`
	RefundPercent   decimal.Decimal `json:"refundPercent"`
	PayerRefund     decimal.Decimal `json:"payerRefund"`
	PayeeReceives   decimal.Decimal `json:"payeeReceives"`
	CompletionStake decimal.Decimal `json:"completionStake"`
	NetworkRefund   decimal.Decimal `json:"networkRefund"`
	TotalRefunded   decimal.Decimal `json:"totalRefunded"`
}

// ComputeDisputeSplit splits base between payer and payee. Only a full
// (100%) refund reimburses the network fee; a partial refund means value
// already moved to the payee on-chain.
func ComputeDisputeSplit(base, refundPercent decimal.Decimal) (DisputeSplit, error) {
	if !base.IsPositive() {
		return DisputeSplit{}, ErrInvalidAmount
	}
	if err := ValidatePercent(refundPercent); err != nil {
		return DisputeSplit{}, err
	}

	refund := base.Mul(refundPercent).Shift(-2)
	stake := CompletionStake(base)
	network := decimal.Zero
	if refundPercent.Equal(hundred) {
		network = NetworkRefund
	}

	return DisputeSplit{
		Base:            base,
		RefundPercent:   refundPercent,
		PayerRefund:     refund,
		PayeeReceives:   base.Sub(refund),
		CompletionStake: stake,
		NetworkRefund:   network,
		TotalRefunded:   refund.Add(stake).Add(network),
	}, nil
}

// CancelRefund is what the payer gets back when cancelling a paid order.
type CancelRefund struct {
	Base            decimal.Decimal `json:"base"`
	CompletionStake decimal.Decimal `json:"completionStake"`
	NetworkRefund   decimal.Decimal `json:"networkRefund"`
	Total           decimal.Decimal `json:"total"`
}

// ComputeCancelRefund returns the refund for a payer cancelling after
// funding: base and stake come back with the network refund, the escrow
// fee does not.
func ComputeCancelRefund(base decimal.Decimal) (CancelRefund, error) {
	if !base.IsPositive() {
		return CancelRefund{}, ErrInvalidAmount
	}
	stake := CompletionStake(base)
	return CancelRefund{
		Base:            base,
		CompletionStake: stake,
		NetworkRefund:   NetworkRefund,
		Total:           base.Add(stake).Add(NetworkRefund),
	}, nil
}

// ValidatePercent checks 0 <= p <= 100.
func ValidatePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	return nil
}

// ParseAmount parses a user-entered amount. It must be positive, carry no
// more than RailPlaces significant fractional digits and stay below 10^22.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(RailPlaces)) || d.GreaterThanOrEqual(amountCeiling) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePercent parses a refund percent, range-checks the value as entered
// and then rounds it to the two places the dispute centre accepts.
func ParsePercent(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")))
	if err != nil {
		return decimal.Zero, ErrInvalidPercent
	}
	if err := ValidatePercent(d); err != nil {
		return decimal.Zero, err
	}
	return d.Round(PercentPlaces), nil
}

// Format renders an amount for display: at most seven fractional digits
// with trailing zeros stripped.
func Format(d decimal.Decimal) string {
	return d.Round(RailPlaces).String()
}
