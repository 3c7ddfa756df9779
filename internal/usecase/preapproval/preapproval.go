package preapproval

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/proposal"
)

// MaxCommitment is the highest share of monthly income the new installment
// plus existing debt may consume.
var MaxCommitment = decimal.NewFromFloat(0.25)

type Input struct {
	MonthlyIncome *decimal.Decimal
	MonthlyDebt   *decimal.Decimal
	Amount        decimal.Decimal
	TermMonths    int
	// MonthlyRate in percent, e.g. 2.5 for 2.5% a.m.
	MonthlyRate decimal.Decimal
}

type Result struct {
	Outcome     proposal.PreApprovalOutcome `json:"outcome"`
	Status      proposal.Status             `json:"status"`
	Ratio       decimal.Decimal             `json:"ratio"`
	Installment decimal.Decimal             `json:"installment"`
	Reason      string                      `json:"reason"`
}

// Evaluate picks the initial status of a new proposal from the income
// commitment ratio. It never fails: calculation faults open to manual analysis.
func Evaluate(in Input) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failOpen(fmt.Sprintf("%v", r))
		}
	}()

	if in.MonthlyIncome == nil || in.MonthlyDebt == nil || !in.MonthlyIncome.IsPositive() {
		return Result{
			Outcome: proposal.OutcomePendingData,
			Status:  proposal.StatusPending,
			Reason:  "monthly income and existing debt are required for pre-approval",
		}
	}

	inst, err := Installment(in.Amount, in.MonthlyRate, in.TermMonths)
	if err != nil {
		return failOpen(err.Error())
	}

	ratio := in.MonthlyDebt.Add(inst).Div(*in.MonthlyIncome)
	pct := ratio.Mul(decimal.NewFromInt(100)).Round(2)
	limit := MaxCommitment.Mul(decimal.NewFromInt(100)).String() + "%"

	if ratio.GreaterThan(MaxCommitment) {
		return Result{
			Outcome:     proposal.OutcomeRejected,
			Status:      proposal.StatusRejected,
			Ratio:       ratio,
			Installment: inst,
			Reason:      fmt.Sprintf("income commitment %s%% exceeds the %s limit", pct.StringFixed(2), limit),
		}
	}
	return Result{
		Outcome:     proposal.OutcomeApproved,
		Status:      proposal.StatusAwaitingAnalysis,
		Ratio:       ratio,
		Installment: inst,
		Reason:      fmt.Sprintf("income commitment %s%% within limit of %s", pct.StringFixed(2), limit),
	}
}

// Installment is the price-table (constant) payment for principal p over n
// months at rate percent per month, rounded to cents.
func Installment(p, rate decimal.Decimal, n int) (decimal.Decimal, error) {
	if n <= 0 {
		return decimal.Zero, fmt.Errorf("term must be positive, got %d", n)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", p)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate must not be negative, got %s", rate)
	}
	if rate.IsZero() {
		return p.Div(decimal.NewFromInt(int64(n))).Round(2), nil
	}

	r, _ := rate.Div(decimal.NewFromInt(100)).Float64()
	pf, _ := p.Float64()
	v := pf * r / (1 - math.Pow(1+r, -float64(n)))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("installment is not finite")
	}
	return decimal.NewFromFloat(v).Round(2), nil
}

func failOpen(cause string) Result {
	return Result{
		Outcome: proposal.OutcomeError,
		Status:  proposal.StatusAwaitingAnalysis,
		Reason:  "pre-approval unavailable, routed to manual analysis: " + cause,
	}
}
