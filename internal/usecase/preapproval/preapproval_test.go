package preapproval

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/proposal"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name       string
		in         Input
		wantOut    proposal.PreApprovalOutcome
		wantStatus proposal.Status
		wantReason string
	}{
		{
			name: "above limit rejects",
			in: Input{MonthlyIncome: dec("10000"), MonthlyDebt: dec("2000"),
				Amount: decimal.RequireFromString("18000"), TermMonths: 36, MonthlyRate: decimal.RequireFromString("2.5")},
			wantOut: proposal.OutcomeRejected, wantStatus: proposal.StatusRejected, wantReason: "25%",
		},
		{
			name: "within limit goes to analysis",
			in: Input{MonthlyIncome: dec("10000"), MonthlyDebt: dec("1000"),
				Amount: decimal.RequireFromString("5000"), TermMonths: 12, MonthlyRate: decimal.RequireFromString("2.5")},
			wantOut: proposal.OutcomeApproved, wantStatus: proposal.StatusAwaitingAnalysis, wantReason: "within limit",
		},
		{
			name: "missing income",
			in: Input{MonthlyDebt: dec("1000"),
				Amount: decimal.RequireFromString("5000"), TermMonths: 12},
			wantOut: proposal.OutcomePendingData, wantStatus: proposal.StatusPending,
		},
		{
			name: "missing debt",
			in: Input{MonthlyIncome: dec("1000"),
				Amount: decimal.RequireFromString("5000"), TermMonths: 12},
			wantOut: proposal.OutcomePendingData, wantStatus: proposal.StatusPending,
		},
		{
			name: "zero income",
			in: Input{MonthlyIncome: dec("0"), MonthlyDebt: dec("0"),
				Amount: decimal.RequireFromString("5000"), TermMonths: 12},
			wantOut: proposal.OutcomePendingData, wantStatus: proposal.StatusPending,
		},
		{
			name: "bad term fails open",
			in: Input{MonthlyIncome: dec("10000"), MonthlyDebt: dec("0"),
				Amount: decimal.RequireFromString("5000"), TermMonths: 0},
			wantOut: proposal.OutcomeError, wantStatus: proposal.StatusAwaitingAnalysis,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.in)
			if got.Outcome != tc.wantOut {
				t.Fatalf("outcome=%s want %s (%s)", got.Outcome, tc.wantOut, got.Reason)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("status=%s want %s", got.Status, tc.wantStatus)
			}
			if tc.wantReason != "" && !strings.Contains(got.Reason, tc.wantReason) {
				t.Fatalf("reason %q does not contain %q", got.Reason, tc.wantReason)
			}
		})
	}
}

func TestEvaluate_Ratios(t *testing.T) {
	r := Evaluate(Input{MonthlyIncome: dec("10000"), MonthlyDebt: dec("2000"),
		Amount: decimal.RequireFromString("18000"), TermMonths: 36, MonthlyRate: decimal.RequireFromString("2.5")})
	pct := r.Ratio.Mul(decimal.NewFromInt(100))
	if pct.LessThan(decimal.NewFromInt(26)) || pct.GreaterThan(decimal.NewFromInt(28)) {
		t.Fatalf("ratio=%s%%", pct)
	}

	r = Evaluate(Input{MonthlyIncome: dec("10000"), MonthlyDebt: dec("1000"),
		Amount: decimal.RequireFromString("5000"), TermMonths: 12, MonthlyRate: decimal.RequireFromString("2.5")})
	pct = r.Ratio.Mul(decimal.NewFromInt(100)).Round(1)
	if !pct.Equal(decimal.RequireFromString("14.9")) {
		t.Fatalf("ratio=%s%%", pct)
	}
}

func TestInstallment(t *testing.T) {
	got, err := Installment(decimal.NewFromInt(1200), decimal.Zero, 12)
	if err != nil || !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("zero rate: got %s err %v", got, err)
	}

	got, err = Installment(decimal.NewFromInt(5000), decimal.RequireFromString("2.5"), 12)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("487.44")) && !got.Equal(decimal.RequireFromString("487.43")) {
		t.Fatalf("price table: got %s", got)
	}

	if _, err := Installment(decimal.NewFromInt(5000), decimal.NewFromInt(-1), 12); err == nil {
		t.Fatalf("negative rate should fail")
	}
}
