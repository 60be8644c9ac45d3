package feereserve

import (
	"testing"

	"github.com/sirupsen/logrus"

	"txruntime/engine/decimalx"
)

func newReserve(t *testing.T, systemLoan uint64) *Reserve {
	t.Helper()
	price, err := decimalx.Parse("1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return New(Config{
		CostUnitPrice: price,
		TipPercentage: 0,
		CostUnitLimit: 1000,
		SystemLoan:    systemLoan,
	}, logrus.NewEntry(logrus.StandardLogger()))
}

func TestConsumeExecutionWithinLoanNeedsNoBalance(t *testing.T) {
	r := newReserve(t, 100)
	if err := r.ConsumeExecution(50, 1, "test", false); err != nil {
		t.Fatalf("ConsumeExecution within loan: %v", err)
	}
	if r.LoanRepaid() {
		t.Fatalf("loan should not be considered repaid before check-point repayment")
	}
}

func TestConsumeExecutionBeyondLoanRequiresBalance(t *testing.T) {
	r := newReserve(t, 10)
	if err := r.ConsumeExecution(20, 1, "test", false); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestConsumeExecutionZeroUnitsIsNoop(t *testing.T) {
	r := newReserve(t, 10)
	if err := r.ConsumeExecution(0, 5, "noop", false); err != nil {
		t.Fatalf("zero units should be a no-op success, got %v", err)
	}
}

func TestConsumeExecutionRespectsLimit(t *testing.T) {
	r := newReserve(t, 10)
	if err := r.ConsumeExecution(2000, 1, "over", false); err != ErrLimitExceeded {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestLockFeeCreditsBalanceImmediatelyUnlessContingent(t *testing.T) {
	r := newReserve(t, 5)
	amount, _ := decimalx.Parse("20")
	if err := r.LockFee("vault-1", "XRD", amount, false); err != nil {
		t.Fatalf("LockFee: %v", err)
	}
	if err := r.ConsumeExecution(20, 1, "after-lock", false); err != nil {
		t.Fatalf("ConsumeExecution should now draw from the locked balance: %v", err)
	}
}

func TestLockFeeRejectsNonXrd(t *testing.T) {
	r := newReserve(t, 5)
	amount, _ := decimalx.Parse("10")
	if err := r.LockFee("vault-1", "BTC", amount, false); err != ErrNotXrd {
		t.Fatalf("expected ErrNotXrd, got %v", err)
	}
}

func TestContingentPaymentsDoNotCreditUntilCredited(t *testing.T) {
	r := newReserve(t, 5)
	amount, _ := decimalx.Parse("20")
	if err := r.LockFee("vault-1", "XRD", amount, true); err != nil {
		t.Fatalf("LockFee: %v", err)
	}
	if err := r.ConsumeExecution(20, 1, "pre-credit", false); err != ErrInsufficientBalance {
		t.Fatalf("contingent payment should not be usable before CreditContingentPayments: %v", err)
	}
	if err := r.CreditContingentPayments(); err != nil {
		t.Fatalf("CreditContingentPayments: %v", err)
	}
	if err := r.ConsumeExecution(20, 1, "post-credit", false); err != nil {
		t.Fatalf("ConsumeExecution should succeed after crediting: %v", err)
	}
}

func TestFinalizeReportsBadDebtWhenLoanUnpaid(t *testing.T) {
	r := newReserve(t, 3)
	if err := r.ConsumeExecution(3, 1, "exactly-loan", true); err != ErrLoanRepaymentFailed {
		t.Fatalf("expected the check-point repayment to fail with no locked balance, got %v", err)
	}
	summary, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if summary.LoanFullyRepaid {
		t.Fatalf("expected loan repayment to fail with no locked balance")
	}
	if summary.BadDebt.IsZero() {
		t.Fatalf("expected nonzero bad debt")
	}
}

// TestFinalizeReportsBadDebtForNonDeferredLoanDraw exercises the literal
// bad-debt scenario: a non-deferred consume_execution entirely within the
// system loan, with no lock_fee call backing it. The units drawn from the
// loan still have to come due at Finalize.
func TestFinalizeReportsBadDebtForNonDeferredLoanDraw(t *testing.T) {
	price, err := decimalx.Parse("5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := New(Config{
		CostUnitPrice: price,
		TipPercentage: 1,
		CostUnitLimit: 100,
		SystemLoan:    50,
	}, logrus.NewEntry(logrus.StandardLogger()))

	if err := r.ConsumeExecution(2, 1, "test", false); err != nil {
		t.Fatalf("ConsumeExecution: %v", err)
	}

	summary, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if summary.CostUnitConsumed != 2 {
		t.Fatalf("expected cost_unit_consumed=2, got %d", summary.CostUnitConsumed)
	}
	wantCost, _ := decimalx.Parse("10.1")
	if summary.TotalExecutionCost.Cmp(wantCost) != 0 {
		t.Fatalf("expected total_execution_cost=10.1, got %s", summary.TotalExecutionCost.String())
	}
	if summary.BadDebt.Cmp(wantCost) != 0 {
		t.Fatalf("expected bad_debt=10.1, got %s", summary.BadDebt.String())
	}
	if summary.LoanFullyRepaid {
		t.Fatalf("expected loan_fully_repaid=false with no lock_fee backing the loan draw")
	}
	if r.LoanRepaid() {
		t.Fatalf("LoanRepaid should stay false: the loan was never repaid even once")
	}
}

func TestFinalizeSucceedsWhenBalanceCoversLoan(t *testing.T) {
	r := newReserve(t, 3)
	amount, _ := decimalx.Parse("100")
	if err := r.LockFee("vault-1", "XRD", amount, false); err != nil {
		t.Fatalf("LockFee: %v", err)
	}
	if err := r.ConsumeExecution(3, 1, "within-loan", true); err != nil {
		t.Fatalf("deferred consume: %v", err)
	}
	summary, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !summary.LoanFullyRepaid {
		t.Fatalf("expected loan to be fully repaid")
	}
	if !r.LoanRepaid() {
		t.Fatalf("LoanRepaid should report true after a successful Finalize")
	}
}
