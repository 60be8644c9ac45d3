// Package feereserve implements the pure cost-unit accounting engine for
// one transaction: a prepaid system loan, execution/royalty pricing,
// deferred-cost bookkeeping, and bad-debt tracking at finalize.
//
// Grounded on core/gas_table.go for the "cost per unit of work" idiom and
// on core/ledger.go's DeductGas for the logging shape.
package feereserve

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"txruntime/engine/decimalx"
)

// ErrNotXrd is returned when lock_fee is attempted with a non-XRD resource.
var ErrNotXrd = fmt.Errorf("feereserve: NotXrd")

// ErrInsufficientBalance is returned when consume_execution/consume_royalty
// would draw more XRD than is locked.
var ErrInsufficientBalance = fmt.Errorf("feereserve: InsufficientBalance")

// ErrLimitExceeded is returned when a consumption would push
// cost_unit_consumed past cost_unit_limit.
var ErrLimitExceeded = fmt.Errorf("feereserve: LimitExceeded")

// ErrLoanRepaymentFailed is returned by the check-point repayment when the
// loan cannot be repaid from the locked XRD balance. Finalize reports the
// same condition through FeeSummary.LoanFullyRepaid instead of an error.
var ErrLoanRepaymentFailed = fmt.Errorf("feereserve: LoanRepaymentFailed")

// metrics are package-level so every Reserve shares one registration; a
// second Reserve in the same process just moves the same gauges.
var (
	costUnitConsumedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "txruntime_fee_cost_unit_consumed",
		Help: "Cost units consumed by the most recently finalized transaction.",
	})
	badDebtGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "txruntime_fee_bad_debt",
		Help: "Unpaid xrd_owed at the most recent finalize.",
	})
)

func init() {
	prometheus.MustRegister(costUnitConsumedGauge, badDebtGauge)
}

// Payment records one lock_fee call.
type Payment struct {
	VaultID     string
	Resource    string
	Amount      decimalx.Decimal
	Contingent  bool
}

// FeeSummary is the receipt-facing output of Finalize.
type FeeSummary struct {
	CostUnitConsumed   uint64
	CostUnitLimit      uint64
	CostUnitPrice      decimalx.Decimal
	TipPercentage      uint32
	TotalExecutionCost decimalx.Decimal
	TotalRoyaltyCost   decimalx.Decimal
	BadDebt            decimalx.Decimal
	LoanFullyRepaid    bool
	ExecutionByReason  map[string]uint64
	RoyaltyByReceiver  map[string]uint64
	Payments           []Payment
}

// Reserve is the fee reserve's mutable accounting state for one
// transaction. It is not safe for concurrent use; a transaction executes
// on one logical thread.
type Reserve struct {
	costUnitPrice decimalx.Decimal
	tipPercentage uint32
	costUnitLimit uint64
	systemLoan    uint64

	costUnitConsumed uint64
	loanBalance      uint64
	checkPoint       uint64

	xrdBalance decimalx.Decimal
	xrdOwed    decimalx.Decimal

	executionDeferred map[string]uint64
	execution         map[string]uint64
	royalty           map[string]uint64
	payments          []Payment

	repaidOnce bool

	log *logrus.Entry
}

// Config bundles the host-supplied constants a Reserve is constructed
// with, mirroring the runtime's environment/config surface.
type Config struct {
	CostUnitPrice decimalx.Decimal
	TipPercentage uint32
	CostUnitLimit uint64
	SystemLoan    uint64
}

// New constructs a Reserve with loan_balance and check_point both
// initialized to system_loan.
func New(cfg Config, log *logrus.Entry) *Reserve {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reserve{
		costUnitPrice:     cfg.CostUnitPrice,
		tipPercentage:     cfg.TipPercentage,
		costUnitLimit:     cfg.CostUnitLimit,
		systemLoan:        cfg.SystemLoan,
		loanBalance:       cfg.SystemLoan,
		checkPoint:        cfg.SystemLoan,
		xrdBalance:        decimalx.Zero,
		xrdOwed:           decimalx.Zero,
		executionDeferred: make(map[string]uint64),
		execution:         make(map[string]uint64),
		royalty:           make(map[string]uint64),
		log:               log,
	}
}

// executionPrice returns cost_unit_price * (1 + tip%/100).
func (r *Reserve) executionPrice() (decimalx.Decimal, error) {
	tip, err := decimalx.FromInt64(int64(r.tipPercentage)).Div(decimalx.FromInt64(100))
	if err != nil {
		return decimalx.Zero, err
	}
	one := decimalx.FromInt64(1)
	multiplier, err := one.Add(tip)
	if err != nil {
		return decimalx.Zero, err
	}
	return r.costUnitPrice.Mul(multiplier)
}

// ConsumeExecution implements consume_execution. units=0 is a no-op
// success.
func (r *Reserve) ConsumeExecution(units uint64, multiplier uint64, reason string, deferred bool) error {
	n := units * multiplier
	if n == 0 {
		return nil
	}
	if r.costUnitConsumed+n > r.costUnitLimit {
		return ErrLimitExceeded
	}
	if deferred {
		r.executionDeferred[reason] += n
		r.costUnitConsumed += n
		return r.maybeCheckpoint()
	}
	loanDraw := n
	if loanDraw > r.loanBalance {
		loanDraw = r.loanBalance
	}
	remaining := n - loanDraw

	price, err := r.executionPrice()
	if err != nil {
		return err
	}
	cost, err := price.MulUint64(remaining)
	if err != nil {
		return err
	}
	if r.xrdBalance.LessThan(cost) {
		return ErrInsufficientBalance
	}

	newBalance, err := r.xrdBalance.Sub(cost)
	if err != nil {
		return err
	}
	r.xrdBalance = newBalance
	r.loanBalance -= loanDraw
	r.costUnitConsumed += n
	// units drawn from the loan are not paid for yet: fold them into the
	// same deferred bucket consume_execution(deferred=true) uses, so
	// attemptRepayAll prices and collects them into xrd_owed instead of
	// letting the loan portion go unaccounted for.
	if loanDraw > 0 {
		r.executionDeferred[reason] += loanDraw
	}
	if remaining > 0 {
		r.execution[reason] += remaining
	}
	r.log.WithFields(logrus.Fields{"reason": reason, "units": n}).Info("execution consumed")
	return r.maybeCheckpoint()
}

// ConsumeRoyalty implements consume_royalty: priced at cost_unit_price (no
// tip), accumulated under the royalty breakdown.
func (r *Reserve) ConsumeRoyalty(receiver string, units uint64) error {
	if units == 0 {
		return nil
	}
	if r.costUnitConsumed+units > r.costUnitLimit {
		return ErrLimitExceeded
	}
	cost, err := r.costUnitPrice.MulUint64(units)
	if err != nil {
		return err
	}
	if r.xrdBalance.LessThan(cost) {
		return ErrInsufficientBalance
	}
	newBalance, err := r.xrdBalance.Sub(cost)
	if err != nil {
		return err
	}
	r.xrdBalance = newBalance
	r.costUnitConsumed += units
	r.royalty[receiver] += units
	r.log.WithFields(logrus.Fields{"receiver": receiver, "units": units}).Info("royalty consumed")
	return r.maybeCheckpoint()
}

// maybeCheckpoint attempts repayment once cost_unit_consumed reaches the
// checkpoint. A failed repayment here is fatal immediately: the loan has
// not been repaid even once yet, so the caller treats this the same as any
// other pre-repayment error and rejects the transaction rather than
// continuing to commit-failure.
func (r *Reserve) maybeCheckpoint() error {
	if r.costUnitConsumed < r.checkPoint {
		return nil
	}
	return r.attemptRepayAll()
}

// attemptRepayAll flushes deferred execution at the current execution
// price, then subtracts xrd_owed from xrd_balance. It is the fee reserve's
// sole local-retry point: the only place an otherwise-fatal shortfall gets
// a chance to resolve itself before propagating up.
func (r *Reserve) attemptRepayAll() error {
	price, err := r.executionPrice()
	if err != nil {
		return err
	}
	for reason, units := range r.executionDeferred {
		cost, err2 := price.MulUint64(units)
		if err2 != nil {
			return err2
		}
		r.xrdOwed, err = r.xrdOwed.Add(cost)
		if err != nil {
			return err
		}
		r.execution[reason] += units
		delete(r.executionDeferred, reason)
	}

	if r.xrdBalance.LessThan(r.xrdOwed) {
		// partial repayment: take what balance allows, leave the rest owed.
		owed := r.xrdOwed
		r.xrdOwed, err = owed.Sub(r.xrdBalance)
		if err != nil {
			return err
		}
		r.xrdBalance = decimalx.Zero
		return ErrLoanRepaymentFailed
	}

	newBalance, err := r.xrdBalance.Sub(r.xrdOwed)
	if err != nil {
		return err
	}
	r.xrdBalance = newBalance
	r.xrdOwed = decimalx.Zero
	r.repaidOnce = true
	return nil
}

// LoanRepaid reports whether the system loan has been fully repaid at least
// once — the boundary between Rejection (before) and Commit-failure
// (after): an error surfacing before this point aborts the transaction
// outright, an error after it still charges the fees already consumed.
func (r *Reserve) LoanRepaid() bool { return r.repaidOnce }

// LockFee implements lock_fee. resource must name the XRD resource
// (checked by the caller passing its canonical symbol); contingent payments
// are recorded but do not credit balance until CreditContingentPayments is
// called for a commit-success transaction.
func (r *Reserve) LockFee(vaultID, resource string, amount decimalx.Decimal, contingent bool) error {
	if resource != "XRD" {
		return ErrNotXrd
	}
	if !contingent {
		newBalance, err := r.xrdBalance.Add(amount)
		if err != nil {
			return err
		}
		r.xrdBalance = newBalance
	}
	r.payments = append(r.payments, Payment{VaultID: vaultID, Resource: resource, Amount: amount, Contingent: contingent})
	return nil
}

// CreditContingentPayments is called by the caller at the end of a
// commit-success transaction to credit every contingent lock_fee recorded
// during execution: contingent payments are consulted only if the
// transaction commits successfully.
func (r *Reserve) CreditContingentPayments() error {
	for i, p := range r.payments {
		if !p.Contingent {
			continue
		}
		newBalance, err := r.xrdBalance.Add(p.Amount)
		if err != nil {
			return err
		}
		r.xrdBalance = newBalance
		r.payments[i].Contingent = false
	}
	return nil
}

// Finalize performs one last repayment attempt and produces the FeeSummary.
func (r *Reserve) Finalize() (FeeSummary, error) {
	repayErr := r.attemptRepayAll()
	loanFullyRepaid := repayErr == nil

	price, err := r.executionPrice()
	if err != nil {
		return FeeSummary{}, err
	}
	var totalExecUnits uint64
	for _, u := range r.execution {
		totalExecUnits += u
	}
	var totalRoyaltyUnits uint64
	for _, u := range r.royalty {
		totalRoyaltyUnits += u
	}

	totalExecutionCost, err := price.MulUint64(totalExecUnits)
	if err != nil {
		return FeeSummary{}, err
	}
	totalRoyaltyCost, err := r.costUnitPrice.MulUint64(totalRoyaltyUnits)
	if err != nil {
		return FeeSummary{}, err
	}

	summary := FeeSummary{
		CostUnitConsumed:   r.costUnitConsumed,
		CostUnitLimit:      r.costUnitLimit,
		CostUnitPrice:      r.costUnitPrice,
		TipPercentage:      r.tipPercentage,
		TotalExecutionCost: totalExecutionCost,
		TotalRoyaltyCost:   totalRoyaltyCost,
		BadDebt:            r.xrdOwed,
		LoanFullyRepaid:    loanFullyRepaid,
		ExecutionByReason:  copyUintMap(r.execution),
		RoyaltyByReceiver:  copyUintMap(r.royalty),
		Payments:           append([]Payment(nil), r.payments...),
	}

	costUnitConsumedGauge.Set(float64(r.costUnitConsumed))
	badDebtGauge.Set(mustFloat(r.xrdOwed))

	if !loanFullyRepaid {
		r.log.WithField("bad_debt", r.xrdOwed.String()).Warn("loan repayment failed at finalize")
	}
	return summary, nil
}

func copyUintMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mustFloat renders a Decimal for the Prometheus gauge; Decimal.String is
// always well-formed base-10 text, so this never fails in practice.
func mustFloat(d decimalx.Decimal) float64 {
	var f float64
	_, _ = fmt.Sscanf(d.String(), "%f", &f)
	return f
}
