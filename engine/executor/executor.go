// Package executor ties the kernel, manifest processor, fee reserve, and
// auth module into the top-level transaction lifecycle: taking an
// already-decoded transaction's inputs, running it to completion, and
// translating the outcome into the Rejection / Commit-failure /
// Commit-success error layering. It is the one place that owns construction
// order: fee reserve, auth module, kernel (with its heap, locks, allocator
// and cost table), manifest processor; the store comes in through Deps.
//
// Grounded on core/ledger.go's top-level ApplyTransaction-style entry point,
// which performs the same "construct subsystems, run the body, translate
// the outcome" shape around a single transaction.
package executor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"txruntime/engine/authmodule"
	"txruntime/engine/costtable"
	"txruntime/engine/feereserve"
	"txruntime/engine/heap"
	"txruntime/engine/ids"
	"txruntime/engine/kernel"
	"txruntime/engine/lockmgr"
	"txruntime/engine/manifest"
	"txruntime/engine/receipt"
	"txruntime/engine/resource"
	"txruntime/engine/substate"
	"txruntime/pkg/runtimeconfig"
)

// SignerKey is one transaction signer's public key, naming the curve
// (Secp256k1 or Ed25519) it was produced on.
type SignerKey struct {
	Curve ids.Curve
	Raw   []byte
}

// Input is the Go-level shape of a decoded transaction's input. Decoding
// the actual length-prefixed TLV wire format is left to the host; this
// package only needs the already-decoded fields.
type Input struct {
	TransactionHash  [32]byte
	SignerKeys       []SignerKey
	Instructions     []manifest.Instruction
	Blobs            map[[32]byte][]byte
	EpochValidations []manifest.EpochValidation
	CurrentEpoch     uint64
}

// Deps bundles the collaborators left external to this package: the
// already-committed substate store, the package/blueprint role lookup, and
// the call dispatcher that runs native or sandboxed blueprint bodies.
type Deps struct {
	Store   *substate.Store
	Roles   authmodule.RoleAssignments
	Lookup  authmodule.PackageAuthLookup
	Invoker manifest.Invoker
	Log     *logrus.Entry
}

// Execute runs one transaction to completion and returns its receipt. A
// non-nil error means something outside the three defined error layers went
// wrong (misconfigured Deps); every Rejection/CommitFailure case is
// reported inside the returned Receipt with a nil error.
func Execute(in Input, cfg runtimeconfig.RuntimeConfig, deps Deps) (receipt.Receipt, error) {
	if deps.Store == nil {
		return receipt.Receipt{}, fmt.Errorf("executor: Deps.Store is required")
	}
	if deps.Invoker == nil {
		return receipt.Receipt{}, fmt.Errorf("executor: Deps.Invoker is required")
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := manifest.ValidateEpoch(in.EpochValidations, in.CurrentEpoch); err != nil {
		return receipt.Receipt{Result: receipt.Reject(err)}, nil
	}

	virtualProofs := make(map[resource.GlobalId]bool, len(in.SignerKeys))
	for _, sk := range in.SignerKeys {
		id, err := ids.DeriveVirtualFromSigner(ids.EntityVirtualAccount, sk.Curve, sk.Raw)
		if err != nil {
			return receipt.Receipt{Result: receipt.Reject(err)}, nil
		}
		virtualProofs[resource.GlobalId{Resource: id}] = true
	}

	priceDecimal, err := cfg.CostUnitPriceDecimal()
	if err != nil {
		return receipt.Receipt{Result: receipt.Reject(err)}, nil
	}
	fee := feereserve.New(feereserve.Config{
		CostUnitPrice: priceDecimal,
		TipPercentage: cfg.TipPercentage,
		CostUnitLimit: cfg.CostUnitLimit,
		SystemLoan:    cfg.SystemLoan,
	}, log)

	auth, err := authmodule.New(deps.Lookup, deps.Roles, 256, log)
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("executor: building auth module: %w", err)
	}

	k := kernel.New(kernel.Config{
		Heap:     heap.New(),
		Store:    deps.Store,
		Locks:    lockmgr.New(),
		Alloc:    ids.NewAllocator(in.TransactionHash),
		Fee:      fee,
		Auth:     auth,
		Costs:    costtable.New(log),
		MaxDepth: cfg.MaxCallDepth,
	}, log)

	k.PushRootFrame(kernel.Actor{}, virtualProofs)

	proc := manifest.NewProcessor(k, in.Blobs)
	proc.Invoker = deps.Invoker

	runErr := proc.Run(in.Instructions)

	if runErr != nil && !fee.LoanRepaid() {
		log.WithError(runErr).Warn("transaction rejected before loan repayment")
		return receipt.Receipt{Result: receipt.Reject(runErr)}, nil
	}

	if runErr != nil {
		summary, sumErr := fee.Finalize()
		if sumErr != nil {
			return receipt.Receipt{}, fmt.Errorf("executor: finalizing a failed transaction: %w", sumErr)
		}
		log.WithError(runErr).Warn("transaction committed as a failure")
		return receipt.Receipt{Result: receipt.CommitFailure(runErr), FeeSummary: summary}, nil
	}

	if err := fee.CreditContingentPayments(); err != nil {
		return receipt.Receipt{}, fmt.Errorf("executor: crediting contingent payments: %w", err)
	}
	summary, err := fee.Finalize()
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("executor: finalizing a successful transaction: %w", err)
	}
	if !summary.LoanFullyRepaid {
		// The manifest itself ran clean, but the system loan was never repaid
		// even once: repaidOnce stays false the same as a mid-run checkpoint
		// failure would leave it, so this is a Rejection, not a commit of any
		// kind, regardless of how far execution got.
		log.WithField("bad_debt", summary.BadDebt.String()).Warn("transaction rejected: system loan not repaid")
		return receipt.Receipt{Result: receipt.Reject(feereserve.ErrLoanRepaymentFailed)}, nil
	}

	result := receipt.CommitSuccess(proc.LastCallOutput(), nil, nil, nil)
	log.WithField("cost_units", summary.CostUnitConsumed).Info("transaction committed")
	return receipt.Receipt{Result: result, FeeSummary: summary}, nil
}
