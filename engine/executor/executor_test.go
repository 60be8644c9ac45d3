package executor

import (
	"testing"

	"txruntime/engine/kernel"
	"txruntime/engine/manifest"
	"txruntime/engine/receipt"
	"txruntime/engine/resource"
	"txruntime/engine/substate"
	"txruntime/pkg/runtimeconfig"
)

type noopInvoker struct{}

func (noopInvoker) Invoke(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (manifest.CallResult, error) {
	return manifest.CallResult{}, nil
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Store:   substate.NewStore(),
		Invoker: noopInvoker{},
	}
}

func TestExecuteRejectsOutOfRangeEpoch(t *testing.T) {
	in := Input{
		EpochValidations: []manifest.EpochValidation{{StartInclusive: 10, EndExclusive: 20}},
		CurrentEpoch:     999,
	}
	r, err := Execute(in, runtimeconfig.Default(), baseDeps(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r.Result.Kind != receipt.ResultReject {
		t.Fatalf("expected a Reject result, got %+v", r.Result)
	}
}

func TestExecuteCommitsSuccessfullyWithNoInstructions(t *testing.T) {
	in := Input{TransactionHash: [32]byte{1}}
	r, err := Execute(in, runtimeconfig.Default(), baseDeps(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r.Result.Kind != receipt.ResultCommit || r.Result.Outcome != receipt.OutcomeSuccess {
		t.Fatalf("expected a commit-success result, got %+v", r.Result)
	}
	if !r.FeeSummary.LoanFullyRepaid {
		t.Fatalf("expected the system loan to be reported as fully repaid when nothing was drawn from it")
	}
}

func TestExecuteRejectsUnknownInstructionKind(t *testing.T) {
	in := Input{
		TransactionHash: [32]byte{2},
		Instructions:    []manifest.Instruction{{Kind: manifest.InstructionKind(999)}},
	}
	r, err := Execute(in, runtimeconfig.Default(), baseDeps(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r.Result.Kind != receipt.ResultReject {
		t.Fatalf("expected an unknown instruction kind to reject before the loan is repaid, got %+v", r.Result)
	}
}

func TestExecuteRequiresAStore(t *testing.T) {
	deps := baseDeps(t)
	deps.Store = nil
	if _, err := Execute(Input{}, runtimeconfig.Default(), deps); err == nil {
		t.Fatalf("expected an error when Deps.Store is nil")
	}
}

func TestExecuteRequiresAnInvoker(t *testing.T) {
	deps := baseDeps(t)
	deps.Invoker = nil
	if _, err := Execute(Input{}, runtimeconfig.Default(), deps); err == nil {
		t.Fatalf("expected an error when Deps.Invoker is nil")
	}
}
