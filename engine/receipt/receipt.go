// Package receipt defines the transaction output: either a Commit (success
// with state deltas/events/logs, or failure) or a Reject, plus the
// deterministic list of new global addresses and the fee summary.
//
// Grounded on core/ledger.go's EmitTransfer/EmitApproval helpers for the
// event-logging shape, and on core/access_control.go's "log on every
// state-changing call" idiom for ApplicationLogs.
package receipt

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"txruntime/engine/feereserve"
	"txruntime/engine/ids"
)

// Outcome tags a Commit's inner result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// ResultKind tags whether the receipt is a Commit or a Reject, the two
// outer layers of the three-layer error model (Rejection / commit-failure /
// commit-success).
type ResultKind int

const (
	ResultCommit ResultKind = iota
	ResultReject
)

// StateUpdate is one substate write or delete applied by a commit-success.
type StateUpdate struct {
	Node      ids.NodeId
	Partition uint8
	Key       []byte
	Value     []byte
	Deleted   bool
}

// Event is one blueprint-emitted event, (emitter, type name, SBOR payload).
type Event struct {
	Emitter ids.NodeId
	Type    string
	Payload []byte
}

// Result is the Commit{Success|Failure} | Reject sum type.
type Result struct {
	Kind ResultKind

	// Commit fields.
	Outcome         Outcome
	Output          []byte // meaningful when Outcome == OutcomeSuccess
	FailureError    string // meaningful when Outcome == OutcomeFailure
	StateUpdates    []StateUpdate
	Events          []Event
	ApplicationLogs []string

	// Reject fields.
	RejectError string
}

// Receipt is the full transaction output.
type Receipt struct {
	Result      Result
	FeeSummary  feereserve.FeeSummary
	NewAddresses []ids.NodeId
}

// CompressLogs optionally zstd-compresses the application log payload
// before it leaves the runtime boundary, for hosts that persist receipts
// at scale.
func CompressLogs(logs []string) ([]byte, error) {
	joined := make([]byte, 0, 256)
	for _, l := range logs {
		joined = append(joined, []byte(l)...)
		joined = append(joined, '\n')
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("receipt: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(joined, nil), nil
}

// DecompressLogs reverses CompressLogs.
func DecompressLogs(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("receipt: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("receipt: zstd decode: %w", err)
	}
	return out, nil
}

// CommitSuccess builds a commit-success Result.
func CommitSuccess(output []byte, updates []StateUpdate, events []Event, logs []string) Result {
	return Result{Kind: ResultCommit, Outcome: OutcomeSuccess, Output: output, StateUpdates: updates, Events: events, ApplicationLogs: logs}
}

// CommitFailure builds a commit-failure Result: state changes are
// discarded (StateUpdates left empty) but fees were still charged.
func CommitFailure(err error) Result {
	return Result{Kind: ResultCommit, Outcome: OutcomeFailure, FailureError: err.Error()}
}

// Reject builds a pre-loan-repayment rejection Result: no state changes, no
// fees deducted.
func Reject(err error) Result {
	return Result{Kind: ResultReject, RejectError: err.Error()}
}
