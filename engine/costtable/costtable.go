// Package costtable holds the per-instruction and per-kernel-operation cost
// unit price list the fee reserve meters against.
//
// Grounded on core/gas_table.go's DefaultGasCost/gasTable/GasCost pattern: a
// map keyed by operation with a default fallback, and a "log only the first
// occurrence" guard for unpriced operations — adapted here from per-opcode
// EVM costing to per-manifest-instruction and per-kernel-hook costing.
package costtable

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Op names one billable unit of kernel or manifest-processor work.
type Op string

const (
	OpInvoke              Op = "invoke"
	OpCreateNode           Op = "create_node"
	OpDropNode             Op = "drop_node"
	OpGlobalize            Op = "globalize"
	OpLockSubstate         Op = "lock_substate"
	OpReadSubstate         Op = "read_substate"
	OpWriteSubstate        Op = "write_substate"
	OpAllocateNodeID       Op = "allocate_node_id"
	OpWorktopMove          Op = "worktop_move"
	OpAuthZoneMove         Op = "auth_zone_move"
	OpCreateProof          Op = "create_proof"
	OpDropProof            Op = "drop_proof"
	OpCallFunction         Op = "call_function"
	OpCallMethod           Op = "call_method"
	OpBurnResource         Op = "burn_resource"
	OpRecallResource       Op = "recall_resource"
	OpAuthZoneCheck        Op = "auth_zone_check"
	OpSborEncode           Op = "sbor_encode"
	OpSborDecode           Op = "sbor_decode"
)

// DefaultCost is charged for any Op absent from the table.
const DefaultCost uint64 = 1

// defaultTable mirrors core/gas_table.go's hand-tuned constant map: cheap
// bookkeeping and SBOR codec operations cost little, substate writes and
// node lifecycle cost more, and invocations and calls cost the most.
var defaultTable = map[Op]uint64{
	OpInvoke:        50,
	OpCreateNode:    10,
	OpDropNode:      5,
	OpGlobalize:     15,
	OpLockSubstate:  5,
	OpReadSubstate:  10,
	OpWriteSubstate: 20,
	OpAllocateNodeID: 3,
	OpWorktopMove:   4,
	OpAuthZoneMove:  4,
	OpCreateProof:   8,
	OpDropProof:     2,
	OpCallFunction:  50,
	OpCallMethod:    50,
	OpBurnResource:  10,
	OpRecallResource: 10,
	OpAuthZoneCheck: 6,
	OpSborEncode:    2,
	OpSborDecode:    2,
}

// AllOps returns every Op named in the default table, for tooling that
// wants to audit cost-table coverage (cmd/opcode-lint).
func AllOps() []Op {
	out := make([]Op, 0, len(defaultTable))
	for op := range defaultTable {
		out = append(out, op)
	}
	return out
}

// Table is a mutable, host-overridable cost table. The zero value is not
// usable; construct with New.
type Table struct {
	mu      sync.Mutex
	costs   map[Op]uint64
	warned  map[Op]bool
	log     *logrus.Entry
}

// New returns a Table seeded with the default costs.
func New(log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Table{costs: make(map[Op]uint64, len(defaultTable)), warned: make(map[Op]bool), log: log}
	for op, cost := range defaultTable {
		t.costs[op] = cost
	}
	return t
}

// Override replaces the price for op, for host-specific tuning.
func (t *Table) Override(op Op, cost uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costs[op] = cost
}

// Cost returns the priced cost for op, logging once per unpriced op the
// first time it is encountered, matching core/gas_table.go's comment
// "log only first occurrence of missing opcode".
func (t *Table) Cost(op Op) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cost, ok := t.costs[op]; ok {
		return cost
	}
	if !t.warned[op] {
		t.warned[op] = true
		t.log.WithField("op", op).Warn("no cost entry, using default")
	}
	return DefaultCost
}
