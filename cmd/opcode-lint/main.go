// Command opcode-lint audits the cost table for duplicate or unpriced
// operations, the same kind of CI guard run against core/gas_table.go's
// Catalogue, adapted from per-EVM-opcode collisions to per-Op cost-table
// coverage.
package main

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"txruntime/engine/costtable"
)

func main() {
	ops := costtable.AllOps()
	table := costtable.New(logrus.NewEntry(logrus.StandardLogger()))

	seen := make(map[costtable.Op]struct{}, len(ops))
	for _, op := range ops {
		if _, ok := seen[op]; ok {
			log.Fatalf("duplicate op %q", op)
		}
		seen[op] = struct{}{}
		if cost := table.Cost(op); cost == 0 {
			log.Fatalf("op %q priced at zero", op)
		}
	}
	fmt.Printf("checked %d ops, no collisions or zero-cost entries\n", len(ops))
}
