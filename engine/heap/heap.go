// Package heap implements the transient, per-transaction node store. A node
// lives on the Heap or is committed to the SubstateStore — never both;
// globalize moves ownership from one to the other.
package heap

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"txruntime/engine/ids"
	"txruntime/engine/substate"
)

// Node is a transient, heap-owned object: a set of partitions, each holding
// substates keyed the same way a committed node would be.
type Node struct {
	Type       ids.EntityType
	Partitions map[substate.Partition]map[string][]byte
}

func newNode(t ids.EntityType) *Node {
	return &Node{Type: t, Partitions: make(map[substate.Partition]map[string][]byte)}
}

// Heap owns every node created within the current transaction but not yet
// globalized. It is owned exclusively by the kernel; nothing outside it
// holds a reference.
type Heap struct {
	mu    sync.Mutex
	nodes map[ids.NodeId]*Node
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{nodes: make(map[ids.NodeId]*Node)}
}

// CreateNode inserts a brand-new node at id. It is a fatal kernel error to
// create a node at an id that already exists on the heap.
func (h *Heap) CreateNode(id ids.NodeId, entity ids.EntityType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.nodes[id]; exists {
		return fmt.Errorf("heap: node %s already exists", id)
	}
	h.nodes[id] = newNode(entity)
	return nil
}

// Exists reports whether id currently lives on the heap.
func (h *Heap) Exists(id ids.NodeId) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.nodes[id]
	return ok
}

// Get returns the node at id, or NodeNotFound if absent.
func (h *Heap) Get(id ids.NodeId) (*Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return nil, fmt.Errorf("heap: NodeNotFound %s", id)
	}
	return n, nil
}

// SetSubstate writes a substate's bytes into a heap node's partition.
func (h *Heap) SetSubstate(id ids.NodeId, partition substate.Partition, key substate.Key, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return fmt.Errorf("heap: NodeNotFound %s", id)
	}
	if n.Partitions[partition] == nil {
		n.Partitions[partition] = make(map[string][]byte)
	}
	n.Partitions[partition][keyString(key)] = append([]byte(nil), value...)
	return nil
}

// GetSubstate reads a substate's bytes from a heap node's partition.
func (h *Heap) GetSubstate(id ids.NodeId, partition substate.Partition, key substate.Key) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return nil, false, fmt.Errorf("heap: NodeNotFound %s", id)
	}
	m := n.Partitions[partition]
	if m == nil {
		return nil, false, nil
	}
	v, ok := m[keyString(key)]
	return v, ok, nil
}

// DropNode removes id from the heap and returns its substates (drop_node).
func (h *Heap) DropNode(id ids.NodeId) (*Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return nil, fmt.Errorf("heap: DropNodeFailure, node %s not found", id)
	}
	delete(h.nodes, id)
	return n, nil
}

// Globalize atomically relocates a heap node's substates into the given
// store under the global id, and removes it from the heap.
func (h *Heap) Globalize(localID, globalID ids.NodeId, store *substate.Store) error {
	h.mu.Lock()
	n, ok := h.nodes[localID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("heap: NodeNotFound %s", localID)
	}
	delete(h.nodes, localID)
	h.mu.Unlock()

	for partition, kv := range n.Partitions {
		for ks, v := range kv {
			// ks is keyString's form; rebuild the Key it was made from.
			key := substate.BytesKey([]byte(strings.TrimPrefix(ks, "b:")))
			switch {
			case strings.HasPrefix(ks, "f:"):
				off, _ := strconv.ParseUint(ks[2:], 10, 8)
				key = substate.FieldKey(uint8(off))
			case strings.HasPrefix(ks, "s:"):
				parts := strings.SplitN(ks[2:], ":", 2)
				prefix, _ := strconv.ParseUint(parts[0], 10, 16)
				raw, _ := hex.DecodeString(parts[1])
				key = substate.SortedKey(uint16(prefix), raw)
			}
			addr := substate.Address{Node: globalID, Partition: partition, Key: key}
			if err := store.Write(addr, v); err != nil {
				return fmt.Errorf("heap: globalize write: %w", err)
			}
		}
	}
	return nil
}

// Len reports the number of live nodes. The executor does not consult it,
// so nodes still on the heap when a transaction ends are not reported.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// IDs returns every live node id currently on the heap, for diagnostics.
func (h *Heap) IDs() []ids.NodeId {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ids.NodeId, 0, len(h.nodes))
	for id := range h.nodes {
		out = append(out, id)
	}
	return out
}

func keyString(k substate.Key) string {
	if k.HasSort {
		return fmt.Sprintf("s:%d:%x", k.SortPrefix, k.Bytes)
	}
	if k.Bytes != nil {
		return "b:" + string(k.Bytes)
	}
	return fmt.Sprintf("f:%d", k.FieldOffset)
}
