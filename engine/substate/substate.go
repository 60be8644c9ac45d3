// Package substate defines the (NodeId, Partition, Key) addressed substate
// model and a reference SubstateStore. The store itself is meant to be
// pluggable — a host may back the kernel with its own persistent ledger, so
// this package only needs to give the kernel something that satisfies the
// contract. The reference implementation here is deliberately simple: it
// keeps its own state as an in-memory map guarded by a mutex and records
// every applied write in an in-memory journal; nothing is persisted.
package substate

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"txruntime/engine/ids"
)

// Partition namespaces substates under a node. Every node exposes a small
// fixed set of partitions, one of the four families below.
type Partition uint8

// PartitionFamily classifies how a partition's keys behave.
type PartitionFamily int

const (
	FamilyField PartitionFamily = iota
	FamilyKeyValue
	FamilyIndex
	FamilySortedIndex
)

// Key addresses a single substate within a partition. Exactly one of the
// three forms is populated, matching the family of the owning partition:
// FieldOffset for Field partitions, Bytes for KeyValue/Index partitions, and
// Bytes+SortPrefix for SortedIndex partitions (sorted by SortPrefix, then by
// the hash of Bytes).
type Key struct {
	FieldOffset uint8
	Bytes       []byte
	SortPrefix  uint16
	HasSort     bool
}

// FieldKey builds a Key for a Field partition.
func FieldKey(offset uint8) Key { return Key{FieldOffset: offset} }

// BytesKey builds a Key for a KeyValue or Index partition.
func BytesKey(b []byte) Key { return Key{Bytes: append([]byte(nil), b...)} }

// SortedKey builds a Key for a SortedIndex partition.
func SortedKey(prefix uint16, b []byte) Key {
	return Key{Bytes: append([]byte(nil), b...), SortPrefix: prefix, HasSort: true}
}

func (k Key) encode() string {
	if k.HasSort {
		return fmt.Sprintf("s:%05d:%s", k.SortPrefix, hex.EncodeToString(k.Bytes))
	}
	if k.Bytes != nil {
		return "b:" + hex.EncodeToString(k.Bytes)
	}
	return fmt.Sprintf("f:%d", k.FieldOffset)
}

// Address fully identifies a substate.
type Address struct {
	Node      ids.NodeId
	Partition Partition
	Key       Key
}

func (a Address) encode() string {
	return a.Node.Hex() + "|" + fmt.Sprintf("%d", a.Partition) + "|" + a.Key.encode()
}

// Substate is a single versioned leaf value.
type Substate struct {
	Value   []byte
	Version uint64
}

// entry is the WAL record shape, RLP-encoded the way a ledger journals
// applied blocks.
type entry struct {
	Node      []byte
	Partition uint8
	KeyBytes  []byte
	KeyField  uint8
	KeyHasKV  bool
	Deleted   bool
	Value     []byte
}

// Store is a versioned (NodeId, Partition, Key) substate store; each Write
// takes effect immediately, with no commit or rollback step. It is the reference implementation of the pluggable SubstateStore
// contract — adequate for driving the kernel in tests, and for a host that
// wants an in-process store without standing up a persistent ledger.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Substate
	// order lists every encoded key in first-write order; ScanPrefix sorts
	// a copy of it and filters the whole list by prefix.
	order []string
	log   []entry
}

// NewStore returns an empty in-memory substate store.
func NewStore() *Store {
	return &Store{data: make(map[string]*Substate)}
}

// Read returns the substate at addr, or ok=false if absent.
func (s *Store) Read(addr Address) (Substate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[addr.encode()]
	if !ok {
		return Substate{}, false
	}
	return *v, true
}

// Write upserts the substate at addr, bumping its version.
func (s *Store) Write(addr Address, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := addr.encode()
	version := uint64(1)
	if existing, ok := s.data[key]; ok {
		version = existing.Version + 1
	} else {
		s.order = append(s.order, key)
	}
	s.data[key] = &Substate{Value: append([]byte(nil), value...), Version: version}
	enc, err := rlp.EncodeToBytes(entry{
		Node:      addr.Node.Bytes(),
		Partition: uint8(addr.Partition),
		KeyBytes:  addr.Key.Bytes,
		KeyField:  addr.Key.FieldOffset,
		KeyHasKV:  addr.Key.Bytes != nil,
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("substate: rlp encode: %w", err)
	}
	var e entry
	if err := rlp.DecodeBytes(enc, &e); err != nil {
		return fmt.Errorf("substate: rlp roundtrip: %w", err)
	}
	s.log = append(s.log, e)
	return nil
}

// ScanPrefix iterates every key under (node, partition) whose raw key bytes
// begin with prefix, in ascending encoded-key order. Only BytesKey entries
// (KeyValue/Index partitions) are matched; SortedKey and FieldKey entries
// are not returned.
func (s *Store) ScanPrefix(node ids.NodeId, partition Partition, prefix []byte) []Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wantPrefix := node.Hex() + "|" + fmt.Sprintf("%d", partition) + "|b:" + hex.EncodeToString(prefix)
	keys := append([]string(nil), s.order...)
	sort.Strings(keys)
	var out []Address
	for _, k := range keys {
		if !bytes.HasPrefix([]byte(k), []byte(wantPrefix)) {
			continue
		}
		sub, ok := s.data[k]
		if !ok || sub == nil {
			continue
		}
		rawKey := k[len(node.Hex())+1+len(fmt.Sprintf("%d", partition))+1+len("b:"):]
		keyBytes, err := hex.DecodeString(rawKey)
		if err != nil {
			continue
		}
		out = append(out, Address{Node: node, Partition: partition, Key: BytesKey(keyBytes)})
	}
	return out
}

// JournalLen reports how many writes have been applied, for diagnostics and
// tests asserting a rejected transaction left the store untouched.
func (s *Store) JournalLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Snapshot returns an opaque marker of the store's current size, cheap
// enough to compare before/after a rejected transaction to assert the
// "every rejected manifest leaves the snapshot bit-identical" property.
func (s *Store) Snapshot() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
