// Package ids implements NodeId addressing and deterministic id allocation,
// analogous to the Address type in core/address_zero.go but shaped for this
// runtime's 30-byte, entity-typed addressing scheme instead of a flat
// 20-byte EVM address.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// EntityType is encoded in the first byte of every NodeId.
type EntityType byte

const (
	EntityPackage EntityType = iota
	EntityFungibleResource
	EntityNonFungibleResource
	EntityFungibleVault
	EntityNonFungibleVault
	EntityGenericComponent
	EntityAccount
	EntityValidator
	EntityEpochManager
	EntityClock
	EntityAccessController
	EntityInternalKVStore
	EntityWorktop
	EntityAuthZone
	EntityBucket
	EntityProof

	// Virtual variants: derived from a public key, no prior state required.
	EntityVirtualAccount
	EntityVirtualValidator
	EntityVirtualIdentity
)

func (e EntityType) String() string {
	names := [...]string{
		"Package", "FungibleResource", "NonFungibleResource", "FungibleVault",
		"NonFungibleVault", "GenericComponent", "Account", "Validator",
		"EpochManager", "Clock", "AccessController", "InternalKVStore",
		"Worktop", "AuthZone", "Bucket", "Proof",
		"VirtualAccount", "VirtualValidator", "VirtualIdentity",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return fmt.Sprintf("EntityType(%d)", e)
}

// IsVirtual reports whether the entity type is one of the synthesized,
// public-key-derived variants.
func (e EntityType) IsVirtual() bool {
	return e == EntityVirtualAccount || e == EntityVirtualValidator || e == EntityVirtualIdentity
}

// NodeId is a 30-byte opaque identifier whose first byte is an EntityType.
type NodeId [30]byte

// EntityType returns the entity type encoded in the node id's first byte.
func (n NodeId) EntityType() EntityType { return EntityType(n[0]) }

// IsVirtual reports whether this id was synthesized from a public key
// rather than allocated by the id allocator.
func (n NodeId) IsVirtual() bool { return n.EntityType().IsVirtual() }

// Hex renders the id as a lower-case hex string, matching the style of
// Address.Hex in core/access_control_test.go.
func (n NodeId) Hex() string { return "0x" + hex.EncodeToString(n[:]) }

func (n NodeId) String() string { return n.Hex() }

// Bytes returns the id's raw 30 bytes.
func (n NodeId) Bytes() []byte { return n[:] }

// ParseNodeId reverses Hex: it decodes a "0x"-prefixed (or bare) hex string
// back into a NodeId, the form a host-facing CLI or config file names one
// in.
func ParseNodeId(s string) (NodeId, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return NodeId{}, fmt.Errorf("ids: invalid node id %q: %w", s, err)
	}
	if len(raw) != len(NodeId{}) {
		return NodeId{}, fmt.Errorf("ids: node id %q must decode to %d bytes, got %d", s, len(NodeId{}), len(raw))
	}
	var id NodeId
	copy(id[:], raw)
	return id, nil
}

// DeriveVirtual synthesizes a virtual NodeId from a signer's public key
// bytes without requiring any prior state. The entity type must be one of
// the Virtual* variants.
func DeriveVirtual(entity EntityType, publicKey []byte) (NodeId, error) {
	if !entity.IsVirtual() {
		return NodeId{}, fmt.Errorf("ids: entity type %s is not virtual", entity)
	}
	h := sha256.Sum256(publicKey)
	var id NodeId
	id[0] = byte(entity)
	copy(id[1:], h[:29])
	return id, nil
}

// Allocator deterministically mints bucket, proof, and node ids from the
// transaction hash (allocate_node_id). Replaying the same transaction hash
// against a fresh Allocator reproduces identical ids: id allocation is a
// pure function of (tx_hash, counter).
type Allocator struct {
	txHash  [32]byte
	counter uint32
}

// NewAllocator returns an Allocator seeded with the transaction hash.
func NewAllocator(txHash [32]byte) *Allocator {
	return &Allocator{txHash: txHash}
}

// Next allocates the next deterministic NodeId of the given entity type.
// Virtual entity types cannot be allocated this way; use DeriveVirtual.
func (a *Allocator) Next(entity EntityType) (NodeId, error) {
	if entity.IsVirtual() {
		return NodeId{}, fmt.Errorf("ids: cannot allocate a virtual entity type %s", entity)
	}
	var counterBytes [4]byte
	binary.BigEndian.PutUint32(counterBytes[:], a.counter)
	h := sha256.New()
	h.Write(a.txHash[:])
	h.Write(counterBytes[:])
	sum := h.Sum(nil)

	var id NodeId
	id[0] = byte(entity)
	copy(id[1:], sum[:29])
	a.counter++
	return id, nil
}

// Counter returns the number of ids allocated so far, for diagnostics.
func (a *Allocator) Counter() uint32 { return a.counter }
