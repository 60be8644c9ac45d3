// Package manifest implements the manifest processor: the root actor that
// owns the worktop and the bucket/proof name maps, and drives the ordered
// instruction list.
//
// Grounded structurally on core/opcode_dispatcher.go's flat dispatch table
// (keyed by a small tag, one function per tag) for the instruction-kind
// switch, kept as one flat match rather than a hierarchy of instruction
// types.
package manifest

import (
	"fmt"

	"txruntime/engine/decimalx"
	"txruntime/engine/ids"
	"txruntime/engine/kernel"
	"txruntime/engine/resource"
)

// Errors surfaced by the processor, each corresponding to one of the
// documented boundary-behavior cases a manifest run can fail with.
var (
	ErrBucketNotFound  = fmt.Errorf("manifest: BucketNotFound")
	ErrProofNotFound   = fmt.Errorf("manifest: ProofNotFound")
	ErrBlobNotFound    = fmt.Errorf("manifest: BlobNotFound")
	ErrWorktopResidue  = fmt.Errorf("manifest: worktop not drained at clean exit")
	ErrEpochOutOfRange = fmt.Errorf("manifest: epoch validation failed")
	ErrUnknownExpr     = fmt.Errorf("manifest: unknown expression")
)

// BucketName and ProofName are manifest-scoped small-integer names, looked
// up in the processor's own name maps rather than the heap.
type BucketName uint32
type ProofName uint32

// Expression is one of the two reserved argument placeholders.
type Expression int

const (
	ExprNone Expression = iota
	ExprEntireWorktop
	ExprEntireAuthZone
)

// InstructionKind tags the shape of one manifest Instruction, enumerating
// the full manifest instruction set.
type InstructionKind int

const (
	TakeAllFromWorktop InstructionKind = iota
	TakeFromWorktop
	TakeFromWorktopNonFungibles
	ReturnToWorktop
	AssertWorktopContains
	AssertWorktopContainsAny
	PopFromAuthZone
	PushToAuthZone
	ClearAuthZone
	ClearSignatureProofs
	CreateProofFromAuthZone
	CreateProofFromAuthZoneOfAmount
	CreateProofFromAuthZoneOfNonFungibles
	CreateProofFromAuthZoneOfAll
	CreateProofFromBucket
	CreateProofFromBucketOfAmount
	CreateProofFromBucketOfNonFungibles
	CreateProofFromBucketOfAll
	CloneProof
	DropProof
	DropAllProofs
	CallFunction
	CallMethod
	CallRoyaltyMethod
	CallMetadataMethod
	CallAccessRulesMethod
	BurnResource
	RecallResource
)

// Instruction is a single manifest op. Only the fields relevant to Kind are
// populated; unused fields are the zero value.
type Instruction struct {
	Kind InstructionKind

	ResourceAddr resource.Address
	Amount       decimalx.Decimal
	NonFungibleIDs []resource.NonFungibleLocalId
	Bucket       BucketName
	Proof        ProofName
	NewBucket    BucketName
	NewProof     ProofName

	Package   ids.NodeId
	Blueprint ids.NodeId
	Address   ids.NodeId
	Function  string
	Method    string
	Args      []Arg

	VaultID ids.NodeId
}

// Arg is one call argument: either raw SBOR-encoded bytes, a reference to a
// manifest-scoped bucket/proof, or one of the two reserved expressions.
type Arg struct {
	Raw        []byte
	BucketRef  *BucketName
	ProofRef   *ProofName
	Expression Expression
}

// EpochValidation is one runtime_validations entry: an epoch range the
// current epoch must fall within for the transaction to be admitted.
type EpochValidation struct {
	SkipAssertion bool
	StartInclusive uint64
	EndExclusive   uint64
}

// Worktop is the root frame's transient multi-bucket staging area.
type Worktop struct {
	buckets map[resource.Address]*resource.Bucket
}

// NewWorktop returns an empty worktop.
func NewWorktop() *Worktop { return &Worktop{buckets: make(map[resource.Address]*resource.Bucket)} }

// Put merges a bucket's contents into the worktop: buckets for the same
// resource address are merged rather than kept side by side.
func (w *Worktop) Put(b resource.Bucket) error {
	existing, ok := w.buckets[b.Resource.Address]
	if !ok {
		cp := b
		w.buckets[b.Resource.Address] = &cp
		return nil
	}
	return existing.Put(b.Resource)
}

// TakeAll drains every bucket for addr from the worktop.
func (w *Worktop) TakeAll(addr resource.Address) (resource.Resource, error) {
	b, ok := w.buckets[addr]
	if !ok {
		return resource.Resource{}, fmt.Errorf("manifest: worktop has no bucket for %s", addr)
	}
	return b.TakeAll(), nil
}

// TakeAmount extracts a fungible amount from the worktop's bucket for addr.
func (w *Worktop) TakeAmount(addr resource.Address, amt decimalx.Decimal) (resource.Resource, error) {
	b, ok := w.buckets[addr]
	if !ok {
		return resource.Resource{}, fmt.Errorf("manifest: worktop has no bucket for %s", addr)
	}
	return b.TakeAmount(amt)
}

// TakeNonFungibles extracts specific non-fungible ids from the worktop's
// bucket for addr.
func (w *Worktop) TakeNonFungibles(addr resource.Address, ids []resource.NonFungibleLocalId) (resource.Resource, error) {
	b, ok := w.buckets[addr]
	if !ok {
		return resource.Resource{}, fmt.Errorf("manifest: worktop has no bucket for %s", addr)
	}
	return b.TakeIds(ids)
}

// Drain removes and returns every remaining bucket's resource, for the
// ENTIRE_WORKTOP expression.
func (w *Worktop) Drain() []resource.Resource {
	out := make([]resource.Resource, 0, len(w.buckets))
	for addr, b := range w.buckets {
		r := b.TakeAll()
		if !r.IsEmpty() {
			out = append(out, r)
		}
		delete(w.buckets, addr)
	}
	return out
}

// IsEmpty reports whether every bucket on the worktop is empty, the
// condition the clean-exit check requires.
func (w *Worktop) IsEmpty() bool {
	for _, b := range w.buckets {
		if !b.Resource.IsEmpty() {
			return false
		}
	}
	return true
}

// Contains reports whether the worktop holds at least the given resource,
// for AssertWorktopContains*.
func (w *Worktop) Contains(addr resource.Address) bool {
	b, ok := w.buckets[addr]
	return ok && !b.Resource.IsEmpty()
}

// Processor drives one manifest's instruction list against a kernel, a
// worktop, and the bucket/proof name maps.
type Processor struct {
	K       *kernel.Kernel
	Worktop *Worktop
	Invoker Invoker
	buckets map[BucketName]*resource.Bucket
	proofs  map[ProofName]resource.Proof
	blobs   map[[32]byte][]byte

	lastCallOutput []byte
}

// NewProcessor constructs a Processor over an already-pushed root frame.
func NewProcessor(k *kernel.Kernel, blobs map[[32]byte][]byte) *Processor {
	return &Processor{
		K:       k,
		Worktop: NewWorktop(),
		buckets: make(map[BucketName]*resource.Bucket),
		proofs:  make(map[ProofName]resource.Proof),
		blobs:   blobs,
	}
}

// LastCallOutput returns the raw output of the most recently executed call
// instruction.
func (p *Processor) LastCallOutput() []byte { return p.lastCallOutput }

// ValidateEpoch checks the manifest's runtime_validations against the
// host-provided current epoch. It must be called before instruction 0
// runs.
func ValidateEpoch(validations []EpochValidation, currentEpoch uint64) error {
	for _, v := range validations {
		if v.SkipAssertion {
			continue
		}
		if currentEpoch < v.StartInclusive || currentEpoch >= v.EndExclusive {
			return ErrEpochOutOfRange
		}
	}
	return nil
}

// Run executes every instruction in order, then enforces clean exit.
func (p *Processor) Run(instructions []Instruction) error {
	for _, inst := range instructions {
		if err := p.step(inst); err != nil {
			return err
		}
	}
	return p.cleanExit()
}

// cleanExit enforces clean exit: a remaining bucket not drained by the end
// of the instruction list is a commit-failure.
func (p *Processor) cleanExit() error {
	if !p.Worktop.IsEmpty() {
		return ErrWorktopResidue
	}
	return nil
}

func (p *Processor) step(inst Instruction) error {
	switch inst.Kind {
	case TakeAllFromWorktop:
		r, err := p.Worktop.TakeAll(inst.ResourceAddr)
		if err != nil {
			return err
		}
		return p.bindNewBucket(inst.NewBucket, r)
	case TakeFromWorktop:
		r, err := p.Worktop.TakeAmount(inst.ResourceAddr, inst.Amount)
		if err != nil {
			return err
		}
		return p.bindNewBucket(inst.NewBucket, r)
	case TakeFromWorktopNonFungibles:
		r, err := p.Worktop.TakeNonFungibles(inst.ResourceAddr, inst.NonFungibleIDs)
		if err != nil {
			return err
		}
		return p.bindNewBucket(inst.NewBucket, r)
	case ReturnToWorktop:
		b, err := p.takeBucket(inst.Bucket)
		if err != nil {
			return err
		}
		return p.Worktop.Put(*b)
	case AssertWorktopContains, AssertWorktopContainsAny:
		if !p.Worktop.Contains(inst.ResourceAddr) {
			return fmt.Errorf("manifest: worktop does not contain %s", inst.ResourceAddr)
		}
		return nil

	case PopFromAuthZone:
		zone := p.K.CurrentFrame().Zone
		proof, ok := zone.PopProof()
		if !ok {
			return ErrProofNotFound
		}
		p.proofs[inst.NewProof] = proof
		return nil
	case PushToAuthZone:
		proof, err := p.takeProof(inst.Proof)
		if err != nil {
			return err
		}
		p.K.CurrentFrame().Zone.PushProof(proof)
		return nil
	case ClearAuthZone, ClearSignatureProofs:
		p.K.CurrentFrame().Zone.Drain()
		return nil
	case CreateProofFromAuthZone, CreateProofFromAuthZoneOfAmount,
		CreateProofFromAuthZoneOfNonFungibles, CreateProofFromAuthZoneOfAll:
		return p.createProofFromAuthZone(inst)
	case CreateProofFromBucket, CreateProofFromBucketOfAmount,
		CreateProofFromBucketOfNonFungibles, CreateProofFromBucketOfAll:
		return p.createProofFromBucket(inst)
	case CloneProof:
		proof, ok := p.proofs[inst.Proof]
		if !ok {
			return ErrProofNotFound
		}
		p.proofs[inst.NewProof] = proof.Clone()
		return nil
	case DropProof:
		proof, err := p.takeProof(inst.Proof)
		if err != nil {
			return err
		}
		proof.Drop()
		return nil
	case DropAllProofs:
		// Distinct from a loop of DropProof: drains the auth zone's own
		// proofs as well as every manifest-named proof, mirroring the wire
		// format's separate AuthZoneDrainInput shape.
		for _, proof := range p.K.CurrentFrame().Zone.Drain() {
			proof.Drop()
		}
		for name, proof := range p.proofs {
			proof.Drop()
			delete(p.proofs, name)
		}
		return nil

	case CallFunction, CallMethod, CallRoyaltyMethod, CallMetadataMethod, CallAccessRulesMethod:
		out, err := p.Call(inst)
		if err != nil {
			return err
		}
		p.lastCallOutput = out
		return nil

	case BurnResource:
		b, err := p.takeBucket(inst.Bucket)
		if err != nil {
			return err
		}
		_ = b.TakeAll()
		return nil
	case RecallResource:
		return fmt.Errorf("manifest: RecallResource requires a vault handle supplied by the host")

	default:
		return fmt.Errorf("manifest: unknown instruction kind %d", inst.Kind)
	}
}

func (p *Processor) bindNewBucket(name BucketName, r resource.Resource) error {
	id, err := p.K.AllocateNodeID(ids.EntityBucket)
	if err != nil {
		return err
	}
	p.buckets[name] = &resource.Bucket{ID: id, Resource: r}
	return nil
}

// takeBucket consumes a manifest-scoped bucket name: once taken the name is
// no longer bound.
func (p *Processor) takeBucket(name BucketName) (*resource.Bucket, error) {
	b, ok := p.buckets[name]
	if !ok {
		return nil, ErrBucketNotFound
	}
	delete(p.buckets, name)
	return b, nil
}

func (p *Processor) takeProof(name ProofName) (resource.Proof, error) {
	proof, ok := p.proofs[name]
	if !ok {
		return resource.Proof{}, ErrProofNotFound
	}
	delete(p.proofs, name)
	return proof, nil
}

func (p *Processor) createProofFromAuthZone(inst Instruction) error {
	zone := p.K.CurrentFrame().Zone
	if !zone.Satisfies(resource.Require(inst.ResourceAddr)) {
		return fmt.Errorf("manifest: auth zone holds no evidence of %s", inst.ResourceAddr)
	}
	id, err := p.K.AllocateNodeID(ids.EntityProof)
	if err != nil {
		return err
	}
	proof, err := resource.NewProof(id, inst.ResourceAddr, inst.Amount, idSet(inst.NonFungibleIDs), resource.OriginAuthZone)
	if err != nil {
		return err
	}
	p.proofs[inst.NewProof] = proof
	return nil
}

func (p *Processor) createProofFromBucket(inst Instruction) error {
	b, ok := p.buckets[inst.Bucket]
	if !ok {
		return ErrBucketNotFound
	}
	id, err := p.K.AllocateNodeID(ids.EntityProof)
	if err != nil {
		return err
	}
	proof, err := resource.NewProof(id, b.Resource.Address, b.Resource.Amount, idSet(inst.NonFungibleIDs), resource.OriginBucket)
	if err != nil {
		return err
	}
	p.proofs[inst.NewProof] = proof
	return nil
}

func idSet(ids []resource.NonFungibleLocalId) map[resource.NonFungibleLocalId]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[resource.NonFungibleLocalId]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ResolveArgs runs the argument transform: each Arg is either passed
// through raw, substituted for a named bucket/proof (its name consumed),
// or materialized from one of the two reserved expressions.
func (p *Processor) ResolveArgs(args []Arg) ([][]byte, []resource.Bucket, []resource.Proof, error) {
	var raws [][]byte
	var movedBuckets []resource.Bucket
	var movedProofs []resource.Proof

	for _, a := range args {
		switch {
		case a.BucketRef != nil:
			b, err := p.takeBucket(*a.BucketRef)
			if err != nil {
				return nil, nil, nil, err
			}
			movedBuckets = append(movedBuckets, *b)
		case a.ProofRef != nil:
			proof, err := p.takeProof(*a.ProofRef)
			if err != nil {
				return nil, nil, nil, err
			}
			movedProofs = append(movedProofs, proof)
		case a.Expression == ExprEntireWorktop:
			for _, r := range p.Worktop.Drain() {
				id, err := p.K.AllocateNodeID(ids.EntityBucket)
				if err != nil {
					return nil, nil, nil, err
				}
				movedBuckets = append(movedBuckets, resource.Bucket{ID: id, Resource: r})
			}
		case a.Expression == ExprEntireAuthZone:
			movedProofs = append(movedProofs, p.K.CurrentFrame().Zone.Drain()...)
		case a.Expression != ExprNone:
			return nil, nil, nil, ErrUnknownExpr
		default:
			raws = append(raws, a.Raw)
		}
	}
	return raws, movedBuckets, movedProofs, nil
}

// ReturnBucket auto-moves a bucket returned from a call onto the worktop.
func (p *Processor) ReturnBucket(b resource.Bucket) error { return p.Worktop.Put(b) }

// ReturnProof auto-moves a proof returned from a call onto the current
// frame's auth zone.
func (p *Processor) ReturnProof(proof resource.Proof) {
	p.K.CurrentFrame().Zone.PushProof(proof)
}

// Blob resolves a blob reference by hash against the transaction's blobs
// map.
func (p *Processor) Blob(hash [32]byte) ([]byte, error) {
	b, ok := p.blobs[hash]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return b, nil
}
