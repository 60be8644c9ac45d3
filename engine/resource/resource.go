// Package resource implements the runtime's resource/bucket/proof/auth-rule
// data model: fungible and non-fungible resources, owned buckets, read-only
// proofs, and the access-rule algebra used by the auth module and the
// access-controller state machine.
package resource

import (
	"fmt"

	"txruntime/engine/decimalx"
	"txruntime/engine/ids"
)

// Address identifies a resource (fungible or non-fungible), a global,
// package-scoped handle distinct from the NodeId of any one vault holding
// it.
type Address = ids.NodeId

// NonFungibleLocalId identifies one non-fungible unit within a resource.
type NonFungibleLocalId string

// GlobalId pairs a resource address with a specific non-fungible id.
type GlobalId struct {
	Resource Address
	Local    NonFungibleLocalId
}

func (g GlobalId) String() string { return g.Resource.Hex() + ":" + string(g.Local) }

// Kind distinguishes fungible from non-fungible resources.
type Kind int

const (
	Fungible Kind = iota
	NonFungible
)

// Resource describes either a fungible amount or a non-fungible id set.
type Resource struct {
	Kind     Kind
	Address  Address
	Amount   decimalx.Decimal        // meaningful when Kind == Fungible
	Ids      map[NonFungibleLocalId]struct{} // meaningful when Kind == NonFungible
}

// NewFungible builds a fungible Resource.
func NewFungible(addr Address, amount decimalx.Decimal) Resource {
	return Resource{Kind: Fungible, Address: addr, Amount: amount}
}

// NewNonFungible builds a non-fungible Resource from an id set.
func NewNonFungible(addr Address, ids []NonFungibleLocalId) Resource {
	set := make(map[NonFungibleLocalId]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Resource{Kind: NonFungible, Address: addr, Ids: set}
}

// IsEmpty reports whether the resource carries a zero amount / empty id set.
func (r Resource) IsEmpty() bool {
	if r.Kind == Fungible {
		return r.Amount.IsZero()
	}
	return len(r.Ids) == 0
}

// Merge combines two resources of the same address and kind, as a Bucket's
// `put` does.
func (r Resource) Merge(other Resource) (Resource, error) {
	if r.Address != other.Address || r.Kind != other.Kind {
		return Resource{}, fmt.Errorf("resource: cannot merge mismatched resources")
	}
	if r.Kind == Fungible {
		sum, err := r.Amount.Add(other.Amount)
		if err != nil {
			return Resource{}, err
		}
		return NewFungible(r.Address, sum), nil
	}
	merged := make(map[NonFungibleLocalId]struct{}, len(r.Ids)+len(other.Ids))
	for id := range r.Ids {
		merged[id] = struct{}{}
	}
	for id := range other.Ids {
		merged[id] = struct{}{}
	}
	return Resource{Kind: NonFungible, Address: r.Address, Ids: merged}, nil
}

// TakeAmount removes `amount` from a fungible resource in place, returning
// the taken portion. Errors if the resource lacks sufficient balance.
func (r *Resource) TakeAmount(amount decimalx.Decimal) (Resource, error) {
	if r.Kind != Fungible {
		return Resource{}, fmt.Errorf("resource: TakeAmount on non-fungible resource")
	}
	if r.Amount.LessThan(amount) {
		return Resource{}, fmt.Errorf("resource: insufficient balance")
	}
	remaining, err := r.Amount.Sub(amount)
	if err != nil {
		return Resource{}, err
	}
	r.Amount = remaining
	return NewFungible(r.Address, amount), nil
}

// TakeIds removes the given non-fungible ids from r in place, returning the
// taken portion. Errors if any id is absent.
func (r *Resource) TakeIds(want []NonFungibleLocalId) (Resource, error) {
	if r.Kind != NonFungible {
		return Resource{}, fmt.Errorf("resource: TakeIds on fungible resource")
	}
	taken := make(map[NonFungibleLocalId]struct{}, len(want))
	for _, id := range want {
		if _, ok := r.Ids[id]; !ok {
			return Resource{}, fmt.Errorf("resource: non-fungible id %s not present", id)
		}
		taken[id] = struct{}{}
	}
	for id := range taken {
		delete(r.Ids, id)
	}
	return Resource{Kind: NonFungible, Address: r.Address, Ids: taken}, nil
}

// Bucket is an owned quantity of one resource. It mutates via Take/Put.
type Bucket struct {
	ID       ids.NodeId
	Resource Resource
}

// Put merges other into the bucket.
func (b *Bucket) Put(other Resource) error {
	merged, err := b.Resource.Merge(other)
	if err != nil {
		return err
	}
	b.Resource = merged
	return nil
}

// TakeAmount extracts a fungible amount from the bucket.
func (b *Bucket) TakeAmount(amount decimalx.Decimal) (Resource, error) {
	return b.Resource.TakeAmount(amount)
}

// TakeIds extracts specific non-fungible ids from the bucket.
func (b *Bucket) TakeIds(ids []NonFungibleLocalId) (Resource, error) {
	return b.Resource.TakeIds(ids)
}

// TakeAll drains the bucket completely.
func (b *Bucket) TakeAll() Resource {
	taken := b.Resource
	if b.Resource.Kind == Fungible {
		b.Resource = NewFungible(b.Resource.Address, decimalx.Zero)
	} else {
		b.Resource = NewNonFungible(b.Resource.Address, nil)
	}
	return taken
}

// ProofOrigin records where a proof's evidence came from.
type ProofOrigin int

const (
	OriginAuthZone ProofOrigin = iota
	OriginBucket
	OriginVault
)

// Proof is read-only evidence of resource ownership at creation time. It may
// be cloned (ref-counted) and must be dropped explicitly.
type Proof struct {
	ID           ids.NodeId
	ResourceAddr Address
	TotalAmount  decimalx.Decimal
	TotalIds     map[NonFungibleLocalId]struct{}
	Origin       ProofOrigin
	refs         *int
}

// NewProof constructs a fresh, singly-referenced proof.
func NewProof(id ids.NodeId, addr Address, amount decimalx.Decimal, nfIds map[NonFungibleLocalId]struct{}, origin ProofOrigin) (Proof, error) {
	if amount.IsZero() && len(nfIds) == 0 {
		return Proof{}, fmt.Errorf("resource: EmptyProofNotAllowed")
	}
	refs := 1
	return Proof{ID: id, ResourceAddr: addr, TotalAmount: amount, TotalIds: nfIds, Origin: origin, refs: &refs}, nil
}

// Clone increments the proof's reference count and returns a handle sharing
// the same underlying evidence.
func (p Proof) Clone() Proof {
	*p.refs++
	return p
}

// Drop decrements the reference count; returns true once the last reference
// has been dropped.
func (p Proof) Drop() bool {
	*p.refs--
	return *p.refs <= 0
}

// RoleKey names a role within a RoleList (e.g. "primary", "recovery").
type RoleKey string

// RoleList is an ordered list of role keys; satisfying any one satisfies the
// list.
type RoleList []RoleKey

// ProofRuleKind tags the shape of a ProofRule node.
type ProofRuleKind int

const (
	RuleRequire ProofRuleKind = iota
	RuleAllOf
	RuleAnyOf
	RuleCountOf
)

// ProofRule is a finite Boolean combination over resource addresses and
// non-fungible global ids, built with ordinary constructors rather than a
// macro: the combinators are purely syntactic sugar over AllOf/AnyOf/CountOf
// and can be composed directly.
type ProofRule struct {
	Kind     ProofRuleKind
	Resource Address    // RuleRequire (fungible address form)
	GlobalID *GlobalId  // RuleRequire (non-fungible global-id form), nil if Resource form
	Rules    []ProofRule // RuleAllOf / RuleAnyOf / RuleCountOf
	Count    int         // RuleCountOf
}

// Require builds a leaf rule requiring proof of a fungible resource.
func Require(addr Address) ProofRule { return ProofRule{Kind: RuleRequire, Resource: addr} }

// RequireNonFungible builds a leaf rule requiring proof of a specific
// non-fungible global id.
func RequireNonFungible(id GlobalId) ProofRule {
	return ProofRule{Kind: RuleRequire, GlobalID: &id}
}

// AllOf requires every sub-rule to be satisfied.
func AllOf(rules ...ProofRule) ProofRule { return ProofRule{Kind: RuleAllOf, Rules: rules} }

// AnyOf requires at least one sub-rule to be satisfied.
func AnyOf(rules ...ProofRule) ProofRule { return ProofRule{Kind: RuleAnyOf, Rules: rules} }

// CountOf requires at least n of the given rules to be satisfied.
func CountOf(n int, rules ...ProofRule) ProofRule {
	return ProofRule{Kind: RuleCountOf, Count: n, Rules: rules}
}

// AccessRuleKind tags the shape of an AccessRule.
type AccessRuleKind int

const (
	RuleAllowAll AccessRuleKind = iota
	RuleDenyAll
	RuleProtected
)

// AccessRule is AllowAll | DenyAll | Protected(ProofRule).
type AccessRule struct {
	Kind  AccessRuleKind
	Proof ProofRule
}

// AllowAll is the always-pass access rule.
var AllowAll = AccessRule{Kind: RuleAllowAll}

// DenyAll is the always-fail access rule.
var DenyAll = AccessRule{Kind: RuleDenyAll}

// Protected wraps a ProofRule as an AccessRule.
func Protected(rule ProofRule) AccessRule { return AccessRule{Kind: RuleProtected, Proof: rule} }

// MethodAccessibilityKind tags the shape of a MethodAccessibility.
type MethodAccessibilityKind int

const (
	Public MethodAccessibilityKind = iota
	OwnPackageOnly
	OuterObjectOnly
	RoleProtected
)

// MethodAccessibility classifies how a single blueprint method is guarded.
type MethodAccessibility struct {
	Kind  MethodAccessibilityKind
	Roles RoleList // meaningful when Kind == RoleProtected
}
