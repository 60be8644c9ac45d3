package kernel

import "txruntime/engine/resource"

// AuthZone is the per-frame proof stack: an ordered list of proofs, a set
// of virtual proofs (root zone only), a barrier flag, and a parent link so
// zones compose as a stack.
//
// Modeled here as a plain linked struct rather than a Heap-resident node:
// its lifetime is exactly one frame's lifetime and it is never addressed by
// a manifest name, so there is nothing gained by routing it through the
// node store.
type AuthZone struct {
	Proofs        []resource.Proof
	VirtualProofs map[resource.GlobalId]bool
	Barrier       bool
	Parent        *AuthZone
}

// NewRootZone builds the root frame's auth zone, seeded with the virtual
// signature proofs derived from the transaction's signer public keys.
func NewRootZone(virtual map[resource.GlobalId]bool) *AuthZone {
	return &AuthZone{VirtualProofs: virtual}
}

// Child builds a new zone whose parent is z, as before_push_frame does on
// every invocation: the auth module injects a fresh auth zone at this
// point.
func (z *AuthZone) Child(barrier bool) *AuthZone {
	return &AuthZone{Parent: z, Barrier: barrier}
}

// PushProof adds a proof to the zone (e.g. via CreateProofFromAuthZone or a
// call return auto-moving a proof to the caller's zone).
func (z *AuthZone) PushProof(p resource.Proof) {
	z.Proofs = append(z.Proofs, p)
}

// PopProof removes and returns the most recently pushed proof.
func (z *AuthZone) PopProof() (resource.Proof, bool) {
	if len(z.Proofs) == 0 {
		return resource.Proof{}, false
	}
	p := z.Proofs[len(z.Proofs)-1]
	z.Proofs = z.Proofs[:len(z.Proofs)-1]
	return p, true
}

// Drain removes and returns every proof currently in the zone (the
// DropAllProofs operation).
func (z *AuthZone) Drain() []resource.Proof {
	out := z.Proofs
	z.Proofs = nil
	return out
}

// Satisfies runs the auth-zone check for a ProofRule, searching this zone
// and ancestor zones up to (and including) the nearest barrier.
func (z *AuthZone) Satisfies(rule resource.ProofRule) bool {
	switch rule.Kind {
	case resource.RuleRequire:
		return z.hasEvidence(rule)
	case resource.RuleAllOf:
		for _, sub := range rule.Rules {
			if !z.Satisfies(sub) {
				return false
			}
		}
		return true
	case resource.RuleAnyOf:
		for _, sub := range rule.Rules {
			if z.Satisfies(sub) {
				return true
			}
		}
		return false
	case resource.RuleCountOf:
		count := 0
		for _, sub := range rule.Rules {
			if z.Satisfies(sub) {
				count++
			}
		}
		return count >= rule.Count
	default:
		return false
	}
}

func (z *AuthZone) hasEvidence(rule resource.ProofRule) bool {
	for cur := z; cur != nil; cur = cur.Parent {
		for _, p := range cur.Proofs {
			if matchesRule(p, rule) {
				return true
			}
		}
		if rule.GlobalID != nil && cur.VirtualProofs[*rule.GlobalID] {
			return true
		}
		if cur.Barrier {
			break
		}
	}
	return false
}

func matchesRule(p resource.Proof, rule resource.ProofRule) bool {
	if rule.GlobalID != nil {
		if p.ResourceAddr != rule.GlobalID.Resource {
			return false
		}
		_, ok := p.TotalIds[rule.GlobalID.Local]
		return ok
	}
	if p.ResourceAddr != rule.Resource {
		return false
	}
	return !p.TotalAmount.IsZero() || len(p.TotalIds) > 0
}
