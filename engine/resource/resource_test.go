package resource

import (
	"testing"

	"txruntime/engine/decimalx"
	"txruntime/engine/ids"
)

func addr(b byte) Address {
	var a ids.NodeId
	a[0] = b
	return a
}

func TestFungibleMergeAndTake(t *testing.T) {
	a := addr(1)
	ten := decimalx.FromInt64(10)
	five := decimalx.FromInt64(5)

	r1 := NewFungible(a, ten)
	r2 := NewFungible(a, five)
	merged, err := r1.Merge(r2)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Amount.Cmp(decimalx.FromInt64(15)) != 0 {
		t.Fatalf("expected merged amount 15, got %s", merged.Amount.String())
	}

	taken, err := merged.TakeAmount(decimalx.FromInt64(6))
	if err != nil {
		t.Fatalf("TakeAmount: %v", err)
	}
	if taken.Amount.Cmp(decimalx.FromInt64(6)) != 0 {
		t.Fatalf("expected taken amount 6, got %s", taken.Amount.String())
	}
	if merged.Amount.Cmp(decimalx.FromInt64(9)) != 0 {
		t.Fatalf("expected remaining amount 9, got %s", merged.Amount.String())
	}
}

func TestMergeRejectsMismatchedResources(t *testing.T) {
	a, b := addr(1), addr(2)
	r1 := NewFungible(a, decimalx.FromInt64(1))
	r2 := NewFungible(b, decimalx.FromInt64(1))
	if _, err := r1.Merge(r2); err == nil {
		t.Fatalf("expected error merging resources of different addresses")
	}
}

func TestTakeAmountInsufficientBalance(t *testing.T) {
	r := NewFungible(addr(1), decimalx.FromInt64(1))
	if _, err := r.TakeAmount(decimalx.FromInt64(2)); err == nil {
		t.Fatalf("expected insufficient-balance error")
	}
}

func TestNonFungibleTakeIds(t *testing.T) {
	a := addr(3)
	r := NewNonFungible(a, []NonFungibleLocalId{"1", "2", "3"})
	taken, err := r.TakeIds([]NonFungibleLocalId{"1", "2"})
	if err != nil {
		t.Fatalf("TakeIds: %v", err)
	}
	if len(taken.Ids) != 2 {
		t.Fatalf("expected 2 taken ids, got %d", len(taken.Ids))
	}
	if len(r.Ids) != 1 {
		t.Fatalf("expected 1 remaining id, got %d", len(r.Ids))
	}
	if _, err := r.TakeIds([]NonFungibleLocalId{"missing"}); err == nil {
		t.Fatalf("expected error taking an absent id")
	}
}

func TestBucketPutAndTakeAll(t *testing.T) {
	a := addr(4)
	b := &Bucket{Resource: NewFungible(a, decimalx.FromInt64(5))}
	if err := b.Put(NewFungible(a, decimalx.FromInt64(3))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if b.Resource.Amount.Cmp(decimalx.FromInt64(8)) != 0 {
		t.Fatalf("expected bucket amount 8, got %s", b.Resource.Amount.String())
	}
	all := b.TakeAll()
	if all.Amount.Cmp(decimalx.FromInt64(8)) != 0 {
		t.Fatalf("expected drained amount 8, got %s", all.Amount.String())
	}
	if !b.Resource.IsEmpty() {
		t.Fatalf("expected bucket to be empty after TakeAll")
	}
}

func TestProofCloneAndDropRefCounting(t *testing.T) {
	p, err := NewProof(ids.NodeId{}, addr(5), decimalx.FromInt64(1), nil, OriginBucket)
	if err != nil {
		t.Fatalf("NewProof: %v", err)
	}
	clone := p.Clone()
	if p.Drop() {
		t.Fatalf("dropping one of two references should not report last-reference")
	}
	if !clone.Drop() {
		t.Fatalf("dropping the final reference should report last-reference")
	}
}

func TestNewProofRejectsEmptyEvidence(t *testing.T) {
	if _, err := NewProof(ids.NodeId{}, addr(6), decimalx.Zero, nil, OriginBucket); err == nil {
		t.Fatalf("expected error constructing a proof with no evidence")
	}
}

func TestProofRuleCombinators(t *testing.T) {
	require := Require(addr(7))
	all := AllOf(require, Require(addr(8)))
	if all.Kind != RuleAllOf || len(all.Rules) != 2 {
		t.Fatalf("AllOf did not build the expected rule shape")
	}
	any := AnyOf(require)
	if any.Kind != RuleAnyOf {
		t.Fatalf("AnyOf did not tag RuleAnyOf")
	}
	count := CountOf(2, require, require, require)
	if count.Kind != RuleCountOf || count.Count != 2 {
		t.Fatalf("CountOf did not carry through its threshold")
	}
}
