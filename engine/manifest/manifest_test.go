package manifest

import (
	"testing"

	"txruntime/engine/decimalx"
	"txruntime/engine/ids"
	"txruntime/engine/resource"
)

func addr(b byte) resource.Address {
	var a ids.NodeId
	a[0] = b
	return a
}

func TestWorktopPutMergesSameResource(t *testing.T) {
	w := NewWorktop()
	a := addr(1)
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(a, decimalx.FromInt64(5))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(a, decimalx.FromInt64(3))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r, err := w.TakeAll(a)
	if err != nil {
		t.Fatalf("TakeAll: %v", err)
	}
	if r.Amount.Cmp(decimalx.FromInt64(8)) != 0 {
		t.Fatalf("expected merged amount 8, got %s", r.Amount.String())
	}
}

func TestWorktopTakeAmountInsufficientFails(t *testing.T) {
	w := NewWorktop()
	a := addr(2)
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(a, decimalx.FromInt64(1))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := w.TakeAmount(a, decimalx.FromInt64(2)); err == nil {
		t.Fatalf("expected an error taking more than the worktop holds")
	}
}

func TestWorktopTakeFromMissingResourceFails(t *testing.T) {
	w := NewWorktop()
	if _, err := w.TakeAll(addr(3)); err == nil {
		t.Fatalf("expected an error taking from an empty worktop")
	}
}

func TestWorktopIsEmptyAndContains(t *testing.T) {
	w := NewWorktop()
	a := addr(4)
	if !w.IsEmpty() {
		t.Fatalf("expected a fresh worktop to be empty")
	}
	if w.Contains(a) {
		t.Fatalf("expected an empty worktop not to contain anything")
	}
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(a, decimalx.FromInt64(1))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if w.IsEmpty() {
		t.Fatalf("expected worktop to be non-empty after Put")
	}
	if !w.Contains(a) {
		t.Fatalf("expected worktop to contain the resource just put")
	}
}

func TestWorktopDrainEmptiesEveryBucket(t *testing.T) {
	w := NewWorktop()
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(addr(5), decimalx.FromInt64(1))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := w.Put(resource.Bucket{Resource: resource.NewFungible(addr(6), decimalx.FromInt64(2))}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	drained := w.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained resources, got %d", len(drained))
	}
	if !w.IsEmpty() {
		t.Fatalf("expected worktop to be empty after Drain")
	}
}

func TestValidateEpochWithinRange(t *testing.T) {
	validations := []EpochValidation{{StartInclusive: 10, EndExclusive: 20}}
	if err := ValidateEpoch(validations, 15); err != nil {
		t.Fatalf("expected epoch 15 to satisfy [10,20), got %v", err)
	}
}

func TestValidateEpochOutOfRangeFails(t *testing.T) {
	validations := []EpochValidation{{StartInclusive: 10, EndExclusive: 20}}
	if err := ValidateEpoch(validations, 25); err != ErrEpochOutOfRange {
		t.Fatalf("expected ErrEpochOutOfRange, got %v", err)
	}
}

func TestValidateEpochSkipAssertionBypassesCheck(t *testing.T) {
	validations := []EpochValidation{{SkipAssertion: true, StartInclusive: 10, EndExclusive: 20}}
	if err := ValidateEpoch(validations, 999); err != nil {
		t.Fatalf("expected a skipped assertion to always pass, got %v", err)
	}
}

func TestProcessorBlobLookup(t *testing.T) {
	hash := [32]byte{1, 2, 3}
	p := NewProcessor(nil, map[[32]byte][]byte{hash: []byte("blob data")})
	got, err := p.Blob(hash)
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}
	if string(got) != "blob data" {
		t.Fatalf("expected blob data to round trip, got %q", got)
	}
	if _, err := p.Blob([32]byte{9, 9, 9}); err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}
