package kernel

import (
	"testing"

	"txruntime/engine/authmodule"
	"txruntime/engine/costtable"
	"txruntime/engine/decimalx"
	"txruntime/engine/feereserve"
	"txruntime/engine/heap"
	"txruntime/engine/ids"
	"txruntime/engine/lockmgr"
	"txruntime/engine/substate"
)

func newTestKernel(t *testing.T, maxDepth int) *Kernel {
	t.Helper()
	price, err := decimalx.Parse("1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fee := feereserve.New(feereserve.Config{
		CostUnitPrice: price,
		CostUnitLimit: 100000,
		SystemLoan:    100000,
	}, nil)
	k := New(Config{
		Heap:     heap.New(),
		Store:    substate.NewStore(),
		Locks:    lockmgr.New(),
		Alloc:    ids.NewAllocator([32]byte{1}),
		Fee:      fee,
		Costs:    costtable.New(nil),
		MaxDepth: maxDepth,
	}, nil)
	k.PushRootFrame(Actor{}, nil)
	return k
}

func TestPushRootFrameInstallsDepthZero(t *testing.T) {
	k := newTestKernel(t, 8)
	if k.Depth() != 0 {
		t.Fatalf("expected root frame depth 0, got %d", k.Depth())
	}
}

func TestInvokeWithNoOpenFrameFails(t *testing.T) {
	k := newTestKernel(t, 8)
	k.frames = nil
	_, err := k.Invoke(Actor{}, Movement{}, false, nil, func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		return Movement{}, nil, nil
	})
	if err == nil {
		t.Fatalf("expected an error invoking with no open frame")
	}
}

func TestInvokePushesAndPopsAFrame(t *testing.T) {
	k := newTestKernel(t, 8)
	var sawDepth int
	out, err := k.Invoke(Actor{}, Movement{}, false, []byte("args"), func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		sawDepth = f.Depth
		return Movement{}, []byte("result"), nil
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != "result" {
		t.Fatalf("expected invoke to return the executor's bytes, got %q", out)
	}
	if sawDepth != 1 {
		t.Fatalf("expected the pushed frame to be at depth 1, got %d", sawDepth)
	}
	if k.Depth() != 0 {
		t.Fatalf("expected the frame to be popped back to depth 0, got %d", k.Depth())
	}
}

func TestInvokeRejectsBeyondMaxDepth(t *testing.T) {
	k := newTestKernel(t, 0)
	_, err := k.Invoke(Actor{}, Movement{}, false, nil, func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		return Movement{}, nil, nil
	})
	if err != ErrDepthLimitExceeded {
		t.Fatalf("expected ErrDepthLimitExceeded, got %v", err)
	}
}

func TestInvokeRejectsOwningAnUnknownNode(t *testing.T) {
	k := newTestKernel(t, 8)
	var unknown ids.NodeId
	unknown[0] = 0xff
	_, err := k.Invoke(Actor{}, Movement{OwnedNodes: []ids.NodeId{unknown}}, false, nil, func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		return Movement{}, nil, nil
	})
	if err != ErrInvalidOwnership {
		t.Fatalf("expected ErrInvalidOwnership, got %v", err)
	}
}

func TestInvokeFailsIfCalleeLeavesALockOpen(t *testing.T) {
	k := newTestKernel(t, 8)
	if err := k.CreateNode(ids.NodeId{2}, ids.EntityGenericComponent); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	_, err := k.Invoke(Actor{}, Movement{}, false, nil, func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		_, lockErr := k.LockSubstate(ids.NodeId{2}, substate.Partition(0), substate.FieldKey(0), lockmgr.Flags{})
		if lockErr != nil {
			t.Fatalf("LockSubstate: %v", lockErr)
		}
		return Movement{}, nil, nil
	})
	if err != ErrLockNotDropped {
		t.Fatalf("expected ErrLockNotDropped, got %v", err)
	}
}

func TestInvokePropagatesExecutorError(t *testing.T) {
	k := newTestKernel(t, 8)
	wantErr := feereserve.ErrInsufficientBalance
	_, err := k.Invoke(Actor{}, Movement{}, false, nil, func(k *Kernel, f *Frame, args []byte) (Movement, []byte, error) {
		return Movement{}, nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the executor's error to propagate, got %v", err)
	}
}

func TestCreateNodeAndDropNode(t *testing.T) {
	k := newTestKernel(t, 8)
	id := ids.NodeId{3}
	if err := k.CreateNode(id, ids.EntityGenericComponent); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := k.DropNode(id); err != nil {
		t.Fatalf("DropNode: %v", err)
	}
	if _, err := k.DropNode(id); err != ErrDropNodeFailure {
		t.Fatalf("expected ErrDropNodeFailure on double drop, got %v", err)
	}
}

func TestAllocateNodeIDIsDeterministicPerCounter(t *testing.T) {
	k := newTestKernel(t, 8)
	a, err := k.AllocateNodeID(ids.EntityGenericComponent)
	if err != nil {
		t.Fatalf("AllocateNodeID: %v", err)
	}
	b, err := k.AllocateNodeID(ids.EntityGenericComponent)
	if err != nil {
		t.Fatalf("AllocateNodeID: %v", err)
	}
	if a == b {
		t.Fatalf("expected successive allocations to differ")
	}
}
