// Package kernel implements the call-frame stack, node/substate lifecycle,
// and hook dispatch for one transaction's execution.
//
// Kernel modules (fee, auth, limits, costing, logging) are dispatched
// through a tagged KernelHook enum matched in dispatchHook rather than
// trait-object-style indirection, and every operation takes the Kernel
// itself as its explicit context instead of threading a mutable API
// reference everywhere. Grounded structurally on core/opcode_dispatcher.go
// (Register/Dispatch over a small enum-keyed table) for the hook-dispatch
// idiom.
package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"txruntime/engine/authmodule"
	"txruntime/engine/costtable"
	"txruntime/engine/feereserve"
	"txruntime/engine/heap"
	"txruntime/engine/ids"
	"txruntime/engine/lockmgr"
	"txruntime/engine/resource"
	"txruntime/engine/substate"
)

// Fatal kernel error kinds.
var (
	ErrNodeNotFound        = fmt.Errorf("kernel: NodeNotFound")
	ErrInvalidOwnership    = fmt.Errorf("kernel: InvalidOwnership")
	ErrLockNotDropped      = fmt.Errorf("kernel: LockNotDropped")
	ErrDepthLimitExceeded  = fmt.Errorf("kernel: DepthLimitExceeded")
	ErrDropNodeFailure     = fmt.Errorf("kernel: DropNodeFailure")
)

// KernelHook tags one of the kernel's hookable concerns.
type KernelHook int

const (
	HookLimits KernelHook = iota
	HookCosting
	HookFee
	HookAuth
	HookLogging
)

// hookPoint tags where in the invocation contract a hook fires.
type hookPoint int

const (
	pointBeforeInvoke hookPoint = iota
	pointBeforePushFrame
	pointOnExecutionFinish
	pointAfterPopFrame
	pointAfterInvoke
)

// allHooks is the fixed firing order: limits first (cheapest, fails fast),
// then costing/fee, then auth, then logging last so a log line reflects
// whatever the other hooks decided.
var allHooks = []KernelHook{HookLimits, HookCosting, HookFee, HookAuth, HookLogging}

// Actor is the (package, blueprint, method, optional receiver) identity
// executing in a frame.
type Actor struct {
	Package       ids.NodeId
	Blueprint     ids.NodeId
	Method        authmodule.MethodKey
	Receiver      *ids.NodeId // nil for CallFunction; set for CallMethod
	CallerPackage ids.NodeId
}

// Movement is the set of node references and owned nodes crossing a frame
// boundary, the down-movement into a callee or up-movement back to a
// caller.
type Movement struct {
	OwnedNodes      []ids.NodeId
	ReferencedNodes []ids.NodeId
}

// Frame holds a call frame's full state: depth, actor identity, auth zone,
// open locks, and the set of nodes visible within it.
type Frame struct {
	Depth     int
	Actor     Actor
	Zone      *AuthZone
	OpenLocks []lockmgr.Handle
	Visible   map[ids.NodeId]bool
}

// Executor runs an actor's body once its frame is pushed: either a native
// blueprint handler or, for a user blueprint, a call through the sandbox.
// It returns the up-movement and the raw result bytes.
type Executor func(k *Kernel, frame *Frame, args []byte) (Movement, []byte, error)

// Kernel owns the call-frame stack and mediates every node/substate/lock
// operation.
type Kernel struct {
	Heap  *heap.Heap
	Store *substate.Store
	Locks *lockmgr.Manager
	Alloc *ids.Allocator
	Fee   *feereserve.Reserve
	Auth  *authmodule.Module
	Costs *costtable.Table

	maxDepth int
	frames   []*Frame
	log      *logrus.Entry
}

// Config bundles the construction-time dependencies a Kernel needs.
type Config struct {
	Heap     *heap.Heap
	Store    *substate.Store
	Locks    *lockmgr.Manager
	Alloc    *ids.Allocator
	Fee      *feereserve.Reserve
	Auth     *authmodule.Module
	Costs    *costtable.Table
	MaxDepth int
}

// New constructs a Kernel with no frames pushed yet.
func New(cfg Config, log *logrus.Entry) *Kernel {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Kernel{
		Heap: cfg.Heap, Store: cfg.Store, Locks: cfg.Locks, Alloc: cfg.Alloc,
		Fee: cfg.Fee, Auth: cfg.Auth, Costs: cfg.Costs, maxDepth: cfg.MaxDepth, log: log,
	}
}

// PushRootFrame installs the transaction's root frame (the manifest
// processor), seeded with the given virtual-proof set.
func (k *Kernel) PushRootFrame(actor Actor, virtualProofs map[resource.GlobalId]bool) *Frame {
	f := &Frame{Depth: 0, Actor: actor, Zone: NewRootZone(virtualProofs), Visible: make(map[ids.NodeId]bool)}
	k.frames = append(k.frames, f)
	return f
}

// CurrentFrame returns the innermost open frame, or nil if none is open.
func (k *Kernel) CurrentFrame() *Frame {
	if len(k.frames) == 0 {
		return nil
	}
	return k.frames[len(k.frames)-1]
}

// Invoke runs the full invocation contract: ownership checks, depth-limit
// check, frame push, hook dispatch, the callee's body, and frame pop. down
// is the caller-computed down-movement; exec runs the callee's body once
// its frame is pushed. barrier marks whether the callee's auth zone should
// block proof visibility from the caller (true for cross-package calls —
// the caller decides this before calling Invoke).
func (k *Kernel) Invoke(actor Actor, down Movement, barrier bool, args []byte, exec Executor) ([]byte, error) {
	caller := k.CurrentFrame()
	if caller == nil {
		return nil, fmt.Errorf("kernel: Invoke with no open frame")
	}

	if err := k.runHooks(pointBeforeInvoke, actor, caller); err != nil {
		return nil, err
	}

	for _, n := range down.OwnedNodes {
		if !k.Heap.Exists(n) {
			return nil, ErrInvalidOwnership
		}
	}

	newDepth := caller.Depth + 1
	if newDepth > k.maxDepth {
		return nil, ErrDepthLimitExceeded
	}
	frame := &Frame{
		Depth:   newDepth,
		Actor:   actor,
		Zone:    caller.Zone.Child(barrier),
		Visible: make(map[ids.NodeId]bool),
	}
	for _, n := range down.OwnedNodes {
		frame.Visible[n] = true
	}
	for _, n := range down.ReferencedNodes {
		frame.Visible[n] = true
	}

	if err := k.runHooks(pointBeforePushFrame, actor, frame); err != nil {
		return nil, err
	}

	k.frames = append(k.frames, frame)
	up, result, execErr := exec(k, frame, args)

	if hookErr := k.runHooks(pointOnExecutionFinish, actor, frame); hookErr != nil && execErr == nil {
		execErr = hookErr
	}

	if k.Locks.OpenCount(frame.Depth) != 0 {
		k.frames = k.frames[:len(k.frames)-1]
		return nil, ErrLockNotDropped
	}
	k.frames = k.frames[:len(k.frames)-1]

	if hookErr := k.runHooks(pointAfterPopFrame, actor, caller); hookErr != nil && execErr == nil {
		execErr = hookErr
	}
	if execErr != nil {
		return nil, execErr
	}

	if hookErr := k.runHooks(pointAfterInvoke, actor, caller); hookErr != nil {
		return nil, hookErr
	}

	_ = up // auto-move of returned buckets/proofs is the manifest processor's job
	return result, nil
}

// runHooks fires every concern in allHooks for one hook point, in order,
// stopping at the first failure.
func (k *Kernel) runHooks(point hookPoint, actor Actor, frame *Frame) error {
	for _, h := range allHooks {
		if err := k.dispatchHook(h, point, actor, frame); err != nil {
			return err
		}
	}
	return nil
}

// dispatchHook is the tagged-variant match standing in for trait-object
// dispatch.
func (k *Kernel) dispatchHook(h KernelHook, point hookPoint, actor Actor, frame *Frame) error {
	switch h {
	case HookLimits:
		if point == pointBeforePushFrame && frame.Depth > k.maxDepth {
			return ErrDepthLimitExceeded
		}
	case HookCosting:
		if point == pointBeforeInvoke && k.Fee != nil && k.Costs != nil {
			return k.Fee.ConsumeExecution(k.Costs.Cost(costtable.OpInvoke), 1, "invoke", false)
		}
	case HookFee:
		// fee accounting itself happens through explicit ConsumeExecution /
		// ConsumeRoyalty calls from the manifest processor and HookCosting
		// above; no additional work fires at frame boundaries.
	case HookAuth:
		if point == pointBeforePushFrame && k.Auth != nil {
			return k.checkAuth(actor, frame)
		}
	case HookLogging:
		if point == pointBeforePushFrame {
			k.log.WithFields(logrus.Fields{"depth": frame.Depth, "method": actor.Method}).Info("frame pushed")
		}
	}
	return nil
}

func (k *Kernel) checkAuth(actor Actor, frame *Frame) error {
	caller := k.frames[len(k.frames)-1]
	if actor.Receiver != nil {
		return k.Auth.CheckMethodCall(caller.Zone, actor.Package, actor.Blueprint, *actor.Receiver, actor.Method, actor.CallerPackage)
	}
	return k.Auth.CheckFunctionCall(caller.Zone, actor.Package, actor.Blueprint, actor.Method, actor.CallerPackage)
}

// AllocateNodeID mints a fresh node id (allocate_node_id).
func (k *Kernel) AllocateNodeID(entity ids.EntityType) (ids.NodeId, error) {
	return k.Alloc.Next(entity)
}

// CreateNode inserts a brand-new node onto the heap.
func (k *Kernel) CreateNode(id ids.NodeId, entity ids.EntityType) error {
	if err := k.Heap.CreateNode(id, entity); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if frame := k.CurrentFrame(); frame != nil {
		frame.Visible[id] = true
	}
	return nil
}

// DropNode removes a node from the heap (drop_node).
func (k *Kernel) DropNode(id ids.NodeId) (*heap.Node, error) {
	n, err := k.Heap.DropNode(id)
	if err != nil {
		return nil, ErrDropNodeFailure
	}
	return n, nil
}

// Globalize relocates a heap node into the substate store under a stable
// global address (globalize).
func (k *Kernel) Globalize(localID, globalID ids.NodeId) error {
	return k.Heap.Globalize(localID, globalID, k.Store)
}

// LockSubstate acquires a lock on behalf of the current frame.
func (k *Kernel) LockSubstate(node ids.NodeId, partition substate.Partition, key substate.Key, flags lockmgr.Flags) (lockmgr.Handle, error) {
	frame := k.CurrentFrame()
	if frame == nil {
		return 0, fmt.Errorf("kernel: LockSubstate with no open frame")
	}
	h, err := k.Locks.Lock(frame.Depth, node, partition, key, flags)
	if err != nil {
		return 0, err
	}
	frame.OpenLocks = append(frame.OpenLocks, h)
	return h, nil
}

// DropLock releases a lock held by the current frame.
func (k *Kernel) DropLock(h lockmgr.Handle) error {
	frame := k.CurrentFrame()
	if frame == nil {
		return fmt.Errorf("kernel: DropLock with no open frame")
	}
	return k.Locks.Drop(frame.Depth, h)
}

// Depth reports the current frame's depth (0 for the root frame).
func (k *Kernel) Depth() int {
	if f := k.CurrentFrame(); f != nil {
		return f.Depth
	}
	return -1
}
