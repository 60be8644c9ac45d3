package manifest

import (
	"fmt"

	"txruntime/engine/authmodule"
	"txruntime/engine/ids"
	"txruntime/engine/kernel"
	"txruntime/engine/resource"
	"txruntime/engine/sandbox"
	"txruntime/engine/sbor"
)

// ErrNoInvoker is returned when a call instruction runs against a Processor
// with no Invoker configured.
var ErrNoInvoker = fmt.Errorf("manifest: no invoker configured for call instructions")

// CallResult is what an Invoker hands back to the processor: the callee's
// raw output plus any buckets/proofs it returns. Returned buckets auto-move
// onto the worktop and returned proofs onto the current auth zone, the
// invocation contract's final step.
type CallResult struct {
	Output          []byte
	ReturnedBuckets []resource.Bucket
	ReturnedProofs  []resource.Proof
}

// Invoker dispatches one resolved call instruction to its blueprint body.
// Buckets and proofs move to and from the callee directly, out of band from
// the kernel's node-ownership Movement: they are transient heap-absent
// values the manifest processor already owns, not substates a callee could
// address by id (the same distinction kernel.Invoke's doc comment draws
// between a generic up-movement and "the manifest processor's job").
type Invoker interface {
	Invoke(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (CallResult, error)
}

// PackageLoader resolves a package+blueprint+method to the WASM module
// bytes and export name backing it, the host's view of a package node's
// code substate.
type PackageLoader interface {
	Export(pkg, blueprint ids.NodeId, method authmodule.MethodKey) (wasmModule []byte, export string, err error)
}

// nativeKey identifies one natively implemented (blueprint, method) pair:
// the built-in blueprints (AccessController, EpochManager, Clock, resource
// managers) that the source implements directly rather than compiling to
// WASM.
type nativeKey struct {
	Blueprint ids.NodeId
	Method    authmodule.MethodKey
}

// NativeMethod is one native blueprint's handler for a single method.
type NativeMethod func(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (CallResult, error)

// NativeRegistry maps (blueprint, method) to a Go-implemented handler.
type NativeRegistry struct {
	methods map[nativeKey]NativeMethod
}

// NewNativeRegistry returns an empty registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{methods: make(map[nativeKey]NativeMethod)}
}

// Register installs a handler for one (blueprint, method) pair.
func (r *NativeRegistry) Register(blueprint ids.NodeId, method authmodule.MethodKey, fn NativeMethod) {
	r.methods[nativeKey{blueprint, method}] = fn
}

func (r *NativeRegistry) lookup(blueprint ids.NodeId, method authmodule.MethodKey) (NativeMethod, bool) {
	fn, ok := r.methods[nativeKey{blueprint, method}]
	return fn, ok
}

// SandboxInvoker runs a call against a compiled WASM export. It carries no
// bucket/proof semantics of its own: a user blueprint that needs to move a
// bucket does so through host calls during its own execution, which is
// outside this processor's contract (see DESIGN.md), so ReturnedBuckets and
// ReturnedProofs are always empty here.
type SandboxInvoker struct {
	Packages PackageLoader
	Sandbox  sandbox.Invoker
}

// NewSandboxInvoker wires a PackageLoader to a sandbox.Invoker.
func NewSandboxInvoker(packages PackageLoader, sb sandbox.Invoker) *SandboxInvoker {
	return &SandboxInvoker{Packages: packages, Sandbox: sb}
}

func (s *SandboxInvoker) Invoke(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (CallResult, error) {
	wasmModule, export, err := s.Packages.Export(actor.Package, actor.Blueprint, actor.Method)
	if err != nil {
		return CallResult{}, err
	}
	argsEnvelope, err := encodeCallArgs(rawArgs, buckets, proofs)
	if err != nil {
		return CallResult{}, err
	}

	barrier := actor.Package != actor.CallerPackage
	output, err := k.Invoke(actor, kernel.Movement{}, barrier, argsEnvelope, func(k *kernel.Kernel, frame *kernel.Frame, args []byte) (kernel.Movement, []byte, error) {
		out, execErr := s.Sandbox.Invoke(wasmModule, export, args, sandbox.HostCallbacks{
			ConsumeGas: func(units uint64) error {
				return k.Fee.ConsumeExecution(units, 1, string(actor.Method), false)
			},
			Log: func(msg string) {
				k.CurrentFrame() // touch the kernel so a future structured-log hook has a frame to attribute this line to
			},
		})
		return kernel.Movement{}, out, execErr
	})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Output: output}, nil
}

// CompositeInvoker tries the native registry first, falling back to the
// sandbox for anything not natively implemented. This mirrors how the
// source itself ships a handful of built-in blueprints alongside
// general-purpose WASM packages.
type CompositeInvoker struct {
	Native  *NativeRegistry
	Sandbox *SandboxInvoker
}

// NewCompositeInvoker wires a native registry and a sandbox invoker
// together; either may be nil if this runtime only ever dispatches one kind
// of call.
func NewCompositeInvoker(native *NativeRegistry, sb *SandboxInvoker) *CompositeInvoker {
	return &CompositeInvoker{Native: native, Sandbox: sb}
}

func (c *CompositeInvoker) Invoke(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (CallResult, error) {
	if c.Native != nil {
		if fn, ok := c.Native.lookup(actor.Blueprint, actor.Method); ok {
			return invokeNative(k, actor, fn, rawArgs, buckets, proofs)
		}
	}
	if c.Sandbox != nil {
		return c.Sandbox.Invoke(k, actor, rawArgs, buckets, proofs)
	}
	return CallResult{}, ErrNoInvoker
}

// invokeNative runs a Go-implemented blueprint handler through the same
// kernel.Invoke frame-push/auth/hook pipeline a sandboxed call goes
// through, just without the SBOR round trip a WASM export would need:
// native handlers already operate on Go buckets/proofs directly.
func invokeNative(k *kernel.Kernel, actor kernel.Actor, fn NativeMethod, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (CallResult, error) {
	barrier := actor.Package != actor.CallerPackage
	var result CallResult
	_, err := k.Invoke(actor, kernel.Movement{}, barrier, nil, func(k *kernel.Kernel, frame *kernel.Frame, args []byte) (kernel.Movement, []byte, error) {
		res, err := fn(k, actor, rawArgs, buckets, proofs)
		if err != nil {
			return kernel.Movement{}, nil, err
		}
		result = res
		return kernel.Movement{}, res.Output, nil
	})
	if err != nil {
		return CallResult{}, err
	}
	return result, nil
}

// encodeCallArgs bundles resolved raw arguments and moved buckets/proofs
// into one SBOR tuple, the wire form a sandboxed callee reads its
// arguments from (native handlers receive Go values instead). Buckets/proofs are carried as CustomBucket/CustomProof
// references to their node id; the callee resolves the id back to the
// resource.Bucket/Proof value through whatever binding its own call
// convention uses.
func encodeCallArgs(rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) ([]byte, error) {
	elems := make([]sbor.Value, 0, len(rawArgs)+len(buckets)+len(proofs))
	for _, raw := range rawArgs {
		v, err := sbor.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode call argument: %w", err)
		}
		elems = append(elems, v)
	}
	for _, b := range buckets {
		elems = append(elems, sbor.Custom(sbor.CustomBucket, b.ID.Bytes()))
	}
	for _, p := range proofs {
		elems = append(elems, sbor.Custom(sbor.CustomProof, p.ID.Bytes()))
	}
	return sbor.Encode(sbor.Tuple(elems...))
}

// Call dispatches a CallFunction/CallMethod/CallRoyaltyMethod/
// CallMetadataMethod/CallAccessRulesMethod instruction: it resolves the
// instruction's arguments against the worktop/name maps, builds the callee's
// Actor identity, runs it through the configured Invoker, and auto-moves any
// returned buckets/proofs onto the worktop and auth zone.
func (p *Processor) Call(inst Instruction) ([]byte, error) {
	if p.Invoker == nil {
		return nil, ErrNoInvoker
	}
	rawArgs, buckets, proofs, err := p.ResolveArgs(inst.Args)
	if err != nil {
		return nil, err
	}

	caller := p.K.CurrentFrame()
	actor := kernel.Actor{
		Package:       inst.Package,
		Blueprint:     inst.Blueprint,
		CallerPackage: caller.Actor.Package,
	}
	switch inst.Kind {
	case CallFunction:
		actor.Method = authmodule.MethodKey(inst.Function)
	case CallMethod, CallRoyaltyMethod, CallMetadataMethod, CallAccessRulesMethod:
		actor.Method = authmodule.MethodKey(inst.Method)
		recv := inst.Address
		actor.Receiver = &recv
	}

	result, err := p.Invoker.Invoke(p.K, actor, rawArgs, buckets, proofs)
	if err != nil {
		return nil, err
	}
	for _, b := range result.ReturnedBuckets {
		if err := p.ReturnBucket(b); err != nil {
			return nil, err
		}
	}
	for _, proof := range result.ReturnedProofs {
		p.ReturnProof(proof)
	}
	return result.Output, nil
}
