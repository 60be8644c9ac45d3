// Package sandbox wraps the WebAssembly runtime used to execute user
// blueprints. The sandbox itself is an external collaborator specified
// only by contract; this package is the narrow Invoker seam the kernel
// calls through, with one production implementation backed by wasmer-go.
//
// Grounded on core/virtual_machine.go's HeavyVM, which wraps
// wasmer.NewEngine/NewStore/NewModule/NewInstance and registers host
// functions (host_consume_gas, host_read, host_write, host_log) under the
// "env" import namespace; the shape here is the same, trimmed to two
// imports: host_consume_gas and host_log. HostCallbacks.Read and Write are
// not bound to any import, so a module cannot call them.
package sandbox

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// HostCallbacks are the functions a running module invokes back into the
// kernel through, mirroring core/virtual_machine.go's host_* imports.
type HostCallbacks struct {
	ConsumeGas func(units uint64) error
	Read       func(ptr, length uint32) ([]byte, error)
	Write      func(ptr uint32, data []byte) error
	Log        func(msg string)
}

// Invoker runs a compiled blueprint export against a byte-encoded argument
// buffer and returns its byte-encoded result. manifest.SandboxInvoker
// reaches the sandbox only through this interface, so any implementation
// can stand in for WasmerInvoker; no test in this module supplies one.
type Invoker interface {
	Invoke(wasmModule []byte, export string, args []byte, cb HostCallbacks) ([]byte, error)
}

// WasmerInvoker is the production Invoker, one wasmer-go engine/store per
// instance, matching HeavyVM's per-VM engine/store pair.
type WasmerInvoker struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	log    *logrus.Entry
}

// NewWasmerInvoker constructs a WasmerInvoker with a fresh engine and
// store.
func NewWasmerInvoker(log *logrus.Entry) *WasmerInvoker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	engine := wasmer.NewEngine()
	return &WasmerInvoker{engine: engine, store: wasmer.NewStore(engine), log: log}
}

// Invoke compiles wasmModule (cached by the caller across calls within a
// transaction if desired), instantiates it with the host_* imports bound to
// cb, calls export with args written into the instance's linear memory, and
// returns whatever export writes back.
func (w *WasmerInvoker) Invoke(wasmModule []byte, export string, args []byte, cb HostCallbacks) ([]byte, error) {
	module, err := wasmer.NewModule(w.store, wasmModule)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile module: %w", err)
	}

	importObject := wasmer.NewImportObject()
	envFns := map[string]wasmer.IntoExtern{
		"host_consume_gas": wasmer.NewFunction(
			w.store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I64), wasmer.NewValueTypes()),
			func(vals []wasmer.Value) ([]wasmer.Value, error) {
				if cb.ConsumeGas != nil {
					if err := cb.ConsumeGas(uint64(vals[0].I64())); err != nil {
						return nil, err
					}
				}
				return []wasmer.Value{}, nil
			},
		),
		"host_log": wasmer.NewFunction(
			w.store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes()),
			func(vals []wasmer.Value) ([]wasmer.Value, error) {
				if cb.Log != nil {
					cb.Log(fmt.Sprintf("blueprint log at ptr=%d len=%d", vals[0].I32(), vals[1].I32()))
				}
				return []wasmer.Value{}, nil
			},
		),
	}
	importObject.Register("env", envFns)

	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, fmt.Errorf("sandbox: instantiate: %w", err)
	}

	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		return nil, fmt.Errorf("sandbox: NativeExportMissing: export %q: %w", export, err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("sandbox: module does not export linear memory: %w", err)
	}
	ptr, length, err := writeArgs(mem, args)
	if err != nil {
		return nil, err
	}

	result, err := fn(ptr, length)
	if err != nil {
		return nil, fmt.Errorf("sandbox: call %q: %w", export, err)
	}
	return readResult(mem, result)
}

func writeArgs(mem *wasmer.Memory, args []byte) (int32, int32, error) {
	data := mem.Data()
	if len(args) > len(data) {
		return 0, 0, fmt.Errorf("sandbox: args exceed linear memory size")
	}
	copy(data, args)
	return 0, int32(len(args)), nil
}

func readResult(mem *wasmer.Memory, raw interface{}) ([]byte, error) {
	// Blueprint exports in this runtime return a packed (ptr<<32 | len) i64,
	// the same convention core/virtual_machine.go's host ABI used.
	packed, ok := raw.(int64)
	if !ok {
		return nil, fmt.Errorf("sandbox: unexpected export return shape %T", raw)
	}
	ptr := uint32(packed >> 32)
	length := uint32(packed & 0xffffffff)
	data := mem.Data()
	if uint64(ptr)+uint64(length) > uint64(len(data)) {
		return nil, fmt.Errorf("sandbox: export result out of bounds")
	}
	return append([]byte(nil), data[ptr:ptr+length]...), nil
}
