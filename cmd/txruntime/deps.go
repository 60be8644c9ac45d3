package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"txruntime/engine/authmodule"
	"txruntime/engine/ids"
	"txruntime/engine/kernel"
	"txruntime/engine/manifest"
	"txruntime/engine/resource"
	"txruntime/engine/sandbox"
)

// openLookup grants Public accessibility to exactly the methods and
// functions named in the manifest being run, regardless of which package
// or blueprint they target. A real deployment resolves PackageAuth from
// substate history (authmodule.PackageAuthLookup's actual contract); the
// CLI has no such history, so dry-run/execute build this from the
// manifest's own call instructions before constructing the auth module.
type openLookup struct {
	methods map[authmodule.MethodKey]resource.MethodAccessibility
}

func newOpenLookup(instructions []manifest.Instruction) openLookup {
	methods := make(map[authmodule.MethodKey]resource.MethodAccessibility)
	for _, inst := range instructions {
		switch inst.Kind {
		case manifest.CallFunction:
			methods[authmodule.MethodKey(inst.Function)] = resource.MethodAccessibility{Kind: resource.Public}
		case manifest.CallMethod, manifest.CallRoyaltyMethod, manifest.CallMetadataMethod, manifest.CallAccessRulesMethod:
			methods[authmodule.MethodKey(inst.Method)] = resource.MethodAccessibility{Kind: resource.Public}
		}
	}
	return openLookup{methods: methods}
}

func (o openLookup) Lookup(pkg, blueprint ids.NodeId) (authmodule.Template, error) {
	return authmodule.Template{Methods: o.methods, RoleAssignmentSelf: true}, nil
}

// noRoles is a RoleAssignments that never resolves a role, adequate for the
// CLI since openLookup only ever hands out Public accessibility and so
// never drives authmodule into the RoleProtected branch that would
// consult it.
type noRoles struct{}

func (noRoles) RoleRule(node ids.NodeId, role resource.RoleKey) (resource.AccessRule, error) {
	return resource.AccessRule{}, fmt.Errorf("txruntime: no role assignments configured")
}

// filePackageLoader resolves a blueprint's compiled module from
// <dir>/<package-hex>/<blueprint-hex>.wasm, exporting a function named
// after the called method, the simplest on-disk layout that lets a CLI
// user point at a directory of compiled packages without a real package
// publish flow.
type filePackageLoader struct {
	dir string
}

func (f filePackageLoader) Export(pkg, blueprint ids.NodeId, method authmodule.MethodKey) (wasmModule []byte, export string, err error) {
	path := filepath.Join(f.dir, pkg.Hex(), blueprint.Hex()+".wasm")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("txruntime: loading package module %s: %w", path, err)
	}
	return data, string(method), nil
}

// echoBlueprint is a trivial always-available native blueprint
// (blueprint id all-zero, method "echo", any package) that hands its call
// arguments back unchanged, enough to exercise the call-instruction
// dispatch path end to end from dry-run without a compiled package on
// disk.
var echoBlueprint = ids.NodeId{}

func registerBuiltinNatives(reg *manifest.NativeRegistry) {
	reg.Register(echoBlueprint, authmodule.MethodKey("echo"), func(k *kernel.Kernel, actor kernel.Actor, rawArgs [][]byte, buckets []resource.Bucket, proofs []resource.Proof) (manifest.CallResult, error) {
		var out []byte
		for _, a := range rawArgs {
			out = append(out, a...)
		}
		return manifest.CallResult{Output: out, ReturnedBuckets: buckets, ReturnedProofs: proofs}, nil
	})
}

func buildInvoker(wasmDir string, log *logrus.Entry) manifest.Invoker {
	native := manifest.NewNativeRegistry()
	registerBuiltinNatives(native)

	if wasmDir == "" {
		return &manifest.CompositeInvoker{Native: native}
	}
	loader := filePackageLoader{dir: wasmDir}
	sb := manifest.NewSandboxInvoker(loader, sandbox.NewWasmerInvoker(log))
	return manifest.NewCompositeInvoker(native, sb)
}
