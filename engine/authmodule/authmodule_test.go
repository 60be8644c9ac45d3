package authmodule

import (
	"testing"

	"txruntime/engine/ids"
	"txruntime/engine/resource"
)

type fakeLookup struct {
	tmpl Template
	err  error
}

func (f fakeLookup) Lookup(pkg, blueprint ids.NodeId) (Template, error) {
	return f.tmpl, f.err
}

type fakeRoles struct {
	rule resource.AccessRule
	err  error
}

func (f fakeRoles) RoleRule(node ids.NodeId, role resource.RoleKey) (resource.AccessRule, error) {
	return f.rule, f.err
}

type fakeZone struct{ satisfied bool }

func (z fakeZone) Satisfies(rule resource.ProofRule) bool { return z.satisfied }

func newModule(t *testing.T, tmpl Template, roles RoleAssignments) *Module {
	t.Helper()
	m, err := New(fakeLookup{tmpl: tmpl}, roles, 16, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestPublicMethodAlwaysAllowed(t *testing.T) {
	tmpl := Template{Methods: map[MethodKey]resource.MethodAccessibility{
		"deposit": {Kind: resource.Public},
	}}
	m := newModule(t, tmpl, nil)
	err := m.CheckMethodCall(fakeZone{satisfied: false}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "deposit", ids.NodeId{})
	if err != nil {
		t.Fatalf("expected Public method to be allowed, got %v", err)
	}
}

func TestUnmappedMethodIsRejected(t *testing.T) {
	tmpl := Template{Methods: map[MethodKey]resource.MethodAccessibility{}}
	m := newModule(t, tmpl, nil)
	err := m.CheckMethodCall(fakeZone{}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "missing", ids.NodeId{})
	if err != ErrNoMethodMapping {
		t.Fatalf("expected ErrNoMethodMapping, got %v", err)
	}
}

func TestOwnPackageOnlyRequiresCallerPackageMatch(t *testing.T) {
	var callerPkg ids.NodeId
	callerPkg[0] = 9
	tmpl := Template{Methods: map[MethodKey]resource.MethodAccessibility{
		"withdraw": {Kind: resource.OwnPackageOnly},
	}}
	m := newModule(t, tmpl, nil)

	if err := m.CheckMethodCall(fakeZone{satisfied: false}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "withdraw", callerPkg); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized when the zone doesn't satisfy the rule, got %v", err)
	}
	if err := m.CheckMethodCall(fakeZone{satisfied: true}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "withdraw", callerPkg); err != nil {
		t.Fatalf("expected success when the zone satisfies the rule, got %v", err)
	}
}

func TestRoleProtectedChecksEveryRoleUntilOneSatisfies(t *testing.T) {
	tmpl := Template{
		Methods: map[MethodKey]resource.MethodAccessibility{
			"recover": {Kind: resource.RoleProtected, Roles: resource.RoleList{"primary", "recovery"}},
		},
		RoleAssignmentSelf: true,
	}
	roles := fakeRoles{rule: resource.AllowAll}
	m := newModule(t, tmpl, roles)
	if err := m.CheckMethodCall(fakeZone{}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "recover", ids.NodeId{}); err != nil {
		t.Fatalf("expected an AllowAll role rule to grant access, got %v", err)
	}
}

func TestRoleProtectedRejectsWhenNoRoleSatisfies(t *testing.T) {
	tmpl := Template{
		Methods: map[MethodKey]resource.MethodAccessibility{
			"recover": {Kind: resource.RoleProtected, Roles: resource.RoleList{"primary"}},
		},
		RoleAssignmentSelf: true,
	}
	roles := fakeRoles{rule: resource.DenyAll}
	m := newModule(t, tmpl, roles)
	if err := m.CheckMethodCall(fakeZone{}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "recover", ids.NodeId{}); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOuterObjectOnlyRequiresConfiguredOuterObject(t *testing.T) {
	tmpl := Template{
		Methods: map[MethodKey]resource.MethodAccessibility{
			"metadata": {Kind: resource.OuterObjectOnly},
		},
	}
	m := newModule(t, tmpl, nil)
	if err := m.CheckMethodCall(fakeZone{}, ids.NodeId{}, ids.NodeId{}, ids.NodeId{}, "metadata", ids.NodeId{}); err != ErrInvalidOuterObjectMapping {
		t.Fatalf("expected ErrInvalidOuterObjectMapping when no outer object is configured, got %v", err)
	}
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	tmpl := Template{Methods: map[MethodKey]resource.MethodAccessibility{
		"noop": {Kind: resource.Public},
	}}
	m := newModule(t, tmpl, nil)
	for i := 0; i < 3; i++ {
		if err := m.CheckFunctionCall(fakeZone{}, ids.NodeId{}, ids.NodeId{}, "noop", ids.NodeId{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if m.cache.Len() != 1 {
		t.Fatalf("expected one cached resolution for noop, got %d", m.cache.Len())
	}
}
