// Package authmodule implements the permission-resolution kernel module:
// resolving method/function call permissions from a blueprint's template,
// and checking the requesting auth zone against the resulting AccessRule.
//
// Grounded on core/access_control.go's role storage (keyed by
// address+role, an in-memory cache in front of the substate store),
// adapted from a flat address/role model to the role-assignment-module
// indirection this package implements. The resolved-permission cache uses
// hashicorp/golang-lru the way core/access_control.go used a plain map
// cache, bounded here since a long transaction may touch many blueprints.
package authmodule

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"txruntime/engine/ids"
	"txruntime/engine/resource"
)

// ErrUnauthorized is returned when no role/rule in method_permissions is
// satisfied by the current auth zone.
var ErrUnauthorized = fmt.Errorf("authmodule: Unauthorized")

// ErrNoMethodMapping is returned when the callee's template has no entry
// for the requested method.
var ErrNoMethodMapping = fmt.Errorf("authmodule: NoMethodMapping")

// ErrInvalidOuterObjectMapping is returned when an OuterObjectOnly method
// is resolved on a component with no outer object.
var ErrInvalidOuterObjectMapping = fmt.Errorf("authmodule: InvalidOuterObjectMapping")

// MethodKey identifies one method or function within a blueprint template.
type MethodKey string

// Template is the stored PackageAuth entry for one blueprint: per-method
// accessibility, plus whether role_assignment_of is the component itself or
// its outer object (the "inherited specification" case).
type Template struct {
	Methods           map[MethodKey]resource.MethodAccessibility
	RoleAssignmentSelf bool // true: role_assignment_of == callee; false: == outer object
	OuterObject        ids.NodeId
	Package            ids.NodeId
}

// RoleAssignments resolves a RoleKey on some node to its current
// AccessRule; a thin seam over whatever the role-assignment module's
// substates actually hold.
type RoleAssignments interface {
	RoleRule(node ids.NodeId, role resource.RoleKey) (resource.AccessRule, error)
}

// AuthZone is the subset of the per-frame auth zone the module needs to
// evaluate ProofRules: enumerating active proofs up to the nearest barrier,
// and testing root-zone virtual signature proofs.
type AuthZone interface {
	Satisfies(rule resource.ProofRule) bool
}

// PackageAuthLookup resolves a callee's blueprint template, the seam over
// wherever package/blueprint metadata actually lives in the substate store.
type PackageAuthLookup interface {
	Lookup(pkg, blueprint ids.NodeId) (Template, error)
}

// Module is the kernel's auth hook: stateless beyond a resolved-permission
// cache, invoked at every before_push_frame.
type Module struct {
	lookup PackageAuthLookup
	roles  RoleAssignments
	cache  *lru.Cache[cacheKey, resource.MethodAccessibility]
	log    *logrus.Entry
}

type cacheKey struct {
	pkg       ids.NodeId
	blueprint ids.NodeId
	method    MethodKey
}

// New constructs a Module with a bounded resolved-permission cache.
func New(lookup PackageAuthLookup, roles RoleAssignments, cacheSize int, log *logrus.Entry) (*Module, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c, err := lru.New[cacheKey, resource.MethodAccessibility](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("authmodule: building cache: %w", err)
	}
	return &Module{lookup: lookup, roles: roles, cache: c, log: log}, nil
}

// CheckMethodCall runs the method-call permission resolution. callerPackage
// is used for OwnPackageOnly checks; OuterObjectOnly checks require a proof
// of the callee template's OuterObject.
func (m *Module) CheckMethodCall(zone AuthZone, pkg, blueprint, callee ids.NodeId, method MethodKey, callerPackage ids.NodeId) error {
	access, err := m.resolve(pkg, blueprint, method)
	if err != nil {
		return err
	}

	switch access.Kind {
	case resource.Public:
		return nil
	case resource.OwnPackageOnly:
		rule := resource.Protected(resource.Require(callerPackage))
		if !m.evaluate(zone, rule) {
			m.log.WithField("method", method).Warn("auth failure: OwnPackageOnly")
			return ErrUnauthorized
		}
		return nil
	case resource.OuterObjectOnly:
		tmpl, err := m.lookup.Lookup(pkg, blueprint)
		if err != nil {
			return err
		}
		if tmpl.OuterObject == (ids.NodeId{}) {
			return ErrInvalidOuterObjectMapping
		}
		rule := resource.Protected(resource.Require(tmpl.OuterObject))
		if !m.evaluate(zone, rule) {
			m.log.WithField("method", method).Warn("auth failure: OuterObjectOnly")
			return ErrUnauthorized
		}
		return nil
	case resource.RoleProtected:
		roleAssignmentOf, err := m.roleAssignmentOf(pkg, blueprint, callee)
		if err != nil {
			return err
		}
		for _, role := range access.Roles {
			rule, err := m.roles.RoleRule(roleAssignmentOf, role)
			if err != nil {
				continue
			}
			if m.evaluateAccessRule(zone, rule) {
				return nil
			}
		}
		m.log.WithField("method", method).Warn("auth failure: no role satisfied")
		return ErrUnauthorized
	default:
		return fmt.Errorf("authmodule: unknown accessibility kind %d", access.Kind)
	}
}

// CheckFunctionCall runs the function-call resolution: same flow as a
// method call, keyed on blueprint+function, no receiver and
// therefore no RoleProtected/OuterObjectOnly possibility in practice — but
// the template format is shared, so delegate with a zero receiver.
func (m *Module) CheckFunctionCall(zone AuthZone, pkg, blueprint ids.NodeId, fn MethodKey, callerPackage ids.NodeId) error {
	return m.CheckMethodCall(zone, pkg, blueprint, ids.NodeId{}, fn, callerPackage)
}

func (m *Module) resolve(pkg, blueprint ids.NodeId, method MethodKey) (resource.MethodAccessibility, error) {
	key := cacheKey{pkg: pkg, blueprint: blueprint, method: method}
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}
	tmpl, err := m.lookup.Lookup(pkg, blueprint)
	if err != nil {
		return resource.MethodAccessibility{}, fmt.Errorf("authmodule: template lookup: %w", err)
	}
	access, ok := tmpl.Methods[method]
	if !ok {
		return resource.MethodAccessibility{}, ErrNoMethodMapping
	}
	m.cache.Add(key, access)
	return access, nil
}

func (m *Module) roleAssignmentOf(pkg, blueprint, callee ids.NodeId) (ids.NodeId, error) {
	tmpl, err := m.lookup.Lookup(pkg, blueprint)
	if err != nil {
		return ids.NodeId{}, err
	}
	if tmpl.RoleAssignmentSelf {
		return callee, nil
	}
	return tmpl.OuterObject, nil
}

func (m *Module) evaluate(zone AuthZone, rule resource.AccessRule) bool {
	return m.evaluateAccessRule(zone, rule)
}

// evaluateAccessRule runs the auth-zone check against an AccessRule: AllowAll passes, DenyAll fails, Protected recurses into the
// ProofRule via the zone's own Satisfies (which owns barrier semantics).
func (m *Module) evaluateAccessRule(zone AuthZone, rule resource.AccessRule) bool {
	switch rule.Kind {
	case resource.RuleAllowAll:
		return true
	case resource.RuleDenyAll:
		return false
	case resource.RuleProtected:
		return zone.Satisfies(rule.Proof)
	default:
		return false
	}
}
