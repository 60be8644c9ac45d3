// Package accesscontroller implements the multi-role timed-recovery state
// machine: the canonical long-lived protocol state machine the runtime
// must support, where a primary, recovery, and confirmation role jointly
// govern who can replace a vault's access rules.
//
// Grounded on core/access_control.go's role-storage idiom (role keys
// resolved to access rules, guarded by a mutex, logged on every mutation),
// adapted from a flat grant/revoke role model to this proposal-based
// recovery state machine.
package accesscontroller

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"txruntime/engine/resource"
)

// Errors, one per named transition failure.
var (
	ErrOperationRequiresUnlockedPrimaryRole = fmt.Errorf("accesscontroller: OperationRequiresUnlockedPrimaryRole")
	ErrRecoveryAlreadyExists                = fmt.Errorf("accesscontroller: RecoveryForThisProposerAlreadyExists")
	ErrRecoveryDoesNotExist                 = fmt.Errorf("accesscontroller: RecoveryForThisProposerDoesNotExist")
	ErrProposerAndConfirmorAreTheSame       = fmt.Errorf("accesscontroller: ProposerAndConfirmorAreTheSame")
	ErrRecoveryProposalMismatch             = fmt.Errorf("accesscontroller: RecoveryProposalMismatch")
	ErrTimedRecoveryDelayHasNotElapsed      = fmt.Errorf("accesscontroller: TimedRecoveryDelayHasNotElapsed")
	ErrTimeOverflow                         = fmt.Errorf("accesscontroller: TimeOverflow")
	ErrNotInRecovery                        = fmt.Errorf("accesscontroller: not in Recovery state")
	ErrEmptyBucket                          = fmt.Errorf("accesscontroller: controlled asset vault is empty")
)

// Proposer names which of the three roles initiated a recovery proposal.
type Proposer string

const (
	ProposerPrimary Proposer = "primary"
	ProposerRecovery Proposer = "recovery"
	ProposerConfirmation Proposer = "confirmation"
)

// RuleSet is the new (primary, recovery, confirmation) access-rule
// assignment a successful recovery installs.
type RuleSet struct {
	Primary      resource.AccessRule
	Recovery     resource.AccessRule
	Confirmation resource.AccessRule
}

// Equal does a field-by-field comparison, used for the proposal-match
// check quick/timed confirm require: the confirmed rule set must match
// the proposed one exactly.
func (r RuleSet) Equal(other RuleSet) bool {
	return ruleEqual(r.Primary, other.Primary) &&
		ruleEqual(r.Recovery, other.Recovery) &&
		ruleEqual(r.Confirmation, other.Confirmation)
}

func ruleEqual(a, b resource.AccessRule) bool {
	if a.Kind != b.Kind {
		return false
	}
	return proofRuleEqual(a.Proof, b.Proof)
}

func proofRuleEqual(a, b resource.ProofRule) bool {
	if a.Kind != b.Kind || a.Count != b.Count || len(a.Rules) != len(b.Rules) {
		return false
	}
	if (a.GlobalID == nil) != (b.GlobalID == nil) {
		return false
	}
	if a.GlobalID != nil && *a.GlobalID != *b.GlobalID {
		return false
	}
	if a.GlobalID == nil && a.Resource != b.Resource {
		return false
	}
	for i := range a.Rules {
		if !proofRuleEqual(a.Rules[i], b.Rules[i]) {
			return false
		}
	}
	return true
}

// StateKind tags which of the three named states is active.
type StateKind int

const (
	StateNormal StateKind = iota
	StateRecovery
	StatePrimaryLocked
)

// proposalEntry pairs a proposed rule set with the minute it was opened.
type proposalEntry struct {
	proposal  RuleSet
	startedAt uint64
}

// Controller is the access-controller blueprint's in-memory state, one
// instance per controlled vault.
type Controller struct {
	mu sync.Mutex

	kind          StateKind
	primaryLocked bool
	proposals     map[Proposer]proposalEntry

	roles   RuleSet
	delayMinutes uint64

	log *logrus.Entry
}

// New constructs a Controller in the Normal, unlocked state.
func New(initial RuleSet, timedRecoveryDelayMinutes uint64, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		kind:         StateNormal,
		proposals:    make(map[Proposer]proposalEntry),
		roles:        initial,
		delayMinutes: timedRecoveryDelayMinutes,
		log:          log,
	}
}

// State reports the current state kind.
func (c *Controller) State() StateKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveState()
}

func (c *Controller) effectiveState() StateKind {
	if c.primaryLocked {
		return StatePrimaryLocked
	}
	if len(c.proposals) > 0 {
		return StateRecovery
	}
	return StateNormal
}

// CreateProof runs the create_proof transition: allowed only while primary
// is unlocked.
func (c *Controller) CreateProof(vault *resource.Bucket) (resource.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primaryLocked {
		return resource.Resource{}, ErrOperationRequiresUnlockedPrimaryRole
	}
	if vault.Resource.IsEmpty() {
		return resource.Resource{}, ErrEmptyBucket
	}
	return vault.Resource, nil
}

// InitiateRecoveryAs implements initiate_recovery_as.
func (c *Controller) InitiateRecoveryAs(proposer Proposer, proposal RuleSet, nowMinutes uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.proposals[proposer]; exists {
		return ErrRecoveryAlreadyExists
	}
	c.proposals[proposer] = proposalEntry{proposal: proposal, startedAt: nowMinutes}
	c.log.WithField("proposer", proposer).Info("recovery proposal opened")
	return nil
}

// QuickConfirmRecovery implements quick_confirm_recovery.
func (c *Controller) QuickConfirmRecovery(confirmor, proposer Proposer, expected RuleSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if confirmor == proposer {
		return ErrProposerAndConfirmorAreTheSame
	}
	entry, ok := c.proposals[proposer]
	if !ok {
		return ErrRecoveryDoesNotExist
	}
	if !entry.proposal.Equal(expected) {
		return ErrRecoveryProposalMismatch
	}
	c.installAndClear(expected)
	return nil
}

// TimedConfirmRecovery implements timed_confirm_recovery: requires the
// elapsed minutes since the matching proposal was opened to be at least the
// configured delay.
func (c *Controller) TimedConfirmRecovery(proposer Proposer, expected RuleSet, nowMinutes uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.proposals[proposer]
	if !ok {
		return ErrRecoveryDoesNotExist
	}
	if !entry.proposal.Equal(expected) {
		return ErrRecoveryProposalMismatch
	}
	if nowMinutes < entry.startedAt {
		return ErrTimeOverflow
	}
	elapsed := nowMinutes - entry.startedAt
	if elapsed < c.delayMinutes {
		return ErrTimedRecoveryDelayHasNotElapsed
	}
	c.installAndClear(expected)
	return nil
}

func (c *Controller) installAndClear(rules RuleSet) {
	c.roles = rules
	c.proposals = make(map[Proposer]proposalEntry)
	c.log.Info("recovery confirmed, role assignment updated")
}

// CancelRecoveryAttemptAs implements cancel_recovery_attempt_as.
func (c *Controller) CancelRecoveryAttemptAs(proposer Proposer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.proposals[proposer]; !ok {
		return ErrRecoveryDoesNotExist
	}
	delete(c.proposals, proposer)
	return nil
}

// StopTimedRecovery implements stop_timed_recovery as a transition distinct
// from cancel: valid only while in Recovery and the given proposal matches
// some open proposer's entry. Unlike CancelRecoveryAttemptAs it accepts any
// caller, not just the original proposer, and stops the clock on a recovery
// the group has decided not to let finish.
func (c *Controller) StopTimedRecovery(proposal RuleSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.effectiveState() != StateRecovery {
		return ErrNotInRecovery
	}
	for proposer, entry := range c.proposals {
		if entry.proposal.Equal(proposal) {
			delete(c.proposals, proposer)
			return nil
		}
	}
	return ErrRecoveryDoesNotExist
}

// LockPrimaryRole implements lock_primary_role, idempotent.
func (c *Controller) LockPrimaryRole() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primaryLocked = true
}

// UnlockPrimaryRole implements unlock_primary_role, idempotent.
func (c *Controller) UnlockPrimaryRole() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primaryLocked = false
}

// Roles returns the currently installed rule set.
func (c *Controller) Roles() RuleSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles
}
