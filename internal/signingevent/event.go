// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package signingevent evaluates the state of a signing event: the
// difference between a trusted base state and a candidate state on an
// event branch, the validity of every changed role, and how far each
// role is from its signing threshold. Evaluation is a pure function of
// the two states and the clock; it never mutates either state.
package signingevent

import (
	"github.com/tufci/tufci/internal/common/set"
	"github.com/tufci/tufci/internal/tuf"
)

// Status classifies a role, or the event as a whole. Role statuses are
// ordered by severity so the aggregate is the maximum over all roles.
type Status int

const (
	// StatusReady means every changed role is verifiable, at threshold
	// and has no open invites.
	StatusReady Status = iota

	// StatusAwaitingSignatures means at least one changed role is below
	// its signing threshold.
	StatusAwaitingSignatures

	// StatusAwaitingInvitees means at least one role has invited
	// signers whose keys are not yet recorded.
	StatusAwaitingInvitees

	// StatusInvalid means at least one role violates a structural or
	// policy rule and must be fixed before signatures matter.
	StatusInvalid

	// StatusNoChange means the candidate state equals the base state.
	StatusNoChange

	// StatusMerged means the event branch no longer exists because its
	// contents were merged.
	StatusMerged
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusAwaitingSignatures:
		return "awaiting signatures"
	case StatusAwaitingInvitees:
		return "awaiting invitees"
	case StatusInvalid:
		return "invalid"
	case StatusNoChange:
		return "no change"
	case StatusMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// ArtifactChanges records how an event changes the artifacts owned by
// one role, relative to the base state.
type ArtifactChanges struct {
	Added    []string
	Modified []string
	Removed  []string
}

func (a *ArtifactChanges) empty() bool {
	return len(a.Added) == 0 && len(a.Modified) == 0 && len(a.Removed) == 0
}

// RoleStatus is the evaluated state of one role touched by the event.
type RoleStatus struct {
	Name   string
	Status Status

	// Messages lists the policy violations when Status is
	// StatusInvalid.
	Messages []string

	// Invites lists signer identities invited into this role's
	// delegations whose keys are not yet recorded.
	Invites []string

	// SignedBy, Missing and InvalidSigs describe the signature state
	// against the candidate signer set. SignedBy and Missing carry
	// signer identities; InvalidSigs carries the offending keyids.
	SignedBy    []string
	Missing     []string
	InvalidSigs []string

	Threshold int
	Satisfied bool
	Version   int

	// Artifacts is set for targets-kind roles whose artifact store
	// changed in the event.
	Artifacts ArtifactChanges

	// NeedsCorrection indicates the role's recorded target files are
	// out of sync with the committed artifacts and the event automation
	// should rewrite the metadata before signing continues.
	NeedsCorrection bool
}

// Event is the evaluated state of one signing event.
type Event struct {
	// Name is the event branch name, e.g. "sign/root-v3".
	Name string

	Status Status

	// Roles holds the status of every role the event touches, top-level
	// roles first.
	Roles []*RoleStatus

	// Errors lists event-level problems that are not attributable to a
	// single role, such as structurally unloadable candidate state or
	// edits to online role metadata.
	Errors []string
}

// aggregate recomputes the event status from its role statuses and
// event-level errors.
func (e *Event) aggregate() {
	if len(e.Errors) > 0 {
		e.Status = StatusInvalid
		return
	}
	if len(e.Roles) == 0 {
		e.Status = StatusNoChange
		return
	}

	status := StatusReady
	for _, role := range e.Roles {
		if role.Status > status {
			status = role.Status
		}
	}
	e.Status = status
}

// orderRoleNames returns the given role names in presentation order:
// root, then the top-level targets role, then everything else sorted.
func orderRoleNames(names *set.Set[string]) []string {
	ordered := []string{}
	for _, name := range []string{tuf.RootRoleName, tuf.TargetsRoleName} {
		if names.Has(name) {
			ordered = append(ordered, name)
		}
	}
	for _, name := range names.Contents() {
		if name != tuf.RootRoleName && name != tuf.TargetsRoleName {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
