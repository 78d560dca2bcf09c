// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package signingevent

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tufci/tufci/internal/common/set"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/threshold"
	"github.com/tufci/tufci/internal/tuf"
)

// Evaluator computes signing event state. The clock is injected so
// expiry arithmetic is testable.
type Evaluator struct {
	clock clockwork.Clock
}

func NewEvaluator(clock clockwork.Clock) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Evaluator{clock: clock}
}

// Evaluate compares the candidate state of the event branch against the
// trusted base state and returns the event's status. Neither state is
// modified; a nil result is only returned alongside an error reading
// one of the states.
func (e *Evaluator) Evaluate(name string, base, candidate roletree.Source) (*Event, error) {
	event := &Event{Name: name}

	candidateTree, err := roletree.Load(candidate)
	if err != nil {
		if isStructural(err) {
			event.Errors = append(event.Errors, err.Error())
			event.aggregate()
			return event, nil
		}
		return nil, err
	}

	// the base is the known-good state; a nil tree means this event
	// bootstraps the repository
	baseTree, err := roletree.Load(base)
	if err != nil {
		if !errors.Is(err, roletree.ErrNoRootMetadata) {
			return nil, fmt.Errorf("unable to load known-good state: %w", err)
		}
		baseTree = nil
	}

	state, err := loadEventState(candidate)
	if err != nil {
		event.Errors = append(event.Errors, err.Error())
		event.aggregate()
		return event, nil
	}

	changed, err := e.changedRoles(event, base, candidate)
	if err != nil {
		return nil, err
	}

	artifactChanges, err := e.changedArtifacts(event, base, candidate, candidateTree)
	if err != nil {
		return nil, err
	}
	for role := range artifactChanges {
		changed.Add(role)
	}

	// an invite alone makes its delegating role part of the event
	for _, invited := range state.invitedRoles().Contents() {
		changed.Add(delegatorName(candidateTree, invited))
	}

	orphans := set.NewSetFromItems(candidateTree.OrphanedRoles()...)

	for _, roleName := range orderRoleNames(changed) {
		status, err := e.evaluateRole(roleName, baseTree, candidateTree, candidate, state, orphans)
		if err != nil {
			return nil, err
		}
		if artifacts, has := artifactChanges[roleName]; has {
			status.Artifacts = *artifacts
		}
		event.Roles = append(event.Roles, status)
	}

	event.aggregate()
	return event, nil
}

// changedRoles returns the names of roles whose metadata differs
// between base and candidate. Changes to online role metadata are not
// part of any signing event and invalidate it.
func (e *Evaluator) changedRoles(event *Event, base, candidate roletree.Source) (*set.Set[string], error) {
	baseNames, err := roletree.RoleNames(base)
	if err != nil {
		return nil, err
	}
	candidateNames, err := roletree.RoleNames(candidate)
	if err != nil {
		return nil, err
	}

	all := set.NewSetFromItems(baseNames...)
	all.Extend(set.NewSetFromItems(candidateNames...))

	changed := set.NewSet[string]()
	for _, name := range all.Contents() {
		baseBytes, err := readOptional(base, roletree.MetadataPath(name))
		if err != nil {
			return nil, err
		}
		candidateBytes, err := readOptional(candidate, roletree.MetadataPath(name))
		if err != nil {
			return nil, err
		}

		if bytes.Equal(baseBytes, candidateBytes) {
			continue
		}

		if name == tuf.SnapshotRoleName || name == tuf.TimestampRoleName {
			event.Errors = append(event.Errors, fmt.Sprintf("online role '%s' metadata changed in signing event", name))
			continue
		}

		if candidateBytes == nil {
			// role removed together with its delegation: the change
			// shows up on the delegating role
			continue
		}

		changed.Add(name)
	}

	return changed, nil
}

// changedArtifacts diffs the artifact store and attributes each change
// to its owning role under the candidate delegations. Artifacts deeper
// than the supported nesting invalidate the event; artifacts under no
// known role prefix are ignored here and excluded at publish time.
func (e *Evaluator) changedArtifacts(event *Event, base, candidate roletree.Source, tree *roletree.RoleTree) (map[string]*ArtifactChanges, error) {
	baseFiles, err := base.ListFiles(roletree.ArtifactDirName)
	if err != nil {
		return nil, err
	}
	candidateFiles, err := candidate.ListFiles(roletree.ArtifactDirName)
	if err != nil {
		return nil, err
	}

	all := set.NewSetFromItems(baseFiles...)
	all.Extend(set.NewSetFromItems(candidateFiles...))

	changes := map[string]*ArtifactChanges{}
	record := func(artifact string, assign func(*ArtifactChanges)) error {
		owner, err := tree.ResolveOwner(artifact)
		if err != nil {
			if errors.Is(err, tuf.ErrArtifactTooDeep) {
				event.Errors = append(event.Errors, err.Error())
			}
			return nil
		}
		if changes[owner] == nil {
			changes[owner] = &ArtifactChanges{}
		}
		assign(changes[owner])
		return nil
	}

	for _, artifact := range all.Contents() {
		baseBytes, err := readOptional(base, roletree.ArtifactPath(artifact))
		if err != nil {
			return nil, err
		}
		candidateBytes, err := readOptional(candidate, roletree.ArtifactPath(artifact))
		if err != nil {
			return nil, err
		}

		switch {
		case baseBytes == nil:
			err = record(artifact, func(c *ArtifactChanges) { c.Added = append(c.Added, artifact) })
		case candidateBytes == nil:
			err = record(artifact, func(c *ArtifactChanges) { c.Removed = append(c.Removed, artifact) })
		case !bytes.Equal(baseBytes, candidateBytes):
			err = record(artifact, func(c *ArtifactChanges) { c.Modified = append(c.Modified, artifact) })
		}
		if err != nil {
			return nil, err
		}
	}

	return changes, nil
}

func (e *Evaluator) evaluateRole(roleName string, baseTree, candidateTree *roletree.RoleTree, candidate roletree.Source, state *eventState, orphans *set.Set[string]) (*RoleStatus, error) {
	metadata, has := candidateTree.Role(roleName)
	if !has {
		return &RoleStatus{
			Name:     roleName,
			Status:   StatusInvalid,
			Messages: []string{"role metadata is missing from the signing event"},
		}, nil
	}

	status := &RoleStatus{
		Name:    roleName,
		Version: metadata.Signed.GetVersion(),
	}

	if orphans.Has(roleName) {
		status.Status = StatusInvalid
		status.Messages = append(status.Messages, "role is not delegated by any reachable role")
		return status, nil
	}

	status.Invites = e.invitesFor(roleName, candidateTree, state)

	e.validateRole(status, roleName, metadata, baseTree)

	if err := e.checkArtifactSync(status, roleName, candidateTree, candidate); err != nil {
		return nil, err
	}

	if err := e.evaluateThreshold(status, roleName, metadata, baseTree, candidateTree); err != nil {
		return nil, err
	}

	switch {
	case len(status.Messages) > 0:
		status.Status = StatusInvalid
	case len(status.Invites) > 0:
		status.Status = StatusAwaitingInvitees
	case !status.Satisfied:
		status.Status = StatusAwaitingSignatures
	default:
		status.Status = StatusReady
	}

	return status, nil
}

// invitesFor lists open invites into roleName's delegations: for root
// those are the root and top-level targets roles, for a targets-kind
// role its delegated roles.
func (e *Evaluator) invitesFor(roleName string, tree *roletree.RoleTree, state *eventState) []string {
	delegationNames := []string{}
	switch roleName {
	case tuf.RootRoleName:
		delegationNames = []string{tuf.RootRoleName, tuf.TargetsRoleName}
	default:
		if targets, ok := tree.Targets(roleName); ok {
			delegationNames = targets.DelegatedRoleNames()
		}
	}

	invited := set.NewSet[string]()
	for _, delegation := range delegationNames {
		for _, signer := range state.invitedSigners(delegation) {
			invited.Add(signer)
		}
	}
	return invited.Contents()
}

// validateRole applies the version and expiry policy for one role,
// appending violations to status.Messages.
func (e *Evaluator) validateRole(status *RoleStatus, roleName string, metadata *tuf.Metadata, baseTree *roletree.RoleTree) {
	version := metadata.Signed.GetVersion()

	if baseTree != nil {
		if baseMetadata, has := baseTree.Role(roleName); has {
			baseVersion := baseMetadata.Signed.GetVersion()
			if payloadChanged(baseMetadata, metadata) {
				switch {
				case roleName == tuf.RootRoleName && version != baseVersion+1:
					status.Messages = append(status.Messages, fmt.Sprintf("root version must be exactly %d, is %d", baseVersion+1, version))
				case version <= baseVersion:
					status.Messages = append(status.Messages, fmt.Sprintf("version %d does not supersede known-good version %d", version, baseVersion))
				}
			} else if version != baseVersion {
				status.Messages = append(status.Messages, fmt.Sprintf("version changed to %d without a payload change", version))
			}
		}
	}

	_, expiryDays := metadata.Signed.Periods()
	if expiryDays < 1 {
		status.Messages = append(status.Messages, "role has no expiry period configured")
		return
	}

	expires, err := metadata.Signed.ExpiresAt()
	if err != nil {
		status.Messages = append(status.Messages, fmt.Sprintf("unable to parse expiry: %v", err))
		return
	}
	if expires.After(e.clock.Now().Add(time.Duration(expiryDays) * 24 * time.Hour)) {
		status.Messages = append(status.Messages, fmt.Sprintf("expiry is further than the configured %d days ahead", expiryDays))
	}
}

// checkArtifactSync verifies that a targets-kind role's recorded target
// files match the artifacts committed in the candidate state. A
// mismatch is repaired by automation, not by signers.
func (e *Evaluator) checkArtifactSync(status *RoleStatus, roleName string, tree *roletree.RoleTree, candidate roletree.Source) error {
	targets, ok := tree.Targets(roleName)
	if !ok {
		return nil
	}

	expected, err := tree.ExpectedArtifacts(candidate, roleName, roletree.DigestSHA256)
	if err != nil {
		return err
	}

	if !targetFilesEqual(targets.Targets, expected) {
		status.NeedsCorrection = true
		status.Messages = append(status.Messages, "target files in metadata do not match committed artifacts")
	}
	return nil
}

// evaluateThreshold fills in the signature state for one role. Root is
// additionally evaluated against the known-good root's signer set, and
// must satisfy both.
func (e *Evaluator) evaluateThreshold(status *RoleStatus, roleName string, metadata *tuf.Metadata, baseTree, candidateTree *roletree.RoleTree) error {
	delegator := candidateTree.Delegator(roleName)
	if delegator == nil {
		status.Messages = append(status.Messages, "role has no delegator in the candidate state")
		return nil
	}

	result, err := threshold.Evaluate(delegator, roleName, metadata)
	if err != nil {
		return err
	}

	keys, err := delegator.RoleKeys(roleName)
	if err != nil {
		return err
	}

	status.Threshold = result.Threshold
	signedBy := set.NewSetFromItems(threshold.SignerIdentities(keys, result.ValidSigners)...)
	missing := set.NewSetFromItems(threshold.SignerIdentities(keys, result.MissingSigners)...)
	invalid := result.InvalidSignatures
	satisfied := result.Satisfied

	if roleName == tuf.RootRoleName && baseTree != nil {
		prevResult, err := threshold.Evaluate(baseTree.Root(), roleName, metadata)
		if err != nil {
			return err
		}
		prevKeys, err := baseTree.Root().RoleKeys(roleName)
		if err != nil {
			return err
		}

		signedBy.Extend(set.NewSetFromItems(threshold.SignerIdentities(prevKeys, prevResult.ValidSigners)...))
		missing.Extend(set.NewSetFromItems(threshold.SignerIdentities(prevKeys, prevResult.MissingSigners)...))
		// a keyid is only invalid if neither signer set accepts it; a
		// signer valid in one root version is foreign to the other, not
		// broken
		invalid = invalid.Intersection(prevResult.InvalidSignatures)

		// both the old and the new signer sets must approve a root
		// change
		satisfied = satisfied && prevResult.Satisfied
	}

	for _, signer := range signedBy.Contents() {
		missing.Remove(signer)
	}

	status.SignedBy = signedBy.Contents()
	status.Missing = missing.Contents()
	status.InvalidSigs = invalid.Contents()
	status.Satisfied = satisfied
	return nil
}

func payloadChanged(base, candidate *tuf.Metadata) bool {
	baseBytes, err := base.SigningBytes()
	if err != nil {
		return true
	}
	candidateBytes, err := candidate.SigningBytes()
	if err != nil {
		return true
	}
	return !bytes.Equal(baseBytes, candidateBytes)
}

func targetFilesEqual(recorded map[string]*tuf.TargetFile, expected map[string]*tuf.TargetFile) bool {
	if len(recorded) != len(expected) {
		return false
	}
	for path, file := range expected {
		if !file.Equal(recorded[path]) {
			return false
		}
	}
	return true
}

func readOptional(src roletree.Source, path string) ([]byte, error) {
	contents, err := src.ReadFile(path)
	if err != nil {
		if errors.Is(err, roletree.ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return contents, nil
}

func isStructural(err error) bool {
	for _, target := range []error{
		roletree.ErrStructural,
		roletree.ErrNoRootMetadata,
		roletree.ErrRoleNameMismatch,
		roletree.ErrDanglingDelegation,
		roletree.ErrDuplicateDelegation,
		roletree.ErrDelegationTooDeep,
		roletree.ErrOnlineRolesAsymmetric,
		roletree.ErrOnlinePeriodsInvalid,
		tuf.ErrUnknownVendorField,
		tuf.ErrUnknownMetadataType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
