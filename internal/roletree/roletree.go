// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package roletree loads a consistent view of the delegation hierarchy
// from a repository state. Every evaluation re-reads the tree from its
// source; no component holds trust state in memory across invocations.
package roletree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tufci/tufci/internal/tuf"
)

var (
	ErrStructural            = errors.New("structural error in metadata")
	ErrNoRootMetadata        = errors.New("repository state has no root metadata")
	ErrRoleNameMismatch      = errors.New("declared metadata type does not match role filename")
	ErrDanglingDelegation    = errors.New("delegation references a role with no metadata")
	ErrDuplicateDelegation   = errors.New("role is delegated to more than once")
	ErrDelegationTooDeep     = errors.New("delegation nesting exceeds supported depth")
	ErrOnlineRolesAsymmetric = errors.New("timestamp and snapshot signers differ")
	ErrOnlinePeriodsInvalid  = errors.New("online signing or expiry period failed sanity check")
)

// RoleTree is the delegation hierarchy loaded from one repository
// state.
type RoleTree struct {
	roles       map[string]*tuf.Metadata
	reachable   []string
	delegations map[string][]string
}

// Load reads and structurally validates all role metadata in src.
func Load(src Source) (*RoleTree, error) {
	names, err := RoleNames(src)
	if err != nil {
		return nil, err
	}

	tree := &RoleTree{
		roles:       map[string]*tuf.Metadata{},
		delegations: map[string][]string{},
	}

	for _, name := range names {
		contents, err := src.ReadFile(MetadataPath(name))
		if err != nil {
			return nil, err
		}
		metadata, err := tuf.LoadMetadata(contents)
		if err != nil {
			return nil, fmt.Errorf("%w: role '%s': %w", ErrStructural, name, err)
		}

		expectedType := tuf.TargetsRoleName
		switch name {
		case tuf.RootRoleName, tuf.SnapshotRoleName, tuf.TimestampRoleName:
			expectedType = name
		}
		if metadata.Signed.RoleType() != expectedType {
			return nil, fmt.Errorf("%w: role '%s' declares type '%s'", ErrRoleNameMismatch, name, metadata.Signed.RoleType())
		}

		tree.roles[name] = metadata
	}

	if _, has := tree.roles[tuf.RootRoleName]; !has {
		return nil, ErrNoRootMetadata
	}

	if err := tree.validate(); err != nil {
		return nil, err
	}

	return tree, nil
}

// Role returns the metadata for a role, if present in the state.
func (r *RoleTree) Role(name string) (*tuf.Metadata, bool) {
	metadata, has := r.roles[name]
	return metadata, has
}

// Root returns the root metadata payload.
func (r *RoleTree) Root() *tuf.RootMetadata {
	return r.roles[tuf.RootRoleName].Signed.(*tuf.RootMetadata)
}

// Targets returns the payload of a targets-kind role.
func (r *RoleTree) Targets(name string) (*tuf.TargetsMetadata, bool) {
	metadata, has := r.roles[name]
	if !has {
		return nil, false
	}
	targets, ok := metadata.Signed.(*tuf.TargetsMetadata)
	return targets, ok
}

// Delegator returns the metadata that delegates trust to name: root
// for the top-level roles (including root itself), the parent targets
// role otherwise.
func (r *RoleTree) Delegator(name string) tuf.Delegator {
	switch name {
	case tuf.RootRoleName, tuf.TargetsRoleName, tuf.SnapshotRoleName, tuf.TimestampRoleName:
		return r.Root()
	default:
		for parent, children := range r.delegations {
			for _, child := range children {
				if child == name {
					targets, _ := r.Targets(parent)
					return targets
				}
			}
		}
		return nil
	}
}

// ReachableRoles returns the names of all roles reachable from
// root->targets->delegations, in the stable order used for snapshot
// contents: root, targets, then delegated roles sorted by name.
func (r *RoleTree) ReachableRoles() []string {
	result := make([]string, len(r.reachable))
	copy(result, r.reachable)
	return result
}

// ResolveOwner resolves the role owning an artifact path (relative to
// the artifact store root).
func (r *RoleTree) ResolveOwner(path string) (string, error) {
	return tuf.PathOwner(r.delegations, path)
}

// validate applies the structural invariants that make the tree usable
// at all. Signature and expiry checking belong to the evaluators, not
// here.
func (r *RoleTree) validate() error {
	root := r.Root()

	if !root.ConsistentSnapshot {
		return fmt.Errorf("%w: consistent snapshot is not enabled", ErrStructural)
	}

	for _, name := range []string{tuf.RootRoleName, tuf.TargetsRoleName, tuf.SnapshotRoleName, tuf.TimestampRoleName} {
		role, has := root.Roles[name]
		if !has {
			return fmt.Errorf("%w: root does not delegate to '%s'", ErrStructural, name)
		}
		if err := checkRoleBounds(name, role.Threshold, role.KeyIDs.Len()); err != nil {
			return err
		}
	}

	// tufci uses a single online signer set for both online roles
	timestampRole := root.Roles[tuf.TimestampRoleName]
	snapshotRole := root.Roles[tuf.SnapshotRoleName]
	if !timestampRole.KeyIDs.Equal(snapshotRole.KeyIDs) || timestampRole.Threshold != snapshotRole.Threshold {
		return ErrOnlineRolesAsymmetric
	}
	for _, role := range []tuf.Role{timestampRole, snapshotRole} {
		signing := role.SigningPeriod
		if signing == 0 {
			signing = role.ExpiryPeriod / 2
		}
		if signing < 1 || role.ExpiryPeriod <= signing {
			return ErrOnlinePeriodsInvalid
		}
	}

	// walk the delegation tree from the top-level targets role
	seen := map[string]bool{}
	reachableDelegated := []string{}
	if err := r.walkDelegations(tuf.TargetsRoleName, 0, seen, &reachableDelegated); err != nil {
		return err
	}

	sort.Strings(reachableDelegated)
	r.reachable = append([]string{tuf.RootRoleName, tuf.TargetsRoleName}, reachableDelegated...)

	return nil
}

func (r *RoleTree) walkDelegations(name string, depth int, seen map[string]bool, reachable *[]string) error {
	if depth > tuf.MaxDelegationDepth {
		return fmt.Errorf("%w: '%s'", ErrDelegationTooDeep, name)
	}

	targets, ok := r.Targets(name)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrDanglingDelegation, name)
	}

	children := targets.DelegatedRoleNames()
	r.delegations[name] = children

	for _, child := range children {
		if seen[child] || child == tuf.TargetsRoleName || child == tuf.RootRoleName {
			return fmt.Errorf("%w: '%s'", ErrDuplicateDelegation, child)
		}
		seen[child] = true

		role, err := targets.GetDelegatedRole(child)
		if err != nil {
			return err
		}
		if err := checkRoleBounds(child, role.Threshold, role.KeyIDs.Len()); err != nil {
			return err
		}

		*reachable = append(*reachable, child)
		if err := r.walkDelegations(child, depth+1, seen, reachable); err != nil {
			return err
		}
	}

	return nil
}

func checkRoleBounds(name string, threshold, signerCount int) error {
	if threshold < 1 {
		return fmt.Errorf("%w: role '%s' has threshold %d", ErrStructural, name, threshold)
	}
	if signerCount < threshold {
		return fmt.Errorf("%w: role '%s' has %d signers for threshold %d", ErrStructural, name, signerCount, threshold)
	}
	return nil
}

// OrphanedRoles returns roles present in the state but not reachable
// from the delegation tree. They are never published.
func (r *RoleTree) OrphanedRoles() []string {
	reachable := map[string]bool{
		tuf.SnapshotRoleName:  true,
		tuf.TimestampRoleName: true,
	}
	for _, name := range r.reachable {
		reachable[name] = true
	}

	orphans := []string{}
	for name := range r.roles {
		if !reachable[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// TargetsRoles returns the reachable targets-kind role names (top-level
// targets plus delegated roles), in snapshot order.
func (r *RoleTree) TargetsRoles() []string {
	result := []string{}
	for _, name := range r.reachable {
		if name == tuf.RootRoleName {
			continue
		}
		result = append(result, name)
	}
	return result
}

// ExpectedArtifacts recomputes the target file entries for roleName
// from the artifacts committed in src. The digest function is supplied
// by the caller so hashing stays in one place.
func (r *RoleTree) ExpectedArtifacts(src Source, roleName string, digest func([]byte) (string, int64)) (map[string]*tuf.TargetFile, error) {
	artifacts, err := src.ListFiles(ArtifactDirName)
	if err != nil {
		return nil, err
	}

	expected := map[string]*tuf.TargetFile{}
	for _, artifact := range artifacts {
		owner, err := r.ResolveOwner(artifact)
		if err != nil {
			// unowned artifacts are not attributed to any role here;
			// the event evaluator and builder decide how to surface
			// them
			continue
		}
		if owner != roleName {
			continue
		}

		contents, err := src.ReadFile(ArtifactPath(artifact))
		if err != nil {
			return nil, err
		}
		digestValue, length := digest(contents)
		expected[artifact] = &tuf.TargetFile{
			Length: length,
			Hashes: map[string]string{"sha256": digestValue},
		}
	}

	return expected, nil
}
