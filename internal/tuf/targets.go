// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

import (
	"fmt"

	"github.com/tufci/tufci/internal/common/set"
)

// TargetFile records the hashes and length of an artifact certified by
// a targets role.
type TargetFile struct {
	Length int64             `json:"length"`
	Hashes map[string]string `json:"hashes"`
}

// Equal reports whether two target file entries record the same
// artifact contents.
func (t *TargetFile) Equal(other *TargetFile) bool {
	if other == nil || t.Length != other.Length || len(t.Hashes) != len(other.Hashes) {
		return false
	}
	for alg, digest := range t.Hashes {
		if other.Hashes[alg] != digest {
			return false
		}
	}
	return true
}

// DelegatedRole is a delegation entry in a targets role. Its paths are
// always the prefix patterns derived from the role name (see paths.go);
// they are stored on the wire for TUF client compatibility.
type DelegatedRole struct {
	Name        string           `json:"name"`
	KeyIDs      *set.Set[string] `json:"keyids"`
	Threshold   int              `json:"threshold"`
	Terminating bool             `json:"terminating"`
	Paths       []string         `json:"paths"`
}

// Delegations lists the keys and child roles a targets role delegates
// to. Roles is ordered; order is preserved on the wire.
type Delegations struct {
	Keys  map[string]*Key  `json:"keys"`
	Roles []*DelegatedRole `json:"roles,omitempty"`
}

// TargetsMetadata defines the schema of a targets-kind role, both the
// top-level targets role and delegated targets roles.
type TargetsMetadata struct {
	SignedCommon
	Targets     map[string]*TargetFile `json:"targets"`
	Delegations *Delegations           `json:"delegations,omitempty"`
}

// NewTargetsMetadata returns a new, empty instance of TargetsMetadata.
func NewTargetsMetadata() *TargetsMetadata {
	return &TargetsMetadata{
		SignedCommon: SignedCommon{
			Type:        TargetsRoleName,
			SpecVersion: SpecVersion,
		},
		Targets: map[string]*TargetFile{},
	}
}

// AddDelegation records a delegation to a child role. The child's path
// ownership is derived from its name.
func (t *TargetsMetadata) AddDelegation(name string, keys []*Key, threshold int) error {
	if threshold < 1 {
		return ErrInvalidThreshold
	}
	if len(keys) < threshold {
		return ErrCannotMeetThreshold
	}

	if t.Delegations == nil {
		t.Delegations = &Delegations{Keys: map[string]*Key{}}
	}

	for _, role := range t.Delegations.Roles {
		if role.Name == name {
			return fmt.Errorf("%w: '%s'", ErrDuplicatedRoleName, name)
		}
	}

	keyIDs := set.NewSet[string]()
	for _, key := range keys {
		keyID, err := ComputeKeyID(key)
		if err != nil {
			return err
		}
		key.KeyID = keyID
		t.Delegations.Keys[keyID] = key
		keyIDs.Add(keyID)
	}

	t.Delegations.Roles = append(t.Delegations.Roles, &DelegatedRole{
		Name:        name,
		KeyIDs:      keyIDs,
		Threshold:   threshold,
		Terminating: true,
		Paths:       DelegatedPaths(name, MaxDelegationDepth),
	})
	return nil
}

// GetDelegatedRole returns the delegation entry for name.
func (t *TargetsMetadata) GetDelegatedRole(name string) (*DelegatedRole, error) {
	if t.Delegations != nil {
		for _, role := range t.Delegations.Roles {
			if role.Name == name {
				return role, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
}

// RoleKeys implements Delegator for delegated targets roles.
func (t *TargetsMetadata) RoleKeys(name string) ([]*Key, error) {
	role, err := t.GetDelegatedRole(name)
	if err != nil {
		return nil, err
	}

	keys := []*Key{}
	for _, keyID := range role.KeyIDs.Contents() {
		key, ok := t.Delegations.Keys[keyID]
		if !ok {
			return nil, fmt.Errorf("%w: '%s' for role '%s'", ErrKeyNotFound, keyID, name)
		}
		key.KeyID = keyID
		keys = append(keys, key)
	}
	return keys, nil
}

// RoleThreshold implements Delegator for delegated targets roles.
func (t *TargetsMetadata) RoleThreshold(name string) (int, error) {
	role, err := t.GetDelegatedRole(name)
	if err != nil {
		return 0, err
	}
	return role.Threshold, nil
}

// DelegatedRoleNames implements Delegator. Order follows the delegation
// list.
func (t *TargetsMetadata) DelegatedRoleNames() []string {
	names := []string{}
	if t.Delegations != nil {
		for _, role := range t.Delegations.Roles {
			names = append(names, role.Name)
		}
	}
	return names
}
