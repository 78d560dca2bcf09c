// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

import (
	"fmt"

	"github.com/tufci/tufci/internal/common/set"
)

// RootMetadata defines the schema of the root role. Root is the only
// role that delegates trust over its own signer set: its signers are
// recorded inside itself.
type RootMetadata struct {
	SignedCommon
	ConsistentSnapshot bool            `json:"consistent_snapshot"`
	Keys               map[string]*Key `json:"keys"`
	Roles              map[string]Role `json:"roles"`
}

// NewRootMetadata returns a new, empty instance of RootMetadata.
func NewRootMetadata() *RootMetadata {
	return &RootMetadata{
		SignedCommon: SignedCommon{
			Type:        RootRoleName,
			SpecVersion: SpecVersion,
		},
		ConsistentSnapshot: true,
	}
}

// AddKey adds a key to the RootMetadata instance, keyed by its
// canonical keyid.
func (r *RootMetadata) AddKey(key *Key) error {
	keyID, err := ComputeKeyID(key)
	if err != nil {
		return err
	}
	key.KeyID = keyID

	if r.Keys == nil {
		r.Keys = map[string]*Key{}
	}
	r.Keys[key.KeyID] = key
	return nil
}

// AddRole adds a role object and associates it with roleName.
func (r *RootMetadata) AddRole(roleName string, role Role) {
	if r.Roles == nil {
		r.Roles = map[string]Role{}
	}
	r.Roles[roleName] = role
}

// AddRoleKey authorizes key for roleName, adding the key to the
// metadata if necessary.
func (r *RootMetadata) AddRoleKey(roleName string, key *Key) error {
	if err := r.AddKey(key); err != nil {
		return err
	}

	role, ok := r.Roles[roleName]
	if !ok {
		r.AddRole(roleName, Role{
			KeyIDs:    set.NewSetFromItems(key.KeyID),
			Threshold: 1,
		})
		return nil
	}

	role.KeyIDs.Add(key.KeyID)
	r.Roles[roleName] = role
	return nil
}

// RemoveRoleKey removes keyID from roleName's signer set. It does not
// remove the key entry itself as other roles may share the key.
func (r *RootMetadata) RemoveRoleKey(roleName, keyID string) error {
	role, ok := r.Roles[roleName]
	if !ok {
		return nil
	}

	if role.KeyIDs.Len() <= role.Threshold {
		return ErrCannotMeetThreshold
	}

	role.KeyIDs.Remove(keyID)
	r.Roles[roleName] = role
	return nil
}

// UpdateThreshold sets the threshold for roleName.
func (r *RootMetadata) UpdateThreshold(roleName string, threshold int) error {
	role, ok := r.Roles[roleName]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrRoleNotFound, roleName)
	}

	if threshold < 1 {
		return ErrInvalidThreshold
	}
	if role.KeyIDs.Len() < threshold {
		return ErrCannotMeetThreshold
	}

	role.Threshold = threshold
	r.Roles[roleName] = role
	return nil
}

// RoleKeys implements Delegator for the top-level roles.
func (r *RootMetadata) RoleKeys(name string) ([]*Key, error) {
	role, ok := r.Roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
	}

	keys := []*Key{}
	for _, keyID := range role.KeyIDs.Contents() {
		key, ok := r.Keys[keyID]
		if !ok {
			return nil, fmt.Errorf("%w: '%s' for role '%s'", ErrKeyNotFound, keyID, name)
		}
		key.KeyID = keyID
		keys = append(keys, key)
	}
	return keys, nil
}

// RoleThreshold implements Delegator for the top-level roles.
func (r *RootMetadata) RoleThreshold(name string) (int, error) {
	role, ok := r.Roles[name]
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
	}
	return role.Threshold, nil
}

// DelegatedRoleNames implements Delegator.
func (r *RootMetadata) DelegatedRoleNames() []string {
	names := set.NewSet[string]()
	for name := range r.Roles {
		names.Add(name)
	}
	return names.Contents()
}

// OnlineRoleEntry returns the role entry for an online role, which
// carries the expiry and signing periods for that role.
func (r *RootMetadata) OnlineRoleEntry(name string) (Role, error) {
	if name != TimestampRoleName && name != SnapshotRoleName {
		return Role{}, fmt.Errorf("%w: '%s' is not an online role", ErrRoleNotFound, name)
	}
	role, ok := r.Roles[name]
	if !ok {
		return Role{}, fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
	}
	return role, nil
}

// OnlinePeriods returns the signing and expiry periods in days for an
// online role. As elsewhere, the signing period defaults to half the
// expiry period.
func (r *RootMetadata) OnlinePeriods(name string) (int, int, error) {
	role, err := r.OnlineRoleEntry(name)
	if err != nil {
		return 0, 0, err
	}

	signing := role.SigningPeriod
	if signing == 0 {
		signing = role.ExpiryPeriod / 2
	}
	return signing, role.ExpiryPeriod, nil
}
