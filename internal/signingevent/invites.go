// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package signingevent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tufci/tufci/internal/common/set"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

// eventState is the signing-event state file committed on the event
// branch. It records open invites: signer identities expected to add a
// key for the named roles before the event can complete.
type eventState struct {
	Invites map[string][]string `json:"invites"`
}

func loadEventState(src roletree.Source) (*eventState, error) {
	state := &eventState{Invites: map[string][]string{}}

	contents, err := src.ReadFile(roletree.MetadataDirName + "/" + roletree.EventStateName)
	if err != nil {
		if errors.Is(err, roletree.ErrFileNotFound) {
			return state, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(contents, state); err != nil {
		return nil, fmt.Errorf("unable to parse signing event state: %w", err)
	}
	if state.Invites == nil {
		state.Invites = map[string][]string{}
	}
	return state, nil
}

// invitedRoles returns the role names that have at least one open
// invite.
func (s *eventState) invitedRoles() *set.Set[string] {
	roles := set.NewSet[string]()
	for _, names := range s.Invites {
		for _, name := range names {
			roles.Add(name)
		}
	}
	return roles
}

// invitedSigners returns the signer identities invited to role, sorted.
func (s *eventState) invitedSigners(role string) []string {
	signers := set.NewSet[string]()
	for signer, names := range s.Invites {
		for _, name := range names {
			if name == role {
				signers.Add(signer)
			}
		}
	}
	return signers.Contents()
}

// delegatorName returns the role whose signer set an invite to role
// will modify: root for the top-level roles, the parent targets role
// for delegated roles.
func delegatorName(tree *roletree.RoleTree, role string) string {
	switch role {
	case tuf.RootRoleName, tuf.TargetsRoleName, tuf.SnapshotRoleName, tuf.TimestampRoleName:
		return tuf.RootRoleName
	}

	for _, parent := range tree.TargetsRoles() {
		targets, ok := tree.Targets(parent)
		if !ok {
			continue
		}
		for _, child := range targets.DelegatedRoleNames() {
			if child == role {
				return parent
			}
		}
	}

	// not delegated yet: the invite precedes the delegation, which the
	// top-level targets role will carry
	return tuf.TargetsRoleName
}
