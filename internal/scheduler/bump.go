// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

// CreateSigningEvents opens a signing event branch for every offline
// role that has entered its signing period: a new unsigned metadata
// version expiring a full period ahead, committed on a branch named
// sign/<role>-v<version>. Roles whose event branch already exists are
// skipped, so repeated runs are no-ops until the event merges. The
// created branch names are returned; they are pushed when push is set.
func (s *Scheduler) CreateSigningEvents(ctx context.Context, push bool) ([]string, error) {
	tree, err := roletree.Load(s.repo)
	if err != nil {
		return nil, err
	}

	events := []string{}
	for _, roleName := range tree.ReachableRoles() {
		metadata, _ := tree.Role(roleName)

		due, err := s.inSigningPeriod(metadata)
		if err != nil {
			return nil, fmt.Errorf("role '%s': %w", roleName, err)
		}
		if !due {
			slog.Debug("No version bump needed", "role", roleName)
			continue
		}

		version := metadata.Signed.GetVersion() + 1
		branch := SigningEventBranch(roleName, version)

		exists, err := s.repo.BranchExists(branch)
		if err != nil {
			return nil, err
		}
		if exists {
			slog.Debug("Signing event branch already exists", "branch", branch)
			continue
		}

		contents, err := s.bumpedMetadata(tree, roleName, version)
		if err != nil {
			return nil, err
		}

		message := fmt.Sprintf("Periodic version bump: %s v%d", roleName, version)
		if _, err := s.repo.CommitFiles(branch, message, map[string][]byte{
			roletree.MetadataPath(roleName): contents,
		}); err != nil {
			return nil, err
		}

		if push {
			if err := s.repo.Push(ctx, branch); err != nil {
				return nil, err
			}
		}

		slog.Info("Opened signing event", "branch", branch)
		events = append(events, branch)
	}

	return events, nil
}

// SigningEventBranch returns the branch name for a role's signing
// event at a given version.
func SigningEventBranch(roleName string, version int) string {
	return fmt.Sprintf("sign/%s-v%d", roleName, version)
}

// inSigningPeriod reports whether the role's remaining validity is
// inside its signing period.
func (s *Scheduler) inSigningPeriod(metadata *tuf.Metadata) (bool, error) {
	signingDays, _ := metadata.Signed.Periods()
	expires, err := metadata.Signed.ExpiresAt()
	if err != nil {
		return false, err
	}
	return !s.clock.Now().Add(time.Duration(signingDays) * 24 * time.Hour).Before(expires), nil
}

// bumpedMetadata produces the new unsigned version of a role: the
// payload is unchanged apart from version and expiry, and every
// signature is replaced with a placeholder for the role's current
// signer set.
func (s *Scheduler) bumpedMetadata(tree *roletree.RoleTree, roleName string, version int) ([]byte, error) {
	metadata, _ := tree.Role(roleName)

	contents, err := metadata.Bytes()
	if err != nil {
		return nil, err
	}
	bumped, err := tuf.LoadMetadata(contents)
	if err != nil {
		return nil, err
	}

	_, expiryDays := bumped.Signed.Periods()
	bumped.Signed.SetVersion(version)
	bumped.Signed.SetExpires(s.clock.Now().Add(time.Duration(expiryDays) * 24 * time.Hour))

	keys, err := tree.Delegator(roleName).RoleKeys(roleName)
	if err != nil {
		return nil, err
	}
	bumped.Signatures = []tuf.Signature{}
	for _, key := range keys {
		bumped.Signatures = append(bumped.Signatures, tuf.Signature{KeyID: key.KeyID})
	}

	return bumped.Bytes()
}
