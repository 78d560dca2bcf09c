// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/threshold"
	"github.com/tufci/tufci/internal/tuf"
)

// ErrOnlineRoleUnsigned indicates a freshly signed online role did not
// verify against root. The role is never written in that state.
var ErrOnlineRoleUnsigned = errors.New("online role does not verify after signing")

// OnlineSignResult describes what an online signing run produced.
type OnlineSignResult struct {
	SnapshotUpdated  bool
	TimestampUpdated bool
	SnapshotVersion  int
	TimestampVersion int
}

// OnlineSign produces new snapshot and timestamp versions when needed
// and commits them on branch. A new snapshot is created when its
// recorded role versions no longer match the repository state, when it
// has entered its signing period, or when it is not correctly signed.
// A new timestamp follows a new snapshot and is additionally renewed on
// its own signing period and signature state. When nothing needs
// renewing the repository is left untouched.
func (s *Scheduler) OnlineSign(ctx context.Context, branch string, push bool) (*OnlineSignResult, error) {
	tree, err := roletree.Load(s.repo)
	if err != nil {
		return nil, err
	}

	result := &OnlineSignResult{}
	files := map[string][]byte{}

	snapshot, err := s.openOnlineRole(tuf.SnapshotRoleName)
	if err != nil {
		return nil, err
	}

	expectedMeta := map[string]*tuf.MetaFile{}
	for _, roleName := range tree.ReachableRoles() {
		metadata, _ := tree.Role(roleName)
		expectedMeta[roleName+".json"] = &tuf.MetaFile{Version: metadata.Signed.GetVersion()}
	}

	snapshotPayload := snapshot.Signed.(*tuf.SnapshotMetadata)
	metaChanged := !snapshotPayload.MetaEqual(&tuf.SnapshotMetadata{Meta: expectedMeta})

	renew, err := s.needsRenewal(tree, tuf.SnapshotRoleName, snapshot)
	if err != nil {
		return nil, err
	}

	result.SnapshotVersion = snapshot.Signed.GetVersion()
	if metaChanged || renew {
		snapshotPayload.Meta = expectedMeta
		if err := s.signOnlineRole(ctx, tree, tuf.SnapshotRoleName, snapshot); err != nil {
			return nil, err
		}

		contents, err := snapshot.Bytes()
		if err != nil {
			return nil, err
		}
		files[roletree.MetadataPath(tuf.SnapshotRoleName)] = contents
		result.SnapshotUpdated = true
		result.SnapshotVersion = snapshot.Signed.GetVersion()
		slog.Info("Created snapshot", "version", result.SnapshotVersion, "metaChanged", metaChanged)
	}

	timestamp, err := s.openOnlineRole(tuf.TimestampRoleName)
	if err != nil {
		return nil, err
	}

	renew, err = s.needsRenewal(tree, tuf.TimestampRoleName, timestamp)
	if err != nil {
		return nil, err
	}

	result.TimestampVersion = timestamp.Signed.GetVersion()
	if result.SnapshotUpdated || renew {
		timestampPayload := timestamp.Signed.(*tuf.TimestampMetadata)
		timestampPayload.SetSnapshotMeta(&tuf.MetaFile{Version: result.SnapshotVersion})
		if err := s.signOnlineRole(ctx, tree, tuf.TimestampRoleName, timestamp); err != nil {
			return nil, err
		}

		contents, err := timestamp.Bytes()
		if err != nil {
			return nil, err
		}
		files[roletree.MetadataPath(tuf.TimestampRoleName)] = contents
		result.TimestampUpdated = true
		result.TimestampVersion = timestamp.Signed.GetVersion()
		slog.Info("Created timestamp", "version", result.TimestampVersion)
	}

	if !result.TimestampUpdated {
		slog.Debug("Online signing not needed")
		return result, nil
	}

	roles := tuf.TimestampRoleName
	if result.SnapshotUpdated {
		roles = tuf.SnapshotRoleName + " & " + tuf.TimestampRoleName
	}
	if _, err := s.repo.CommitFiles(branch, fmt.Sprintf("Online sign (%s)", roles), files); err != nil {
		return nil, err
	}

	if push {
		if err := s.repo.Push(ctx, branch); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// openOnlineRole reads an online role from the repository state, or
// returns a fresh version-zero payload when the role does not exist
// yet. Version zero makes the first renewal produce version one.
func (s *Scheduler) openOnlineRole(roleName string) (*tuf.Metadata, error) {
	contents, err := s.repo.ReadFile(roletree.MetadataPath(roleName))
	if err != nil {
		if !errors.Is(err, roletree.ErrFileNotFound) {
			return nil, err
		}
		if roleName == tuf.SnapshotRoleName {
			return &tuf.Metadata{Signed: tuf.NewSnapshotMetadata()}, nil
		}
		return &tuf.Metadata{Signed: tuf.NewTimestampMetadata()}, nil
	}
	return tuf.LoadMetadata(contents)
}

// needsRenewal reports whether an online role must be renewed
// regardless of content changes: it is in its signing period, expired,
// or not correctly signed for the current root.
func (s *Scheduler) needsRenewal(tree *roletree.RoleTree, roleName string, metadata *tuf.Metadata) (bool, error) {
	if metadata.Signed.GetVersion() == 0 {
		return true, nil
	}

	result, err := threshold.Evaluate(tree.Root(), roleName, metadata)
	if err != nil {
		return false, err
	}
	if !result.Satisfied {
		return true, nil
	}

	signingDays, _, err := tree.Root().OnlinePeriods(roleName)
	if err != nil {
		return false, err
	}
	expires, err := metadata.Signed.ExpiresAt()
	if err != nil {
		return true, nil
	}
	return !s.clock.Now().Add(time.Duration(signingDays) * 24 * time.Hour).Before(expires), nil
}

// signOnlineRole bumps the role's version and expiry and signs it with
// every key in its signer set. The result is verified against root
// before it is accepted.
func (s *Scheduler) signOnlineRole(ctx context.Context, tree *roletree.RoleTree, roleName string, metadata *tuf.Metadata) error {
	_, expiryDays, err := tree.Root().OnlinePeriods(roleName)
	if err != nil {
		return err
	}

	metadata.Signed.SetVersion(metadata.Signed.GetVersion() + 1)
	metadata.Signed.SetExpires(s.clock.Now().Add(time.Duration(expiryDays) * 24 * time.Hour))

	payload, err := metadata.SigningBytes()
	if err != nil {
		return err
	}

	keys, err := tree.Root().RoleKeys(roleName)
	if err != nil {
		return err
	}

	metadata.Signatures = []tuf.Signature{}
	for _, key := range keys {
		signer, err := s.signers(ctx, key)
		if err != nil {
			return err
		}
		sig, err := signer.Sign(ctx, payload)
		if err != nil {
			return err
		}
		metadata.Signatures = append(metadata.Signatures, tuf.Signature{
			KeyID:     key.KeyID,
			Signature: hex.EncodeToString(sig),
		})
	}

	result, err := threshold.Evaluate(tree.Root(), roleName, metadata)
	if err != nil {
		return err
	}
	if !result.Satisfied {
		return fmt.Errorf("%w: '%s'", ErrOnlineRoleUnsigned, roleName)
	}
	return nil
}
