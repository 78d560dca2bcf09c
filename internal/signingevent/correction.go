// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package signingevent

import (
	"errors"
	"fmt"
	"time"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

// ComputeCorrections returns rewritten metadata for every targets-kind
// role whose recorded target files do not match the artifacts committed
// in the candidate state. This is the only metadata rewrite automation
// is allowed to perform in a signing event: the target file map is
// recomputed from the committed artifacts, the version is bumped over
// the known-good version, the expiry is pushed a full period ahead and
// all signatures are replaced with unsigned placeholders. The result
// maps role name to serialized metadata; an empty map means nothing
// needs correcting.
func (e *Evaluator) ComputeCorrections(base, candidate roletree.Source) (map[string][]byte, error) {
	candidateTree, err := roletree.Load(candidate)
	if err != nil {
		return nil, err
	}

	baseTree, err := roletree.Load(base)
	if err != nil {
		if !errors.Is(err, roletree.ErrNoRootMetadata) {
			return nil, err
		}
		baseTree = nil
	}

	corrections := map[string][]byte{}
	for _, roleName := range candidateTree.TargetsRoles() {
		targets, ok := candidateTree.Targets(roleName)
		if !ok {
			continue
		}

		expected, err := candidateTree.ExpectedArtifacts(candidate, roleName, roletree.DigestSHA256)
		if err != nil {
			return nil, err
		}
		if targetFilesEqual(targets.Targets, expected) {
			continue
		}

		corrected, err := e.correctRole(roleName, baseTree, candidateTree, expected)
		if err != nil {
			return nil, err
		}
		corrections[roleName] = corrected
	}

	return corrections, nil
}

func (e *Evaluator) correctRole(roleName string, baseTree, candidateTree *roletree.RoleTree, expected map[string]*tuf.TargetFile) ([]byte, error) {
	metadata, _ := candidateTree.Role(roleName)

	// reparse so the correction never aliases the loaded tree
	contents, err := metadata.Bytes()
	if err != nil {
		return nil, err
	}
	corrected, err := tuf.LoadMetadata(contents)
	if err != nil {
		return nil, err
	}

	targets := corrected.Signed.(*tuf.TargetsMetadata)
	targets.Targets = expected

	baseVersion := 0
	if baseTree != nil {
		if baseMetadata, has := baseTree.Role(roleName); has {
			baseVersion = baseMetadata.Signed.GetVersion()
		}
	}
	if corrected.Signed.GetVersion() <= baseVersion {
		corrected.Signed.SetVersion(baseVersion + 1)
	}

	_, expiryDays := corrected.Signed.Periods()
	if expiryDays < 1 {
		return nil, fmt.Errorf("role '%s' has no expiry period configured", roleName)
	}
	corrected.Signed.SetExpires(e.clock.Now().Add(time.Duration(expiryDays) * 24 * time.Hour))

	// unsigned placeholders keep the expected signer set visible in the
	// file while voiding any signature over the previous payload
	delegator := candidateTree.Delegator(roleName)
	keys, err := delegator.RoleKeys(roleName)
	if err != nil {
		return nil, err
	}
	corrected.Signatures = []tuf.Signature{}
	for _, key := range keys {
		corrected.Signatures = append(corrected.Signatures, tuf.Signature{KeyID: key.KeyID})
	}

	return corrected.Bytes()
}
