// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package signingevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufci/tufci/internal/common/testmeta"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

func TestComputeCorrections(t *testing.T) {
	evaluator := newTestEvaluator()

	t.Run("nothing to correct", func(t *testing.T) {
		base, _ := testmeta.ValidState(t, testTime)
		candidate := base.Clone()

		corrections, err := evaluator.ComputeCorrections(base, candidate)
		require.NoError(t, err)
		assert.Empty(t, corrections)
	})

	t.Run("added artifact", func(t *testing.T) {
		base, fixture := testmeta.ValidState(t, testTime)
		candidate := base.Clone()
		contents := []byte("artifact contents")
		candidate[roletree.ArtifactPath("app/app-1.0.tar.gz")] = contents

		corrections, err := evaluator.ComputeCorrections(base, candidate)
		require.NoError(t, err)
		require.Len(t, corrections, 1)
		require.Contains(t, corrections, "app")

		corrected, err := tuf.LoadMetadata(corrections["app"])
		require.NoError(t, err)

		targets := corrected.Signed.(*tuf.TargetsMetadata)
		require.Len(t, targets.Targets, 1)
		digestValue, length := roletree.DigestSHA256(contents)
		assert.Equal(t, length, targets.Targets["app/app-1.0.tar.gz"].Length)
		assert.Equal(t, digestValue, targets.Targets["app/app-1.0.tar.gz"].Hashes["sha256"])

		assert.Equal(t, 2, corrected.Signed.GetVersion())

		expires, err := corrected.Signed.ExpiresAt()
		require.NoError(t, err)
		assert.Equal(t, testTime.Add(30*24*time.Hour), expires)

		// unsigned placeholders for the role's signer set
		require.Len(t, corrected.Signatures, 1)
		assert.Equal(t, fixture.AppKey.Key.KeyID, corrected.Signatures[0].KeyID)
		assert.Empty(t, corrected.Signatures[0].Signature)
	})

	t.Run("correction converges", func(t *testing.T) {
		base, fixture := testmeta.ValidState(t, testTime)
		candidate := base.Clone()
		candidate[roletree.ArtifactPath("app/app-1.0.tar.gz")] = []byte("artifact contents")

		corrections, err := evaluator.ComputeCorrections(base, candidate)
		require.NoError(t, err)
		candidate[roletree.MetadataPath("app")] = corrections["app"]

		// applying the correction leaves nothing to correct, and the
		// version stays stable across repeated runs
		corrections, err = evaluator.ComputeCorrections(base, candidate)
		require.NoError(t, err)
		assert.Empty(t, corrections)

		// the corrected role only needs its signature now
		signRole(t, candidate, "app", fixture.AppKey)
		event, err := evaluator.Evaluate("sign/app-v2", base, candidate)
		require.NoError(t, err)
		assert.Equal(t, StatusReady, event.Status)
		role := findRole(t, event, "app")
		assert.Equal(t, []string{"app/app-1.0.tar.gz"}, role.Artifacts.Added)
	})

	t.Run("version is bumped only over the known-good version", func(t *testing.T) {
		base, fixture := testmeta.ValidState(t, testTime)
		candidate := base.Clone()
		bumpRole(t, candidate, "app", 5, fixture.AppKey)
		candidate[roletree.ArtifactPath("app/app-1.0.tar.gz")] = []byte("artifact contents")

		corrections, err := evaluator.ComputeCorrections(base, candidate)
		require.NoError(t, err)

		corrected, err := tuf.LoadMetadata(corrections["app"])
		require.NoError(t, err)
		assert.Equal(t, 5, corrected.Signed.GetVersion())
	})
}
