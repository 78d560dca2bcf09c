// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufci/tufci/internal/common/set"
	"github.com/tufci/tufci/internal/common/testmeta"
	"github.com/tufci/tufci/internal/tuf"
)

func newTestRoot(t *testing.T, threshold int, keys ...*testmeta.TestKey) *tuf.RootMetadata {
	t.Helper()

	root := tuf.NewRootMetadata()
	for _, key := range keys {
		require.NoError(t, root.AddRoleKey(tuf.RootRoleName, key.Key))
	}
	require.NoError(t, root.UpdateThreshold(tuf.RootRoleName, threshold))
	return root
}

func TestEvaluate(t *testing.T) {
	keyA := testmeta.NewTestKey(t, "a", "@alice", "")
	keyB := testmeta.NewTestKey(t, "b", "@bob", "")
	outsider := testmeta.NewTestKey(t, "outsider", "@mallory", "")

	newMetadata := func() *tuf.Metadata {
		root := tuf.NewRootMetadata()
		root.Version = 2
		return &tuf.Metadata{Signed: root}
	}

	t.Run("threshold satisfied", func(t *testing.T) {
		delegator := newTestRoot(t, 1, keyA, keyB)
		metadata := newMetadata()
		testmeta.Sign(t, metadata, keyA)

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.True(t, result.Satisfied)
		assert.Equal(t, 1, result.Threshold)
		assert.Equal(t, []string{keyA.Key.KeyID}, result.ValidSigners.Contents())
		assert.Equal(t, []string{keyB.Key.KeyID}, result.MissingSigners.Contents())
		assert.Equal(t, 0, result.InvalidSignatures.Len())
	})

	t.Run("below threshold", func(t *testing.T) {
		delegator := newTestRoot(t, 2, keyA, keyB)
		metadata := newMetadata()
		testmeta.Sign(t, metadata, keyA)

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.False(t, result.Satisfied)
		assert.Equal(t, 1, result.ValidSigners.Len())
		assert.Equal(t, 1, result.MissingSigners.Len())
	})

	t.Run("duplicate signatures count once", func(t *testing.T) {
		delegator := newTestRoot(t, 2, keyA, keyB)
		metadata := newMetadata()
		testmeta.Sign(t, metadata, keyA)
		testmeta.Sign(t, metadata, keyA)

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.False(t, result.Satisfied)
		assert.Equal(t, 1, result.ValidSigners.Len())
	})

	t.Run("signature from keyid outside signer set", func(t *testing.T) {
		delegator := newTestRoot(t, 1, keyA)
		metadata := newMetadata()
		testmeta.Sign(t, metadata, outsider)

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.False(t, result.Satisfied)
		assert.Equal(t, []string{outsider.Key.KeyID}, result.InvalidSignatures.Contents())
	})

	t.Run("placeholder signatures are not invalid", func(t *testing.T) {
		delegator := newTestRoot(t, 1, keyA)
		metadata := newMetadata()
		metadata.Signatures = []tuf.Signature{{KeyID: keyA.Key.KeyID}}

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.False(t, result.Satisfied)
		assert.Equal(t, 0, result.InvalidSignatures.Len())
		assert.Equal(t, []string{keyA.Key.KeyID}, result.MissingSigners.Contents())
	})

	t.Run("signature over a stale payload", func(t *testing.T) {
		delegator := newTestRoot(t, 1, keyA)
		metadata := newMetadata()
		testmeta.Sign(t, metadata, keyA)
		metadata.Signed.SetVersion(3)

		result, err := Evaluate(delegator, tuf.RootRoleName, metadata)
		require.NoError(t, err)

		assert.False(t, result.Satisfied)
		assert.Equal(t, []string{keyA.Key.KeyID}, result.InvalidSignatures.Contents())
	})

	t.Run("unknown role", func(t *testing.T) {
		delegator := newTestRoot(t, 1, keyA)
		_, err := Evaluate(delegator, "mirrors", newMetadata())
		assert.ErrorIs(t, err, tuf.ErrRoleNotFound)
	})
}

func TestSignerIdentities(t *testing.T) {
	keyA := testmeta.NewTestKey(t, "a", "@alice", "")
	keyB := testmeta.NewTestKey(t, "b", "@bob", "")
	online := testmeta.NewTestKey(t, "c", "", "gcpkms://projects/p/locations/l/keyRings/r/cryptoKeys/k")

	keys := []*tuf.Key{keyA.Key, keyB.Key, online.Key}

	identities := SignerIdentities(keys, set.NewSetFromItems(keyA.Key.KeyID, online.Key.KeyID))
	assert.Equal(t, []string{"@alice", online.Key.OnlineURI}, identities)

	assert.Empty(t, SignerIdentities(keys, set.NewSet[string]()))
}
