// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufci/tufci/internal/common/testmeta"
	"github.com/tufci/tufci/internal/gitinterface"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/signingevent"
	"github.com/tufci/tufci/internal/tuf"
)

func writeSigningKey(t *testing.T, key *testmeta.TestKey) string {
	t.Helper()

	contents, err := json.Marshal(map[string]any{
		"keytype": key.Key.KeyType,
		"scheme":  key.Key.Scheme,
		"keyid":   key.Key.KeyID,
		"keyval": map[string]string{
			"public":  key.Key.KeyVal.Public,
			"private": hex.EncodeToString(key.Private.Seed()),
		},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing-key.json")
	require.NoError(t, os.WriteFile(path, contents, 0o600))
	return path
}

func TestSign(t *testing.T) {
	dir := t.TempDir()
	repo := gitinterface.CreateTestGitRepository(t, dir)
	mainRef := gitinterface.BranchRefPrefix + "main"

	now := time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC)
	state, fixture := testmeta.ValidState(t, now)
	_, err := repo.CommitFilesToRef(mainRef, "", "Initial repository state", state)
	require.NoError(t, err)

	// a version bump awaiting the targets signer
	metadata := state.Metadata(t, tuf.TargetsRoleName)
	metadata.Signed.SetVersion(2)
	metadata.Signed.SetExpires(now.Add(60 * 24 * time.Hour))
	metadata.Signatures = []tuf.Signature{{KeyID: fixture.TargetsKey.Key.KeyID}}
	contents, err := metadata.Bytes()
	require.NoError(t, err)

	eventRef := gitinterface.BranchRefPrefix + "sign/targets-v2"
	_, err = repo.CommitFilesToRef(eventRef, mainRef, "Periodic version bump: targets v2", map[string][]byte{
		roletree.MetadataPath(tuf.TargetsRoleName): contents,
	})
	require.NoError(t, err)
	require.NoError(t, exec.Command("git", "-C", dir, "symbolic-ref", "HEAD", eventRef).Run())

	t.Chdir(dir)
	keyURI := "file:" + writeSigningKey(t, fixture.TargetsKey)

	t.Run("wrong event argument", func(t *testing.T) {
		cmd := New()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--key", keyURI, "--push=false", "sign/root-v2"})
		assert.ErrorContains(t, cmd.Execute(), "is not checked out")
	})

	t.Run("signs the awaiting role", func(t *testing.T) {
		out := &bytes.Buffer{}
		cmd := New()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--key", keyURI, "--push=false", "sign/targets-v2"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Signed role(s) targets")

		signedBytes, err := repo.ReadFileAtRef(eventRef, roletree.MetadataPath(tuf.TargetsRoleName))
		require.NoError(t, err)
		signedMetadata, err := tuf.LoadMetadata(signedBytes)
		require.NoError(t, err)

		// the placeholder signature was replaced, not duplicated
		require.Len(t, signedMetadata.Signatures, 1)
		assert.Equal(t, fixture.TargetsKey.Key.KeyID, signedMetadata.Signatures[0].KeyID)

		payload, err := signedMetadata.SigningBytes()
		require.NoError(t, err)
		assert.Nil(t, fixture.TargetsKey.Key.Verify(payload, signedMetadata.Signatures[0]))

		event, err := signingevent.NewEvaluator(nil).Evaluate(
			"sign/targets-v2",
			gitinterface.NewRefSource(repo, mainRef),
			gitinterface.NewRefSource(repo, eventRef),
		)
		require.NoError(t, err)
		assert.Equal(t, signingevent.StatusReady, event.Status)
	})

	t.Run("nothing left to sign", func(t *testing.T) {
		tip, err := repo.GetReference(eventRef)
		require.NoError(t, err)

		out := &bytes.Buffer{}
		cmd := New()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--key", keyURI, "--push=false"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "No roles awaiting a signature from this key")

		unchanged, err := repo.GetReference(eventRef)
		require.NoError(t, err)
		assert.Equal(t, tip, unchanged)
	})
}
