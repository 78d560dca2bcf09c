// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufci/tufci/internal/common/testmeta"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

var testTime = time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC)

// publishableState is a valid state with one certified artifact per
// targets role and a root history entry.
func publishableState(t *testing.T) (testmeta.State, *testmeta.Fixture) {
	t.Helper()

	state, fixture := testmeta.ValidState(t, testTime)

	certify := func(roleName, path string, contents []byte, key *testmeta.TestKey) {
		state[roletree.ArtifactPath(path)] = contents
		metadata := state.Metadata(t, roleName)
		targets := metadata.Signed.(*tuf.TargetsMetadata)
		digestValue, length := roletree.DigestSHA256(contents)
		targets.Targets[path] = &tuf.TargetFile{Length: length, Hashes: map[string]string{"sha256": digestValue}}
		metadata.Signatures = []tuf.Signature{}
		testmeta.Sign(t, metadata, key)
		state.WriteMetadata(t, roleName, metadata)
	}
	certify(tuf.TargetsRoleName, "file.txt", []byte("top level artifact"), fixture.TargetsKey)
	certify("app", "app/app-1.0.tar.gz", []byte("app artifact"), fixture.AppKey)

	state[roletree.MetadataDirName+"/"+roletree.RootHistoryDirName+"/1.root.json"] = state[roletree.MetadataPath(tuf.RootRoleName)]

	return state, fixture
}

func TestBuild(t *testing.T) {
	state, _ := publishableState(t)
	metadataDir := filepath.Join(t.TempDir(), "metadata")
	artifactDir := filepath.Join(t.TempDir(), "targets")

	result, err := Build(state, metadataDir, artifactDir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1.app.json",
		"1.root.json",
		"1.snapshot.json",
		"1.targets.json",
		"timestamp.json",
	}, result.MetadataFiles)

	topDigest, _ := roletree.DigestSHA256([]byte("top level artifact"))
	appDigest, _ := roletree.DigestSHA256([]byte("app artifact"))
	assert.Equal(t, []string{
		"app/" + appDigest + ".app-1.0.tar.gz",
		topDigest + ".file.txt",
	}, result.ArtifactFiles)
	assert.Empty(t, result.SkippedArtifacts)

	t.Run("published metadata matches the state", func(t *testing.T) {
		published, err := os.ReadFile(filepath.Join(metadataDir, "1.targets.json"))
		require.NoError(t, err)
		assert.Equal(t, state[roletree.MetadataPath(tuf.TargetsRoleName)], published)

		timestamp, err := os.ReadFile(filepath.Join(metadataDir, "timestamp.json"))
		require.NoError(t, err)
		assert.Equal(t, state[roletree.MetadataPath(tuf.TimestampRoleName)], timestamp)
	})

	t.Run("published artifacts match the store", func(t *testing.T) {
		contents, err := os.ReadFile(filepath.Join(artifactDir, "app", appDigest+".app-1.0.tar.gz"))
		require.NoError(t, err)
		assert.Equal(t, []byte("app artifact"), contents)
	})
}

func TestBuildRootHistory(t *testing.T) {
	state, fixture := publishableState(t)

	// a superseded root version stays published for bootstrapping
	// clients; the current version comes from the state, not history
	oldRoot := state.Metadata(t, tuf.RootRoleName)
	metadata := state.Metadata(t, tuf.RootRoleName)
	metadata.Signed.SetVersion(2)
	metadata.Signatures = []tuf.Signature{}
	testmeta.Sign(t, metadata, fixture.RootKey)
	state.WriteMetadata(t, tuf.RootRoleName, metadata)

	oldContents, err := oldRoot.Bytes()
	require.NoError(t, err)
	state[roletree.MetadataDirName+"/"+roletree.RootHistoryDirName+"/1.root.json"] = oldContents

	metadataDir := filepath.Join(t.TempDir(), "metadata")
	result, err := Build(state, metadataDir, "")
	require.NoError(t, err)

	assert.Contains(t, result.MetadataFiles, "1.root.json")
	assert.Contains(t, result.MetadataFiles, "2.root.json")
	assert.Empty(t, result.ArtifactFiles)

	published, err := os.ReadFile(filepath.Join(metadataDir, "1.root.json"))
	require.NoError(t, err)
	assert.Equal(t, oldContents, published)
}

func TestBuildDeterministic(t *testing.T) {
	state, _ := publishableState(t)

	build := func(root string) map[string][]byte {
		result, err := Build(state, filepath.Join(root, "metadata"), filepath.Join(root, "targets"))
		require.NoError(t, err)

		files := map[string][]byte{}
		for _, name := range result.MetadataFiles {
			contents, err := os.ReadFile(filepath.Join(root, "metadata", name))
			require.NoError(t, err)
			files["metadata/"+name] = contents
		}
		for _, name := range result.ArtifactFiles {
			contents, err := os.ReadFile(filepath.Join(root, "targets", filepath.FromSlash(name)))
			require.NoError(t, err)
			files["targets/"+name] = contents
		}
		return files
	}

	assert.Equal(t, build(t.TempDir()), build(t.TempDir()))
}

func TestBuildSkipsUnownedArtifacts(t *testing.T) {
	state, _ := publishableState(t)
	state[roletree.ArtifactPath("unknown/file.txt")] = []byte("unowned")

	result, err := Build(state, filepath.Join(t.TempDir(), "metadata"), filepath.Join(t.TempDir(), "targets"))
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown/file.txt"}, result.SkippedArtifacts)
}

func TestBuildNotPublishable(t *testing.T) {
	t.Run("missing timestamp", func(t *testing.T) {
		state, _ := publishableState(t)
		delete(state, roletree.MetadataPath(tuf.TimestampRoleName))

		_, err := Build(state, filepath.Join(t.TempDir(), "metadata"), "")
		assert.ErrorIs(t, err, ErrNotPublishable)
	})

	t.Run("missing snapshot", func(t *testing.T) {
		state, _ := publishableState(t)
		delete(state, roletree.MetadataPath(tuf.SnapshotRoleName))

		_, err := Build(state, filepath.Join(t.TempDir(), "metadata"), "")
		assert.ErrorIs(t, err, ErrNotPublishable)
	})

	t.Run("certified artifact missing from the store", func(t *testing.T) {
		state, _ := publishableState(t)
		delete(state, roletree.ArtifactPath("app/app-1.0.tar.gz"))

		_, err := Build(state, filepath.Join(t.TempDir(), "metadata"), filepath.Join(t.TempDir(), "targets"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), fmt.Sprintf("certified by '%s'", "app"))
	})
}
