// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"os/exec"
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

func TestLoadEventContext(t *testing.T) {
	dir := t.TempDir()
	repo := gitinterface.CreateTestGitRepository(t, dir)
	mainRef := gitinterface.BranchRefPrefix + "main"

	now := time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC)
	state, fixture := testmeta.ValidState(t, now)
	_, err := repo.CommitFilesToRef(mainRef, "", "Initial repository state", state)
	require.NoError(t, err)

	// open a signing event with a bumped, unsigned targets version
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

	// the event branch is what a signer would have checked out
	require.NoError(t, exec.Command("git", "-C", dir, "symbolic-ref", "HEAD", eventRef).Run())

	eventCtx, err := LoadEventContext(dir, "main")
	require.NoError(t, err)
	assert.Equal(t, "sign/targets-v2", eventCtx.EventName)

	baseRoot, err := eventCtx.Base.ReadFile(roletree.MetadataPath(tuf.TargetsRoleName))
	require.NoError(t, err)
	assert.Equal(t, state[roletree.MetadataPath(tuf.TargetsRoleName)], baseRoot)

	candidateTargets, err := eventCtx.Candidate.ReadFile(roletree.MetadataPath(tuf.TargetsRoleName))
	require.NoError(t, err)
	assert.Equal(t, contents, candidateTargets)

	event, err := signingevent.NewEvaluator(nil).Evaluate(eventCtx.EventName, eventCtx.Base, eventCtx.Candidate)
	require.NoError(t, err)
	assert.Equal(t, signingevent.StatusAwaitingSignatures, event.Status)
}
