// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufci/tufci/internal/common/testmeta"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

var testTime = time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC)

// fakeRepo implements Repo over an in-memory state, recording the
// branches, commits and pushes automation produces.
type fakeRepo struct {
	testmeta.State

	branches map[string]map[string][]byte
	messages []string
	pushed   []string
	pushErr  error
}

func newFakeRepo(state testmeta.State) *fakeRepo {
	return &fakeRepo{
		State:    state,
		branches: map[string]map[string][]byte{},
	}
}

func (r *fakeRepo) BranchExists(branch string) (bool, error) {
	_, has := r.branches[branch]
	return has, nil
}

func (r *fakeRepo) CommitFiles(branch, message string, files map[string][]byte) (string, error) {
	if r.branches[branch] == nil {
		r.branches[branch] = map[string][]byte{}
	}
	for path, contents := range files {
		r.branches[branch][path] = contents
	}
	r.messages = append(r.messages, message)
	return fmt.Sprintf("commit-%d", len(r.messages)), nil
}

func (r *fakeRepo) Push(_ context.Context, branch string) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushed = append(r.pushed, branch)
	return nil
}

// merge applies a branch's commits back onto the readable state, the
// way merging the branch would.
func (r *fakeRepo) merge(branch string) {
	for path, contents := range r.branches[branch] {
		r.State[path] = contents
	}
}

type fakeSigner struct {
	key *testmeta.TestKey
}

func (s fakeSigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	return ed25519.Sign(s.key.Private, data), nil
}

func (s fakeSigner) KeyID() (string, error) {
	return s.key.Key.KeyID, nil
}

func signerFactoryFor(signingKey *testmeta.TestKey) SignerFactory {
	return func(_ context.Context, key *tuf.Key) (dsse.Signer, error) {
		if key.KeyID != signingKey.Key.KeyID {
			return nil, fmt.Errorf("no signer for keyid %s", key.KeyID)
		}
		return fakeSigner{key: signingKey}, nil
	}
}

func TestCreateSigningEvents(t *testing.T) {
	t.Run("no role in signing period", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), nil)

		events, err := scheduler.CreateSigningEvents(context.Background(), false)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Empty(t, repo.messages)
	})

	t.Run("role entering its signing period", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)

		// app expires in 30 days with a 15 day signing period
		clock := clockwork.NewFakeClockAt(testTime.Add(20 * 24 * time.Hour))
		scheduler := New(repo, clock, nil)

		events, err := scheduler.CreateSigningEvents(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"sign/app-v2"}, events)
		assert.Equal(t, []string{"Periodic version bump: app v2"}, repo.messages)

		bumped, err := tuf.LoadMetadata(repo.branches["sign/app-v2"][roletree.MetadataPath("app")])
		require.NoError(t, err)
		assert.Equal(t, 2, bumped.Signed.GetVersion())

		expires, err := bumped.Signed.ExpiresAt()
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(30*24*time.Hour), expires)

		require.Len(t, bumped.Signatures, 1)
		assert.Equal(t, fixture.AppKey.Key.KeyID, bumped.Signatures[0].KeyID)
		assert.Empty(t, bumped.Signatures[0].Signature)

		// the state itself is untouched until the event merges
		assert.Equal(t, 1, state.Metadata(t, "app").Signed.GetVersion())
	})

	t.Run("existing event branch is not recreated", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		clock := clockwork.NewFakeClockAt(testTime.Add(20 * 24 * time.Hour))
		scheduler := New(repo, clock, nil)

		events, err := scheduler.CreateSigningEvents(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"sign/app-v2"}, events)

		events, err = scheduler.CreateSigningEvents(context.Background(), false)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Len(t, repo.messages, 1)
	})

	t.Run("every offline role due", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		clock := clockwork.NewFakeClockAt(testTime.Add(400 * 24 * time.Hour))
		scheduler := New(repo, clock, nil)

		events, err := scheduler.CreateSigningEvents(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"sign/root-v2", "sign/targets-v2", "sign/app-v2"}, events)
	})

	t.Run("push", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		clock := clockwork.NewFakeClockAt(testTime.Add(20 * 24 * time.Hour))
		scheduler := New(repo, clock, nil)

		_, err := scheduler.CreateSigningEvents(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, []string{"sign/app-v2"}, repo.pushed)
	})

	t.Run("concurrent modification aborts the run", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		repo.pushErr = fmt.Errorf("%w: branch 'sign/app-v2'", ErrConcurrentModification)
		clock := clockwork.NewFakeClockAt(testTime.Add(20 * 24 * time.Hour))
		scheduler := New(repo, clock, nil)

		_, err := scheduler.CreateSigningEvents(context.Background(), true)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})
}

func TestOnlineSign(t *testing.T) {
	t.Run("nothing to renew", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), signerFactoryFor(fixture.OnlineKey))

		result, err := scheduler.OnlineSign(context.Background(), "main", false)
		require.NoError(t, err)
		assert.False(t, result.SnapshotUpdated)
		assert.False(t, result.TimestampUpdated)
		assert.Empty(t, repo.messages)
	})

	t.Run("offline role version changed", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)

		metadata := state.Metadata(t, "app")
		metadata.Signed.SetVersion(2)
		metadata.Signatures = []tuf.Signature{}
		testmeta.Sign(t, metadata, fixture.AppKey)
		state.WriteMetadata(t, "app", metadata)

		repo := newFakeRepo(state)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), signerFactoryFor(fixture.OnlineKey))

		result, err := scheduler.OnlineSign(context.Background(), "main", false)
		require.NoError(t, err)

		assert.True(t, result.SnapshotUpdated)
		assert.True(t, result.TimestampUpdated)
		assert.Equal(t, 2, result.SnapshotVersion)
		assert.Equal(t, 2, result.TimestampVersion)
		assert.Equal(t, []string{"Online sign (snapshot & timestamp)"}, repo.messages)

		snapshot, err := tuf.LoadMetadata(repo.branches["main"][roletree.MetadataPath(tuf.SnapshotRoleName)])
		require.NoError(t, err)
		snapshotPayload := snapshot.Signed.(*tuf.SnapshotMetadata)
		assert.Equal(t, 2, snapshotPayload.Meta["app.json"].Version)
		assert.Equal(t, 1, snapshotPayload.Meta["root.json"].Version)
		assert.Equal(t, 1, snapshotPayload.Meta["targets.json"].Version)

		timestamp, err := tuf.LoadMetadata(repo.branches["main"][roletree.MetadataPath(tuf.TimestampRoleName)])
		require.NoError(t, err)
		timestampPayload := timestamp.Signed.(*tuf.TimestampMetadata)
		assert.Equal(t, 2, timestampPayload.SnapshotMeta().Version)

		// the produced signatures verify against root
		tree, err := roletree.Load(repo.State)
		require.NoError(t, err)
		payload, err := snapshot.SigningBytes()
		require.NoError(t, err)
		keys, err := tree.Root().RoleKeys(tuf.SnapshotRoleName)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Nil(t, keys[0].Verify(payload, snapshot.Signatures[0]))

		// a second run against the merged state converges
		repo.merge("main")
		result, err = scheduler.OnlineSign(context.Background(), "main", false)
		require.NoError(t, err)
		assert.False(t, result.SnapshotUpdated)
		assert.False(t, result.TimestampUpdated)
		assert.Len(t, repo.messages, 1)
	})

	t.Run("signing period renewal", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)
		repo := newFakeRepo(state)

		// snapshot and timestamp expire in 14 days with a 7 day signing
		// period
		clock := clockwork.NewFakeClockAt(testTime.Add(8 * 24 * time.Hour))
		scheduler := New(repo, clock, signerFactoryFor(fixture.OnlineKey))

		result, err := scheduler.OnlineSign(context.Background(), "main", false)
		require.NoError(t, err)

		assert.True(t, result.SnapshotUpdated)
		assert.True(t, result.TimestampUpdated)

		snapshot, err := tuf.LoadMetadata(repo.branches["main"][roletree.MetadataPath(tuf.SnapshotRoleName)])
		require.NoError(t, err)
		expires, err := snapshot.Signed.ExpiresAt()
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(14*24*time.Hour), expires)
	})

	t.Run("bootstrap without online metadata", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)
		delete(state, roletree.MetadataPath(tuf.SnapshotRoleName))
		delete(state, roletree.MetadataPath(tuf.TimestampRoleName))

		repo := newFakeRepo(state)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), signerFactoryFor(fixture.OnlineKey))

		result, err := scheduler.OnlineSign(context.Background(), "main", false)
		require.NoError(t, err)

		assert.True(t, result.SnapshotUpdated)
		assert.True(t, result.TimestampUpdated)
		assert.Equal(t, 1, result.SnapshotVersion)
		assert.Equal(t, 1, result.TimestampVersion)
	})

	t.Run("unverifiable signature is never written", func(t *testing.T) {
		state, _ := testmeta.ValidState(t, testTime)

		metadata := state.Metadata(t, "app")
		metadata.Signed.SetVersion(2)
		state.WriteMetadata(t, "app", metadata)

		wrongKey := testmeta.NewTestKey(t, "wrong", "", "gcpkms://projects/p/locations/l/keyRings/r/cryptoKeys/k")
		repo := newFakeRepo(state)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), func(_ context.Context, key *tuf.Key) (dsse.Signer, error) {
			return fakeSigner{key: wrongKey}, nil
		})

		_, err := scheduler.OnlineSign(context.Background(), "main", false)
		assert.ErrorIs(t, err, ErrOnlineRoleUnsigned)
		assert.Empty(t, repo.messages)
	})

	t.Run("concurrent modification aborts the push", func(t *testing.T) {
		state, fixture := testmeta.ValidState(t, testTime)

		metadata := state.Metadata(t, "app")
		metadata.Signed.SetVersion(2)
		state.WriteMetadata(t, "app", metadata)

		repo := newFakeRepo(state)
		repo.pushErr = fmt.Errorf("%w: branch 'main'", ErrConcurrentModification)
		scheduler := New(repo, clockwork.NewFakeClockAt(testTime), signerFactoryFor(fixture.OnlineKey))

		_, err := scheduler.OnlineSign(context.Background(), "main", true)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})
}

func TestSigningEventBranch(t *testing.T) {
	assert.Equal(t, "sign/root-v3", SigningEventBranch("root", 3))
	assert.Equal(t, "sign/app-v12", SigningEventBranch("app", 12))
}
