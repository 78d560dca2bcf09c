// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package testmeta builds in-memory repository states for tests across
// tufci packages.
package testmeta

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

// TestKey is a deterministic ed25519 key with its private half, so
// tests can produce verifiable signatures.
type TestKey struct {
	Key     *tuf.Key
	Private ed25519.PrivateKey
}

// NewTestKey derives a key from seed. Exactly one of owner and
// onlineURI should be set, mirroring how keys appear in metadata.
func NewTestKey(t *testing.T, seed, owner, onlineURI string) *TestKey {
	t.Helper()

	digest := sha256.Sum256([]byte(seed))
	private := ed25519.NewKeyFromSeed(digest[:])
	public := private.Public().(ed25519.PublicKey)

	key := &tuf.Key{
		KeyType:   "ed25519",
		Scheme:    "ed25519",
		KeyVal:    tuf.KeyVal{Public: hex.EncodeToString(public)},
		KeyOwner:  owner,
		OnlineURI: onlineURI,
	}
	keyID, err := tuf.ComputeKeyID(key)
	if err != nil {
		t.Fatal(err)
	}
	key.KeyID = keyID

	return &TestKey{Key: key, Private: private}
}

// Sign appends a valid signature from each key to the metadata.
func Sign(t *testing.T, metadata *tuf.Metadata, keys ...*TestKey) {
	t.Helper()

	payload, err := metadata.SigningBytes()
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range keys {
		metadata.Signatures = append(metadata.Signatures, tuf.Signature{
			KeyID:     key.Key.KeyID,
			Signature: hex.EncodeToString(ed25519.Sign(key.Private, payload)),
		})
	}
}

// State is an in-memory repository state implementing roletree.Source.
type State map[string][]byte

func (s State) ReadFile(path string) ([]byte, error) {
	contents, has := s[path]
	if !has {
		return nil, roletree.ErrFileNotFound
	}
	return contents, nil
}

func (s State) ListFiles(dir string) ([]string, error) {
	files := []string{}
	prefix := dir + "/"
	for path := range s {
		if strings.HasPrefix(path, prefix) {
			files = append(files, strings.TrimPrefix(path, prefix))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Clone returns an independent copy of the state.
func (s State) Clone() State {
	clone := State{}
	for path, contents := range s {
		clone[path] = contents
	}
	return clone
}

// WriteMetadata serializes the metadata into the state.
func (s State) WriteMetadata(t *testing.T, roleName string, metadata *tuf.Metadata) {
	t.Helper()

	contents, err := metadata.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	s[roletree.MetadataPath(roleName)] = contents
}

// Metadata parses a role's metadata back out of the state.
func (s State) Metadata(t *testing.T, roleName string) *tuf.Metadata {
	t.Helper()

	contents, has := s[roletree.MetadataPath(roleName)]
	if !has {
		t.Fatalf("no metadata for role %s", roleName)
	}
	metadata, err := tuf.LoadMetadata(contents)
	if err != nil {
		t.Fatal(err)
	}
	return metadata
}

// Fixture holds the keys and payloads behind a state built by
// ValidState, keyed for direct manipulation in tests.
type Fixture struct {
	RootKey    *TestKey
	TargetsKey *TestKey
	AppKey     *TestKey
	OnlineKey  *TestKey

	Root      *tuf.Metadata
	Targets   *tuf.Metadata
	App       *tuf.Metadata
	Snapshot  *tuf.Metadata
	Timestamp *tuf.Metadata
}

// ValidState builds a minimal fully signed repository state: the four
// top-level roles plus one delegated role named "app", each with a
// threshold of one. Expiries are anchored at now.
func ValidState(t *testing.T, now time.Time) (State, *Fixture) {
	t.Helper()

	fixture := &Fixture{
		RootKey:    NewTestKey(t, "root-seed", "@alice", ""),
		TargetsKey: NewTestKey(t, "targets-seed", "@bob", ""),
		AppKey:     NewTestKey(t, "app-seed", "@carol", ""),
		OnlineKey:  NewTestKey(t, "online-seed", "", "gcpkms://projects/test/locations/global/keyRings/tufci/cryptoKeys/online"),
	}

	root := tuf.NewRootMetadata()
	root.Version = 1
	root.ExpiryPeriod = 365
	root.SetExpires(now.Add(365 * 24 * time.Hour))
	mustAdd(t, root.AddRoleKey(tuf.RootRoleName, fixture.RootKey.Key))
	mustAdd(t, root.AddRoleKey(tuf.TargetsRoleName, fixture.TargetsKey.Key))
	mustAdd(t, root.AddRoleKey(tuf.SnapshotRoleName, fixture.OnlineKey.Key))
	mustAdd(t, root.AddRoleKey(tuf.TimestampRoleName, fixture.OnlineKey.Key))
	for _, roleName := range []string{tuf.SnapshotRoleName, tuf.TimestampRoleName} {
		role := root.Roles[roleName]
		role.ExpiryPeriod = 14
		role.SigningPeriod = 7
		root.Roles[roleName] = role
	}

	targets := tuf.NewTargetsMetadata()
	targets.Version = 1
	targets.ExpiryPeriod = 60
	targets.SetExpires(now.Add(60 * 24 * time.Hour))
	mustAdd(t, targets.AddDelegation("app", []*tuf.Key{fixture.AppKey.Key}, 1))

	app := tuf.NewTargetsMetadata()
	app.Version = 1
	app.ExpiryPeriod = 30
	app.SetExpires(now.Add(30 * 24 * time.Hour))

	snapshot := tuf.NewSnapshotMetadata()
	snapshot.Version = 1
	snapshot.SetExpires(now.Add(14 * 24 * time.Hour))
	snapshot.Meta = map[string]*tuf.MetaFile{
		"root.json":    {Version: 1},
		"targets.json": {Version: 1},
		"app.json":     {Version: 1},
	}

	timestamp := tuf.NewTimestampMetadata()
	timestamp.Version = 1
	timestamp.SetExpires(now.Add(14 * 24 * time.Hour))
	timestamp.SetSnapshotMeta(&tuf.MetaFile{Version: 1})

	fixture.Root = &tuf.Metadata{Signed: root}
	fixture.Targets = &tuf.Metadata{Signed: targets}
	fixture.App = &tuf.Metadata{Signed: app}
	fixture.Snapshot = &tuf.Metadata{Signed: snapshot}
	fixture.Timestamp = &tuf.Metadata{Signed: timestamp}

	Sign(t, fixture.Root, fixture.RootKey)
	Sign(t, fixture.Targets, fixture.TargetsKey)
	Sign(t, fixture.App, fixture.AppKey)
	Sign(t, fixture.Snapshot, fixture.OnlineKey)
	Sign(t, fixture.Timestamp, fixture.OnlineKey)

	state := State{}
	state.WriteMetadata(t, tuf.RootRoleName, fixture.Root)
	state.WriteMetadata(t, tuf.TargetsRoleName, fixture.Targets)
	state.WriteMetadata(t, "app", fixture.App)
	state.WriteMetadata(t, tuf.SnapshotRoleName, fixture.Snapshot)
	state.WriteMetadata(t, tuf.TimestampRoleName, fixture.Timestamp)

	return state, fixture
}

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil && !errors.Is(err, tuf.ErrRoleNotFound) {
		t.Fatal(err)
	}
}
