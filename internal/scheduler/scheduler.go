// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler drives the periodic repository automation: opening
// signing events for offline roles entering their signing period, and
// producing new signed snapshot and timestamp versions. All decisions
// are recomputed from the repository state on every run so a crashed or
// repeated run converges to the same result.
package scheduler

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/signerverifier"
	"github.com/tufci/tufci/internal/tuf"
)

// ErrConcurrentModification indicates the repository state moved under
// the scheduler between reading and publishing. The run is aborted; the
// next run recomputes against the new state.
var ErrConcurrentModification = errors.New("repository state changed concurrently, aborting")

// Repo is the scheduler's view of the repository: the readable state of
// the default branch plus the branch and commit operations automation
// needs. Implementations must make Push fail with (an error wrapping)
// ErrConcurrentModification when the remote moved since the state was
// read.
type Repo interface {
	roletree.Source

	// BranchExists reports whether branch exists, locally or on the
	// remote.
	BranchExists(branch string) (bool, error)

	// CommitFiles commits the given repository-relative files on top of
	// branch, creating the branch from the current default tip when it
	// does not exist. It returns the new commit identifier.
	CommitFiles(branch, message string, files map[string][]byte) (string, error)

	// Push publishes branch to the remote.
	Push(ctx context.Context, branch string) error
}

// SignerFactory resolves a metadata key to a signer. It is injectable
// so tests never need a real signing backend.
type SignerFactory func(ctx context.Context, key *tuf.Key) (dsse.Signer, error)

// Scheduler runs the periodic automation against one repository.
type Scheduler struct {
	repo    Repo
	clock   clockwork.Clock
	signers SignerFactory
}

// New returns a scheduler for repo. A nil clock uses the wall clock; a
// nil factory resolves signers from each key's online-uri annotation.
func New(repo Repo, clock clockwork.Clock, signers SignerFactory) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if signers == nil {
		signers = signerverifier.NewSignerFromKey
	}
	return &Scheduler{repo: repo, clock: clock, signers: signers}
}
