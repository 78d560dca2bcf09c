// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// ErrPushRejected indicates the remote reference moved since it was
// last fetched and the push was refused.
var ErrPushRejected = errors.New("push rejected, remote reference has moved")

// GetGoGitRepository returns the go-git representation of the
// repository, used for the sync operations.
func (r *Repository) GetGoGitRepository() (*git.Repository, error) {
	return git.PlainOpenWithOptions(r.gitDirPath, &git.PlainOpenOptions{DetectDotGit: true})
}

// PushBranch publishes branch to remote. The push is fast-forward
// only, so a branch that moved on the remote is never overwritten even
// when it was never fetched locally; that case fails with an error
// wrapping ErrPushRejected.
func (r *Repository) PushBranch(ctx context.Context, remoteName, branch string) error {
	repo, err := r.GetGoGitRepository()
	if err != nil {
		return err
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		return err
	}

	branchRef := BranchRefPrefix + branch
	pushOpts := &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))},
		Atomic:     true,
	}

	// the lease: the remote must still be where the tracking ref says
	trackingRef := RemoteRefPrefix + remoteName + "/" + branch
	if tracking, err := repo.Reference(plumbing.ReferenceName(trackingRef), true); err == nil {
		pushOpts.RequireRemoteRefs = []config.RefSpec{
			config.RefSpec(fmt.Sprintf("%s:%s", tracking.Hash().String(), branchRef)),
		}
	}

	err = remote.PushContext(ctx, pushOpts)
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case isRemoteMovedError(err):
		return fmt.Errorf("%w: '%s'", ErrPushRejected, branch)
	default:
		return fmt.Errorf("unable to push '%s': %w", branch, err)
	}
}

// FetchBranch updates the remote tracking reference for branch.
func (r *Repository) FetchBranch(ctx context.Context, remoteName, branch string) error {
	repo, err := r.GetGoGitRepository()
	if err != nil {
		return err
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		return err
	}

	branchRef := BranchRefPrefix + branch
	trackingRef := RemoteRefPrefix + remoteName + "/" + branch
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", branchRef, trackingRef))},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) || errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil
	}
	return err
}

func isRemoteMovedError(err error) bool {
	message := err.Error()
	return strings.Contains(message, "non-fast-forward update") ||
		strings.Contains(message, "remote ref") && strings.Contains(message, "required")
}
