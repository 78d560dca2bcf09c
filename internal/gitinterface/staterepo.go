// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"errors"
	"fmt"

	"github.com/tufci/tufci/internal/scheduler"
)

// StateRepo binds a Repository to one base branch, exposing the
// combination the scheduler operates on: the committed state of the
// base branch plus branch creation and publication. It satisfies the
// scheduler's Repo interface.
type StateRepo struct {
	repo    *Repository
	baseRef string
	remote  string
}

// NewStateRepo returns a StateRepo reading state from baseBranch and
// publishing to remote. An empty remote disables pushing guards and is
// meant for local use.
func NewStateRepo(repo *Repository, baseBranch, remote string) *StateRepo {
	return &StateRepo{
		repo:    repo,
		baseRef: BranchRefPrefix + baseBranch,
		remote:  remote,
	}
}

// ReadFile implements roletree.Source against the base branch tip.
func (s *StateRepo) ReadFile(path string) ([]byte, error) {
	return s.repo.ReadFileAtRef(s.baseRef, path)
}

// ListFiles implements roletree.Source against the base branch tip.
func (s *StateRepo) ListFiles(dir string) ([]string, error) {
	return s.repo.ListFilesAtRef(s.baseRef, dir)
}

// BranchExists reports whether branch exists locally or on the remote.
func (s *StateRepo) BranchExists(branch string) (bool, error) {
	refs := []string{BranchRefPrefix + branch}
	if s.remote != "" {
		refs = append(refs, RemoteRefPrefix+s.remote+"/"+branch)
	}

	for _, ref := range refs {
		_, err := s.repo.GetReference(ref)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrReferenceNotFound) {
			return false, err
		}
	}
	return false, nil
}

// CommitFiles commits files on top of branch, creating it from the
// base branch tip when it does not exist yet.
func (s *StateRepo) CommitFiles(branch, message string, files map[string][]byte) (string, error) {
	return s.repo.CommitFilesToRef(BranchRefPrefix+branch, s.baseRef, message, files)
}

// Push publishes branch. A remote that moved since the last fetch is
// reported as a concurrent modification, not overwritten.
func (s *StateRepo) Push(ctx context.Context, branch string) error {
	if s.remote == "" {
		return nil
	}
	if err := s.repo.PushBranch(ctx, s.remote, branch); err != nil {
		if errors.Is(err, ErrPushRejected) {
			return fmt.Errorf("%w: branch '%s'", scheduler.ErrConcurrentModification, branch)
		}
		return err
	}
	return nil
}
