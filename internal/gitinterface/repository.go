// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitinterface wraps the Git operations tufci performs. All
// state lives in the repository itself; this package only shells out to
// the git binary and never caches results.
package gitinterface

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
)

const (
	binary           = "git"
	committerTimeKey = "GIT_COMMITTER_DATE"
	authorTimeKey    = "GIT_AUTHOR_DATE"

	// DefaultRemoteName is the remote automation publishes to.
	DefaultRemoteName = "origin"

	BranchRefPrefix = "refs/heads/"
	RemoteRefPrefix = "refs/remotes/"
)

var ErrReferenceNotFound = errors.New("requested Git reference not found")

// Repository is a lightweight wrapper around a Git repository. It
// stores the location of the repository's GIT_DIR; the clock stamps
// commits created by automation.
type Repository struct {
	gitDirPath string
	clock      clockwork.Clock
}

// LoadRepository returns a Repository instance for the repository
// containing dir. It also inspects the PATH to ensure Git is installed.
func LoadRepository(dir string) (*Repository, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("unable to find Git binary, is Git installed?")
	}

	repo := &Repository{clock: clockwork.NewRealClock()}

	gitDirPath, err := repo.executeGitCommandDirectString(nil, "-C", dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("unable to identify GIT_DIR: %w", err)
	}
	repo.gitDirPath = gitDirPath

	return repo, nil
}

// GetGitDir returns the GIT_DIR path for the repository.
func (r *Repository) GetGitDir() string {
	return r.gitDirPath
}

// WorktreeDir returns the repository's top-level worktree directory.
func (r *Repository) WorktreeDir() string {
	return filepath.Dir(r.gitDirPath)
}

// SetGitConfig sets a local Git configuration value.
func (r *Repository) SetGitConfig(key, value string) error {
	_, err := r.executeGitCommandString(nil, nil, "config", "--local", key, value)
	return err
}

// GetReference returns the tip of the specified Git reference.
func (r *Repository) GetReference(refName string) (string, error) {
	tip, err := r.executeGitCommandString(nil, nil, "rev-parse", "--verify", refName+"^{commit}")
	if err != nil {
		if strings.Contains(err.Error(), "Needed a single revision") || strings.Contains(err.Error(), "unknown revision") {
			return "", ErrReferenceNotFound
		}
		return "", fmt.Errorf("unable to read reference '%s': %w", refName, err)
	}
	return tip, nil
}

// SetReference sets the specified reference to the provided commit.
func (r *Repository) SetReference(refName, commitID string) error {
	if _, err := r.executeGitCommandString(nil, nil, "update-ref", "--create-reflog", refName, commitID); err != nil {
		return fmt.Errorf("unable to set Git reference '%s' to '%s': %w", refName, commitID, err)
	}
	return nil
}

// CheckAndSetReference sets refName to newCommitID only if it currently
// points at oldCommitID.
func (r *Repository) CheckAndSetReference(refName, newCommitID, oldCommitID string) error {
	if _, err := r.executeGitCommandString(nil, nil, "update-ref", "--create-reflog", refName, newCommitID, oldCommitID); err != nil {
		return fmt.Errorf("unable to set Git reference '%s' to '%s': %w", refName, newCommitID, err)
	}
	return nil
}

// MergeBase returns the best common ancestor of the two commits.
func (r *Repository) MergeBase(refA, refB string) (string, error) {
	return r.executeGitCommandString(nil, nil, "merge-base", refA, refB)
}

// CurrentBranch returns the branch HEAD points at.
func (r *Repository) CurrentBranch() (string, error) {
	target, err := r.executeGitCommandString(nil, nil, "symbolic-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(target, BranchRefPrefix), nil
}

// executeGitCommandString executes the specified git command in the
// repository, adding the explicit `--git-dir` parameter. It returns
// trimmed stdout on success.
func (r *Repository) executeGitCommandString(env []string, stdIn *bytes.Buffer, args ...string) (string, error) {
	args = append([]string{"--git-dir", r.gitDirPath}, args...)
	stdOut, stdErr, err := r.executeGitCommandRaw(env, stdIn, args...)
	if err != nil {
		return "", fmt.Errorf("%w when executing `git %s`: %s", err, strings.Join(args, " "), stdErr.String())
	}
	return strings.TrimSpace(stdOut.String()), nil
}

// executeGitCommandDirectString executes git in the current directory
// without specifying GIT_DIR. The command inherits os.Environ() before
// env is applied.
func (r *Repository) executeGitCommandDirectString(env []string, args ...string) (string, error) {
	stdOut, stdErr, err := r.executeGitCommandRaw(env, nil, args...)
	if err != nil {
		return "", fmt.Errorf("%w when executing `git %s`: %s", err, strings.Join(args, " "), stdErr.String())
	}
	return strings.TrimSpace(stdOut.String()), nil
}

func (r *Repository) executeGitCommandRaw(env []string, stdIn *bytes.Buffer, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), env...)

	var (
		stdOut bytes.Buffer
		stdErr bytes.Buffer
	)

	if stdIn != nil {
		cmd.Stdin = stdIn
	}
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	return &stdOut, &stdErr, cmd.Run()
}
