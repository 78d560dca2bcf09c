// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// CommitFilesToRef creates a commit on refName updating the given
// repository-relative files, leaving the rest of the tree untouched.
// When refName does not exist it is created from startRef; when neither
// exists the commit has no parent. The worktree and index are never
// touched, so automation can commit to branches that are not checked
// out. The new commit identifier is returned.
func (r *Repository) CommitFilesToRef(refName, startRef, message string, files map[string][]byte) (string, error) {
	parent, err := r.GetReference(refName)
	if err != nil {
		if !errors.Is(err, ErrReferenceNotFound) {
			return "", err
		}
		if startRef != "" {
			parent, err = r.GetReference(startRef)
			if err != nil && !errors.Is(err, ErrReferenceNotFound) {
				return "", err
			}
		}
	}
	oldTip, _ := r.GetReference(refName)

	indexFile, err := os.CreateTemp("", "tufci-index-*")
	if err != nil {
		return "", err
	}
	indexPath := indexFile.Name()
	indexFile.Close()
	os.Remove(indexPath)
	defer os.Remove(indexPath)

	env := []string{"GIT_INDEX_FILE=" + indexPath}

	if parent != "" {
		if _, err := r.executeGitCommandString(env, nil, "read-tree", parent); err != nil {
			return "", err
		}
	} else {
		if _, err := r.executeGitCommandString(env, nil, "read-tree", "--empty"); err != nil {
			return "", err
		}
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		blobID, err := r.WriteBlob(files[path])
		if err != nil {
			return "", err
		}
		if _, err := r.executeGitCommandString(env, nil, "update-index", "--add", "--cacheinfo", fmt.Sprintf("100644,%s,%s", blobID, path)); err != nil {
			return "", err
		}
	}

	treeID, err := r.executeGitCommandString(env, nil, "write-tree")
	if err != nil {
		return "", err
	}

	when := r.clock.Now().Format(time.RFC3339)
	commitEnv := []string{
		committerTimeKey + "=" + when,
		authorTimeKey + "=" + when,
	}
	args := []string{"commit-tree", treeID, "-m", message}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	commitID, err := r.executeGitCommandString(commitEnv, nil, args...)
	if err != nil {
		return "", err
	}

	if err := r.CheckAndSetReference(refName, commitID, oldTip); err != nil {
		return "", err
	}
	return commitID, nil
}
