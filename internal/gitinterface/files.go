// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/tufci/tufci/internal/roletree"
)

// ReadFileAtRef returns the contents of path (relative to the
// repository root) in the tree of the commit ref points to. A missing
// path yields an error wrapping roletree.ErrFileNotFound.
func (r *Repository) ReadFileAtRef(ref, path string) ([]byte, error) {
	args := append([]string{"--git-dir", r.gitDirPath}, "cat-file", "blob", fmt.Sprintf("%s:%s", ref, path))
	stdOut, stdErr, err := r.executeGitCommandRaw(nil, nil, args...)
	if err != nil {
		message := stdErr.String()
		if strings.Contains(message, "does not exist in") || strings.Contains(message, "exists on disk, but not in") || strings.Contains(message, "Not a valid object name") {
			return nil, fmt.Errorf("%w: '%s' at '%s'", roletree.ErrFileNotFound, path, ref)
		}
		return nil, fmt.Errorf("unable to read '%s' at '%s': %s", path, ref, message)
	}
	return stdOut.Bytes(), nil
}

// ListFilesAtRef returns all files under dir in the tree of ref,
// relative to dir and sorted. A missing directory yields an empty list.
func (r *Repository) ListFilesAtRef(ref, dir string) ([]string, error) {
	output, err := r.executeGitCommandString(nil, nil, "ls-tree", "-r", "--name-only", ref, "--", dir+"/")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}

	files := []string{}
	prefix := dir + "/"
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, prefix) {
			continue
		}
		files = append(files, strings.TrimPrefix(line, prefix))
	}
	sort.Strings(files)
	return files, nil
}

// WriteBlob writes contents to the repository's object store and
// returns the blob identifier.
func (r *Repository) WriteBlob(contents []byte) (string, error) {
	blobID, err := r.executeGitCommandString(nil, bytes.NewBuffer(contents), "hash-object", "-t", "blob", "-w", "--stdin")
	if err != nil {
		return "", fmt.Errorf("unable to write blob: %w", err)
	}
	return blobID, nil
}

// RefSource is a read-only roletree.Source over the committed tree of
// one Git reference.
type RefSource struct {
	repo *Repository
	ref  string
}

// NewRefSource returns a Source reading the tree at ref.
func NewRefSource(repo *Repository, ref string) *RefSource {
	return &RefSource{repo: repo, ref: ref}
}

func (s *RefSource) ReadFile(path string) ([]byte, error) {
	return s.repo.ReadFileAtRef(s.ref, path)
}

func (s *RefSource) ListFiles(dir string) ([]string, error) {
	return s.repo.ListFilesAtRef(s.ref, dir)
}
