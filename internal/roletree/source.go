// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package roletree

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MetadataDirName is the repository directory holding role
	// metadata files.
	MetadataDirName = "metadata"

	// ArtifactDirName is the repository directory holding the artifact
	// store.
	ArtifactDirName = "targets"

	// RootHistoryDirName holds every signed root version for
	// publication.
	RootHistoryDirName = "root_history"

	// EventStateName is the signing-event state file carrying open
	// invites. It lives in the metadata directory of the candidate
	// branch.
	EventStateName = ".signing-event-state"
)

var ErrFileNotFound = errors.New("file not found in repository state")

// Source is a read-only view of repository state at some point: a
// checked-out worktree, a git ref, or a plain directory. Paths are
// relative to the repository root and use forward slashes.
type Source interface {
	// ReadFile returns the contents of the file at path, or an error
	// wrapping ErrFileNotFound if it does not exist.
	ReadFile(path string) ([]byte, error)

	// ListFiles returns the paths of all files under dir, recursively,
	// relative to dir and sorted. A missing directory yields an empty
	// list, not an error.
	ListFiles(dir string) ([]string, error)
}

// MetadataPath returns the repository path of a role's metadata file.
func MetadataPath(roleName string) string {
	return MetadataDirName + "/" + roleName + ".json"
}

// ArtifactPath returns the repository path of an artifact.
func ArtifactPath(artifact string) string {
	return ArtifactDirName + "/" + artifact
}

// DirSource is a Source over a plain directory tree.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (d *DirSource) ReadFile(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return contents, nil
}

func (d *DirSource) ListFiles(dir string) ([]string, error) {
	base := filepath.Join(d.root, filepath.FromSlash(dir))
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	files := []string{}
	err := filepath.WalkDir(base, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files = append(files, strings.ReplaceAll(rel, string(filepath.Separator), "/"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// RoleNames lists the roles that have metadata files in src.
func RoleNames(src Source) ([]string, error) {
	files, err := src.ListFiles(MetadataDirName)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, file := range files {
		if strings.Contains(file, "/") || !strings.HasSuffix(file, ".json") {
			// root_history and the event state file are not roles
			continue
		}
		names = append(names, strings.TrimSuffix(file, ".json"))
	}
	return names, nil
}
