// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package builder produces the publishable form of the repository:
// consistent-snapshot metadata filenames and digest-addressed artifact
// copies. The output is a pure function of the repository state, so
// rebuilding an unchanged state yields byte-identical results.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

var ErrNotPublishable = errors.New("repository state is not publishable")

// Result lists what a build produced, with paths relative to the
// respective output directory.
type Result struct {
	MetadataFiles []string
	ArtifactFiles []string

	// SkippedArtifacts lists committed artifacts excluded from the
	// bundle because no role owns their path.
	SkippedArtifacts []string
}

// Build writes the publishable bundle for the state in src. Metadata is
// written to metadataDir; artifacts to artifactDir unless it is empty.
func Build(src roletree.Source, metadataDir, artifactDir string) (*Result, error) {
	tree, err := roletree.Load(src)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		return nil, err
	}

	written := map[string]bool{}
	writeMetadata := func(name string, contents []byte) error {
		if written[name] {
			return nil
		}
		if err := os.WriteFile(filepath.Join(metadataDir, name), contents, 0o644); err != nil {
			return err
		}
		written[name] = true
		result.MetadataFiles = append(result.MetadataFiles, name)
		return nil
	}

	// every published root version, for clients bootstrapping from an
	// older root
	history, err := src.ListFiles(roletree.MetadataDirName + "/" + roletree.RootHistoryDirName)
	if err != nil {
		return nil, err
	}
	for _, name := range history {
		contents, err := src.ReadFile(roletree.MetadataDirName + "/" + roletree.RootHistoryDirName + "/" + name)
		if err != nil {
			return nil, err
		}
		if err := writeMetadata(name, contents); err != nil {
			return nil, err
		}
	}

	rootContents, err := src.ReadFile(roletree.MetadataPath(tuf.RootRoleName))
	if err != nil {
		return nil, err
	}
	if err := writeMetadata(fmt.Sprintf("%d.root.json", tree.Root().GetVersion()), rootContents); err != nil {
		return nil, err
	}

	// timestamp is the only metadata published under a stable name
	timestampContents, err := src.ReadFile(roletree.MetadataPath(tuf.TimestampRoleName))
	if err != nil {
		if errors.Is(err, roletree.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: no timestamp metadata, run online signing first", ErrNotPublishable)
		}
		return nil, err
	}
	if err := writeMetadata("timestamp.json", timestampContents); err != nil {
		return nil, err
	}

	snapshotContents, err := src.ReadFile(roletree.MetadataPath(tuf.SnapshotRoleName))
	if err != nil {
		if errors.Is(err, roletree.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: no snapshot metadata, run online signing first", ErrNotPublishable)
		}
		return nil, err
	}
	snapshot, err := tuf.LoadMetadata(snapshotContents)
	if err != nil {
		return nil, err
	}
	snapshotPayload := snapshot.Signed.(*tuf.SnapshotMetadata)
	if err := writeMetadata(fmt.Sprintf("%d.snapshot.json", snapshotPayload.GetVersion()), snapshotContents); err != nil {
		return nil, err
	}

	metaNames := []string{}
	for name := range snapshotPayload.Meta {
		metaNames = append(metaNames, name)
	}
	sort.Strings(metaNames)
	for _, name := range metaNames {
		roleName := strings.TrimSuffix(name, ".json")
		contents, err := src.ReadFile(roletree.MetadataPath(roleName))
		if err != nil {
			return nil, err
		}
		if err := writeMetadata(fmt.Sprintf("%d.%s", snapshotPayload.Meta[name].Version, name), contents); err != nil {
			return nil, err
		}
	}

	if artifactDir != "" {
		if err := buildArtifacts(result, tree, src, artifactDir); err != nil {
			return nil, err
		}
	}

	sort.Strings(result.MetadataFiles)
	return result, nil
}

// buildArtifacts copies every artifact certified by a targets role into
// the bundle under its digest-prefixed name, so multiple versions of
// one artifact can be published side by side.
func buildArtifacts(result *Result, tree *roletree.RoleTree, src roletree.Source, artifactDir string) error {
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return err
	}

	for _, roleName := range tree.TargetsRoles() {
		targets, _ := tree.Targets(roleName)

		paths := []string{}
		for path := range targets.Targets {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			contents, err := src.ReadFile(roletree.ArtifactPath(path))
			if err != nil {
				return fmt.Errorf("artifact '%s' certified by '%s' is missing: %w", path, roleName, err)
			}

			dir, name := splitArtifactPath(path)
			if err := os.MkdirAll(filepath.Join(artifactDir, filepath.FromSlash(dir)), 0o755); err != nil {
				return err
			}

			digests := []string{}
			for _, digest := range targets.Targets[path].Hashes {
				digests = append(digests, digest)
			}
			sort.Strings(digests)
			for _, digest := range digests {
				published := digest + "." + name
				if dir != "" {
					published = dir + "/" + published
				}
				if err := os.WriteFile(filepath.Join(artifactDir, filepath.FromSlash(published)), contents, 0o644); err != nil {
					return err
				}
				result.ArtifactFiles = append(result.ArtifactFiles, published)
			}
		}
	}

	// committed artifacts no role certifies never enter the bundle
	committed, err := src.ListFiles(roletree.ArtifactDirName)
	if err != nil {
		return err
	}
	for _, artifact := range committed {
		if _, err := tree.ResolveOwner(artifact); err != nil {
			slog.Warn("Excluding artifact with no owning role", "artifact", artifact)
			result.SkippedArtifacts = append(result.SkippedArtifacts, artifact)
		}
	}

	sort.Strings(result.ArtifactFiles)
	return nil
}

func splitArtifactPath(path string) (dir, name string) {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx], path[idx+1:]
	}
	return "", path
}
