// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

// MetaFile records the version, length and hashes of a metadata file
// referenced by snapshot or timestamp.
type MetaFile struct {
	Version int               `json:"version"`
	Length  int64             `json:"length,omitempty"`
	Hashes  map[string]string `json:"hashes,omitempty"`
}

// Equal reports whether two meta entries are identical.
func (m *MetaFile) Equal(other *MetaFile) bool {
	if other == nil || m.Version != other.Version || m.Length != other.Length || len(m.Hashes) != len(other.Hashes) {
		return false
	}
	for alg, digest := range m.Hashes {
		if other.Hashes[alg] != digest {
			return false
		}
	}
	return true
}

// SnapshotMetadata records the exact version and hash of every role
// reachable from the delegation tree at snapshot-build time.
type SnapshotMetadata struct {
	SignedCommon
	Meta map[string]*MetaFile `json:"meta"`
}

// NewSnapshotMetadata returns a new, empty instance of
// SnapshotMetadata. Version 0 makes the first bump produce version 1.
func NewSnapshotMetadata() *SnapshotMetadata {
	return &SnapshotMetadata{
		SignedCommon: SignedCommon{
			Type:        SnapshotRoleName,
			SpecVersion: SpecVersion,
		},
		Meta: map[string]*MetaFile{},
	}
}

// MetaEqual reports whether the recorded role versions match other's.
func (s *SnapshotMetadata) MetaEqual(other *SnapshotMetadata) bool {
	if other == nil || len(s.Meta) != len(other.Meta) {
		return false
	}
	for name, entry := range s.Meta {
		if !entry.Equal(other.Meta[name]) {
			return false
		}
	}
	return true
}

// TimestampMetadata references exactly the current snapshot's version
// and hash.
type TimestampMetadata struct {
	SignedCommon
	Meta map[string]*MetaFile `json:"meta"`
}

// NewTimestampMetadata returns a new, empty instance of
// TimestampMetadata.
func NewTimestampMetadata() *TimestampMetadata {
	return &TimestampMetadata{
		SignedCommon: SignedCommon{
			Type:        TimestampRoleName,
			SpecVersion: SpecVersion,
		},
		Meta: map[string]*MetaFile{
			SnapshotRoleName + ".json": {Version: 0},
		},
	}
}

// SnapshotMeta returns the recorded snapshot entry.
func (t *TimestampMetadata) SnapshotMeta() *MetaFile {
	return t.Meta[SnapshotRoleName+".json"]
}

// SetSnapshotMeta updates the recorded snapshot entry.
func (t *TimestampMetadata) SetSnapshotMeta(meta *MetaFile) {
	if t.Meta == nil {
		t.Meta = map[string]*MetaFile{}
	}
	t.Meta[SnapshotRoleName+".json"] = meta
}
