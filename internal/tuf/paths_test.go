// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelegatedPaths(t *testing.T) {
	assert.Equal(t, []string{"app/*", "app/*/*", "app/*/*/*", "app/*/*/*/*"}, DelegatedPaths("app", MaxDelegationDepth))
	assert.Equal(t, []string{"lib/*"}, DelegatedPaths("lib", 1))
}

func TestPathOwner(t *testing.T) {
	delegations := map[string][]string{
		TargetsRoleName: {"app", "lib"},
		"app":           {"plugins"},
	}

	tests := map[string]struct {
		path          string
		expectedOwner string
		expectedError error
	}{
		"top level file": {
			path:          "README.md",
			expectedOwner: TargetsRoleName,
		},
		"delegated file": {
			path:          "app/app-1.0.tar.gz",
			expectedOwner: "app",
		},
		"nested delegation wins over parent": {
			path:          "app/plugins/auth.so",
			expectedOwner: "plugins",
		},
		"deep file within supported nesting": {
			path:          "lib/a/b/c/lib.so",
			expectedOwner: "lib",
		},
		"file below supported nesting": {
			path:          "lib/a/b/c/d/lib.so",
			expectedError: ErrArtifactTooDeep,
		},
		"directory under no delegated role": {
			path:          "unknown/file.txt",
			expectedError: ErrPathOwnershipViolation,
		},
		"trailing slash": {
			path:          "app/",
			expectedError: ErrPathOwnershipViolation,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			owner, err := PathOwner(delegations, test.path)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, test.expectedOwner, owner)
		})
	}
}

func TestPathOwnerTooDeepIsOwnershipViolation(t *testing.T) {
	// callers distinguishing the two cases still treat both as unowned
	assert.ErrorIs(t, ErrArtifactTooDeep, ErrPathOwnershipViolation)
}
