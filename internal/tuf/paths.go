// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDelegationDepth bounds how many path segments an artifact may sit
// below its owning role's directory. Artifacts nested deeper belong to
// no role and are invalid.
const MaxDelegationDepth = 4

var (
	ErrPathOwnershipViolation = errors.New("artifact path is not owned by any role")

	// ErrArtifactTooDeep wraps ErrPathOwnershipViolation for paths that
	// resolve to a role but sit below the supported nesting depth.
	ErrArtifactTooDeep = fmt.Errorf("%w: nesting deeper than supported", ErrPathOwnershipViolation)
)

// DelegatedPaths returns the path patterns a delegated role owns: a
// directory named after the role, recursively, up to depth levels.
func DelegatedPaths(roleName string, depth int) []string {
	paths := []string{}
	pattern := roleName + "/*"
	for i := 0; i < depth; i++ {
		paths = append(paths, pattern)
		pattern += "/*"
	}
	return paths
}

// PathOwner resolves the owning role for an artifact path relative to
// the artifact store root. delegations maps a role name to its child
// role names; resolution walks from the top-level targets role down,
// matching the longest defined prefix.
func PathOwner(delegations map[string][]string, path string) (string, error) {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return "", fmt.Errorf("%w: '%s'", ErrPathOwnershipViolation, path)
	}

	owner := TargetsRoleName
	consumed := 0
	for consumed < len(segments)-1 {
		child := segments[consumed]
		if !containsName(delegations[owner], child) {
			break
		}
		owner = child
		consumed++
	}

	remaining := len(segments) - consumed
	if owner == TargetsRoleName {
		// the top-level role only owns files directly in the store root
		if remaining > 1 {
			return "", fmt.Errorf("%w: '%s'", ErrPathOwnershipViolation, path)
		}
		return owner, nil
	}

	if remaining > MaxDelegationDepth {
		return "", fmt.Errorf("%w: '%s' exceeds depth %d below role '%s'", ErrArtifactTooDeep, path, MaxDelegationDepth, owner)
	}

	return owner, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
