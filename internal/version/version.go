// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package version

var gitVersion = "devel"

// GetVersion returns the version recorded at build time via ldflags.
func GetVersion() string {
	return gitVersion
}
