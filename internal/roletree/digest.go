// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package roletree

import (
	"github.com/opencontainers/go-digest"
)

// DigestSHA256 returns the hex sha256 digest and length of contents, in
// the shape target file entries record them.
func DigestSHA256(contents []byte) (string, int64) {
	return digest.SHA256.FromBytes(contents).Encoded(), int64(len(contents))
}
