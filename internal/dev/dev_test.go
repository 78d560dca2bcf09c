// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package dev

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInDevMode(t *testing.T) {
	t.Setenv(DevModeKey, "")
	assert.False(t, InDevMode())

	t.Setenv(DevModeKey, "1")
	assert.True(t, InDevMode())

	t.Setenv(DevModeKey, "true")
	assert.False(t, InDevMode())
}
