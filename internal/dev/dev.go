// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package dev gates commands that can rewrite trust metadata outside
// the reviewed signing event flow.
package dev

import (
	"errors"
	"os"
)

// DevModeKey is the environment variable that enables developer mode.
const DevModeKey = "TUFCI_DEV"

var ErrNotInDevMode = errors.New("developer mode commands are only available when TUFCI_DEV=1 is set")

// InDevMode reports whether tufci is operating in developer mode.
func InDevMode() bool {
	return os.Getenv(DevModeKey) == "1"
}
