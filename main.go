// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/tufci/tufci/internal/cmd/root"
)

func main() {
	rootCmd := root.New()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
