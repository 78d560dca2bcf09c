// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package dev

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/dev/fixkeyids"
	"github.com/tufci/tufci/internal/dev"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dev",
		Short:   "Developer mode commands",
		Long:    fmt.Sprintf("The 'dev' command group provides utilities that rewrite trust metadata outside the reviewed signing event flow. They are not meant for production workflows. To enable these commands, the environment variable %s must be set to 1.", dev.DevModeKey),
		PreRunE: checkInDevMode,
	}

	cmd.AddCommand(fixkeyids.New())

	return cmd
}

func checkInDevMode(_ *cobra.Command, _ []string) error {
	if !dev.InDevMode() {
		return dev.ErrNotInDevMode
	}
	return nil
}
