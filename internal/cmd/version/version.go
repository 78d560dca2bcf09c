// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package version //nolint:revive

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/dev"
	"github.com/tufci/tufci/internal/version"
)

type options struct{}

func (o *options) AddFlags(_ *cobra.Command) {}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "tufci version %s\n", version.GetVersion())

	if dev.InDevMode() {
		fmt.Fprintf(cmd.OutOrStdout(), "tufci is operating in developer mode. Override by unsetting %s.\n", dev.DevModeKey)
	}

	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "version",
		Short:             "Version of tufci",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
