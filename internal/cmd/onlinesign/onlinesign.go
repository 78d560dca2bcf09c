// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package onlinesign

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/common"
	"github.com/tufci/tufci/internal/gitinterface"
	"github.com/tufci/tufci/internal/scheduler"
)

type options struct {
	baseBranch string
	push       bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&o.baseBranch,
		"base-branch",
		common.DefaultBaseBranch,
		"branch holding the trusted repository state",
	)

	cmd.Flags().BoolVar(
		&o.push,
		"push",
		false,
		"push the online signing commit to the remote",
	)
}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	repo, err := gitinterface.LoadRepository(".")
	if err != nil {
		return err
	}

	remote := ""
	if o.push {
		remote = gitinterface.DefaultRemoteName
	}
	state := gitinterface.NewStateRepo(repo, o.baseBranch, remote)

	result, err := scheduler.New(state, nil, nil).OnlineSign(cmd.Context(), o.baseBranch, o.push)
	if err != nil {
		return err
	}

	switch {
	case result.SnapshotUpdated:
		fmt.Fprintf(cmd.OutOrStdout(), "Online sign (snapshot v%d & timestamp v%d)\n", result.SnapshotVersion, result.TimestampVersion)
	case result.TimestampUpdated:
		fmt.Fprintf(cmd.OutOrStdout(), "Online sign (timestamp v%d)\n", result.TimestampVersion)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Online signing not needed")
	}
	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "online-sign",
		Short:             "Produce new snapshot and timestamp versions if needed",
		Long:              "Creates a new snapshot when its recorded role versions no longer match the repository state, when it enters its signing period, or when it is not correctly signed; a new timestamp follows. Both roles are signed with the configured online signing backend.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
