// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package createevents

import (
	"fmt"
	"strings"

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
		"push created signing event branches to the remote",
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

	events, err := scheduler.New(state, nil, nil).CreateSigningEvents(cmd.Context(), o.push)
	if err != nil {
		return err
	}

	// consumed by the CI workflow to open one change request per event
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(events, " "))
	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "create-events",
		Short:             "Open signing events for offline roles entering their signing period",
		Long:              "Creates a branch with an unsigned version bump commit for every offline role whose remaining validity is inside its signing period. Existing event branches are left alone, so the command can run on a schedule.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
