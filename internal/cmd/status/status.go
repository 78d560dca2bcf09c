// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/common"
	"github.com/tufci/tufci/internal/display"
	"github.com/tufci/tufci/internal/signingevent"
)

type options struct {
	baseBranch string
	markdown   bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&o.baseBranch,
		"base-branch",
		common.DefaultBaseBranch,
		"branch holding the trusted repository state",
	)

	cmd.Flags().BoolVar(
		&o.markdown,
		"markdown",
		false,
		"emit the markdown report posted on the signing event",
	)
}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	eventCtx, err := common.LoadEventContext(".", o.baseBranch)
	if err != nil {
		return err
	}

	evaluator := signingevent.NewEvaluator(nil)
	event, err := evaluator.Evaluate(eventCtx.EventName, eventCtx.Base, eventCtx.Candidate)
	if err != nil {
		return err
	}

	if o.markdown {
		fmt.Fprint(cmd.OutOrStdout(), event.Markdown("tufci sign"))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), display.Event(event))
	}

	if event.Status != signingevent.StatusReady {
		return fmt.Errorf("signing event is not ready: %s", event.Status)
	}
	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "status",
		Short:             "Evaluate the state of the current signing event",
		Long:              "Compares the current branch against the trusted base state and reports, for every changed role, its validity and how far it is from its signing threshold. The command exits successfully only when every changed role is ready to merge.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
