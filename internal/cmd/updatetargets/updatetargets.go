// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package updatetargets

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/common"
	"github.com/tufci/tufci/internal/gitinterface"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/signingevent"
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
		true,
		"push the corrected metadata to the signing event branch",
	)
}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	eventCtx, err := common.LoadEventContext(".", o.baseBranch)
	if err != nil {
		return err
	}

	evaluator := signingevent.NewEvaluator(nil)
	corrections, err := evaluator.ComputeCorrections(eventCtx.Base, eventCtx.Candidate)
	if err != nil {
		return err
	}
	if len(corrections) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Targets metadata already matches committed artifacts")
		return nil
	}

	roleNames := make([]string, 0, len(corrections))
	for roleName := range corrections {
		roleNames = append(roleNames, roleName)
	}
	sort.Strings(roleNames)

	eventRef := gitinterface.BranchRefPrefix + eventCtx.EventName
	for _, roleName := range roleNames {
		message := fmt.Sprintf("Update targets metadata for role %s", roleName)
		if _, err := eventCtx.Repo.CommitFilesToRef(eventRef, "", message, map[string][]byte{
			roletree.MetadataPath(roleName): corrections[roleName],
		}); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Committed metadata changes for role(s) %s\n", strings.Join(roleNames, ", "))

	if o.push {
		err := eventCtx.Repo.PushBranch(cmd.Context(), gitinterface.DefaultRemoteName, eventCtx.EventName)
		if err != nil {
			if errors.Is(err, gitinterface.ErrPushRejected) {
				// someone updated the event meanwhile; the next
				// automation run recomputes against their state
				slog.Info("Signing event changed concurrently, skipping push")
				return nil
			}
			return err
		}
	}

	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "update-targets",
		Short:             "Reconcile targets metadata with the artifacts committed in the signing event",
		Long:              "Recomputes the target file entries of every targets role from the artifacts committed on the current signing event branch and commits corrected, unsigned metadata for the roles that were out of sync. This is the only metadata rewrite automation performs in a signing event.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
