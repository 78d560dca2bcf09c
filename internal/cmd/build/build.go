// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/builder"
	"github.com/tufci/tufci/internal/roletree"
)

type options struct {
	metadataDir string
	artifactDir string
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&o.metadataDir,
		"metadata",
		"",
		"directory to write publishable metadata to",
	)
	cmd.MarkFlagRequired("metadata") //nolint:errcheck

	cmd.Flags().StringVar(
		&o.artifactDir,
		"artifacts",
		"",
		"directory to write digest-addressed artifact copies to",
	)
}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	result, err := builder.Build(roletree.NewDirSource("."), o.metadataDir, o.artifactDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Metadata published in %s\n", o.metadataDir)
	if o.artifactDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Artifacts published in %s\n", o.artifactDir)
	}
	for _, artifact := range result.SkippedArtifacts {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: artifact %s has no owning role and was excluded\n", artifact)
	}
	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "build",
		Short:             "Build the publishable repository",
		Long:              "Writes consistent-snapshot metadata filenames and digest-addressed artifact copies for the current repository state. Rebuilding an unchanged state yields byte-identical output.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
