// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package fixkeyids

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/tuf"
)

type options struct{}

func (o *options) AddFlags(_ *cobra.Command) {}

func (o *options) Run(cmd *cobra.Command, _ []string) error {
	src := roletree.NewDirSource(".")

	names, err := roletree.RoleNames(src)
	if err != nil {
		return err
	}

	migrated := []string{}
	for _, name := range names {
		contents, err := src.ReadFile(roletree.MetadataPath(name))
		if err != nil {
			return err
		}
		metadata, err := tuf.LoadMetadata(contents)
		if err != nil {
			return fmt.Errorf("role '%s': %w", name, err)
		}

		changed, err := tuf.MigrateKeyIDs(metadata)
		if err != nil {
			return fmt.Errorf("role '%s': %w", name, err)
		}
		if !changed {
			continue
		}

		updated, err := metadata.Bytes()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.FromSlash(roletree.MetadataPath(name)), updated, 0o644); err != nil {
			return err
		}
		migrated = append(migrated, name)
	}

	if len(migrated) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "All key identifiers already match the canonical computation")
		return nil
	}

	for _, name := range migrated {
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated key identifiers in %s\n", name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Existing signatures under legacy keyids no longer verify; collect new signatures in a signing event.")
	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "fix-keyids",
		Short:             "Migrate legacy key identifiers to the canonical computation",
		Long:              "Rewrites every key identifier in the checked-out metadata to the canonical digest of the key contents, updating all signer sets that reference migrated keys. Metadata rewritten this way must be re-signed in a signing event.",
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
